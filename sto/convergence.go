package sto

// IsObserverConverged performs the start-up validation: during the
// open-loop ramp it compares the estimated mechanical speed against
// the externally forced one and declares convergence once the
// estimate has tracked the forced value, with tight variance, for
// StartUpConsistThreshold consecutive calls. The transition is one-way
// per motor start; only Clear goes back.
func (h *Handle) IsObserverConverged(forcedMecSpeed01Hz int16) bool {
	if h.forceConvergence2 {
		forcedMecSpeed01Hz = h.Super.AvrMecSpeed01Hz
	}

	if h.forceConvergence {
		h.isConverged = true
		h.Super.SpeedErrorNumber = 0
		return true
	}

	estimated := h.Super.AvrMecSpeed01Hz

	if int32(estimated)*int32(forcedMecSpeed01Hz) <= 0 {
		h.consistencyCounter = 0
		return false
	}
	if estimated < 0 {
		estimated = -estimated
	}
	forced := forcedMecSpeed01Hz
	if forced < 0 {
		forced = -forced
	}

	upperThreshold := int16(int32(forced) * int32(h.bandH) / 16)
	lowerThreshold := int16(int32(forced) * int32(h.bandL) / 16)

	ok := h.isSpeedReliable &&
		uint16(estimated) > h.minStartUpValidSpeed &&
		estimated >= lowerThreshold &&
		estimated <= upperThreshold

	if !ok {
		h.consistencyCounter = 0
		return false
	}

	h.consistencyCounter++
	if h.consistencyCounter >= h.startUpConsistThreshold {
		h.isConverged = true
		h.Super.SpeedErrorNumber = 0
		return true
	}
	return false
}

// ForceConvergence1 makes the next IsObserverConverged call declare
// convergence unconditionally.
func (h *Handle) ForceConvergence1() {
	h.forceConvergence = true
}

// ForceConvergence2 makes IsObserverConverged validate against the
// currently estimated speed instead of the forced one (virtual speed
// sensor fallback).
func (h *Handle) ForceConvergence2() {
	h.forceConvergence2 = true
}

// SetMinStartUpValidSpeed01Hz updates the absolute minimum mechanical
// speed required to validate the start-up.
func (h *Handle) SetMinStartUpValidSpeed01Hz(speed uint16) {
	h.minStartUpValidSpeed = speed
}
