package sto

// CalcAvrgElSpeedDpp refreshes the average electrical speed consumed
// by the observer's cross-coupling term. The rolling sum spans the
// most recent SpeedBufferSizeDpp entries of the FIFO: each call drops
// the sample leaving that window and adds the newest one, then
// publishes sum >> SpeedBufferSizeDppLog into the base record.
// Call at the speed-loop rate, once per observer push.
func (h *Handle) CalcAvrgElSpeedDpp() {
	indexNew := int16(h.speedBufferIndex)
	sum := h.dppBufferSum

	sizeDiff := int16(h.size01Hz) - int16(h.sizeDpp)
	if sizeDiff == 0 {
		sum += int32(h.speedBuffer[indexNew]) - int32(h.speedBufferOldest)
	} else {
		indexOld := indexNew + sizeDiff
		if indexOld >= int16(h.size01Hz) {
			indexOld -= int16(h.size01Hz)
		}
		sum += int32(h.speedBuffer[indexNew]) - int32(h.speedBuffer[indexOld])
	}

	h.Super.ElSpeedDpp = int16(sum >> h.sizeDppLog)
	h.dppBufferSum = sum
}

// CalcAvrgMecSpeed01Hz computes the average rotor mechanical speed in
// 0.1 Hz over the whole FIFO and the sensor reliability verdict.
// Before convergence the verdict is the generic out-of-range decision
// of the base feedback. After convergence a failed speed-variance or
// back-EMF consistency check (the latter when enabled) counts towards
// the reliability hysteresis; exhausting it forces the verdict to
// unreliable, otherwise the base feedback decides.
func (h *Handle) CalcAvrgMecSpeed01Hz() (mecSpeed01Hz int16, reliable bool) {
	bufferSize := int32(h.size01Hz)

	avrSpeedDpp := int32(0)
	for i := int32(0); i < bufferSize; i++ {
		avrSpeedDpp += int32(h.speedBuffer[i])
	}
	avrSpeedDpp /= bufferSize

	quadraticError := int32(0)
	for i := int32(0); i < bufferSize; i++ {
		e := int32(h.speedBuffer[i]) - avrSpeedDpp
		quadraticError += e * e
	}
	quadraticError /= bufferSize

	// The acceptable variance grows with the square of the average
	// speed.
	avrSquareSpeed := avrSpeedDpp * avrSpeedDpp
	avrSquareSpeed = (avrSquareSpeed / 128) * int32(h.variancePercentage)

	h.isSpeedReliable = quadraticError <= avrSquareSpeed

	aux := avrSpeedDpp * int32(h.Super.MeasurementFrequency)
	aux *= 10
	aux /= 65536
	aux /= int32(h.Super.ElToMecRatio)

	mecSpeed01Hz = int16(aux)
	h.Super.AvrMecSpeed01Hz = mecSpeed01Hz

	bemfConsistent := false
	if h.enableDualCheck {
		obsBemfSq := int32(0)
		estBemfSq := int32(0)
		if aux < 0 {
			aux = -aux
		}
		if aux < int32(h.maxAppPositiveMecSpeed01Hz) {
			obsBemfSq = int32(h.bemfAlpha)*int32(h.bemfAlpha) +
				int32(h.bemfBeta)*int32(h.bemfBeta)

			estBemf := (aux * 32767) / int32(h.Super.MaxReliableMecSpeed01Hz)
			estBemfSq = (estBemf * int32(h.bemfConsistencyGain)) / 64
			estBemfSq *= estBemf

			lowThreshold := estBemfSq -
				(estBemfSq/64)*int32(h.bemfConsistencyCheck)

			if obsBemfSq > lowThreshold {
				bemfConsistent = true
			}
		}
		h.isBemfConsistent = bemfConsistent
		h.obsBemfLevel = obsBemfSq
		h.estBemfLevel = estBemfSq
	} else {
		bemfConsistent = true
	}

	if !h.isConverged {
		reliable = h.Super.IsMecSpeedReliable(mecSpeed01Hz)
	} else if !h.isSpeedReliable || !bemfConsistent {
		h.reliabilityCounter++
		if h.reliabilityCounter >= h.reliabilityHysteresis {
			h.reliabilityCounter = 0
			h.Super.SpeedErrorNumber = h.Super.MaximumSpeedErrorsNumber
			reliable = false
		} else {
			reliable = h.Super.IsMecSpeedReliable(mecSpeed01Hz)
		}
	} else {
		h.reliabilityCounter = 0
		reliable = h.Super.IsMecSpeedReliable(mecSpeed01Hz)
	}

	return mecSpeed01Hz, reliable
}

// EnableBemfConsistencyCheck switches the dual reliability check on or
// off. Disabled, the consistency verdict is unconditionally true.
func (h *Handle) EnableBemfConsistencyCheck(enable bool) {
	h.enableDualCheck = enable
}

// IsBemfConsistent reports the result of the last consistency check.
func (h *Handle) IsBemfConsistent() bool { return h.isBemfConsistent }

// IsVarianceTight reports the result of the last variance check.
func (h *Handle) IsVarianceTight() bool { return h.isSpeedReliable }

// ObservedBemfLevel returns the squared magnitude of the observed
// back-EMF at the last consistency check.
func (h *Handle) ObservedBemfLevel() int32 { return h.obsBemfLevel }

// EstimatedBemfLevel returns the squared magnitude the consistency
// check expected at the last measured speed.
func (h *Handle) EstimatedBemfLevel() int32 { return h.estBemfLevel }
