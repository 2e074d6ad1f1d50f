// Package speedpos holds the state shared by every speed & position
// feedback source: the electrical angle and speed consumed by the FOC
// loops, the averaged mechanical speed consumed by the speed loop, and
// the generic out-of-range hysteresis every sensor's reliability
// decision falls back to.
package speedpos

// Config carries the immutable plausibility limits of the drive.
type Config struct {
	// MaximumSpeedErrorsNumber is the number of consecutive
	// out-of-range samples tolerated before the sensor is declared
	// unreliable.
	MaximumSpeedErrorsNumber uint8
	// Mechanical speed range, in 0.1 Hz, outside of which a sample
	// counts as a speed error.
	MinReliableMecSpeed01Hz uint16
	MaxReliableMecSpeed01Hz uint16
	// MeasurementFrequency is the rate, in Hz, at which the electrical
	// angle is updated (the dpp time base).
	MeasurementFrequency uint16
	// ElToMecRatio is the number of electrical revolutions per
	// mechanical revolution (pole pairs).
	ElToMecRatio uint8
}

// Handle is the base feedback record embedded by concrete sensors.
type Handle struct {
	ElAngle         int16
	MecAngle        int16
	AvrMecSpeed01Hz int16
	ElSpeedDpp      int16
	MecAccel01HzP   int16

	SpeedErrorNumber         uint8
	MaximumSpeedErrorsNumber uint8

	MinReliableMecSpeed01Hz uint16
	MaxReliableMecSpeed01Hz uint16
	MeasurementFrequency    uint16
	ElToMecRatio            uint8
}

// Init loads the configured limits. Dynamic state is reset by Clear.
func (h *Handle) Init(cfg Config) {
	h.MaximumSpeedErrorsNumber = cfg.MaximumSpeedErrorsNumber
	h.MinReliableMecSpeed01Hz = cfg.MinReliableMecSpeed01Hz
	h.MaxReliableMecSpeed01Hz = cfg.MaxReliableMecSpeed01Hz
	h.MeasurementFrequency = cfg.MeasurementFrequency
	h.ElToMecRatio = cfg.ElToMecRatio
}

// Clear resets the dynamic feedback state before a motor restart.
func (h *Handle) Clear() {
	h.ElAngle = 0
	h.MecAngle = 0
	h.AvrMecSpeed01Hz = 0
	h.ElSpeedDpp = 0
	h.MecAccel01HzP = 0
	h.SpeedErrorNumber = 0
}

// IsMecSpeedReliable checks one mechanical speed sample against the
// configured range. An out-of-range sample increments the error
// counter up to its maximum and an in-range sample resets it; the
// sensor reports unreliable once the counter saturates. A saturated
// counter is only reset by Clear or by a caller taking over the
// decision.
func (h *Handle) IsMecSpeedReliable(mecSpeed01Hz int16) bool {
	abs := mecSpeed01Hz
	if abs < 0 {
		abs = -abs
	}

	speedError := uint16(abs) > h.MaxReliableMecSpeed01Hz ||
		uint16(abs) < h.MinReliableMecSpeed01Hz

	if speedError {
		if h.SpeedErrorNumber < h.MaximumSpeedErrorsNumber {
			h.SpeedErrorNumber++
		}
	} else if h.SpeedErrorNumber < h.MaximumSpeedErrorsNumber {
		h.SpeedErrorNumber = 0
	}

	return h.SpeedErrorNumber != h.MaximumSpeedErrorsNumber
}
