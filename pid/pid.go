// Package pid implements the fixed-point PI(D) regulator used by the
// current loops, the speed loop and the sensorless PLL. Gains are s16
// with power-of-two divisors so the hot path is multiply-and-shift
// only; the integral accumulator is s32 and saturated against
// configurable limits.
package pid

// Config holds the regulator coefficients and limits, immutable except
// through the setters below.
type Config struct {
	Kp int16
	Ki int16
	// Power-of-two divisors applied to the proportional and integral
	// contributions.
	KpDivisorPow2 uint8
	KiDivisorPow2 uint8
	// Output saturation, applied to the summed contributions.
	UpperOutput int16
	LowerOutput int16
	// Integral accumulator saturation.
	UpperIntegral int32
	LowerIntegral int32
}

// Handle is one PI(D) regulator instance.
type Handle struct {
	kp int16
	ki int16

	kpDivisorPow2 uint8
	kiDivisorPow2 uint8

	upperOutput int16
	lowerOutput int16

	upperIntegral int32
	lowerIntegral int32

	integral int32
}

// Init loads the configuration and zeroes the integral accumulator.
func (h *Handle) Init(cfg Config) {
	h.kp = cfg.Kp
	h.ki = cfg.Ki
	h.kpDivisorPow2 = cfg.KpDivisorPow2
	h.kiDivisorPow2 = cfg.KiDivisorPow2
	h.upperOutput = cfg.UpperOutput
	h.lowerOutput = cfg.LowerOutput
	h.upperIntegral = cfg.UpperIntegral
	h.lowerIntegral = cfg.LowerIntegral
	h.integral = 0
}

// KP returns the proportional gain.
func (h *Handle) KP() int16 { return h.kp }

// KI returns the integral gain.
func (h *Handle) KI() int16 { return h.ki }

// SetKP updates the proportional gain.
func (h *Handle) SetKP(kp int16) { h.kp = kp }

// SetKI updates the integral gain.
func (h *Handle) SetKI(ki int16) { h.ki = ki }

// KIDivisor returns the divisor applied to the integral accumulator.
func (h *Handle) KIDivisor() int32 { return 1 << h.kiDivisorPow2 }

// IntegralTerm returns the current integral accumulator.
func (h *Handle) IntegralTerm() int32 { return h.integral }

// SetIntegralTerm preloads the integral accumulator. Used to resume
// from a known state (PLL locking, bumpless restart).
func (h *Handle) SetIntegralTerm(v int32) { h.integral = v }

// PI computes one proportional-integral step for the given process
// error and returns the saturated output. A zero integral gain flushes
// the accumulator so stale state cannot leak into later runs.
func (h *Handle) PI(processError int32) int16 {
	proportional := int64(h.kp) * int64(processError)

	if h.ki == 0 {
		h.integral = 0
	} else {
		sum := int64(h.integral) + int64(h.ki)*int64(processError)
		if sum > int64(h.upperIntegral) {
			sum = int64(h.upperIntegral)
		} else if sum < int64(h.lowerIntegral) {
			sum = int64(h.lowerIntegral)
		}
		h.integral = int32(sum)
	}

	out := (proportional >> h.kpDivisorPow2) + int64(h.integral>>h.kiDivisorPow2)
	if out > int64(h.upperOutput) {
		out = int64(h.upperOutput)
	} else if out < int64(h.lowerOutput) {
		out = int64(h.lowerOutput)
	}
	return int16(out)
}
