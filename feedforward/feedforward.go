// Package feedforward computes the q/d feed-forward voltage
// contributions that pre-bias the current PI regulators: the motional
// cross-coupling terms scaled by the measured speed and bus voltage,
// referenced to a low-pass average of the PI outputs.
//
// Three ordered phases run per speed-loop tick: Compute builds the new
// contribution from the current references, Conditioning adds it to
// the PI output on the way to the inverse Park transform, and
// DataProcess updates the PI-output average afterwards.
package feedforward

import (
	"sync/atomic"

	"tinygo.org/x/foc"
	"tinygo.org/x/foc/mcmath"
	"tinygo.org/x/foc/pid"
	"tinygo.org/x/foc/stc"
	"tinygo.org/x/foc/vbus"
)

// Constants is the feed-forward tuning triple. K1D scales the Id
// cross-coupling term on the q axis, K1Q the Iq term on the d axis,
// K2 the speed-proportional BEMF compensation.
type Constants struct {
	K1D int32
	K1Q int32
	K2  int32
}

// Config holds the defaults and the low-pass bandwidth. The filter
// parameter must be the power of two named by its Log field.
type Config struct {
	DefConstants Constants

	VqdLowPassFilterBW    int16
	VqdLowPassFilterBWLog uint8
}

// Handle is one motor's feed-forward stage.
type Handle struct {
	// constants is swapped as a whole so a tuning session can never
	// observe or publish a partially-updated triple.
	constants    atomic.Pointer[Constants]
	defConstants Constants

	lpfBWLog uint8

	vqdff      foc.QD
	vqdPIout   foc.QD
	vqdAvPIout foc.QD

	busSensor vbus.Sensor
	pidD      *pid.Handle
	pidQ      *pid.Handle
}

// Init loads the default constants and binds the collaborators. The
// bus sensor and the two regulators are owned by the caller and must
// outlive the handle.
func (h *Handle) Init(cfg Config, busSensor vbus.Sensor, pidD, pidQ *pid.Handle) {
	h.defConstants = cfg.DefConstants
	k := cfg.DefConstants
	h.constants.Store(&k)

	h.lpfBWLog = cfg.VqdLowPassFilterBWLog

	h.busSensor = busSensor
	h.pidD = pidD
	h.pidQ = pidQ
}

// Clear zeroes the feed-forward contribution. Call before each motor
// restart.
func (h *Handle) Clear() {
	h.vqdff = foc.QD{}
}

// InitFOCAdditional resets the PI-output average and both current
// regulators' integral terms for the start-to-run transition.
func (h *Handle) InitFOCAdditional() {
	h.vqdAvPIout = foc.QD{}
	h.pidQ.SetIntegralTerm(0)
	h.pidD.SetIntegralTerm(0)
}

// Compute is phase 1: it builds the new Vqdff value from the current
// references, the averaged bus voltage and the measured speed. The
// result is summed into the PI output by Conditioning.
func (h *Handle) Compute(iqdRef foc.QD, controller *stc.Handle) {
	speedDpp := controller.SpeedSensor().ElSpeedDpp
	busHalf := int32(h.busSensor.AvBusVoltageDigits() / 2)
	k := h.constants.Load()

	// q axis: Id cross-coupling plus the speed-proportional term.
	t1 := (int32(speedDpp) * int32(iqdRef.D)) / 32768
	t2 := (t1 * k.K1D) / busHalf * 2
	t3 := (k.K2 * int32(speedDpp)) / busHalf * 16
	h.vqdff.Q = mcmath.SaturateS16(t3 + t2 + int32(h.vqdAvPIout.Q))

	// d axis: Iq cross-coupling only.
	t1 = (int32(speedDpp) * int32(iqdRef.Q)) / 32768
	t2 = (t1 * k.K1Q) / busHalf * 2
	h.vqdff.D = mcmath.SaturateS16(int32(h.vqdAvPIout.D) - t2)
}

// Conditioning is phase 2: it snapshots the PI output and returns it
// with the feed-forward contribution added, each component saturated.
// The result is what goes to the inverse Park transform.
func (h *Handle) Conditioning(vqd foc.QD) foc.QD {
	h.vqdPIout = vqd
	return foc.QD{
		Q: mcmath.SaturateS16(int32(vqd.Q) + int32(h.vqdff.Q)),
		D: mcmath.SaturateS16(int32(vqd.D) + int32(h.vqdff.D)),
	}
}

// DataProcess is phase 3: a single-pole low-pass of the snapshotted PI
// output into the average Compute references next tick.
func (h *Handle) DataProcess() {
	aux := int32(h.vqdAvPIout.Q) << h.lpfBWLog
	aux = aux - int32(h.vqdAvPIout.Q) + int32(h.vqdPIout.Q)
	h.vqdAvPIout.Q = int16(aux >> h.lpfBWLog)

	aux = int32(h.vqdAvPIout.D) << h.lpfBWLog
	aux = aux - int32(h.vqdAvPIout.D) + int32(h.vqdPIout.D)
	h.vqdAvPIout.D = int16(aux >> h.lpfBWLog)
}

// Vqdff returns the current feed-forward components.
func (h *Handle) Vqdff() foc.QD {
	return h.vqdff
}

// VqdAvPIout returns the low-pass-averaged output of the q/d current
// regulators.
func (h *Handle) VqdAvPIout() foc.QD {
	return h.vqdAvPIout
}

// FFConstants returns the tuning triple in use.
func (h *Handle) FFConstants() Constants {
	return *h.constants.Load()
}

// SetFFConstants installs a new tuning triple as a single pointer
// swap, so concurrent readers see either the old or the new set.
func (h *Handle) SetFFConstants(k Constants) {
	h.constants.Store(&k)
}
