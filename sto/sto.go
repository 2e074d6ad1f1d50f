// Package sto implements the sensorless speed & position feedback for
// PMSM drives: a discrete-time Luenberger observer estimating the
// stator currents and the back-EMF in the stationary (alpha, beta)
// frame, coupled with a software PLL extracting rotor electrical angle
// and speed from the estimated back-EMF.
//
// CalcElAngle runs at the current-loop rate and must stay inside the
// PWM period; the averaging, reliability and convergence methods run
// at the speed-loop rate. Nothing here allocates or blocks after Init.
package sto

import (
	"sync/atomic"

	"tinygo.org/x/foc"
	"tinygo.org/x/foc/mcmath"
	"tinygo.org/x/foc/pid"
	"tinygo.org/x/foc/speedpos"
)

const (
	c6CompConst1 = int32(1043038)
	c6CompConst2 = int32(10430)
)

// speedBufferCap bounds the speed FIFO; Config sizes must not exceed it.
const speedBufferCap = 64

// Inputs carries one current-loop tick of observer inputs.
type Inputs struct {
	// Ialphabeta are the measured stator currents.
	Ialphabeta foc.AlphaBeta
	// Valphabeta are the commanded stator voltages, expressed as a
	// fraction of the full modulation range.
	Valphabeta foc.AlphaBeta
	// Vbus is the instantaneous bus voltage in the same normalization.
	Vbus int16
}

// Config holds the observer parameters, immutable after Init except
// through the documented setters. F1, F2, the dpp buffer size and the
// validation bands follow the usual gain-scheduling derivation from
// the motor constants; F1 and F2 must be the powers of two named by
// their Log fields.
type Config struct {
	C1, C2, C3, C4, C5 int16

	F1, F2       int16
	F1Log, F2Log uint8

	// Speed FIFO sizing: the 0.1 Hz average spans the whole buffer,
	// the dpp average the most recent SpeedBufferSizeDpp entries
	// (a power of two, its log in SpeedBufferSizeDppLog).
	SpeedBufferSize01Hz   uint8
	SpeedBufferSizeDpp    uint8
	SpeedBufferSizeDppLog uint8

	// VariancePercentage scales the speed-variance acceptance
	// threshold (128 == 100%).
	VariancePercentage uint16

	// Start-up validation band around the forced speed, in 1/16 units.
	SpeedValidationBandH uint8
	SpeedValidationBandL uint8

	// MinStartUpValidSpeed is the minimum absolute mechanical speed
	// (0.1 Hz) accepted during start-up validation.
	MinStartUpValidSpeed uint16

	// StartUpConsistThreshold is the number of consecutive valid
	// start-up checks required to declare convergence.
	StartUpConsistThreshold uint8

	// ReliabilityHysteresis is the number of consecutive failed
	// checks tolerated after convergence before the sensor trips.
	ReliabilityHysteresis uint8

	// Back-EMF consistency tuning (1/64 units) and the speed above
	// which the check is skipped.
	BemfConsistencyCheck       uint8
	BemfConsistencyGain        uint8
	MaxAppPositiveMecSpeed01Hz uint16

	// PLL is the configuration of the speed PI regulator.
	PLL pid.Config

	// Feedback carries the base speed & position feedback limits.
	Feedback speedpos.Config
}

// Handle is one motor's observer instance.
type Handle struct {
	// Super is the base speed & position feedback record; the
	// supervisor and the feed-forward stage read angle and speed
	// through it.
	Super speedpos.Handle

	c1, c3, c5 int16
	// gains packs C2 (high half) and C4 (low half) so the tuning
	// setter cannot tear against the observer ISR.
	gains atomic.Uint32

	f1, f2, f3           int16
	f1Log, f2Log, f3Pow2 uint8
	c6                   int16

	pll pid.Handle

	ialphaEst    int32 // scaled by F1
	ibetaEst     int32 // scaled by F1
	bemfAlphaEst int32 // scaled by F2
	bemfBetaEst  int32 // scaled by F2

	// Last decimated back-EMF estimates, unscaled s16.
	bemfAlpha int16
	bemfBeta  int16

	speedBuffer       [speedBufferCap]int16
	speedBufferIndex  uint8
	speedBufferOldest int16
	dppBufferSum      int32

	size01Hz   uint8
	sizeDpp    uint8
	sizeDppLog uint8

	variancePercentage         uint16
	bandH, bandL               uint8
	minStartUpValidSpeed       uint16
	startUpConsistThreshold    uint8
	reliabilityHysteresis      uint8
	bemfConsistencyCheck       uint8
	bemfConsistencyGain        uint8
	maxAppPositiveMecSpeed01Hz uint16

	consistencyCounter uint8
	reliabilityCounter uint8

	isSpeedReliable   bool
	isBemfConsistent  bool
	isConverged       bool
	enableDualCheck   bool
	forceConvergence  bool
	forceConvergence2 bool

	obsBemfLevel int32
	estBemfLevel int32
}

// Init loads the configuration, derives F3 and C6, and clears the
// dynamic state. F3 is the smallest power of two that scales the
// beta/alpha cross-coupling term out of the normalized C6 constant:
// halve C6_CONST1/F2 until it reaches zero, doubling F3 along the way.
func (h *Handle) Init(cfg Config) {
	h.c1 = cfg.C1
	h.c3 = cfg.C3
	h.c5 = cfg.C5
	h.SetObserverGains(cfg.C2, cfg.C4)

	h.f1 = cfg.F1
	h.f2 = cfg.F2
	h.f1Log = cfg.F1Log
	h.f2Log = cfg.F2Log

	h.size01Hz = cfg.SpeedBufferSize01Hz
	h.sizeDpp = cfg.SpeedBufferSizeDpp
	h.sizeDppLog = cfg.SpeedBufferSizeDppLog
	h.variancePercentage = cfg.VariancePercentage
	h.bandH = cfg.SpeedValidationBandH
	h.bandL = cfg.SpeedValidationBandL
	h.minStartUpValidSpeed = cfg.MinStartUpValidSpeed
	h.startUpConsistThreshold = cfg.StartUpConsistThreshold
	h.reliabilityHysteresis = cfg.ReliabilityHysteresis
	h.bemfConsistencyCheck = cfg.BemfConsistencyCheck
	h.bemfConsistencyGain = cfg.BemfConsistencyGain
	h.maxAppPositiveMecSpeed01Hz = cfg.MaxAppPositiveMecSpeed01Hz

	h.consistencyCounter = cfg.StartUpConsistThreshold
	h.enableDualCheck = true

	aux := int32(1)
	h.f3Pow2 = 0
	k := int16(c6CompConst1 / int32(cfg.F2))
	for k != 0 {
		k /= 2
		aux *= 2
		h.f3Pow2++
	}
	h.f3 = int16(aux)
	h.c6 = int16(int32(cfg.F2) * int32(h.f3) / c6CompConst2)

	h.Super.Init(cfg.Feedback)
	h.pll.Init(cfg.PLL)

	h.Clear()

	h.Super.MecAccel01HzP = 0
}

// Clear zeroes the dynamic estimator state. It is the only recovery
// primitive: the supervisor calls it on every motor (re)start.
func (h *Handle) Clear() {
	h.ialphaEst = 0
	h.ibetaEst = 0
	h.bemfAlphaEst = 0
	h.bemfBetaEst = 0
	h.bemfAlpha = 0
	h.bemfBeta = 0
	h.Super.ElAngle = 0
	h.Super.ElSpeedDpp = 0
	h.Super.AvrMecSpeed01Hz = 0
	h.consistencyCounter = 0
	h.reliabilityCounter = 0
	h.isConverged = false
	h.isSpeedReliable = false
	h.isBemfConsistent = false
	h.obsBemfLevel = 0
	h.estBemfLevel = 0
	h.dppBufferSum = 0
	h.forceConvergence = false
	h.forceConvergence2 = false

	for i := range h.speedBuffer {
		h.speedBuffer[i] = 0
	}
	h.speedBufferIndex = 0
	h.speedBufferOldest = 0

	h.pll.SetIntegralTerm(0)
}

// clampScaled saturates a scaled estimate to ±32767 times its scaling
// factor, so the later decimation can never exceed the s16 range.
func clampScaled(est int32, factor int16) int32 {
	limit := int32(mcmath.S16Max) * int32(factor)
	if est > limit {
		return limit
	}
	if est <= -limit {
		return -limit
	}
	return est
}

// CalcElAngle executes one Luenberger observer step and the PLL,
// producing a new speed estimate and the updated electrical angle.
// Callable from the current-loop ISR: deterministic, no allocation.
func (h *Handle) CalcElAngle(in Inputs) int16 {
	h.bemfAlphaEst = clampScaled(h.bemfAlphaEst, h.f2)
	bemfAlpha := int16(h.bemfAlphaEst >> h.f2Log)

	h.bemfBetaEst = clampScaled(h.bemfBetaEst, h.f2)
	bemfBeta := int16(h.bemfBetaEst >> h.f2Log)

	h.ialphaEst = clampScaled(h.ialphaEst, h.f1)
	h.ibetaEst = clampScaled(h.ibetaEst, h.f1)

	ialphaErr := int16(h.ialphaEst>>h.f1Log) - in.Ialphabeta.Alpha
	ibetaErr := int16(h.ibetaEst>>h.f1Log) - in.Ialphabeta.Beta

	valpha := int16((int32(in.Vbus) * int32(in.Valphabeta.Alpha)) >> 16)
	vbeta := int16((int32(in.Vbus) * int32(in.Valphabeta.Beta)) >> 16)

	c2, c4 := h.ObserverGains()
	speedDpp := h.Super.ElSpeedDpp

	// Alpha axis.
	ialpha := int16(h.ialphaEst >> h.f1Log)
	ialphaNext := h.ialphaEst - int32(h.c1)*int32(ialpha) +
		int32(c2)*int32(ialphaErr) +
		int32(h.c5)*int32(valpha) -
		int32(h.c3)*int32(bemfAlpha)

	bemfAlphaNext := h.bemfAlphaEst + int32(c4)*int32(ialphaErr) +
		(int32(bemfBeta)>>h.f3Pow2)*int32(h.c6)*int32(speedDpp)

	// Beta axis.
	ibeta := int16(h.ibetaEst >> h.f1Log)
	ibetaNext := h.ibetaEst - int32(h.c1)*int32(ibeta) +
		int32(c2)*int32(ibetaErr) +
		int32(h.c5)*int32(vbeta) -
		int32(h.c3)*int32(bemfBeta)

	bemfBetaNext := h.bemfBetaEst + int32(c4)*int32(ibetaErr) -
		(int32(bemfAlpha)>>h.f3Pow2)*int32(h.c6)*int32(speedDpp)

	direction := int32(1)
	if speedDpp < 0 {
		direction = -1
	}

	h.bemfAlpha = bemfAlpha
	h.bemfBeta = bemfBeta

	rotorSpeed := h.executePLL(
		int16(int32(bemfAlpha)*direction),
		int16(-(int32(bemfBeta) * direction)),
	)

	h.storeRotorSpeed(rotorSpeed)
	h.Super.ElAngle += rotorSpeed

	h.ialphaEst = ialphaNext
	h.bemfAlphaEst = bemfAlphaNext
	h.ibetaEst = ibetaNext
	h.bemfBetaEst = bemfBetaNext

	return h.Super.ElAngle
}

// executePLL drives the quadrature projection of the direction-corrected
// back-EMF to zero through the speed PI regulator.
func (h *Handle) executePLL(bemfAlpha, bemfBeta int16) int16 {
	sin, cos := mcmath.SinCos(h.Super.ElAngle)

	alphaSin := int32(bemfAlpha) * int32(sin)
	betaCos := int32(bemfBeta) * int32(cos)

	return h.pll.PI(int32(int16(betaCos>>15)) - int32(int16(alphaSin>>15)))
}

// storeRotorSpeed pushes the latest dpp speed into the FIFO, keeping a
// snapshot of the element it evicts for the rolling-sum update.
func (h *Handle) storeRotorSpeed(rotorSpeed int16) {
	idx := h.speedBufferIndex + 1
	if idx == h.size01Hz {
		idx = 0
	}
	h.speedBufferOldest = h.speedBuffer[idx]
	h.speedBuffer[idx] = rotorSpeed
	h.speedBufferIndex = idx
}

// EstimatedBemf returns the last back-EMF estimates in s16.
func (h *Handle) EstimatedBemf() foc.AlphaBeta {
	return foc.AlphaBeta{Alpha: h.bemfAlpha, Beta: h.bemfBeta}
}

// EstimatedCurrent returns the stator current estimates, decimated by F1.
func (h *Handle) EstimatedCurrent() foc.AlphaBeta {
	return foc.AlphaBeta{
		Alpha: int16(h.ialphaEst >> h.f1Log),
		Beta:  int16(h.ibetaEst >> h.f1Log),
	}
}

// ObserverGains returns the correction gains applied to the current
// error: C2 on the current estimate, C4 on the back-EMF estimate.
func (h *Handle) ObserverGains() (c2, c4 int16) {
	g := h.gains.Load()
	return int16(uint16(g >> 16)), int16(uint16(g))
}

// SetObserverGains updates the C2 and C4 correction gains as one
// atomic pair, so the observer ISR never sees a half-written update.
func (h *Handle) SetObserverGains(c2, c4 int16) {
	h.gains.Store(uint32(uint16(c2))<<16 | uint32(uint16(c4)))
}

// ResetPLL zeroes the PLL integral term.
func (h *Handle) ResetPLL() {
	h.pll.SetIntegralTerm(0)
}

// SetPLL preloads the PLL with locking information: the integrator is
// seeded so the very next step outputs elSpeedDpp, and the angle is
// forced to elAngle.
func (h *Handle) SetPLL(elSpeedDpp, elAngle int16) {
	h.pll.SetIntegralTerm(int32(elSpeedDpp) * h.pll.KIDivisor())
	h.Super.ElAngle = elAngle
}

// PLLGains returns the PLL proportional and integral gains.
func (h *Handle) PLLGains() (kp, ki int16) {
	return h.pll.KP(), h.pll.KI()
}

// SetPLLGains updates the PLL proportional and integral gains.
func (h *Handle) SetPLLGains(kp, ki int16) {
	h.pll.SetKP(kp)
	h.pll.SetKI(ki)
}
