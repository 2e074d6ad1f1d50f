package sto

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

// prime puts the handle in the state the open-loop ramp produces:
// a tight-variance estimate of the given mechanical speed.
func (h *Handle) prime(mecSpeed01Hz int16) {
	h.Super.AvrMecSpeed01Hz = mecSpeed01Hz
	h.isSpeedReliable = true
}

func TestConvergenceAfterConsistThreshold(t *testing.T) {
	c := qt.New(t)

	h := newTestHandle()
	estimates := []int16{90, 95, 100, 105, 110}

	// Band 14/16..18/16 of the forced 100 is [87, 112]; every estimate
	// qualifies, so convergence lands exactly on the 64th call.
	for i := 0; i < 63; i++ {
		h.prime(estimates[i%len(estimates)])
		c.Assert(h.IsObserverConverged(100), qt.Equals, false, qt.Commentf("call %d", i))
	}
	h.prime(100)
	c.Assert(h.IsObserverConverged(100), qt.Equals, true)
	c.Assert(h.isConverged, qt.Equals, true)
	c.Assert(h.Super.SpeedErrorNumber, qt.Equals, uint8(0))

	// One-way per motor start: only Clear goes back.
	h.Clear()
	c.Assert(h.isConverged, qt.Equals, false)
}

func TestConvergenceCounterResetsOnSingleMiss(t *testing.T) {
	c := qt.New(t)

	resets := []struct {
		name     string
		estimate int16
	}{
		{"above band", 120},
		{"below band", 80},
		{"below minimum", 40},
		{"sign mismatch", -100},
	}
	for _, tc := range resets {
		h := newTestHandle()
		for i := 0; i < 40; i++ {
			h.prime(100)
			h.IsObserverConverged(100)
		}
		c.Assert(h.consistencyCounter, qt.Equals, uint8(40), qt.Commentf("%s", tc.name))

		h.prime(tc.estimate)
		c.Assert(h.IsObserverConverged(100), qt.Equals, false)
		c.Assert(h.consistencyCounter, qt.Equals, uint8(0), qt.Commentf("%s", tc.name))
	}
}

func TestConvergenceRequiresTightVariance(t *testing.T) {
	c := qt.New(t)

	h := newTestHandle()
	for i := 0; i < 40; i++ {
		h.prime(100)
		h.IsObserverConverged(100)
	}
	h.Super.AvrMecSpeed01Hz = 100
	h.isSpeedReliable = false
	c.Assert(h.IsObserverConverged(100), qt.Equals, false)
	c.Assert(h.consistencyCounter, qt.Equals, uint8(0))
}

func TestConvergenceNegativeDirection(t *testing.T) {
	c := qt.New(t)

	cfg := testConfig()
	cfg.StartUpConsistThreshold = 4
	h := &Handle{}
	h.Init(cfg)

	for i := 0; i < 3; i++ {
		h.prime(-100)
		c.Assert(h.IsObserverConverged(-100), qt.Equals, false)
	}
	h.prime(-100)
	c.Assert(h.IsObserverConverged(-100), qt.Equals, true)
}

func TestForceConvergence1(t *testing.T) {
	c := qt.New(t)

	h := newTestHandle()
	h.Super.SpeedErrorNumber = 2
	h.ForceConvergence1()
	c.Assert(h.IsObserverConverged(0), qt.Equals, true)
	c.Assert(h.isConverged, qt.Equals, true)
	c.Assert(h.Super.SpeedErrorNumber, qt.Equals, uint8(0))
}

func TestForceConvergence2SubstitutesEstimate(t *testing.T) {
	c := qt.New(t)

	cfg := testConfig()
	cfg.StartUpConsistThreshold = 2
	h := &Handle{}
	h.Init(cfg)

	h.ForceConvergence2()
	// The forced argument is ignored: the estimate validates against
	// itself, so any value above the start-up minimum converges.
	h.prime(100)
	c.Assert(h.IsObserverConverged(0), qt.Equals, false)
	h.prime(100)
	c.Assert(h.IsObserverConverged(0), qt.Equals, true)
}

func TestSetMinStartUpValidSpeed(t *testing.T) {
	c := qt.New(t)

	cfg := testConfig()
	cfg.StartUpConsistThreshold = 1
	h := &Handle{}
	h.Init(cfg)

	h.SetMinStartUpValidSpeed01Hz(200)
	h.prime(100)
	// 100 is inside the validation band but below the raised minimum.
	c.Assert(h.IsObserverConverged(100), qt.Equals, false)

	h.SetMinStartUpValidSpeed01Hz(50)
	h.prime(100)
	c.Assert(h.IsObserverConverged(100), qt.Equals, true)
}
