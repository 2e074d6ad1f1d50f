package pid

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func testConfig() Config {
	return Config{
		Kp:            1024,
		Ki:            512,
		KpDivisorPow2: 10,
		KiDivisorPow2: 14,
		UpperOutput:   32767,
		LowerOutput:   -32767,
		UpperIntegral: 1 << 28,
		LowerIntegral: -(1 << 28),
	}
}

func TestProportionalOnly(t *testing.T) {
	c := qt.New(t)

	cfg := testConfig()
	cfg.Ki = 0
	var h Handle
	h.Init(cfg)

	// Kp/2^KpDiv == 1, so the output tracks the error one to one.
	c.Assert(h.PI(100), qt.Equals, int16(100))
	c.Assert(h.PI(-100), qt.Equals, int16(-100))
	c.Assert(h.IntegralTerm(), qt.Equals, int32(0))
}

func TestIntegralAccumulates(t *testing.T) {
	c := qt.New(t)

	cfg := testConfig()
	cfg.Kp = 0
	var h Handle
	h.Init(cfg)

	// Each call adds Ki*err to the accumulator; the output is the
	// accumulator scaled down by 2^KiDiv.
	for i := 1; i <= 32; i++ {
		out := h.PI(64)
		c.Assert(h.IntegralTerm(), qt.Equals, int32(i)*512*64)
		c.Assert(out, qt.Equals, int16(h.IntegralTerm()>>14))
	}
}

func TestIntegralSaturates(t *testing.T) {
	c := qt.New(t)

	cfg := testConfig()
	cfg.UpperIntegral = 100000
	cfg.LowerIntegral = -100000
	var h Handle
	h.Init(cfg)

	for i := 0; i < 100; i++ {
		h.PI(32767)
	}
	c.Assert(h.IntegralTerm(), qt.Equals, int32(100000))

	for i := 0; i < 200; i++ {
		h.PI(-32767)
	}
	c.Assert(h.IntegralTerm(), qt.Equals, int32(-100000))
}

func TestOutputSaturates(t *testing.T) {
	c := qt.New(t)

	cfg := testConfig()
	cfg.UpperOutput = 1000
	cfg.LowerOutput = -1000
	var h Handle
	h.Init(cfg)

	c.Assert(h.PI(1<<24), qt.Equals, int16(1000))
	h.SetIntegralTerm(0)
	c.Assert(h.PI(-(1 << 24)), qt.Equals, int16(-1000))
}

func TestSetIntegralTerm(t *testing.T) {
	c := qt.New(t)

	var h Handle
	h.Init(testConfig())

	h.SetIntegralTerm(1000 << 14)
	// Zero error: output is exactly the preloaded integral share.
	c.Assert(h.PI(0), qt.Equals, int16(1000))
}

func TestGainAccessors(t *testing.T) {
	c := qt.New(t)

	var h Handle
	h.Init(testConfig())

	h.SetKP(777)
	h.SetKI(-42)
	c.Assert(h.KP(), qt.Equals, int16(777))
	c.Assert(h.KI(), qt.Equals, int16(-42))
	c.Assert(h.KIDivisor(), qt.Equals, int32(1<<14))
}
