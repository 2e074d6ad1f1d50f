package telemetry

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"tinygo.org/x/foc"
	"tinygo.org/x/foc/feedforward"
	"tinygo.org/x/foc/pid"
	"tinygo.org/x/foc/speedpos"
	"tinygo.org/x/foc/sto"
	"tinygo.org/x/foc/vbus"
)

func newConsole() *Console {
	obs := &sto.Handle{}
	obs.Init(sto.Config{
		C1: 200, C2: 6000, C3: 1000, C4: 2000, C5: 18000,
		F1: 4096, F2: 16384, F1Log: 12, F2Log: 14,
		SpeedBufferSize01Hz: 8, SpeedBufferSizeDpp: 4, SpeedBufferSizeDppLog: 2,
		VariancePercentage:   4,
		SpeedValidationBandH: 18, SpeedValidationBandL: 14,
		MinStartUpValidSpeed: 50, StartUpConsistThreshold: 64,
		ReliabilityHysteresis: 5,
		BemfConsistencyCheck:  32, BemfConsistencyGain: 64,
		MaxAppPositiveMecSpeed01Hz: 625,
		PLL: pid.Config{
			Kp: 600, Ki: 30, KpDivisorPow2: 14, KiDivisorPow2: 16,
			UpperOutput: 32767, LowerOutput: -32767,
			UpperIntegral: 1 << 30, LowerIntegral: -(1 << 30),
		},
		Feedback: speedpos.Config{
			MaximumSpeedErrorsNumber: 3,
			MaxReliableMecSpeed01Hz:  1000,
			MeasurementFrequency:     16384,
			ElToMecRatio:             1,
		},
	})

	var pidD, pidQ pid.Handle
	ff := &feedforward.Handle{}
	ff.Init(feedforward.Config{
		DefConstants:          feedforward.Constants{K1D: 1, K1Q: 2, K2: 3},
		VqdLowPassFilterBW:    16,
		VqdLowPassFilterBWLog: 4,
	}, &vbus.Virtual{ExpectedDigits: 20000}, &pidD, &pidQ)

	return &Console{Observer: obs, FF: ff}
}

func TestConsoleSetsParameters(t *testing.T) {
	c := qt.New(t)

	con := newConsole()

	reply, err := con.Exec("pll 321 42")
	c.Assert(err, qt.IsNil)
	c.Assert(reply, qt.Equals, "ok")
	kp, ki := con.Observer.PLLGains()
	c.Assert(kp, qt.Equals, int16(321))
	c.Assert(ki, qt.Equals, int16(42))

	_, err = con.Exec("gains -100 250")
	c.Assert(err, qt.IsNil)
	c2, c4 := con.Observer.ObserverGains()
	c.Assert(c2, qt.Equals, int16(-100))
	c.Assert(c4, qt.Equals, int16(250))

	_, err = con.Exec("ff 10 20 30")
	c.Assert(err, qt.IsNil)
	c.Assert(con.FF.FFConstants(), qt.Equals, feedforward.Constants{K1D: 10, K1Q: 20, K2: 30})

	_, err = con.Exec("bemfcheck off")
	c.Assert(err, qt.IsNil)
	_, err = con.Exec("bemfcheck on")
	c.Assert(err, qt.IsNil)
}

func TestConsoleStatus(t *testing.T) {
	c := qt.New(t)

	con := newConsole()
	reply, err := con.Exec("status")
	c.Assert(err, qt.IsNil)
	c.Assert(strings.Contains(reply, "angle=0"), qt.Equals, true)
	c.Assert(strings.Contains(reply, "dpp=0"), qt.Equals, true)
}

func TestConsoleQuoting(t *testing.T) {
	c := qt.New(t)

	con := newConsole()
	// The tokenizer handles quoting and repeated whitespace.
	_, err := con.Exec(`pll   "321"  42`)
	c.Assert(err, qt.IsNil)
	kp, _ := con.Observer.PLLGains()
	c.Assert(kp, qt.Equals, int16(321))
}

func TestConsoleRejectsBadInput(t *testing.T) {
	c := qt.New(t)

	con := newConsole()

	_, err := con.Exec("warp 9")
	c.Assert(err, qt.Equals, errUnknownCommand)

	_, err = con.Exec("pll 1")
	c.Assert(err, qt.Equals, errBadArgCount)

	_, err = con.Exec("pll one two")
	c.Assert(err, qt.Equals, errBadArgument)

	_, err = con.Exec("gains 100000 0")
	c.Assert(err, qt.Equals, errBadArgument)

	_, err = con.Exec("bemfcheck maybe")
	c.Assert(err, qt.Equals, errBadArgument)

	reply, err := con.Exec("")
	c.Assert(err, qt.IsNil)
	c.Assert(reply, qt.Equals, "")
}

func TestConsoleClear(t *testing.T) {
	c := qt.New(t)

	con := newConsole()
	con.Observer.SetPLL(1000, 1234)

	_, err := con.Exec("clear")
	c.Assert(err, qt.IsNil)
	c.Assert(con.Observer.Super.ElAngle, qt.Equals, int16(0))
	c.Assert(con.FF.Vqdff(), qt.Equals, foc.QD{})
}

func TestConsoleForceCommands(t *testing.T) {
	c := qt.New(t)

	con := newConsole()
	_, err := con.Exec("force1")
	c.Assert(err, qt.IsNil)
	c.Assert(con.Observer.IsObserverConverged(0), qt.Equals, true)

	_, err = con.Exec("minspeed 75")
	c.Assert(err, qt.IsNil)
}
