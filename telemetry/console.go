package telemetry

import (
	"strconv"

	"github.com/google/shlex"

	"tinygo.org/x/foc/feedforward"
	"tinygo.org/x/foc/sto"
)

// Console applies text tuning commands to one motor's handles. It is
// the serial/MQTT-side counterpart of the vendor tuning GUIs: every
// command goes through the documented parameter setters, so the
// ISR-safety rules of those setters carry over unchanged.
//
// Commands:
//
//	pll <kp> <ki>        set the PLL gains
//	gains <c2> <c4>      set the observer correction gains
//	ff <k1d> <k1q> <k2>  set the feed-forward constants
//	minspeed <01hz>      set the minimum valid start-up speed
//	bemfcheck on|off     switch the BEMF consistency check
//	force1               force convergence on the next check
//	force2               validate start-up against the estimate
//	clear                reset estimator and feed-forward state
//	status               report a telemetry frame
type Console struct {
	Observer *sto.Handle
	FF       *feedforward.Handle
}

const (
	errUnknownCommand = Error("telemetry: unknown command")
	errBadArgCount    = Error("telemetry: wrong number of arguments")
	errBadArgument    = Error("telemetry: bad argument")
)

func parseS16(s string) (int16, error) {
	v, err := strconv.ParseInt(s, 10, 16)
	if err != nil {
		return 0, errBadArgument
	}
	return int16(v), nil
}

func parseS32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, errBadArgument
	}
	return int32(v), nil
}

// Exec tokenizes and runs one command line, returning the reply text.
func (c *Console) Exec(line string) (string, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return "", errBadArgument
	}
	if len(args) == 0 {
		return "", nil
	}

	want := func(n int) error {
		if len(args) != n+1 {
			return errBadArgCount
		}
		return nil
	}

	switch args[0] {
	case "pll":
		if err := want(2); err != nil {
			return "", err
		}
		kp, err := parseS16(args[1])
		if err != nil {
			return "", err
		}
		ki, err := parseS16(args[2])
		if err != nil {
			return "", err
		}
		c.Observer.SetPLLGains(kp, ki)
		return "ok", nil

	case "gains":
		if err := want(2); err != nil {
			return "", err
		}
		c2, err := parseS16(args[1])
		if err != nil {
			return "", err
		}
		c4, err := parseS16(args[2])
		if err != nil {
			return "", err
		}
		c.Observer.SetObserverGains(c2, c4)
		return "ok", nil

	case "ff":
		if err := want(3); err != nil {
			return "", err
		}
		var k feedforward.Constants
		if k.K1D, err = parseS32(args[1]); err != nil {
			return "", err
		}
		if k.K1Q, err = parseS32(args[2]); err != nil {
			return "", err
		}
		if k.K2, err = parseS32(args[3]); err != nil {
			return "", err
		}
		c.FF.SetFFConstants(k)
		return "ok", nil

	case "minspeed":
		if err := want(1); err != nil {
			return "", err
		}
		v, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			return "", errBadArgument
		}
		c.Observer.SetMinStartUpValidSpeed01Hz(uint16(v))
		return "ok", nil

	case "bemfcheck":
		if err := want(1); err != nil {
			return "", err
		}
		switch args[1] {
		case "on":
			c.Observer.EnableBemfConsistencyCheck(true)
		case "off":
			c.Observer.EnableBemfConsistencyCheck(false)
		default:
			return "", errBadArgument
		}
		return "ok", nil

	case "force1":
		if err := want(0); err != nil {
			return "", err
		}
		c.Observer.ForceConvergence1()
		return "ok", nil

	case "force2":
		if err := want(0); err != nil {
			return "", err
		}
		c.Observer.ForceConvergence2()
		return "ok", nil

	case "clear":
		if err := want(0); err != nil {
			return "", err
		}
		c.Observer.Clear()
		c.FF.Clear()
		return "ok", nil

	case "status":
		if err := want(0); err != nil {
			return "", err
		}
		return string(AppendFrame(nil, Collect(c.Observer, c.FF))), nil
	}

	return "", errUnknownCommand
}
