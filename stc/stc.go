// Package stc is the seam between the outer speed-and-torque control
// and the components that need its speed sensor. Reference ramping
// itself lives outside this module; the handle only owns the sensor
// binding.
package stc

import "tinygo.org/x/foc/speedpos"

// Handle binds the speed & torque controller to its feedback source.
type Handle struct {
	spd *speedpos.Handle
}

// New returns a controller handle reading from the given sensor.
func New(spd *speedpos.Handle) *Handle {
	return &Handle{spd: spd}
}

// SpeedSensor returns the feedback source driving the controller.
func (h *Handle) SpeedSensor() *speedpos.Handle {
	return h.spd
}
