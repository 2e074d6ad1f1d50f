// Package mcmath provides the fixed-point arithmetic helpers shared by
// the motor-control components: symmetric s16 saturation, range
// constraining and s16 sin/cos.
//
// Angles throughout this module are s16 electrical degrees: the full
// signed 16-bit range maps linearly to one electrical revolution, so
// 0x4000 is a quarter turn and wrap-around of int16 addition is the
// intended angle wrap.
package mcmath

import "golang.org/x/exp/constraints"

// S16Max is the symmetric saturation bound applied on every output
// path. Note it is -S16Max, not math.MinInt16, on the negative side.
const S16Max = 32767

// SaturateS16 clamps a 32-bit intermediate to [-32767, 32767].
func SaturateS16(v int32) int16 {
	if v > S16Max {
		return S16Max
	}
	if v < -S16Max {
		return -S16Max
	}
	return int16(v)
}

// Constrain limits value to the [min, max] range (supports multiple types).
func Constrain[T constraints.Ordered](value, min, max T) T {
	if value < min {
		return min
	} else if value > max {
		return max
	}
	return value
}
