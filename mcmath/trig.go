package mcmath

// SinCos is computed with a 15-iteration CORDIC in rotation mode. The
// angle accumulator works in s16 angle units (65536 units per
// revolution), so the atan table below is atan(2^-i) converted to those
// units. The iterations converge for inputs up to ~±99 degrees; wider
// angles are folded into the first and fourth quadrant first.

// atan(2^-i) in s16 angle units.
var cordicAtan = [15]int32{
	8192, 4836, 2555, 1297, 651, 326, 163, 81, 41, 20, 10, 5, 3, 1, 1,
}

// cordicGainInv is 32767 divided by the CORDIC processing gain
// (K = 1.64676), so the rotated vector lands on the ±32767 circle.
const cordicGainInv = 19898

// SinCos returns the sine and cosine of an s16 electrical angle, both
// scaled to ±32767.
func SinCos(angle int16) (sin, cos int16) {
	a := int32(angle)
	negCos := false
	if a > 16384 {
		a = 32768 - a
		negCos = true
	} else if a < -16384 {
		a = -32768 - a
		negCos = true
	}

	x := int32(cordicGainInv)
	y := int32(0)
	z := a
	for i := 0; i < len(cordicAtan); i++ {
		dx := x >> uint(i)
		dy := y >> uint(i)
		if z >= 0 {
			x -= dy
			y += dx
			z -= cordicAtan[i]
		} else {
			x += dy
			y -= dx
			z += cordicAtan[i]
		}
	}

	x = Constrain(x, -S16Max, S16Max)
	y = Constrain(y, -S16Max, S16Max)
	if negCos {
		x = -x
	}
	return int16(y), int16(x)
}
