package mathutil

import "math"

// Mat3 is the linear part of a transform, row-major like Mat4.
type Mat3 [9]float64

func Mat3Identity() Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Mat3Diag is a per-axis scale.
func Mat3Diag(x, y, z float64) Mat3 {
	return Mat3{x, 0, 0, 0, y, 0, 0, 0, z}
}

// Mat3Mul returns a × b; b acts first.
func Mat3Mul(a, b Mat3) Mat3 {
	var m Mat3
	for i := 0; i < 9; i++ {
		r, c := i/3*3, i%3
		m[i] = a[r]*b[c] + a[r+1]*b[3+c] + a[r+2]*b[6+c]
	}
	return m
}

// MulVec3 applies m to v.
func (m Mat3) MulVec3(v Vec3) Vec3 {
	var out Vec3
	for r := 0; r < 3; r++ {
		out[r] = m[r*3]*v[0] + m[r*3+1]*v[1] + m[r*3+2]*v[2]
	}
	return out
}

// Column returns basis vector c.
func (m Mat3) Column(c int) Vec3 {
	return Vec3{m[c], m[3+c], m[6+c]}
}

func (m Mat3) Det() float64 {
	return m.Column(0).Dot(m.Column(1).Cross(m.Column(2)))
}

// Inverse returns the identity for a singular matrix; callers that care
// check Det first.
func (m Mat3) Inverse() Mat3 {
	d := m.Det()
	if d == 0 {
		return Mat3Identity()
	}
	// Rows of the inverse are the cross products of the columns.
	c0, c1, c2 := m.Column(0), m.Column(1), m.Column(2)
	r0, r1, r2 := c1.Cross(c2).Scale(1/d), c2.Cross(c0).Scale(1/d), c0.Cross(c1).Scale(1/d)
	return Mat3{
		r0[0], r0[1], r0[2],
		r1[0], r1[1], r1[2],
		r2[0], r2[1], r2[2],
	}
}

// Radians converts an xformOp angle, which is always in degrees.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// AxisRotation rotates by rad around the axis named 'X', 'Y' or 'Z'. Any
// other axis yields the identity.
func AxisRotation(axis rune, rad float64) Mat3 {
	c, s := math.Cos(rad), math.Sin(rad)
	switch axis {
	case 'X', 'x':
		return Mat3{1, 0, 0, 0, c, -s, 0, s, c}
	case 'Y', 'y':
		return Mat3{c, 0, s, 0, 1, 0, -s, 0, c}
	case 'Z', 'z':
		return Mat3{c, -s, 0, s, c, 0, 0, 0, 1}
	}
	return Mat3Identity()
}

// RotationOrdered composes the rotateXYZ family of ops: order names the axes
// with the first one applied first, and deg holds the X, Y and Z angles in
// degrees regardless of order.
func RotationOrdered(order string, deg Vec3) Mat3 {
	m := Mat3Identity()
	for _, axis := range order {
		i := axisIndex(axis)
		if i < 0 {
			continue
		}
		m = Mat3Mul(AxisRotation(axis, Radians(deg[i])), m)
	}
	return m
}

func axisIndex(axis rune) int {
	switch axis {
	case 'X', 'x':
		return 0
	case 'Y', 'y':
		return 1
	case 'Z', 'z':
		return 2
	}
	return -1
}
