package mathutil

import "math"

// Mat4 is a 4×4 affine matrix stored row-major and applied to column vectors,
// so the translation lives in elements 3, 7 and 11.
type Mat4 [16]float64

func Mat4Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mat4Mul returns a × b. Applied to a point, b acts first.
func Mat4Mul(a, b Mat4) Mat4 {
	var m Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m[r*4+c] = a[r*4+0]*b[0*4+c] + a[r*4+1]*b[1*4+c] +
				a[r*4+2]*b[2*4+c] + a[r*4+3]*b[3*4+c]
		}
	}
	return m
}

// MulPoint transforms a 3D point (w=1) by the 4×4 matrix.
func (m Mat4) MulPoint(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2] + m[3],
		m[4]*v[0] + m[5]*v[1] + m[6]*v[2] + m[7],
		m[8]*v[0] + m[9]*v[1] + m[10]*v[2] + m[11],
	}
}

// FromMat3Translation builds a 4×4 affine matrix from a 3×3 linear part and translation.
func FromMat3Translation(r Mat3, t Vec3) Mat4 {
	return Mat4{
		r[0], r[1], r[2], t[0],
		r[3], r[4], r[5], t[1],
		r[6], r[7], r[8], t[2],
		0, 0, 0, 1,
	}
}

// Translation returns the translation column.
func (m Mat4) Translation() Vec3 {
	return Vec3{m[3], m[7], m[11]}
}

// Linear returns the upper-left 3×3 block.
func (m Mat4) Linear() Mat3 {
	return Mat3{
		m[0], m[1], m[2],
		m[4], m[5], m[6],
		m[8], m[9], m[10],
	}
}

// Transpose returns the transposed matrix. Row-vector matrices (translation in
// the last row) convert to this package's layout with a single transpose.
func (m Mat4) Transpose() Mat4 {
	var t Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			t[c*4+r] = m[r*4+c]
		}
	}
	return t
}

// Inverse returns the inverse of an affine matrix. A singular linear part
// yields the inverse translation with an identity basis.
func (m Mat4) Inverse() Mat4 {
	lin := m.Linear()
	if math.Abs(lin.Det()) < 1e-12 {
		return FromMat3Translation(Mat3Identity(), m.Translation().Scale(-1))
	}
	inv := lin.Inverse()
	t := inv.MulVec3(m.Translation()).Scale(-1)
	return FromMat3Translation(inv, t)
}

// IsIdentity checks if the matrix is approximately identity.
func (m Mat4) IsIdentity() bool {
	id := Mat4Identity()
	for i := 0; i < 16; i++ {
		d := m[i] - id[i]
		if d > 1e-8 || d < -1e-8 {
			return false
		}
	}
	return true
}

// ApproxEqual reports whether every element differs by at most eps.
func (m Mat4) ApproxEqual(o Mat4, eps float64) bool {
	for i := range m {
		if math.Abs(m[i]-o[i]) > eps {
			return false
		}
	}
	return true
}

// Compose builds T × R × S.
func Compose(t Vec3, r Quat, s Vec3) Mat4 {
	rot := QuatToMat3(r)
	return FromMat3Translation(Mat3Mul(rot, Mat3Diag(s[0], s[1], s[2])), t)
}

// Decompose splits an affine matrix into translation, rotation and per-axis
// scale. Scale magnitudes are the lengths of the basis columns; a mirrored
// basis carries its sign on the X scale.
func (m Mat4) Decompose() (t Vec3, r Quat, s Vec3) {
	t = m.Translation()
	lin := m.Linear()
	cols := [3]Vec3{lin.Column(0), lin.Column(1), lin.Column(2)}
	s = Vec3{cols[0].Len(), cols[1].Len(), cols[2].Len()}
	if lin.Det() < 0 {
		s[0] = -s[0]
	}

	var rot Mat3
	for c := 0; c < 3; c++ {
		col := cols[c]
		if s[c] != 0 {
			col = col.Scale(1 / s[c])
		}
		rot[c] = col[0]
		rot[3+c] = col[1]
		rot[6+c] = col[2]
	}
	for c := 0; c < 3; c++ {
		if s[c] == 0 {
			rot = orthonormalFill(rot, c)
		}
	}
	r = QuatFromMat3(rot)
	return t, r, s
}

// orthonormalFill rebuilds a collapsed basis column from the other two.
func orthonormalFill(rot Mat3, c int) Mat3 {
	a := rot.Column((c + 1) % 3)
	b := rot.Column((c + 2) % 3)
	n := a.Cross(b).Normalize()
	if n.Len() == 0 {
		return Mat3Identity()
	}
	rot[c] = n[0]
	rot[3+c] = n[1]
	rot[6+c] = n[2]
	return rot
}
