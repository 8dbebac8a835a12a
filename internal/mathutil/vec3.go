package mathutil

import "math"

// Vec3 is a point, direction or per-axis scale.
type Vec3 [3]float64

// Vec3From reads the first three components of t.
func Vec3From(t []float64) (Vec3, bool) {
	if len(t) != 3 {
		return Vec3{}, false
	}
	return Vec3{t[0], t[1], t[2]}, true
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

func (v Vec3) Dot(o Vec3) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

func (v Vec3) Len() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize returns the zero vector for a vector too short to have a direction.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l < 1e-12 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// IsUnit reports whether every component equals one within eps.
func (v Vec3) IsUnit(eps float64) bool {
	for _, c := range v {
		if math.Abs(c-1) > eps {
			return false
		}
	}
	return true
}
