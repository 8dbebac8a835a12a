package mathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAxisRotation(t *testing.T) {
	tests := []struct {
		axis rune
		in   Vec3
		want Vec3
	}{
		{'X', Vec3{0, 1, 0}, Vec3{0, 0, 1}},
		{'Y', Vec3{0, 0, 1}, Vec3{1, 0, 0}},
		{'Z', Vec3{1, 0, 0}, Vec3{0, 1, 0}},
		{'W', Vec3{1, 2, 3}, Vec3{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(string(tt.axis), func(t *testing.T) {
			got := AxisRotation(tt.axis, Radians(90)).MulVec3(tt.in)
			assert.InDeltaSlice(t, tt.want[:], got[:], 1e-12)
		})
	}
}

func TestRotationOrdered(t *testing.T) {
	// X first: (0,1,0) -> (0,0,1), then Z leaves it alone.
	got := RotationOrdered("XYZ", Vec3{90, 0, 90}).MulVec3(Vec3{0, 1, 0})
	assert.InDeltaSlice(t, []float64{0, 0, 1}, got[:], 1e-12)

	// Z first: (0,1,0) -> (-1,0,0), then X leaves it alone.
	got = RotationOrdered("ZYX", Vec3{90, 0, 90}).MulVec3(Vec3{0, 1, 0})
	assert.InDeltaSlice(t, []float64{-1, 0, 0}, got[:], 1e-12)

	q := QuatFromMat3(RotationOrdered("XYZ", Vec3{20, -40, 70}))
	want := EulerToQuat(Radians(20), Radians(-40), Radians(70))
	assert.InDeltaSlice(t, want[:], q[:], 1e-12)
}

func TestMat3Inverse(t *testing.T) {
	m := Mat3Mul(RotationOrdered("XYZ", Vec3{10, 20, 30}), Mat3Diag(2, 3, 4))
	got := Mat3Mul(m, m.Inverse())
	id := Mat3Identity()
	assert.InDeltaSlice(t, id[:], got[:], 1e-12)
	assert.InDelta(t, 24, m.Det(), 1e-9)

	assert.Equal(t, Mat3Identity(), Mat3Diag(1, 0, 1).Inverse())
}

func TestVec3From(t *testing.T) {
	v, ok := Vec3From([]float64{1, 2, 3})
	assert.True(t, ok)
	assert.Equal(t, Vec3{1, 2, 3}, v)

	_, ok = Vec3From([]float64{1, 2})
	assert.False(t, ok)

	assert.True(t, Vec3{1, 1 + 1e-14, 1}.IsUnit(1e-12))
	assert.False(t, Vec3{1, 2, 1}.IsUnit(1e-12))
}
