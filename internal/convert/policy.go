package convert

import (
	"fmt"

	"usd-instancer/internal/mathutil"
)

// originEpsilon absorbs rounding left by the anchor-relative transform.
const originEpsilon = 1e-9

// DegeneratePolicy returns the indices of placements that should not be
// emitted. Placements are anchor-relative and in discovery order.
type DegeneratePolicy func(placements []Placement) []int

// DropOriginEcho drops the first placement when it sits exactly at the
// anchor's origin. Exporters often leave the prototype's own definition there.
func DropOriginEcho(placements []Placement) []int {
	if len(placements) == 0 {
		return nil
	}
	p := placements[0].Position
	for _, c := range p {
		if c > originEpsilon || c < -originEpsilon {
			return nil
		}
	}
	return []int{0}
}

// KeepAll emits every placement.
func KeepAll([]Placement) []int {
	return nil
}

// PolicyByName maps a configuration value to a policy.
func PolicyByName(name string) (DegeneratePolicy, error) {
	switch name {
	case "", "origin-echo":
		return DropOriginEcho, nil
	case "keep":
		return KeepAll, nil
	}
	return nil, fmt.Errorf("convert: unknown degenerate policy %q", name)
}

// Placement is one instance's anchor-relative transform.
type Placement struct {
	Name        string
	Position    mathutil.Vec3
	Orientation mathutil.Quat
	Scale       mathutil.Vec3
}

// placementOf decomposes world relative to the anchor transform.
func placementOf(name string, anchor, world mathutil.Mat4) Placement {
	rel := mathutil.Mat4Mul(anchor.Inverse(), world)
	t, r, s := rel.Decompose()
	return Placement{Name: name, Position: t, Orientation: r, Scale: s}
}
