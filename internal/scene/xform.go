package scene

import (
	"strings"

	"usd-instancer/internal/mathutil"
)

const (
	OpOrder     = "xformOpOrder"
	OpTransform = "xformOp:transform"
	OpTranslate = "xformOp:translate"
	OpRotateXYZ = "xformOp:rotateXYZ"
	OpOrient    = "xformOp:orient"
	OpScale     = "xformOp:scale"
	resetStack  = "!resetXformStack!"
	invertOp    = "!invert!"
)

// LocalTransform evaluates the prim's xformOpOrder. The second result reports
// a !resetXformStack! marker, which detaches the prim from its parent's transform.
func LocalTransform(n *Node) (mathutil.Mat4, bool) {
	m := mathutil.Mat4Identity()
	order := n.Attr(OpOrder)
	if order == nil {
		return m, false
	}
	ops, _ := order.Strings()
	reset := false
	for _, op := range ops {
		if op == resetStack {
			m = mathutil.Mat4Identity()
			reset = true
			continue
		}
		inverse := strings.HasPrefix(op, invertOp)
		name := strings.TrimPrefix(op, invertOp)
		a := n.Attr(name)
		if a == nil {
			continue
		}
		opM := opMatrix(name, a)
		if inverse {
			opM = opM.Inverse()
		}
		m = mathutil.Mat4Mul(m, opM)
	}
	return m, reset
}

func opMatrix(name string, a *Attribute) mathutil.Mat4 {
	kind := name[len("xformOp:"):]
	if i := strings.IndexByte(kind, ':'); i >= 0 {
		kind = kind[:i]
	}
	switch kind {
	case "transform":
		if mv, ok := a.Value.(Matrix); ok {
			return mathutil.Mat4(mv).Transpose()
		}
	case "translate":
		if v, ok := vec3(a); ok {
			return mathutil.FromMat3Translation(mathutil.Mat3Identity(), v)
		}
	case "scale":
		if v, ok := vec3(a); ok {
			return mathutil.FromMat3Translation(mathutil.Mat3Diag(v[0], v[1], v[2]), mathutil.Vec3{})
		}
	case "orient":
		if t, ok := a.Tuple(); ok && len(t) == 4 {
			q := mathutil.Quat{t[1], t[2], t[3], t[0]}.Normalize()
			return mathutil.FromMat3Translation(mathutil.QuatToMat3(q), mathutil.Vec3{})
		}
	case "rotateX", "rotateY", "rotateZ":
		if f, ok := a.Float(); ok {
			rot := mathutil.AxisRotation(rune(kind[len(kind)-1]), mathutil.Radians(f))
			return mathutil.FromMat3Translation(rot, mathutil.Vec3{})
		}
	default:
		if strings.HasPrefix(kind, "rotate") && len(kind) == len("rotateXYZ") {
			if v, ok := vec3(a); ok {
				return mathutil.FromMat3Translation(mathutil.RotationOrdered(kind[len("rotate"):], v), mathutil.Vec3{})
			}
		}
	}
	return mathutil.Mat4Identity()
}

func vec3(a *Attribute) (mathutil.Vec3, bool) {
	t, ok := a.Tuple()
	if !ok {
		return mathutil.Vec3{}, false
	}
	return mathutil.Vec3From(t)
}

// WorldTransform composes local transforms from the top-level prim down.
func WorldTransform(n *Node) mathutil.Mat4 {
	var chain []*Node
	for cur := n; cur != nil && cur.Name != ""; cur = cur.Parent {
		chain = append(chain, cur)
	}
	m := mathutil.Mat4Identity()
	for i := len(chain) - 1; i >= 0; i-- {
		local, reset := LocalTransform(chain[i])
		if reset {
			m = local
			continue
		}
		m = mathutil.Mat4Mul(m, local)
	}
	return m
}

// ClearTransform removes every xformOp attribute and the op order.
func ClearTransform(n *Node) {
	kept := n.Attrs[:0]
	for _, a := range n.Attrs {
		if a.Name == OpOrder || strings.HasPrefix(a.Name, "xformOp:") {
			continue
		}
		kept = append(kept, a)
	}
	n.Attrs = kept
}

// SetTRS replaces the prim's transform with translate, orient and scale ops.
// Identity components are omitted.
func SetTRS(n *Node, t mathutil.Vec3, r mathutil.Quat, s mathutil.Vec3) {
	ClearTransform(n)
	var order []Token
	if t != (mathutil.Vec3{}) {
		n.Set(OpTranslate, TypeDouble3, Tuple{t[0], t[1], t[2]})
		order = append(order, OpTranslate)
	}
	if r != mathutil.QuatIdentity() {
		n.Set(OpOrient, TypeQuatf, Tuple{r[3], r[0], r[1], r[2]})
		order = append(order, OpOrient)
	}
	if !s.IsUnit(1e-12) {
		n.Set(OpScale, TypeFloat3, Tuple{s[0], s[1], s[2]})
		order = append(order, OpScale)
	}
	if len(order) > 0 {
		n.SetAttr(&Attribute{Name: OpOrder, TypeName: TypeTokenArray, Uniform: true, Value: order})
	}
}

// SetMatrix replaces the prim's transform with a decomposed form of m.
func SetMatrix(n *Node, m mathutil.Mat4) {
	t, r, s := m.Decompose()
	SetTRS(n, t, r, s)
}
