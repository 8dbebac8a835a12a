package collect

import (
	"log/slog"

	"usd-instancer/internal/logging"
	"usd-instancer/internal/report"
	"usd-instancer/internal/scene"
)

// existing passes PointInstancer documents through. The default root's
// children are copied as they are; instancers are recorded for reporting.
type existing struct {
	m      *Model
	logger *slog.Logger
	root   *scene.Node
}

func newExisting(m *Model, logger *slog.Logger) *existing {
	return &existing{m: m, logger: logger, root: m.Source.DefaultRoot()}
}

func (e *existing) visit(n *scene.Node) bool {
	if n.Specifier == scene.SpecClass {
		return false
	}
	if e.isTopLevel(n) && !materialsOnly(n) {
		e.m.claim(n)
		e.m.Objects = append(e.m.Objects, &Object{
			Node:      n,
			Anchor:    e.m.root,
			World:     scene.WorldTransform(n),
			Name:      n.Name,
			FaceCount: faceCount(n),
		})
	}
	if n.IsA(TypeInstancer) {
		e.instancer(n)
		return false
	}
	return true
}

func (e *existing) finish() {}

// isTopLevel reports whether n is copied as a whole: a child of a wrapping
// default root, or a top-level prim that is not that root.
func (e *existing) isTopLevel(n *scene.Node) bool {
	wraps := e.root != nil && (e.root.IsA(TypeXform) || e.root.IsA(TypeScope))
	if n.Parent != nil && n.Parent.Name == "" {
		return n != e.root || !wraps
	}
	return wraps && n.Parent == e.root
}

func (e *existing) instancer(n *scene.Node) {
	in := &Instancer{Node: n}
	if r := n.Rel(relPrototypes); r != nil {
		in.Prototypes = append(in.Prototypes, r.Targets...)
	}
	for _, name := range []string{attrProtoIndex, attrPositions} {
		a := n.Attr(name)
		if a == nil {
			continue
		}
		switch v := a.Value.(type) {
		case []int64:
			in.InstanceCount = len(v)
		case []scene.Tuple:
			in.InstanceCount = len(v)
		}
		if in.InstanceCount > 0 {
			break
		}
	}
	for _, target := range in.Prototypes {
		proto := n.Resolve(target)
		if proto == nil {
			in.FaceCounts = append(in.FaceCounts, 0)
			e.m.issue(report.UnresolvedPrototype, target, "prototype of %s not found", n.Path())
			e.logger.Warn("instancer prototype not found",
				logging.Path(n.Path()), logging.String("target", target))
			continue
		}
		for _, ref := range proto.Meta.References {
			if !ref.Internal() {
				in.External = true
			}
		}
		in.FaceCounts = append(in.FaceCounts, faceCount(proto))
	}
	e.m.Instancers = append(e.m.Instancers, in)
}

// materialsOnly reports a scope holding nothing but materials.
func materialsOnly(n *scene.Node) bool {
	if n.IsA(TypeMaterial) {
		return true
	}
	if !n.IsA(TypeScope) || len(n.Children) == 0 {
		return false
	}
	for _, c := range n.Children {
		if !c.IsA(TypeMaterial) {
			return false
		}
	}
	return true
}
