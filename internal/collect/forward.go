package collect

import (
	"log/slog"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"usd-instancer/internal/logging"
	"usd-instancer/internal/meshhash"
	"usd-instancer/internal/report"
	"usd-instancer/internal/scene"
)

// siblingThreshold is the minimum name similarity for the sibling fallback.
const siblingThreshold = 0.5

type forwardRef struct {
	node   *scene.Node
	target string
}

// forward groups instanceable references by target and anchor.
type forward struct {
	m      *Model
	logger *slog.Logger
	refs   []forwardRef
	meshes []*scene.Node
}

func newForward(m *Model, logger *slog.Logger) *forward {
	return &forward{m: m, logger: logger}
}

func (f *forward) visit(n *scene.Node) bool {
	if n.Specifier == scene.SpecClass {
		return false
	}
	if target, ok := internalTarget(n); ok && n.Meta.Instanceable {
		f.refs = append(f.refs, forwardRef{node: n, target: target})
		return false
	}
	if n.IsA(TypeMesh) {
		f.meshes = append(f.meshes, n)
	}
	return true
}

func (f *forward) finish() {
	type groupKey struct {
		target string
		anchor *Anchor
	}
	groups := map[groupKey]*Group{}
	protos := map[string]*scene.Node{}
	failed := map[string]bool{}
	doc := f.m.Source

	for _, ref := range f.refs {
		if failed[ref.target] {
			continue
		}
		proto, ok := protos[ref.target]
		if !ok {
			target := doc.Find(ref.target)
			if target == nil {
				failed[ref.target] = true
				f.m.issue(report.UnresolvedReference, ref.node.Path(), "target %s not found", ref.target)
				f.logger.Warn("reference target not found",
					logging.Path(ref.node.Path()), logging.String("target", ref.target))
				continue
			}
			mesh, holder := FindMesh(target)
			if mesh == nil {
				failed[ref.target] = true
				f.m.issue(report.UnresolvedPrototype, ref.target, "no mesh under prototype")
				f.logger.Warn("prototype has no mesh", logging.Path(ref.target))
				continue
			}
			if holder != target {
				f.logger.Info("prototype resolved through sibling",
					logging.Path(ref.target), logging.String("sibling", holder.Path()))
			}
			proto = holder
			protos[ref.target] = proto
		}

		anchor := f.m.anchorFor(ref.node, nil)
		k := groupKey{target: ref.target, anchor: anchor}
		g := groups[k]
		if g == nil {
			mesh, _ := FindMesh(proto)
			g = &Group{
				Key:       ref.target,
				Hint:      cleanHint(proto.Name),
				Prototype: proto,
				Mesh:      mesh,
				Anchor:    anchor,
				FaceCount: faceCount(proto),
				Hash:      meshhash.Of(mesh, nil),
			}
			groups[k] = g
			f.m.Groups = append(f.m.Groups, g)
		}
		g.Members = append(g.Members, Instance{
			Node:  ref.node,
			Name:  ref.node.Name,
			World: scene.WorldTransform(ref.node),
		})
		f.m.claim(ref.node)
	}

	for _, p := range protos {
		f.m.claim(p)
	}
	for _, mesh := range f.meshes {
		if f.m.Claimed(mesh) || f.insidePrototype(mesh, protos) {
			continue
		}
		f.m.addObject(owner(mesh))
	}
}

func (f *forward) insidePrototype(n *scene.Node, protos map[string]*scene.Node) bool {
	for _, p := range protos {
		if n == p || n.HasAncestor(p) {
			return true
		}
	}
	return false
}

// FindMesh returns the first mesh for a prototype and the prim holding it.
// The search order is: target itself, its descendants in document order,
// then the most similarly named sibling that holds a mesh. A nil mesh means
// nothing was found.
func FindMesh(target *scene.Node) (mesh, holder *scene.Node) {
	if m := firstMesh(target); m != nil {
		return m, target
	}
	if target.Parent == nil {
		return nil, nil
	}
	metric := metrics.NewLevenshtein()
	best := 0.0
	for _, sib := range target.Parent.Children {
		if sib == target {
			continue
		}
		m := firstMesh(sib)
		if m == nil {
			continue
		}
		score := strutil.Similarity(cleanHint(target.Name), cleanHint(sib.Name), metric)
		if score > best && score >= siblingThreshold {
			best, mesh, holder = score, m, sib
		}
	}
	return mesh, holder
}

func firstMesh(n *scene.Node) *scene.Node {
	var found *scene.Node
	n.Walk(func(c *scene.Node) bool {
		if found != nil {
			return false
		}
		if c.IsA(TypeMesh) {
			found = c
			return false
		}
		return true
	})
	return found
}
