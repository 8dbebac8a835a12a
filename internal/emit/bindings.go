package emit

import (
	"strings"

	"usd-instancer/internal/collect"
	"usd-instancer/internal/logging"
	"usd-instancer/internal/scene"
)

// attrFamilyName is the legacy subset family tag.
const attrFamilyName = "familyName"

// assignBindings rewrites every source path still held by copied prims
// into its output path, then applies the subset rule. Targets with no
// output counterpart are dropped.
func (e *emitter) assignBindings(d *document) {
	d.root.Walk(func(n *scene.Node) bool {
		if !d.holdsSourcePaths(n) {
			return true
		}
		kept := n.Rels[:0]
		for _, r := range n.Rels {
			targets := r.Targets[:0]
			for _, t := range r.Targets {
				if mapped, ok := e.resolve(d, n, t); ok {
					targets = append(targets, mapped)
				} else {
					e.logger.Debug("relationship target dropped",
						logging.Path(n.Path()), logging.String("rel", r.Name), logging.String("target", t))
				}
			}
			r.Targets = targets
			if len(targets) == 0 && strings.HasPrefix(r.Name, relBinding) {
				continue
			}
			kept = append(kept, r)
		}
		n.Rels = kept

		attrs := n.Attrs[:0]
		for _, a := range n.Attrs {
			if a.Connection != "" {
				if mapped, ok := e.resolve(d, n, a.Connection); ok {
					a.Connection = mapped
				} else {
					a.Connection = ""
					if a.Value == nil {
						continue
					}
				}
			}
			attrs = append(attrs, a)
		}
		n.Attrs = attrs
		return true
	})

	d.root.Walk(func(n *scene.Node) bool {
		if n.IsA(collect.TypeMesh) {
			e.applySubsetRule(n)
		}
		if r := n.Rel(relBinding); r != nil && len(r.Targets) > 0 {
			n.AddAPI(bindingAPI)
		}
		return true
	})
}

// holdsSourcePaths reports whether n came from the source document.
func (d *document) holdsSourcePaths(n *scene.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if _, ok := d.copies[cur]; ok {
			return true
		}
	}
	return d.sourced[n]
}

// resolve maps a source target path, possibly naming a property, into the
// document. Materials map first, then paths inside a copy holding n, then
// prims emitted elsewhere in the primary document.
func (e *emitter) resolve(d *document, n *scene.Node, target string) (string, bool) {
	prim, prop := scene.SplitProperty(target)
	join := func(p string) string {
		if prop == "" {
			return p
		}
		return p + "." + prop
	}

	if p, ok := d.materials[prim]; ok {
		return join(p), true
	}
	for cur := n; cur != nil; cur = cur.Parent {
		src, ok := d.copies[cur]
		if !ok {
			continue
		}
		if mapped, ok := scene.ReplacePathPrefix(prim, src, cur.Path()); ok && d.doc.Find(mapped) != nil {
			return join(mapped), true
		}
	}
	if d.external {
		return "", false
	}
	for cur := e.out.Model.Source.Find(prim); cur != nil && cur.Name != ""; cur = cur.Parent {
		if out, ok := e.out.NodePath(cur); ok {
			if mapped, ok := scene.ReplacePathPrefix(prim, cur.Path(), out); ok && d.doc.Find(mapped) != nil {
				return join(mapped), true
			}
			break
		}
	}
	return "", false
}

// applySubsetRule makes subset bindings authoritative: when any subset of
// mesh carries its own binding, the mesh-wide binding is removed.
func (e *emitter) applySubsetRule(mesh *scene.Node) {
	bound := false
	for _, c := range mesh.Children {
		if !c.IsA(collect.TypeGeomSubset) {
			continue
		}
		if r := c.Rel(relBinding); r != nil && len(r.Targets) > 0 {
			bound = true
			if e.opts.StripSubsetFamilyTag {
				c.RemoveAttr(attrFamilyName)
			}
		}
	}
	if bound {
		mesh.RemoveRel(relBinding)
	}
}

// pruneUnusedMaterials removes materials nothing in the document binds and
// returns how many were removed.
func pruneUnusedMaterials(d *document) int {
	used := map[string]bool{}
	d.root.Walk(func(n *scene.Node) bool {
		for _, r := range n.Rels {
			if strings.HasPrefix(r.Name, relBinding) {
				for _, t := range r.Targets {
					used[t] = true
				}
			}
		}
		return true
	})

	var unused []string
	for _, m := range d.looks.Children {
		if !used[m.Path()] {
			unused = append(unused, m.Name)
		}
	}
	for _, name := range unused {
		d.looks.RemoveChild(name)
	}
	return len(unused)
}
