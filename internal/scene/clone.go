package scene

import (
	"github.com/jinzhu/copier"
)

// Clone deep-copies n and its subtree. The copy is detached.
func Clone(n *Node) *Node {
	out := &Node{Name: n.Name}
	// Name, tree links and properties are excluded via copier tags.
	if err := copier.CopyWithOption(out, n, copier.Option{DeepCopy: true}); err != nil {
		out.Specifier, out.Type = n.Specifier, n.Type
		out.Meta = cloneMeta(n.Meta)
	}
	out.Attrs = make([]*Attribute, len(n.Attrs))
	for i, a := range n.Attrs {
		out.Attrs[i] = CloneAttr(a)
	}
	out.Rels = make([]*Relationship, len(n.Rels))
	for i, r := range n.Rels {
		out.Rels[i] = &Relationship{Name: r.Name, Custom: r.Custom, Targets: append([]string(nil), r.Targets...)}
	}
	for _, c := range n.Children {
		out.AddChild(Clone(c))
	}
	return out
}

// CloneAttr copies an attribute and its value.
func CloneAttr(a *Attribute) *Attribute {
	c := *a
	c.Value = CloneValue(a.Value)
	return &c
}

func cloneMeta(m Metadata) Metadata {
	out := m
	out.APISchemas = append([]string(nil), m.APISchemas...)
	out.References = append([]Reference(nil), m.References...)
	if m.Active != nil {
		v := *m.Active
		out.Active = &v
	}
	return out
}
