// Package collect classifies an input document and gathers everything later
// stages need into a Model.
package collect

import (
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"usd-instancer/internal/logging"
	"usd-instancer/internal/material"
	"usd-instancer/internal/mathutil"
	"usd-instancer/internal/meshhash"
	"usd-instancer/internal/report"
	"usd-instancer/internal/scene"
)

// ErrUnclassified is returned when no instancing pattern is present.
var ErrUnclassified = errors.New("collect: no instancing pattern found")

// Prim type names.
const (
	TypeMesh        = "Mesh"
	TypeXform       = "Xform"
	TypeScope       = "Scope"
	TypeMaterial    = "Material"
	TypeInstancer   = "PointInstancer"
	TypeGeomSubset  = "GeomSubset"
	attrDataName    = "userProperties:blender:data_name"
	relPrototypes   = "prototypes"
	attrProtoIndex  = "protoIndices"
	attrPositions   = "positions"
	syntheticAnchor = "Root"
)

// Options configures Collect.
type Options struct {
	Translator *material.Translator
	Logger     *slog.Logger
}

// strategy is one input shape's traversal. visit sees every prim once, in
// document order; returning false skips the prim's children.
type strategy interface {
	visit(n *scene.Node) bool
	finish()
}

// Collect classifies doc and builds its Model in a single traversal.
func Collect(doc *scene.Document, opts Options) (*Model, error) {
	shape, err := Classify(doc)
	if err != nil {
		return nil, err
	}
	if opts.Translator == nil {
		opts.Translator = material.NewTranslator(material.Options{})
	}
	logger := logging.NewComponentLogger(opts.Logger, "collect")

	m := &Model{
		Shape:  shape,
		Source: doc,
		Meta: Meta{
			UpAxis:        doc.UpAxis(),
			MetersPerUnit: doc.Meta.MetersPerUnit,
			DefaultPrim:   doc.Meta.DefaultPrim,
		},
		root:      &Anchor{Name: syntheticAnchor, World: mathutil.Mat4Identity(), Synthetic: true},
		materials: make(map[string]*material.Descriptor),
		claimed:   make(map[*scene.Node]bool),
	}

	var s strategy
	switch shape {
	case ShapeForward:
		s = newForward(m, logger)
	case ShapeReverse:
		s = newReverse(m, logger)
	default:
		s = newExisting(m, logger)
	}

	doc.Walk(func(n *scene.Node) bool {
		if n.IsA(TypeMaterial) {
			collectMaterial(m, opts.Translator, n, logger)
			return false
		}
		return s.visit(n)
	})
	s.finish()

	logger.Info("collected",
		logging.String("shape", shape.String()),
		logging.Int("materials", len(m.Materials)),
		logging.Int("groups", len(m.Groups)),
		logging.Int("objects", len(m.Objects)),
		logging.Int("instancers", len(m.Instancers)),
		logging.Int("issues", len(m.Issues)),
	)
	return m, nil
}

func collectMaterial(m *Model, t *material.Translator, n *scene.Node, logger *slog.Logger) {
	d := t.Translate(n)
	m.Materials = append(m.Materials, &d)
	m.materials[d.Path] = &d
	if d.Kind == material.KindUnknown {
		m.issue(report.UnknownMaterial, d.Path, "no shading convention recognized")
		logger.Warn("material not recognized", logging.Path(d.Path))
	}
	for _, note := range d.Notes {
		logger.Warn("material note", logging.Path(d.Path), logging.String("note", note))
	}
	logger.Debug("material translated",
		logging.Path(d.Path),
		logging.String("kind", d.Kind.String()),
		logging.Int("params", d.Params.Len()),
	)
}

// Classify sniffs the document's instancing pattern. Explicit composition
// evidence wins over naming: existing instancers, then instanceable
// references, then repeated names.
func Classify(doc *scene.Document) (Shape, error) {
	var instancer, forward bool
	keys := map[string]int{}
	doc.Walk(func(n *scene.Node) bool {
		switch {
		case n.IsA(TypeInstancer):
			instancer = true
			return false
		case n.IsA(TypeMaterial):
			return false
		case isInstanceRef(n):
			forward = true
			return false
		case n.IsA(TypeMesh):
			if key := groupKey(n); key != "" {
				keys[key]++
			}
		}
		return true
	})
	switch {
	case instancer:
		return ShapeExisting, nil
	case forward:
		return ShapeForward, nil
	}
	for _, c := range keys {
		if c > 1 {
			return ShapeReverse, nil
		}
	}
	return ShapeUnknown, ErrUnclassified
}

// isInstanceRef reports an instanceable prim with an internal reference.
func isInstanceRef(n *scene.Node) bool {
	if !n.Meta.Instanceable {
		return false
	}
	_, ok := internalTarget(n)
	return ok
}

func internalTarget(n *scene.Node) (string, bool) {
	for _, r := range n.Meta.References {
		if r.Internal() && r.Path != "" {
			return r.Path, true
		}
	}
	return "", false
}

var duplicateSuffix = regexp.MustCompile(`[._]\d{3,}$`)

// owner is the prim a mesh is placed by: its parent Xform, or the mesh itself
// when it sits directly under a non-transform prim.
func owner(mesh *scene.Node) *scene.Node {
	if p := mesh.Parent; p != nil && p.Name != "" && p.IsA(TypeXform) {
		return p
	}
	return mesh
}

// groupKey is the declared data name of the mesh or its parent, else the
// owner's name without a duplicate-number suffix.
func groupKey(mesh *scene.Node) string {
	if k := mesh.String(attrDataName); k != "" {
		return k
	}
	if p := mesh.Parent; p != nil {
		if k := p.String(attrDataName); k != "" {
			return k
		}
	}
	return duplicateSuffix.ReplaceAllString(owner(mesh).Name, "")
}

// isContainer reports whether n can anchor instances: an Xform or Scope with
// a direct mesh child.
func isContainer(n *scene.Node) bool {
	if n == nil || n.Name == "" || !(n.IsA(TypeXform) || n.IsA(TypeScope)) {
		return false
	}
	for _, c := range n.Children {
		if c.IsA(TypeMesh) {
			return true
		}
	}
	return false
}

// anchorFor returns the anchor of the nearest container above n, creating it
// on first use. skip is excluded from the search.
func (m *Model) anchorFor(n *scene.Node, skip *scene.Node) *Anchor {
	for cur := n.Parent; cur != nil && cur.Name != ""; cur = cur.Parent {
		if cur == skip || !isContainer(cur) {
			continue
		}
		for _, a := range m.Anchors {
			if a.Node == cur {
				return a
			}
		}
		a := &Anchor{Node: cur, Name: cur.Name, World: scene.WorldTransform(cur)}
		m.claim(cur)
		for _, c := range cur.Children {
			if c.IsA(TypeMesh) {
				a.Meshes = append(a.Meshes, c)
				m.claim(c)
			}
		}
		m.Anchors = append(m.Anchors, a)
		return a
	}
	return m.root
}

// nearestAnchor returns the closest existing anchor above n, or the root.
func (m *Model) nearestAnchor(n *scene.Node) *Anchor {
	for cur := n.Parent; cur != nil && cur.Name != ""; cur = cur.Parent {
		for _, a := range m.Anchors {
			if a.Node == cur {
				return a
			}
		}
	}
	return m.root
}

// addObject records own as a standalone object unless an anchor or an
// enclosing object already carries it. Objects never create anchors.
func (m *Model) addObject(own *scene.Node) {
	if m.Claimed(own) {
		return
	}
	for _, o := range m.Objects {
		if own.HasAncestor(o.Node) {
			return
		}
	}
	m.claim(own)
	m.Objects = append(m.Objects, &Object{
		Node:      own,
		Anchor:    m.nearestAnchor(own),
		World:     scene.WorldTransform(own),
		Name:      own.Name,
		FaceCount: faceCount(own),
	})
}

// faceCount sums the faces of every mesh in the subtree at n.
func faceCount(n *scene.Node) int {
	total := 0
	n.Walk(func(c *scene.Node) bool {
		if c.IsA(TypeMesh) {
			total += meshhash.FaceCount(c)
		}
		return true
	})
	return total
}

// cleanHint drops the numeric tails exporters append to prototype names.
func cleanHint(name string) string {
	if i := strings.Index(name, "__"); i > 0 {
		name = name[:i]
	}
	return name
}
