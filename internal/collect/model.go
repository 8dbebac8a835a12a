package collect

import (
	"usd-instancer/internal/material"
	"usd-instancer/internal/mathutil"
	"usd-instancer/internal/meshhash"
	"usd-instancer/internal/report"
	"usd-instancer/internal/scene"
)

// Shape is the instancing pattern found in the input document.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeForward holds instanceable prims referencing a prototype.
	ShapeForward
	// ShapeReverse holds duplicated, individually named objects.
	ShapeReverse
	// ShapeExisting already holds PointInstancers.
	ShapeExisting
)

func (s Shape) String() string {
	switch s {
	case ShapeForward:
		return "forward"
	case ShapeReverse:
		return "reverse"
	case ShapeExisting:
		return "existing"
	default:
		return "unknown"
	}
}

// Meta is the stage metadata carried to the output.
type Meta struct {
	UpAxis        string
	MetersPerUnit float64
	DefaultPrim   string
}

// Anchor is a non-instanced container that instances and objects are placed
// under. The synthetic root anchor has no Node and an identity transform.
type Anchor struct {
	Node      *scene.Node
	Name      string
	World     mathutil.Mat4
	Synthetic bool
	// Meshes are the container's own direct mesh children.
	Meshes []*scene.Node
}

// Instance is one placement of a prototype.
type Instance struct {
	Node  *scene.Node
	Name  string
	World mathutil.Mat4
}

// Group is a candidate set of interchangeable instances.
type Group struct {
	// Key is the reference target or the family name.
	Key  string
	Hint string
	// Prototype is the subtree every member shares; Mesh is its first mesh.
	Prototype *scene.Node
	Mesh      *scene.Node
	Anchor    *Anchor
	Members   []Instance
	FaceCount int
	Hash      meshhash.Sum
}

// Object is a node copied on its own, outside any instancer.
type Object struct {
	Node      *scene.Node
	Anchor    *Anchor
	World     mathutil.Mat4
	Name      string
	FaceCount int
}

// Instancer is a PointInstancer found in the input.
type Instancer struct {
	Node          *scene.Node
	Prototypes    []string
	InstanceCount int
	// FaceCounts is indexed like Prototypes.
	FaceCounts []int
	External   bool
}

// Model is the shape-independent view of one input document. It is built
// once and not modified afterwards.
type Model struct {
	Shape      Shape
	Source     *scene.Document
	Meta       Meta
	Materials  []*material.Descriptor
	Anchors    []*Anchor
	Groups     []*Group
	Objects    []*Object
	Instancers []*Instancer
	Issues     []report.Issue

	root      *Anchor
	materials map[string]*material.Descriptor
	claimed   map[*scene.Node]bool
}

// Root returns the synthetic root anchor.
func (m *Model) Root() *Anchor {
	return m.root
}

// Material returns the descriptor translated from the material at path.
func (m *Model) Material(path string) *material.Descriptor {
	return m.materials[path]
}

// Claimed reports whether n is emitted by another part of the model, so a
// copy of an enclosing subtree must leave it out.
func (m *Model) Claimed(n *scene.Node) bool {
	return m.claimed[n]
}

func (m *Model) claim(n *scene.Node) {
	m.claimed[n] = true
}

func (m *Model) issue(code report.IssueCode, path, format string, args ...any) {
	m.Issues = append(m.Issues, report.NewIssue(code, path, format, args...))
}
