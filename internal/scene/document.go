package scene

// StageMeta is the layer-level metadata.
type StageMeta struct {
	DefaultPrim   string
	UpAxis        string
	MetersPerUnit float64
	Doc           string
}

// Document is a parsed scene description: a pseudo-root holding the top-level prims.
type Document struct {
	Meta StageMeta
	root *Node
}

// New returns an empty document.
func New() *Document {
	return &Document{root: &Node{}}
}

// Prims returns the top-level prims.
func (d *Document) Prims() []*Node {
	return d.root.Children
}

// AddPrim appends a top-level prim.
func (d *Document) AddPrim(n *Node) *Node {
	return d.root.AddChild(n)
}

// Find resolves an absolute prim path.
func (d *Document) Find(path string) *Node {
	if path == "" || path == "/" {
		return nil
	}
	cur := d.root
	for _, name := range SplitPath(path) {
		cur = cur.Child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Walk visits every prim depth-first in authored order.
func (d *Document) Walk(fn func(*Node) bool) {
	for _, p := range append([]*Node(nil), d.root.Children...) {
		p.Walk(fn)
	}
}

// DefaultRoot returns the defaultPrim, or the first top-level prim.
func (d *Document) DefaultRoot() *Node {
	if d.Meta.DefaultPrim != "" {
		if n := d.root.Child(d.Meta.DefaultPrim); n != nil {
			return n
		}
	}
	for _, p := range d.root.Children {
		if p.Specifier == SpecDef {
			return p
		}
	}
	return nil
}

// UpAxis returns the declared up axis, defaulting to Z.
func (d *Document) UpAxis() string {
	if d.Meta.UpAxis == "" {
		return "Z"
	}
	return d.Meta.UpAxis
}
