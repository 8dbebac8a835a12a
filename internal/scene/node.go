package scene

import "strings"

// Specifier is the prim specifier keyword.
type Specifier string

const (
	SpecDef   Specifier = "def"
	SpecOver  Specifier = "over"
	SpecClass Specifier = "class"
)

// Reference is one composition arc. An empty Asset targets the same document.
type Reference struct {
	Asset string
	Path  string
}

// Internal reports whether the arc points into the document that declares it.
func (r Reference) Internal() bool {
	return r.Asset == ""
}

// Metadata is the prim-level metadata this tool understands.
type Metadata struct {
	Kind          string
	Instanceable  bool
	Active        *bool
	APISchemas    []string
	References    []Reference
	Documentation string
}

// AttrMeta is the attribute-level metadata this tool understands.
type AttrMeta struct {
	Interpolation string
	ColorSpace    string
	ElementSize   int
}

// Attribute is a typed property. Value is nil for a declaration or a pure
// connection.
type Attribute struct {
	Name       string
	TypeName   string
	Custom     bool
	Uniform    bool
	Value      Value
	Connection string
	Meta       AttrMeta
}

// Relationship is a named list of target paths.
type Relationship struct {
	Name    string
	Targets []string
	Custom  bool
}

// Node is one prim in the document tree.
type Node struct {
	Name      string `copier:"-"`
	Specifier Specifier
	Type      string
	Meta      Metadata
	Attrs     []*Attribute    `copier:"-"`
	Rels      []*Relationship `copier:"-"`
	Parent    *Node           `copier:"-"`
	Children  []*Node         `copier:"-"`
}

// NewNode returns a def prim of the given type.
func NewNode(name, typeName string) *Node {
	return &Node{Name: name, Specifier: SpecDef, Type: typeName}
}

// Path returns the absolute prim path.
func (n *Node) Path() string {
	if n == nil {
		return ""
	}
	var parts []string
	for cur := n; cur != nil && cur.Name != ""; cur = cur.Parent {
		parts = append(parts, cur.Name)
	}
	if len(parts) == 0 {
		return "/"
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

// IsA reports whether the prim's type name matches.
func (n *Node) IsA(typeName string) bool {
	return n != nil && n.Type == typeName
}

// AddChild appends c, reparenting it, and returns c.
func (n *Node) AddChild(c *Node) *Node {
	if c.Parent != nil {
		c.Parent.removeChildPtr(c)
	}
	c.Parent = n
	n.Children = append(n.Children, c)
	return c
}

// Child returns the direct child with the given name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// RemoveChild detaches the named child.
func (n *Node) RemoveChild(name string) bool {
	if c := n.Child(name); c != nil {
		n.removeChildPtr(c)
		c.Parent = nil
		return true
	}
	return false
}

func (n *Node) removeChildPtr(c *Node) {
	for i, cur := range n.Children {
		if cur == c {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

// Walk visits n and its descendants depth-first in authored order.
// Returning false from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range append([]*Node(nil), n.Children...) {
		c.Walk(fn)
	}
}

// HasAncestor reports whether a is a strict ancestor of n.
func (n *Node) HasAncestor(a *Node) bool {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur == a {
			return true
		}
	}
	return false
}

// Attr returns the named attribute or nil.
func (n *Node) Attr(name string) *Attribute {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// SetAttr adds a, replacing any attribute with the same name in place.
func (n *Node) SetAttr(a *Attribute) *Attribute {
	for i, cur := range n.Attrs {
		if cur.Name == a.Name {
			n.Attrs[i] = a
			return a
		}
	}
	n.Attrs = append(n.Attrs, a)
	return a
}

// Set authors a value attribute.
func (n *Node) Set(name, typeName string, v Value) *Attribute {
	return n.SetAttr(&Attribute{Name: name, TypeName: typeName, Value: v})
}

// RemoveAttr deletes the named attribute.
func (n *Node) RemoveAttr(name string) bool {
	for i, a := range n.Attrs {
		if a.Name == name {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return true
		}
	}
	return false
}

// Rel returns the named relationship or nil.
func (n *Node) Rel(name string) *Relationship {
	for _, r := range n.Rels {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// SetRel authors a relationship, replacing targets if it exists.
func (n *Node) SetRel(name string, targets ...string) *Relationship {
	if r := n.Rel(name); r != nil {
		r.Targets = append([]string(nil), targets...)
		return r
	}
	r := &Relationship{Name: name, Targets: append([]string(nil), targets...)}
	n.Rels = append(n.Rels, r)
	return r
}

// RemoveRel deletes the named relationship.
func (n *Node) RemoveRel(name string) bool {
	for i, r := range n.Rels {
		if r.Name == name {
			n.Rels = append(n.Rels[:i], n.Rels[i+1:]...)
			return true
		}
	}
	return false
}

func (n *Node) HasAPI(schema string) bool {
	for _, s := range n.Meta.APISchemas {
		if s == schema {
			return true
		}
	}
	return false
}

func (n *Node) AddAPI(schema string) {
	if !n.HasAPI(schema) {
		n.Meta.APISchemas = append(n.Meta.APISchemas, schema)
	}
}

// String returns the string form of a string, token or asset attribute.
func (n *Node) String(name string) string {
	if a := n.Attr(name); a != nil {
		s, _ := a.String()
		return s
	}
	return ""
}

// String returns string, token and asset values as plain strings.
func (a *Attribute) String() (string, bool) {
	switch v := a.Value.(type) {
	case string:
		return v, true
	case Token:
		return string(v), true
	case Asset:
		return string(v), true
	}
	return "", false
}

func (a *Attribute) Float() (float64, bool) {
	switch v := a.Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (a *Attribute) Bool() (bool, bool) {
	switch v := a.Value.(type) {
	case bool:
		return v, true
	case int64:
		return v != 0, true
	case float64:
		return v != 0, true
	}
	return false, false
}

func (a *Attribute) Tuple() (Tuple, bool) {
	v, ok := a.Value.(Tuple)
	return v, ok
}

func (a *Attribute) Tuples() ([]Tuple, bool) {
	v, ok := a.Value.([]Tuple)
	return v, ok
}

func (a *Attribute) Ints() ([]int64, bool) {
	v, ok := a.Value.([]int64)
	return v, ok
}

// Strings returns token[] and string[] values.
func (a *Attribute) Strings() ([]string, bool) {
	switch v := a.Value.(type) {
	case []string:
		return v, true
	case []Token:
		out := make([]string, len(v))
		for i, t := range v {
			out[i] = string(t)
		}
		return out, true
	}
	return nil, false
}

// Resolve finds the prim at an absolute path in the tree holding n.
func (n *Node) Resolve(path string) *Node {
	if n == nil {
		return nil
	}
	root := n
	for root.Parent != nil {
		root = root.Parent
	}
	names := SplitPath(path)
	if len(names) == 0 {
		return nil
	}
	cur := root
	if root.Name != "" {
		if root.Name != names[0] {
			return nil
		}
		names = names[1:]
	}
	for _, name := range names {
		if cur = cur.Child(name); cur == nil {
			return nil
		}
	}
	return cur
}
