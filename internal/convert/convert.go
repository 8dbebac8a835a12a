// Package convert resolves a collected model into output paths, instance
// placements and the external prototype list.
package convert

import (
	"log/slog"
	"path"

	"usd-instancer/internal/collect"
	"usd-instancer/internal/logging"
	"usd-instancer/internal/material"
	"usd-instancer/internal/mathutil"
	"usd-instancer/internal/scene"
)

// Fixed output layout.
const (
	RootPath       = "/Root"
	LooksPath      = "/Root/Looks"
	PrototypesName = "Prototypes"
	ExternalDir    = "Instance_Objs"
	instancerSufx  = "_instancer"
)

// Options configures Convert.
type Options struct {
	UseExternalReferences bool
	Policy                DegeneratePolicy
	// Ext is the extension of external prototype files, with the dot.
	Ext    string
	Logger *slog.Logger
}

// Material is a translated material and its output path.
type Material struct {
	Descriptor *material.Descriptor
	Path       string
}

// Anchor is an output container.
type Anchor struct {
	Source *collect.Anchor
	Path   string
}

// Prototype is the geometry an instancer points at. Exactly one of Path and
// External is meaningful: inline prototypes live at Path under the
// instancer, external ones are referenced from a node at Path.
type Prototype struct {
	Name     string
	Path     string
	Source   *scene.Node
	External *ExternalPrototype
}

// Instancer is one PointInstancer to build.
type Instancer struct {
	Group      *collect.Group
	Name       string
	Path       string
	AnchorPath string
	Prototype  Prototype
	Placements []Placement
	Dropped    []Placement
	FaceCount  int
}

// Object is a subtree copied outside any instancer.
type Object struct {
	Source     *scene.Node
	Name       string
	Path       string
	AnchorPath string
	// Transform is relative to the anchor.
	Transform mathutil.Mat4
	FaceCount int
}

// ExternalPrototype is one prototype written to its own file.
type ExternalPrototype struct {
	Name string
	// File is relative to the primary output's directory.
	File      string
	Source    *scene.Node
	Mesh      *scene.Node
	FaceCount int
	// Transform is the prototype root's own local transform, which is not
	// carried into the file.
	Transform mathutil.Mat4
	// Materials are the source paths of materials bound inside Source.
	Materials []string
	Users     []*Instancer
}

// Existing maps an input PointInstancer to its output path.
type Existing struct {
	Source *collect.Instancer
	Path   string
}

// Output is everything the emitter needs.
type Output struct {
	Model      *collect.Model
	Materials  []Material
	Anchors    []Anchor
	Instancers []*Instancer
	Objects    []Object
	External   []*ExternalPrototype
	Existing   []Existing

	materialPaths map[string]string
	nodePaths     map[*scene.Node]string
}

// MaterialPath maps a source material path to its output path.
func (o *Output) MaterialPath(source string) (string, bool) {
	p, ok := o.materialPaths[source]
	return p, ok
}

// NodePath returns the output path of a copied source node.
func (o *Output) NodePath(n *scene.Node) (string, bool) {
	p, ok := o.nodePaths[n]
	return p, ok
}

// AnchorPath returns the output path of a collected anchor.
func (o *Output) AnchorPath(a *collect.Anchor) string {
	if a == nil || a.Synthetic {
		return RootPath
	}
	for _, out := range o.Anchors {
		if out.Source == a {
			return out.Path
		}
	}
	return RootPath
}

// Convert resolves m. Discovery order of the model fixes every name suffix,
// so identical input yields identical paths.
func Convert(m *collect.Model, opts Options) *Output {
	if opts.Policy == nil {
		opts.Policy = DropOriginEcho
	}
	if opts.Ext == "" {
		opts.Ext = ".usda"
	}
	logger := logging.NewComponentLogger(opts.Logger, "convert")

	c := &converter{
		opts:   opts,
		logger: logger,
		names:  newNamer(),
		out: &Output{
			Model:         m,
			materialPaths: make(map[string]string),
			nodePaths:     make(map[*scene.Node]string),
		},
		external: make(map[*scene.Node]*ExternalPrototype),
		files:    newNamer(),
	}
	c.names.reserve(RootPath, "Looks")

	c.materials()
	for _, a := range m.Anchors {
		p := scene.JoinPath(RootPath, c.names.unique(RootPath, a.Name))
		c.out.Anchors = append(c.out.Anchors, Anchor{Source: a, Path: p})
		if a.Node != nil {
			c.out.nodePaths[a.Node] = p
		}
		for _, mesh := range a.Meshes {
			c.names.reserve(p, mesh.Name)
			c.out.nodePaths[mesh] = scene.JoinPath(p, mesh.Name)
		}
	}
	for _, g := range m.Groups {
		if len(g.Members) >= 2 {
			c.instancer(g)
		} else if len(g.Members) == 1 {
			c.singleton(g)
		}
	}
	for _, o := range m.Objects {
		anchorPath := c.out.AnchorPath(o.Anchor)
		c.object(o.Node, o.Name, anchorPath, relative(o.Anchor, o.World), o.FaceCount)
	}
	c.existing()

	logger.Info("converted",
		logging.Int("instancers", len(c.out.Instancers)),
		logging.Int("objects", len(c.out.Objects)),
		logging.Int("external", len(c.out.External)),
		logging.Int("materials", len(c.out.Materials)),
	)
	return c.out
}

type converter struct {
	opts     Options
	logger   *slog.Logger
	names    *namer
	files    *namer
	out      *Output
	external map[*scene.Node]*ExternalPrototype
}

func (c *converter) materials() {
	for _, d := range c.out.Model.Materials {
		p := scene.JoinPath(LooksPath, c.names.unique(LooksPath, d.Name))
		c.out.Materials = append(c.out.Materials, Material{Descriptor: d, Path: p})
		c.out.materialPaths[d.Path] = p
	}
}

func (c *converter) instancer(g *collect.Group) {
	anchorPath := c.out.AnchorPath(g.Anchor)
	name := c.names.unique(anchorPath, g.Hint+instancerSufx)
	in := &Instancer{
		Group:      g,
		Name:       name,
		Path:       scene.JoinPath(anchorPath, name),
		AnchorPath: anchorPath,
		FaceCount:  g.FaceCount,
	}

	all := make([]Placement, len(g.Members))
	for i, mem := range g.Members {
		all[i] = placementOf(mem.Name, anchorWorld(g.Anchor), mem.World)
	}
	drop := map[int]bool{}
	for _, i := range c.opts.Policy(all) {
		drop[i] = true
	}
	for i, p := range all {
		if drop[i] {
			in.Dropped = append(in.Dropped, p)
			c.logger.Debug("placement dropped",
				logging.Path(in.Path), logging.String("instance", p.Name))
			continue
		}
		in.Placements = append(in.Placements, p)
	}

	protoParent := scene.JoinPath(in.Path, PrototypesName)
	protoName := c.names.unique(protoParent, g.Prototype.Name)
	in.Prototype = Prototype{
		Name:   protoName,
		Path:   scene.JoinPath(protoParent, protoName),
		Source: g.Prototype,
	}
	if c.opts.UseExternalReferences {
		ext := c.externalFor(g)
		ext.Users = append(ext.Users, in)
		in.Prototype.External = ext
	}
	c.out.Instancers = append(c.out.Instancers, in)
}

// singleton places a one-member group as an object carrying the prototype.
func (c *converter) singleton(g *collect.Group) {
	mem := g.Members[0]
	anchorPath := c.out.AnchorPath(g.Anchor)
	c.object(g.Prototype, mem.Name, anchorPath, relative(g.Anchor, mem.World), g.FaceCount)
}

func (c *converter) object(src *scene.Node, name, anchorPath string, rel mathutil.Mat4, faces int) {
	clean := c.names.unique(anchorPath, name)
	p := scene.JoinPath(anchorPath, clean)
	c.out.Objects = append(c.out.Objects, Object{
		Source:     src,
		Name:       clean,
		Path:       p,
		AnchorPath: anchorPath,
		Transform:  rel,
		FaceCount:  faces,
	})
	if _, ok := c.out.nodePaths[src]; !ok {
		c.out.nodePaths[src] = p
	}
}

// externalFor returns the external prototype of g, shared by every group
// with the same source prototype.
func (c *converter) externalFor(g *collect.Group) *ExternalPrototype {
	if ext, ok := c.external[g.Prototype]; ok {
		return ext
	}
	local, _ := scene.LocalTransform(g.Prototype)
	name := c.files.unique("", g.Hint)
	ext := &ExternalPrototype{
		Name:      name,
		File:      path.Join(ExternalDir, name+c.opts.Ext),
		Source:    g.Prototype,
		Mesh:      g.Mesh,
		FaceCount: g.FaceCount,
		Transform: local,
		Materials: boundMaterials(g.Prototype),
	}
	c.external[g.Prototype] = ext
	c.out.External = append(c.out.External, ext)
	return ext
}

// existing maps input instancers to their place inside copied objects.
func (c *converter) existing() {
	for _, in := range c.out.Model.Instancers {
		p := ""
		for _, o := range c.out.Objects {
			srcPath := o.Source.Path()
			if mapped, ok := scene.ReplacePathPrefix(in.Node.Path(), srcPath, o.Path); ok {
				p = mapped
				break
			}
		}
		if p == "" {
			continue
		}
		c.out.Existing = append(c.out.Existing, Existing{Source: in, Path: p})
	}
}

// boundMaterials lists, in document order and without repeats, the
// material targets bound anywhere in the subtree at n.
func boundMaterials(n *scene.Node) []string {
	var out []string
	seen := map[string]bool{}
	n.Walk(func(c *scene.Node) bool {
		if r := c.Rel("material:binding"); r != nil {
			for _, t := range r.Targets {
				if !seen[t] {
					seen[t] = true
					out = append(out, t)
				}
			}
		}
		return true
	})
	return out
}

func anchorWorld(a *collect.Anchor) mathutil.Mat4 {
	if a == nil {
		return mathutil.Mat4Identity()
	}
	return a.World
}

func relative(a *collect.Anchor, world mathutil.Mat4) mathutil.Mat4 {
	return mathutil.Mat4Mul(anchorWorld(a).Inverse(), world)
}
