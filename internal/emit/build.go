package emit

import (
	"path/filepath"
	"strings"

	"usd-instancer/internal/collect"
	"usd-instancer/internal/convert"
	"usd-instancer/internal/material"
	"usd-instancer/internal/scene"
)

const (
	rootName     = "Root"
	looksName    = "Looks"
	kindModel    = "model"
	relBinding   = "material:binding"
	bindingAPI   = "MaterialBindingAPI"
	inputsPrefix = "inputs:"
)

// document is one output file under construction.
type document struct {
	path  string
	doc   *scene.Document
	root  *scene.Node
	looks *scene.Node
	// external documents resolve only their own materials and copies.
	external bool
	// texPrefix and schema are seen from the document's directory.
	texPrefix string
	schema    string
	// materials maps source material paths to output paths.
	materials map[string]string
	// copies maps copied subtree roots to their source path.
	copies map[*scene.Node]string
	// sourced marks emitted prims whose properties still hold source paths.
	sourced  map[*scene.Node]bool
	textures []*material.Texture
}

func (e *emitter) newDocument(path string, external bool) *document {
	doc := scene.New()
	doc.Meta = scene.StageMeta{
		DefaultPrim:   rootName,
		UpAxis:        e.out.Model.Meta.UpAxis,
		MetersPerUnit: e.out.Model.Meta.MetersPerUnit,
	}
	root := doc.AddPrim(scene.NewNode(rootName, collect.TypeXform))
	dir := filepath.Dir(path)
	return &document{
		path:      path,
		doc:       doc,
		root:      root,
		looks:     root.AddChild(scene.NewNode(looksName, collect.TypeScope)),
		external:  external,
		texPrefix: relAsset(dir, filepath.Join(e.outDir, TexturesDir)),
		schema:    relAsset(dir, filepath.Join(e.marker.MaterialsDir, material.SchemaFile)),
		materials: make(map[string]string),
		copies:    make(map[*scene.Node]string),
		sourced:   make(map[*scene.Node]bool),
	}
}

// buildMain lays out the primary document: materials, anchors, objects and
// instancers, in that order.
func (e *emitter) buildMain() *document {
	d := e.newDocument(filepath.Join(e.outDir, filepath.Base(e.opts.OutputPath)), false)

	for _, m := range e.out.Materials {
		d.materials[m.Descriptor.Path] = e.addMaterial(d, m.Descriptor, scene.BaseName(m.Path))
	}
	for _, a := range e.out.Anchors {
		e.addAnchor(d, a)
	}
	for _, o := range e.out.Objects {
		parent := d.parent(o.AnchorPath)
		var n *scene.Node
		if ext := e.externalOf(o.Source); ext != nil {
			n = e.referenceNode(d, o.Name, ext)
		} else {
			n = e.copyTree(d, o.Source, o.Name)
		}
		scene.SetMatrix(n, o.Transform)
		parent.AddChild(n)
	}
	for _, in := range e.out.Instancers {
		d.parent(in.AnchorPath).AddChild(e.instancer(d, in))
	}
	return d
}

// parent returns the emitted prim at path, falling back to the root.
func (d *document) parent(path string) *scene.Node {
	if n := d.doc.Find(path); n != nil {
		return n
	}
	return d.root
}

func (e *emitter) addAnchor(d *document, a convert.Anchor) {
	n := scene.NewNode(scene.BaseName(a.Path), collect.TypeXform)
	if src := a.Source.Node; src != nil {
		n.Meta.Kind = src.Meta.Kind
		for _, at := range src.Attrs {
			if at.Name == scene.OpOrder || strings.HasPrefix(at.Name, "xformOp:") {
				continue
			}
			n.SetAttr(scene.CloneAttr(at))
		}
		for _, r := range src.Rels {
			n.SetRel(r.Name, r.Targets...)
		}
		d.sourced[n] = true
	}
	scene.SetMatrix(n, a.Source.World)
	d.root.AddChild(n)
	for _, mesh := range a.Source.Meshes {
		n.AddChild(e.copyTree(d, mesh, mesh.Name))
	}
}

// instancer builds a PointInstancer with its single prototype.
func (e *emitter) instancer(d *document, in *convert.Instancer) *scene.Node {
	pi := scene.NewNode(in.Name, collect.TypeInstancer)
	n := len(in.Placements)
	indices := make([]int64, n)
	positions := make([]scene.Tuple, n)
	orientations := make([]scene.Tuple, n)
	scales := make([]scene.Tuple, n)
	for i, p := range in.Placements {
		q := p.Orientation
		positions[i] = scene.Tuple{p.Position[0], p.Position[1], p.Position[2]}
		orientations[i] = scene.Tuple{q[3], q[0], q[1], q[2]}
		scales[i] = scene.Tuple{p.Scale[0], p.Scale[1], p.Scale[2]}
	}
	pi.Set("protoIndices", scene.TypeIntArray, indices)
	pi.Set("positions", scene.TypePoint3f, positions)
	pi.Set("orientations", scene.TypeQuathArray, orientations)
	pi.Set("scales", scene.TypeFloat3Array, scales)
	pi.SetRel("prototypes", in.Prototype.Path)

	protos := pi.AddChild(scene.NewNode(convert.PrototypesName, collect.TypeScope))
	if ext := in.Prototype.External; ext != nil && e.opts.UseExternalReferences {
		protos.AddChild(e.referenceNode(d, in.Prototype.Name, ext))
	} else {
		proto := e.copyTree(d, in.Prototype.Source, in.Prototype.Name)
		scene.ClearTransform(proto)
		protos.AddChild(proto)
	}
	return pi
}

// buildExternal lays out one prototype file: its materials under
// /Root/Looks and the prototype geometry beside them.
func (e *emitter) buildExternal(ext *convert.ExternalPrototype) *document {
	d := e.newDocument(filepath.Join(e.outDir, filepath.FromSlash(ext.File)), true)
	d.root.Meta.Kind = kindModel
	for _, src := range ext.Materials {
		desc := e.out.Model.Material(src)
		outPath, ok := e.out.MaterialPath(src)
		if desc == nil || !ok {
			continue
		}
		d.materials[src] = e.addMaterial(d, desc, scene.BaseName(outPath))
	}
	geo := e.copyTree(d, ext.Source, ext.Name)
	scene.ClearTransform(geo)
	d.root.AddChild(geo)
	return d
}

// externalOf returns the external prototype made from src, if any.
func (e *emitter) externalOf(src *scene.Node) *convert.ExternalPrototype {
	if !e.opts.UseExternalReferences {
		return nil
	}
	for _, ext := range e.out.External {
		if ext.Source == src {
			return ext
		}
	}
	return nil
}

// referenceNode is a lightweight prim pulling in an external prototype file.
func (e *emitter) referenceNode(d *document, name string, ext *convert.ExternalPrototype) *scene.Node {
	n := scene.NewNode(name, collect.TypeXform)
	file := filepath.Join(e.outDir, filepath.FromSlash(ext.File))
	n.Meta.References = []scene.Reference{{Asset: relAsset(filepath.Dir(d.path), file)}}
	return n
}

// copyTree clones src under a new name, leaving out prims emitted
// elsewhere, materials and class prims.
func (e *emitter) copyTree(d *document, src *scene.Node, name string) *scene.Node {
	c := scene.Clone(src)
	c.Name = name
	c.Specifier = scene.SpecDef
	c.Meta.Instanceable = false
	e.prune(src, c)
	d.copies[c] = src.Path()
	return c
}

// prune walks src and its clone in step; Clone keeps child order.
func (e *emitter) prune(src, dst *scene.Node) {
	kept := dst.Children[:0]
	for i, sc := range src.Children {
		dc := dst.Children[i]
		if e.out.Model.Claimed(sc) || sc.IsA(collect.TypeMaterial) || sc.Specifier == scene.SpecClass {
			dc.Parent = nil
			continue
		}
		e.prune(sc, dc)
		kept = append(kept, dc)
	}
	dst.Children = kept
}

// addMaterial writes a material that references the shared schema prim and
// overrides only the derived parameters.
func (e *emitter) addMaterial(d *document, desc *material.Descriptor, name string) string {
	m := d.looks.AddChild(scene.NewNode(name, collect.TypeMaterial))
	m.Meta.References = []scene.Reference{{Asset: d.schema, Path: material.SchemaPrim}}
	sh := m.AddChild(&scene.Node{Name: material.ShaderName, Specifier: scene.SpecOver})

	for _, pname := range desc.Params.Names() {
		spec, ok := material.Lookup(pname)
		if !ok {
			continue
		}
		v, _ := desc.Params.Get(pname)
		if tex, ok := v.(*material.Texture); ok {
			asset, ok := e.textureAsset(d, tex)
			a := sh.Set(inputsPrefix+pname, scene.TypeAsset, scene.Asset(asset))
			a.Meta.ColorSpace = tex.Gamma.ColorSpace()
			if ok && !tex.Keep {
				d.textures = append(d.textures, tex)
			}
			continue
		}
		if val, ok := paramValue(spec, v); ok {
			sh.Set(inputsPrefix+pname, spec.Type.SceneType(), val)
		}
	}
	return m.Path()
}

// textureAsset is the asset path written for tex and whether it names a
// file. Kept textures are written as authored; a texture without a known
// source becomes an empty asset.
func (e *emitter) textureAsset(d *document, tex *material.Texture) (string, bool) {
	if tex.Keep {
		s := strings.Trim(tex.Source, "@")
		return s, s != ""
	}
	if tex.Placeholder() || tex.Stem == "" {
		return "", false
	}
	return d.texPrefix + "/" + tex.Stem + e.opts.TextureExt, true
}

func paramValue(spec material.ParamSpec, v any) (scene.Value, bool) {
	switch spec.Type {
	case material.TypeColor:
		if c, ok := v.(material.Color); ok {
			return scene.Tuple{c[0], c[1], c[2]}, true
		}
	case material.TypeFloat:
		switch x := v.(type) {
		case float64:
			return x, true
		case int64:
			return float64(x), true
		case int:
			return float64(x), true
		}
	case material.TypeInt:
		switch x := v.(type) {
		case int64:
			return x, true
		case int:
			return int64(x), true
		case float64:
			return int64(x), true
		}
	case material.TypeBool:
		if b, ok := v.(bool); ok {
			return b, true
		}
	}
	return nil, false
}
