package emit

import (
	"fmt"
	"math"
	"path/filepath"

	"usd-instancer/internal/collect"
	"usd-instancer/internal/config"
	"usd-instancer/internal/logging"
	"usd-instancer/internal/meshhash"
	"usd-instancer/internal/report"
	"usd-instancer/internal/scene"
)

const (
	attrPoints         = "points"
	attrFaceIndices    = "faceVertexIndices"
	attrNormals        = "normals"
	attrPrimvarNormals = "primvars:normals"
	attrPurpose        = "purpose"
	primvarST          = "primvars:st"
	indicesSuffix      = ":indices"

	interpFaceVarying = "faceVarying"
	interpVertex      = "vertex"
	interpVarying     = "varying"
)

// fixMeshes applies the per-mesh fixups to every mesh of d.
func (e *emitter) fixMeshes(d *document) {
	d.root.Walk(func(n *scene.Node) bool {
		if n.IsA(collect.TypeMesh) {
			e.fixMesh(d, n)
		}
		return true
	})
}

func (e *emitter) fixMesh(d *document, n *scene.Node) {
	for _, a := range n.Attrs {
		if a.TypeName == scene.TypeFloat2Array && meshhash.IsUVPrimvar(a) {
			a.TypeName = scene.TypeTexCoord2f
		}
	}

	if !hasUVs(n) {
		e.missingUVs(d, n)
	}

	if e.opts.Interpolation != config.InterpolationNone {
		for _, a := range append([]*scene.Attribute(nil), n.Attrs...) {
			if meshhash.IsUVPrimvar(a) || a.Name == attrNormals || a.Name == attrPrimvarNormals {
				normalizeInterpolation(n, a, e.opts.Interpolation)
			}
		}
	}

	n.AddAPI(bindingAPI)
	if p := n.String(attrPurpose); p != "default" && p != "render" {
		n.SetAttr(&scene.Attribute{
			Name:     attrPurpose,
			TypeName: scene.TypeToken,
			Uniform:  true,
			Value:    scene.Token("default"),
		})
	}
}

func hasUVs(n *scene.Node) bool {
	for _, a := range n.Attrs {
		if meshhash.IsUVPrimvar(a) && a.Value != nil {
			return true
		}
	}
	return false
}

func (e *emitter) missingUVs(d *document, n *scene.Node) {
	path := d.issuePath(n)
	if !e.opts.GenerateMissingUVs {
		e.issue(report.UVMissing, path, "mesh has no texture coordinates")
		e.logger.Warn("mesh has no texture coordinates", logging.Path(path))
		return
	}
	uvs, err := PlanarUVs(tuples(n, attrPoints), ints(n, attrFaceIndices))
	if err != nil {
		e.issue(report.UVFailed, path, "%v", err)
		e.logger.Warn("texture coordinates not generated", logging.Path(path), logging.Error(err))
		return
	}
	a := n.Set(primvarST, scene.TypeTexCoord2f, uvs)
	a.Meta.Interpolation = interpFaceVarying
	e.issue(report.UVGenerated, path, "planar projection")
	e.logger.Debug("texture coordinates generated", logging.Path(path))
}

// issuePath names a prim in reports; prims of external files carry the
// file name.
func (d *document) issuePath(n *scene.Node) string {
	if !d.external {
		return n.Path()
	}
	return fmt.Sprintf("%s:%s", filepath.Base(d.path), n.Path())
}

func tuples(n *scene.Node, name string) []scene.Tuple {
	if a := n.Attr(name); a != nil {
		v, _ := a.Tuples()
		return v
	}
	return nil
}

func ints(n *scene.Node, name string) []int64 {
	if a := n.Attr(name); a != nil {
		v, _ := a.Ints()
		return v
	}
	return nil
}

// normalizeInterpolation rewrites a primvar to the configured
// interpolation. Indexed primvars are flattened first. Per-vertex
// conversion only happens when every corner of a vertex agrees.
func normalizeInterpolation(mesh *scene.Node, a *scene.Attribute, mode string) {
	vals, ok := a.Tuples()
	if !ok {
		return
	}
	if ia := mesh.Attr(a.Name + indicesSuffix); ia != nil {
		idx, ok := ia.Ints()
		if !ok {
			return
		}
		flat := make([]scene.Tuple, len(idx))
		for i, j := range idx {
			if j < 0 || int(j) >= len(vals) {
				return
			}
			flat[i] = append(scene.Tuple(nil), vals[j]...)
		}
		vals = flat
		a.Value = flat
		mesh.RemoveAttr(ia.Name)
	}

	corners := ints(mesh, attrFaceIndices)
	nPoints := len(tuples(mesh, attrPoints))
	interp := a.Meta.Interpolation
	if interp == "" && len(vals) == nPoints && nPoints != len(corners) {
		interp = interpVertex
	}

	switch mode {
	case config.InterpolationFaceVarying:
		if (interp != interpVertex && interp != interpVarying) || len(vals) != nPoints || len(corners) == 0 {
			return
		}
		out := make([]scene.Tuple, len(corners))
		for i, v := range corners {
			if v < 0 || int(v) >= len(vals) {
				return
			}
			out[i] = append(scene.Tuple(nil), vals[v]...)
		}
		a.Value = out
		a.Meta.Interpolation = interpFaceVarying

	case config.InterpolationVertex:
		if interp != interpFaceVarying || len(vals) != len(corners) || nPoints == 0 {
			return
		}
		out := make([]scene.Tuple, nPoints)
		for i, v := range corners {
			if v < 0 || int(v) >= nPoints {
				return
			}
			if out[v] != nil {
				if !equalTuple(out[v], vals[i]) {
					return
				}
				continue
			}
			out[v] = vals[i]
		}
		for i := range out {
			if out[i] == nil {
				out[i] = make(scene.Tuple, len(vals[0]))
			}
		}
		a.Value = out
		a.Meta.Interpolation = interpVertex
	}
}

func equalTuple(a, b scene.Tuple) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-6 {
			return false
		}
	}
	return true
}
