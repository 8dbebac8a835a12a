package material

import (
	"path"
	"strings"

	"usd-instancer/internal/scene"
)

// Kind is the shading convention a material was authored in.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTarget is already the target schema and passes through.
	KindTarget
	// KindPBR is the generic preview-surface input convention.
	KindPBR
	// KindProcedural is a procedural module call (OmniPBR).
	KindProcedural
)

func (k Kind) String() string {
	switch k {
	case KindTarget:
		return "target"
	case KindPBR:
		return "pbr"
	case KindProcedural:
		return "procedural"
	default:
		return "unknown"
	}
}

const (
	attrShaderID    = "info:id"
	attrMDLAsset    = "info:mdl:sourceAsset"
	attrMDLSubID    = "info:mdl:sourceAsset:subIdentifier"
	attrSurface     = "outputs:surface"
	attrMDLSurface  = "outputs:mdl:surface"
	previewSurface  = "UsdPreviewSurface"
	inputsNamespace = "inputs:"
)

// surfaceShader follows the material's surface output to its shader, falling
// back to the first Shader child.
func surfaceShader(mat *scene.Node) *scene.Node {
	for _, out := range []string{attrMDLSurface, attrSurface} {
		a := mat.Attr(out)
		if a == nil || a.Connection == "" {
			continue
		}
		prim, _ := scene.SplitProperty(a.Connection)
		if sh := mat.Resolve(prim); sh != nil {
			return sh
		}
	}
	var found *scene.Node
	mat.Walk(func(n *scene.Node) bool {
		if found != nil {
			return false
		}
		if n != mat && n.IsA("Shader") {
			found = n
			return false
		}
		return true
	})
	return found
}

// Detect returns the convention of mat and the shader carrying its inputs.
// Target schema wins over the generic convention, which wins over a
// procedural module call.
func Detect(mat *scene.Node) (Kind, *scene.Node) {
	for _, ref := range mat.Meta.References {
		if strings.Contains(path.Base(ref.Asset), SchemaName) {
			if sh := mat.Child(ShaderName); sh != nil {
				return KindTarget, sh
			}
			return KindTarget, surfaceShader(mat)
		}
	}
	sh := surfaceShader(mat)
	if sh == nil {
		return KindUnknown, nil
	}
	mdl := sh.String(attrMDLAsset)
	if strings.Contains(mdl, SchemaName) {
		return KindTarget, sh
	}
	if sh.String(attrShaderID) == previewSurface || hasPreviewInputs(sh) {
		return KindPBR, sh
	}
	if strings.HasSuffix(strings.ToLower(mdl), ".mdl") {
		return KindProcedural, sh
	}
	return KindUnknown, sh
}

func hasPreviewInputs(sh *scene.Node) bool {
	for _, a := range sh.Attrs {
		if _, ok := previewSlots[strings.TrimPrefix(a.Name, inputsNamespace)]; ok {
			return true
		}
	}
	return false
}
