package material

import (
	"strings"

	"usd-instancer/internal/scene"
)

// previewSlots maps preview-surface inputs, without namespace, to slots.
var previewSlots = map[string]slot{
	"diffuseColor":  slotBaseColor,
	"baseColor":     slotBaseColor,
	"metallic":      slotMetallic,
	"roughness":     slotRoughness,
	"specular":      slotSpecular,
	"anisotropy":    slotAnisotropy,
	"normal":        slotNormal,
	"emissiveColor": slotEmissive,
	"opacity":       slotOpacity,
	"displacement":  slotHeight,
}

const attrFile = "inputs:file"

// maxConnectionHops bounds the walk from an input to the node holding the
// image file.
const maxConnectionHops = 4

// previewInputs reads the generic PBR convention. Inputs are accepted with
// or without the inputs: namespace; a connected input is a texture.
func previewInputs(sh *scene.Node) *inputs {
	in := newInputs()
	for _, a := range sh.Attrs {
		name := strings.TrimPrefix(a.Name, inputsNamespace)
		s, ok := previewSlots[name]
		if !ok {
			continue
		}
		if a.Connection != "" {
			in.setTexture(s, textureFile(sh, a.Connection))
			continue
		}
		if a.Value != nil {
			in.setValue(s, attrValue(a))
		}
	}
	return in
}

// textureFile follows a connection to the first node carrying an image
// file. It returns "" when no file is reachable.
func textureFile(from *scene.Node, target string) string {
	for hop := 0; hop < maxConnectionHops && target != ""; hop++ {
		prim, _ := scene.SplitProperty(target)
		n := from.Resolve(prim)
		if n == nil {
			return ""
		}
		if a := n.Attr(attrFile); a != nil {
			s, _ := a.String()
			return s
		}
		target = ""
		for _, a := range n.Attrs {
			if strings.HasPrefix(a.Name, inputsNamespace) && a.Connection != "" {
				target = a.Connection
				break
			}
		}
		from = n
	}
	return ""
}
