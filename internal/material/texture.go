package material

import (
	"path"
	"strings"
)

// Role selects the transcode settings of a texture.
type Role string

const (
	RoleBaseColor Role = "base-color"
	RoleRoughness Role = "roughness"
	RoleMetallic  Role = "metallic"
	RoleNormal    Role = "normal"
	RoleEmissive  Role = "emissive"
	RoleOpacity   Role = "opacity"
	RoleHeight    Role = "height"
	RoleMask      Role = "mask"
)

// Derivation is the preprocessing applied to a donor image before it is
// transcoded in place of a missing texture.
type Derivation string

const (
	DeriveNone      Derivation = ""
	DeriveGrayscale Derivation = "grayscale"
	DeriveInvert    Derivation = "invert"
	DeriveNormal    Derivation = "bump-to-normal"
)

// Texture is a texture-valued parameter.
//
// Source is the path as authored in the source document; it is empty when a
// connection could not be followed to a file. Stem is the output file name
// without extension. A Keep texture already points at a renderer-ready file
// and is written back verbatim.
type Texture struct {
	Source string
	Stem   string
	Role   Role
	Gamma  Gamma
	Derive Derivation
	// AlphaSource is an opacity image folded into this texture's alpha.
	AlphaSource string
	Keep        bool
}

// Derived reports whether the texture is produced from a donor image.
func (t *Texture) Derived() bool {
	return t.Derive != DeriveNone
}

// Placeholder reports whether no source file is known.
func (t *Texture) Placeholder() bool {
	return t.Source == "" && !t.Keep
}

var pbrSuffixes = []string{
	"_diffuse", "_albedo", "_basecolor", "_color",
	"_normal", "_norm", "_bump", "_height",
	"_roughness", "_rough", "_gloss", "_glossiness",
	"_metallic", "_metal", "_metalness",
	"_ao", "_occlusion", "_ambient",
	"_emissive", "_emission", "_glow",
	"_opacity", "_alpha", "_transparency",
}

// HasPBRSuffix reports whether stem already ends in a channel suffix.
func HasPBRSuffix(stem string) bool {
	lower := strings.ToLower(stem)
	for _, s := range pbrSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

var paramSuffix = map[string]string{
	"diffuse_texture":             "albedo",
	"reflectionroughness_texture": "roughness",
	"metallic_texture":            "metallic",
	"normalmap_texture":           "normal",
	"emissive_mask_texture":       "emissive",
	"height_texture":              "height",
	"opacity_texture":             "opacity",
}

// SourceStem returns the file name of p without directory or extension.
// Backslashes are accepted as separators.
func SourceStem(p string) string {
	p = strings.ReplaceAll(strings.Trim(p, "@"), `\`, "/")
	if p == "" {
		return ""
	}
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// OutputStem names the output file of a texture sourced from src for the
// given parameter. A stem carrying a channel suffix is kept as is.
func OutputStem(src, param string) string {
	stem := SourceStem(src)
	if stem == "" || HasPBRSuffix(stem) {
		return stem
	}
	suffix, ok := paramSuffix[param]
	if !ok {
		suffix = strings.TrimSuffix(param, "_texture")
	}
	return stem + "_" + suffix
}

// newTexture builds a texture for param sourced from src.
func newTexture(param, src string) *Texture {
	spec, _ := Lookup(param)
	t := &Texture{Source: src, Role: spec.Role, Gamma: spec.Gamma}
	if src != "" {
		t.Stem = OutputStem(src, param)
	}
	return t
}

var bumpSuffixes = []string{"_bump", "_height", "_displacement", "bump", "height", "displacement"}

// bumpBase returns the stem with a bump-style suffix removed, and whether
// the stem names a height field rather than a normal map.
func bumpBase(src string) (string, bool) {
	stem := SourceStem(src)
	lower := strings.ToLower(stem)
	for _, s := range bumpSuffixes {
		if strings.HasSuffix(lower, s) {
			base := stem[:len(stem)-len(s)]
			if base == "" {
				base = stem
			}
			return base, true
		}
	}
	return stem, false
}

// sameFile compares two authored paths by lowercase base name.
func sameFile(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	norm := func(p string) string {
		p = strings.ReplaceAll(strings.Trim(p, "@"), `\`, "/")
		return strings.ToLower(path.Base(p))
	}
	return norm(a) == norm(b)
}
