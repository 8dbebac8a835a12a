package material

import (
	"math"

	"usd-instancer/internal/scene"
)

// Target schema location. Output materials reference SchemaPrim inside
// SchemaFile, which lives in the project's materials directory.
const (
	SchemaName = "AperturePBR_Opacity"
	SchemaFile = "AperturePBR_Opacity.usda"
	SchemaPrim = "/Looks/mat_AperturePBR_Opacity"
	ShaderName = "Shader"
)

// DefaultTolerance is the distance under which a constant counts as the
// schema default.
const DefaultTolerance = 0.001

// Gamma is the color space a texture is sampled in.
type Gamma string

const (
	GammaSRGB   Gamma = "srgb"
	GammaLinear Gamma = "linear"
)

// ColorSpace returns the attribute colorSpace token for the gamma.
func (g Gamma) ColorSpace() string {
	if g == GammaSRGB {
		return "sRGB"
	}
	return "raw"
}

// ParamType is the value type of a schema parameter.
type ParamType int

const (
	TypeColor ParamType = iota
	TypeFloat
	TypeInt
	TypeBool
	TypeTexture
)

// SceneType returns the attribute type name used when serializing.
func (t ParamType) SceneType() string {
	switch t {
	case TypeColor:
		return scene.TypeColor3f
	case TypeFloat:
		return scene.TypeFloat
	case TypeInt:
		return scene.TypeInt
	case TypeBool:
		return scene.TypeBool
	default:
		return scene.TypeAsset
	}
}

// Color is a linear RGB triple.
type Color [3]float64

// IsBlack reports whether every channel is zero.
func (c Color) IsBlack() bool {
	return c[0] == 0 && c[1] == 0 && c[2] == 0
}

// ParamSpec describes one target schema parameter.
type ParamSpec struct {
	Name    string
	Type    ParamType
	Default any
	Gamma   Gamma
	Role    Role
}

var schema = []ParamSpec{
	{Name: "diffuse_texture", Type: TypeTexture, Gamma: GammaSRGB, Role: RoleBaseColor},
	{Name: "diffuse_color_constant", Type: TypeColor, Default: Color{0.8, 0.8, 0.8}},
	{Name: "albedo_add", Type: TypeFloat, Default: 0.0},
	{Name: "albedo_brightness", Type: TypeFloat, Default: 0.0},
	{Name: "albedo_desaturation", Type: TypeFloat, Default: 0.0},
	{Name: "metallic_texture", Type: TypeTexture, Gamma: GammaLinear, Role: RoleMetallic},
	{Name: "metallic_constant", Type: TypeFloat, Default: 0.0},
	{Name: "reflectionroughness_texture", Type: TypeTexture, Gamma: GammaLinear, Role: RoleRoughness},
	{Name: "reflection_roughness_constant", Type: TypeFloat, Default: 0.5},
	{Name: "reflection_roughness_texture_influence", Type: TypeFloat, Default: 1.0},
	{Name: "anisotropy_constant", Type: TypeFloat, Default: 0.0},
	{Name: "anisotropy_texture", Type: TypeTexture, Gamma: GammaLinear, Role: RoleMask},
	{Name: "normalmap_texture", Type: TypeTexture, Gamma: GammaLinear, Role: RoleNormal},
	{Name: "normalmap_strength", Type: TypeFloat, Default: 1.0},
	{Name: "normalmap_encoding", Type: TypeInt, Default: int64(0)},
	{Name: "height_texture", Type: TypeTexture, Gamma: GammaLinear, Role: RoleHeight},
	{Name: "height_offset", Type: TypeFloat, Default: 0.0},
	{Name: "height_scale", Type: TypeFloat, Default: 1.0},
	{Name: "emissive_mask_texture", Type: TypeTexture, Gamma: GammaSRGB, Role: RoleEmissive},
	{Name: "emissive_color_constant", Type: TypeColor, Default: Color{0, 0, 0}},
	{Name: "emissive_intensity", Type: TypeFloat, Default: 1.0},
	{Name: "enable_emission", Type: TypeBool, Default: false},
	{Name: "opacity_constant", Type: TypeFloat, Default: 1.0},
	{Name: "opacity_texture", Type: TypeTexture, Gamma: GammaLinear, Role: RoleOpacity},
	{Name: "opacity_mode", Type: TypeInt, Default: int64(1)},
	{Name: "enable_thin_film", Type: TypeBool, Default: false},
	{Name: "thin_film_thickness_constant", Type: TypeFloat, Default: 200.0},
	{Name: "subsurface_transmittance_color", Type: TypeColor, Default: Color{0.5, 0.5, 0.5}},
	{Name: "subsurface_transmittance_texture", Type: TypeTexture, Gamma: GammaSRGB, Role: RoleBaseColor},
	{Name: "subsurface_measurement_distance", Type: TypeFloat, Default: 0.0},
	{Name: "subsurface_thickness_texture", Type: TypeTexture, Gamma: GammaLinear, Role: RoleMask},
	{Name: "subsurface_single_scattering_albedo", Type: TypeColor, Default: Color{0.5, 0.5, 0.5}},
	{Name: "subsurface_volumetric_anisotropy", Type: TypeFloat, Default: 0.0},
	{Name: "use_legacy_alpha_state", Type: TypeBool, Default: true},
	{Name: "blend_enabled", Type: TypeBool, Default: false},
	{Name: "cutout_opacity", Type: TypeFloat, Default: 0.5},
	{Name: "preload_textures", Type: TypeBool, Default: false},
	{Name: "ignore_material", Type: TypeBool, Default: false},
}

var schemaIndex = func() map[string]int {
	m := make(map[string]int, len(schema))
	for i, s := range schema {
		m[s.Name] = i
	}
	return m
}()

// Lookup returns the spec of a target parameter.
func Lookup(name string) (ParamSpec, bool) {
	i, ok := schemaIndex[name]
	if !ok {
		return ParamSpec{}, false
	}
	return schema[i], true
}

// Schema returns a copy of the full parameter table in declaration order.
func Schema() []ParamSpec {
	out := make([]ParamSpec, len(schema))
	copy(out, schema)
	return out
}

// MatchesDefault reports whether v equals the parameter default within
// DefaultTolerance. Textures never match.
func (s ParamSpec) MatchesDefault(v any) bool {
	switch s.Type {
	case TypeFloat:
		f, ok := toFloat(v)
		d, _ := toFloat(s.Default)
		return ok && math.Abs(f-d) < DefaultTolerance
	case TypeInt:
		f, ok := toFloat(v)
		d, _ := toFloat(s.Default)
		return ok && f == d
	case TypeBool:
		b, ok := v.(bool)
		return ok && b == s.Default.(bool)
	case TypeColor:
		c, ok := toColor(v)
		if !ok {
			return false
		}
		d := s.Default.(Color)
		for i := range c {
			if math.Abs(c[i]-d[i]) >= DefaultTolerance {
				return false
			}
		}
		return true
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case scene.Tuple:
		if len(x) == 1 {
			return x[0], true
		}
	}
	return 0, false
}

func toColor(v any) (Color, bool) {
	switch x := v.(type) {
	case Color:
		return x, true
	case scene.Tuple:
		if len(x) >= 3 {
			return Color{x[0], x[1], x[2]}, true
		}
	case []float64:
		if len(x) >= 3 {
			return Color{x[0], x[1], x[2]}, true
		}
	case float64:
		return Color{x, x, x}, true
	}
	return Color{}, false
}
