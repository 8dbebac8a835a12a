package material

import (
	"os"
	"path/filepath"
	"strings"

	"usd-instancer/internal/scene"
)

// Descriptor is one translated material.
type Descriptor struct {
	Name   string
	Path   string
	Kind   Kind
	Shader string
	Params *Params
	// Notes are non-fatal translation problems worth reporting.
	Notes []string
}

// Options configures a Translator.
type Options struct {
	// AutoBlendAlpha turns on blending when alpha comes from a texture.
	AutoBlendAlpha bool
	// BaseDir resolves relative module assets; usually the input's directory.
	BaseDir  string
	ReadFile func(name string) ([]byte, error)
	// HasAlpha reports whether the authored diffuse texture carries its
	// own transparency. Nil skips the check.
	HasAlpha func(authored string) bool
}

// Translator maps source materials onto the target schema. It is not safe
// for concurrent use.
type Translator struct {
	opts    Options
	modules map[string]moduleArgs
}

type moduleArgs struct {
	args []arg
	err  error
}

// NewTranslator returns a Translator; a nil ReadFile reads from disk.
func NewTranslator(opts Options) *Translator {
	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}
	return &Translator{opts: opts, modules: make(map[string]moduleArgs)}
}

// Translate converts the material prim mat. It never fails: an unrecognized
// network yields KindUnknown and an empty parameter set.
func (t *Translator) Translate(mat *scene.Node) Descriptor {
	d := Descriptor{Name: mat.Name, Path: mat.Path(), Params: NewParams()}
	kind, sh := Detect(mat)
	d.Kind = kind
	if sh != nil {
		d.Shader = sh.Path()
	}
	switch kind {
	case KindTarget:
		d.Params = passThrough(sh)
	case KindPBR:
		in := previewInputs(sh)
		d.Params = derive(in, t.opts)
	case KindProcedural:
		in, notes := t.proceduralInputs(sh)
		d.Notes = append(d.Notes, notes...)
		d.Params = derive(in, t.opts)
	default:
		d.Notes = append(d.Notes, "no recognized shading network")
	}
	return d
}

type slot int

const (
	slotBaseColor slot = iota
	slotBaseTint
	slotMetallic
	slotRoughness
	slotSpecular
	slotAnisotropy
	slotNormal
	slotHeight
	slotEmissive
	slotEmissiveIntensity
	slotEnableEmission
	slotOpacity
)

// source is what a convention supplied for one slot: a constant, a texture,
// or both.
type source struct {
	value    any
	hasValue bool
	file     string
	texture  bool
}

type extra struct {
	name string
	src  source
}

// inputs is the convention-independent view of a shading network.
type inputs struct {
	slots  map[slot]*source
	extras []extra
}

func newInputs() *inputs {
	return &inputs{slots: make(map[slot]*source)}
}

func (in *inputs) slot(s slot) *source {
	src, ok := in.slots[s]
	if !ok {
		src = &source{}
		in.slots[s] = src
	}
	return src
}

func (in *inputs) get(s slot) (*source, bool) {
	src, ok := in.slots[s]
	return src, ok
}

func (in *inputs) setValue(s slot, v any) {
	src := in.slot(s)
	src.value, src.hasValue = v, true
}

func (in *inputs) setTexture(s slot, file string) {
	src := in.slot(s)
	src.file, src.texture = file, true
}

func (in *inputs) texture(s slot) (string, bool) {
	src, ok := in.slots[s]
	if !ok || !src.texture {
		return "", false
	}
	return src.file, true
}

func (in *inputs) value(s slot) (any, bool) {
	src, ok := in.slots[s]
	if !ok || !src.hasValue {
		return nil, false
	}
	return src.value, true
}

// derive applies the translation rules shared by every convention.
func derive(in *inputs, opts Options) *Params {
	p := NewParams()

	diffuseFile, hasDiffuseTex := in.texture(slotBaseColor)
	opacityFile, hasOpacityTex := in.texture(slotOpacity)

	if hasDiffuseTex {
		tex := newTexture("diffuse_texture", diffuseFile)
		if hasOpacityTex && opacityFile != "" && !sameFile(opacityFile, diffuseFile) {
			tex.AlphaSource = opacityFile
			if tex.Stem != "" {
				tex.Stem = SourceStem(diffuseFile) + "_" + SourceStem(opacityFile) + "_albedo"
			}
		}
		p.Set("diffuse_texture", tex)
		if v, ok := in.value(slotBaseTint); ok {
			if c, ok := toColor(v); ok {
				p.Set("diffuse_color_constant", c)
			}
		}
	} else {
		v, ok := in.value(slotBaseColor)
		if !ok {
			v, ok = in.value(slotBaseTint)
		}
		if c, cok := toColor(v); ok && cok {
			p.Set("diffuse_color_constant", c)
		}
	}

	deriveOpacity(p, in, opts, diffuseFile, hasDiffuseTex)
	setScalar(p, in, slotMetallic, "metallic_constant", "metallic_texture")
	deriveRoughness(p, in, diffuseFile, hasDiffuseTex)
	setScalar(p, in, slotAnisotropy, "anisotropy_constant", "anisotropy_texture")
	deriveNormal(p, in)
	deriveEmission(p, in)

	for _, e := range in.extras {
		spec, ok := Lookup(e.name)
		if !ok || p.Has(e.name) {
			continue
		}
		switch {
		case spec.Type == TypeTexture && e.src.texture:
			p.Set(e.name, newTexture(e.name, e.src.file))
		case spec.Type != TypeTexture && e.src.hasValue && !spec.MatchesDefault(e.src.value):
			if v, ok := coerceParam(spec, e.src.value); ok {
				p.Set(e.name, v)
			}
		}
	}
	return p
}

func deriveOpacity(p *Params, in *inputs, opts Options, diffuseFile string, hasDiffuseTex bool) {
	opacityFile, hasTex := in.texture(slotOpacity)
	if hasTex {
		if !hasDiffuseTex {
			p.Set("opacity_texture", newTexture("opacity_texture", opacityFile))
		}
		if opts.AutoBlendAlpha {
			p.Set("blend_enabled", true)
			p.Set("use_legacy_alpha_state", true)
		}
		return
	}
	// Alpha already in the diffuse image is blended the modern way.
	if hasDiffuseTex && diffuseFile != "" && opts.AutoBlendAlpha && opts.HasAlpha != nil && opts.HasAlpha(diffuseFile) {
		p.Set("blend_enabled", true)
		p.Set("use_legacy_alpha_state", false)
	}
	v, ok := in.value(slotOpacity)
	if !ok {
		return
	}
	f, ok := toFloat(v)
	if !ok || f >= 1 {
		return
	}
	p.Set("opacity_constant", f)
	p.Set("blend_enabled", true)
}

// setScalar maps a slot onto a constant/texture parameter pair. Constants
// equal to the schema default are dropped.
func setScalar(p *Params, in *inputs, s slot, constant, texture string) {
	if file, ok := in.texture(s); ok {
		p.Set(texture, newTexture(texture, file))
		return
	}
	v, ok := in.value(s)
	if !ok {
		return
	}
	spec, _ := Lookup(constant)
	f, ok := toFloat(v)
	if ok && !spec.MatchesDefault(f) {
		p.Set(constant, f)
	}
}

func deriveRoughness(p *Params, in *inputs, diffuseFile string, hasDiffuseTex bool) {
	const param = "reflectionroughness_texture"
	roughFile, hasRoughTex := in.texture(slotRoughness)
	specFile, hasSpecTex := in.texture(slotSpecular)

	switch {
	case hasRoughTex && hasDiffuseTex && sameFile(roughFile, diffuseFile):
		p.Set(param, derivedTexture(param, diffuseFile, DeriveGrayscale))
		return
	case hasRoughTex:
		p.Set(param, newTexture(param, roughFile))
		return
	case hasSpecTex && specFile != "":
		donor := specFile
		if hasDiffuseTex && sameFile(specFile, diffuseFile) {
			donor = diffuseFile
		}
		p.Set(param, derivedTexture(param, donor, DeriveInvert))
		return
	}

	spec, _ := Lookup("reflection_roughness_constant")
	v, ok := in.value(slotRoughness)
	if !ok {
		return
	}
	r, ok := toFloat(v)
	if !ok {
		return
	}
	if r == 1 {
		if sv, ok := in.value(slotSpecular); ok {
			if s, ok := toFloat(sv); ok && s != 0 {
				r = 1 - s
			}
		}
	}
	if !spec.MatchesDefault(r) {
		p.Set("reflection_roughness_constant", r)
	}
}

func derivedTexture(param, donor string, how Derivation) *Texture {
	t := newTexture(param, donor)
	t.Derive = how
	t.Stem = SourceStem(donor) + "_rough"
	return t
}

func deriveNormal(p *Params, in *inputs) {
	if file, ok := in.texture(slotNormal); ok {
		base, bump := bumpBase(file)
		if bump && file != "" {
			n := newTexture("normalmap_texture", file)
			n.Derive = DeriveNormal
			n.Stem = base + "_normal"
			p.Set("normalmap_texture", n)
			h := newTexture("height_texture", file)
			h.Stem = base + "_height"
			p.Set("height_texture", h)
		} else {
			p.Set("normalmap_texture", newTexture("normalmap_texture", file))
		}
	}
	if file, ok := in.texture(slotHeight); ok && !p.Has("height_texture") {
		p.Set("height_texture", newTexture("height_texture", file))
	}
}

// deriveEmission enables emission only for a non-black constant or a
// texture. A disabled material carries no emissive parameters at all.
func deriveEmission(p *Params, in *inputs) {
	file, hasTex := in.texture(slotEmissive)
	var color Color
	var hasColor bool
	if v, ok := in.value(slotEmissive); ok {
		if c, ok := toColor(v); ok && !c.IsBlack() {
			color, hasColor = c, true
		}
	}
	enabled := hasTex || hasColor
	if v, ok := in.value(slotEnableEmission); ok {
		if b, ok := v.(bool); ok && !b && !hasTex {
			enabled = false
		}
	}
	if !enabled {
		return
	}
	if hasTex {
		p.Set("emissive_mask_texture", newTexture("emissive_mask_texture", file))
	}
	if hasColor {
		p.Set("emissive_color_constant", color)
	}
	p.Set("enable_emission", true)
	if v, ok := in.value(slotEmissiveIntensity); ok {
		if f, ok := toFloat(v); ok {
			p.Set("emissive_intensity", f)
		}
	}
}

func coerceParam(spec ParamSpec, v any) (any, bool) {
	switch spec.Type {
	case TypeColor:
		c, ok := toColor(v)
		return c, ok
	case TypeFloat:
		return toFloat(v)
	case TypeInt:
		f, ok := toFloat(v)
		return int64(f), ok
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, true
		}
		f, ok := toFloat(v)
		return f != 0, ok
	}
	return nil, false
}

// passThrough copies the authored target-schema opinions of sh unchanged.
func passThrough(sh *scene.Node) *Params {
	p := NewParams()
	if sh == nil {
		return p
	}
	for _, a := range sh.Attrs {
		name := strings.TrimPrefix(a.Name, inputsNamespace)
		spec, ok := Lookup(name)
		if !ok || a.Value == nil {
			continue
		}
		if spec.Type == TypeTexture {
			s, _ := a.String()
			t := newTexture(name, s)
			t.Keep = true
			t.Stem = ""
			p.Set(name, t)
			continue
		}
		if v, ok := coerceParam(spec, attrValue(a)); ok {
			p.Set(name, v)
		}
	}
	return p
}

// attrValue normalizes an attribute value for coercion.
func attrValue(a *scene.Attribute) any {
	switch v := a.Value.(type) {
	case scene.Tuple:
		if len(v) >= 3 {
			return Color{v[0], v[1], v[2]}
		}
		return v
	default:
		return v
	}
}

// resolveModule maps a module asset path to a file name.
func (t *Translator) resolveModule(asset string) string {
	asset = strings.ReplaceAll(asset, `\`, "/")
	if filepath.IsAbs(asset) || t.opts.BaseDir == "" {
		return filepath.FromSlash(asset)
	}
	return filepath.Join(t.opts.BaseDir, filepath.FromSlash(asset))
}
