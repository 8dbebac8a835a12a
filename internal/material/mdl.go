package material

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"usd-instancer/internal/scene"
)

// proceduralCall is the module function whose arguments describe a material.
const proceduralCall = "OmniPBR"

var proceduralSlots = map[string]slot{
	"diffuse_color_constant":        slotBaseColor,
	"diffuse_texture":               slotBaseColor,
	"albedo_texture":                slotBaseColor,
	"diffuse_tint":                  slotBaseTint,
	"metallic_constant":             slotMetallic,
	"metallic_texture":              slotMetallic,
	"reflection_roughness_constant": slotRoughness,
	"reflectionroughness_texture":   slotRoughness,
	"roughness_texture":             slotRoughness,
	"specular_level":                slotSpecular,
	"specular_texture":              slotSpecular,
	"anisotropy_constant":           slotAnisotropy,
	"anisotropy_texture":            slotAnisotropy,
	"normalmap_texture":             slotNormal,
	"enable_emission":               slotEnableEmission,
	"emissive_color":                slotEmissive,
	"emissive_mask_texture":         slotEmissive,
	"emissive_intensity":            slotEmissiveIntensity,
	"opacity_constant":              slotOpacity,
	"opacity_texture":               slotOpacity,
}

// arg is one name: value pair of a call.
type arg struct {
	name  string
	value string
}

var (
	errNoCall     = errors.New("call not found")
	errUnbalanced = errors.New("unbalanced argument list")
)

// callArgs returns the named arguments of the first call to fn in src whose
// argument list is a name: value list. Declarations of fn are skipped.
func callArgs(src, fn string) ([]arg, error) {
	from := 0
	for {
		i := strings.Index(src[from:], fn)
		if i < 0 {
			return nil, errNoCall
		}
		at := from + i
		from = at + len(fn)
		if at > 0 && isWordByte(src[at-1]) {
			continue
		}
		j := from
		for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
			j++
		}
		if j >= len(src) || src[j] != '(' {
			continue
		}
		body, err := argList(src[j:])
		if err != nil {
			return nil, err
		}
		args, ok := splitArgs(body)
		if ok {
			return args, nil
		}
	}
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// argList returns the text between the opening parenthesis at s[0] and its
// matching close. Parentheses inside string literals do not count.
func argList(s string) (string, error) {
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], nil
			}
		}
	}
	return "", errUnbalanced
}

// splitArgs splits a call body on top-level commas and each piece on its
// first top-level colon. It reports false when a piece has no name.
func splitArgs(body string) ([]arg, bool) {
	var (
		out      []arg
		depth    int
		inString bool
		start    int
		colon    = -1
	)
	flush := func(end int) bool {
		piece := body[start:end]
		if strings.TrimSpace(piece) == "" {
			return true
		}
		if colon < 0 {
			return false
		}
		name := strings.TrimSpace(body[start:colon])
		if name == "" || strings.ContainsAny(name, " \t\n=") {
			return false
		}
		out = append(out, arg{name: name, value: strings.TrimSpace(body[colon+1 : end])})
		return true
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ':':
			if depth == 0 && colon < 0 {
				if i+1 < len(body) && body[i+1] == ':' {
					i++
					continue
				}
				colon = i
			}
		case ',':
			if depth == 0 {
				if !flush(i) {
					return nil, false
				}
				start, colon = i+1, -1
			}
		}
	}
	if !flush(len(body)) {
		return nil, false
	}
	return out, len(out) > 0
}

// mdlValue is a parsed argument value.
type mdlValue struct {
	value   any
	texture bool
	file    string
	// connected marks a shader input wired to another node. An unresolved
	// connection is kept as a placeholder; an empty texture_2d() is not.
	connected bool
}

// parseValue interprets an argument literal: color(...), texture_2d(...),
// booleans and numbers with an optional f suffix. Anything else is kept as
// a string.
func parseValue(s string) mdlValue {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "texture_2d"):
		body, err := argList(strings.TrimSpace(strings.TrimPrefix(s, "texture_2d")))
		if err != nil {
			return mdlValue{texture: true}
		}
		file := ""
		if parts := topLevelSplit(body); len(parts) > 0 {
			file = unquote(parts[0])
		}
		return mdlValue{texture: true, file: file}
	case strings.HasPrefix(s, "color"):
		body, err := argList(strings.TrimSpace(strings.TrimPrefix(s, "color")))
		if err != nil {
			return mdlValue{value: s}
		}
		parts := topLevelSplit(body)
		var vals []float64
		for _, p := range parts {
			f, ok := parseFloat(p)
			if !ok {
				return mdlValue{value: s}
			}
			vals = append(vals, f)
		}
		switch len(vals) {
		case 1:
			return mdlValue{value: Color{vals[0], vals[0], vals[0]}}
		case 3:
			return mdlValue{value: Color{vals[0], vals[1], vals[2]}}
		}
		return mdlValue{value: s}
	case s == "true" || s == "false":
		return mdlValue{value: s == "true"}
	}
	if f, ok := parseFloat(s); ok {
		return mdlValue{value: f}
	}
	return mdlValue{value: s}
}

func topLevelSplit(body string) []string {
	var out []string
	depth, start := 0, 0
	inString := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(body[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(body[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "f")
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func unquote(s string) string {
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return strings.Trim(s, `"`)
}

// proceduralInputs gathers arguments from the module call, when the module
// file can be read, and then from the shader's own inputs, which win.
func (t *Translator) proceduralInputs(sh *scene.Node) (*inputs, []string) {
	var notes []string
	values := map[string]mdlValue{}
	var order []string
	put := func(name string, v mdlValue) {
		if _, ok := values[name]; !ok {
			order = append(order, name)
		}
		values[name] = v
	}

	if asset := sh.String(attrMDLAsset); asset != "" {
		args, err := t.moduleArgs(asset)
		switch {
		case err == nil:
			for _, a := range args {
				put(a.name, parseValue(a.value))
			}
		case !errors.Is(err, errNoCall) && !errors.Is(err, fs.ErrNotExist):
			notes = append(notes, fmt.Sprintf("module %s: %v", asset, err))
		}
	}

	for _, a := range sh.Attrs {
		if !strings.HasPrefix(a.Name, inputsNamespace) {
			continue
		}
		name := strings.TrimPrefix(a.Name, inputsNamespace)
		switch {
		case a.Connection != "":
			put(name, mdlValue{texture: true, file: textureFile(sh, a.Connection), connected: true})
		case a.TypeName == scene.TypeAsset:
			s, _ := a.String()
			if s == "" {
				continue
			}
			put(name, mdlValue{texture: true, file: s})
		case a.Value != nil:
			put(name, mdlValue{value: attrValue(a)})
		}
	}

	in := newInputs()
	for _, name := range order {
		v := values[name]
		if v.texture && v.file == "" && !v.connected {
			continue
		}
		if s, ok := proceduralSlots[name]; ok {
			if v.texture {
				in.setTexture(s, v.file)
			} else {
				in.setValue(s, v.value)
			}
			continue
		}
		src := source{value: v.value, hasValue: !v.texture, file: v.file, texture: v.texture}
		in.extras = append(in.extras, extra{name: name, src: src})
	}
	return in, notes
}

// moduleArgs reads and parses a module file once per run.
func (t *Translator) moduleArgs(asset string) ([]arg, error) {
	name := t.resolveModule(asset)
	if m, ok := t.modules[name]; ok {
		return m.args, m.err
	}
	var m moduleArgs
	data, err := t.opts.ReadFile(name)
	if err != nil {
		m.err = fmt.Errorf("read: %w", err)
	} else {
		m.args, m.err = callArgs(string(data), proceduralCall)
	}
	t.modules[name] = m
	return m.args, m.err
}
