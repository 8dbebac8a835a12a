package material

// Params is the sparse, ordered set of target parameters derived for one
// material. Only names present here are ever serialized.
//
// Values are Color, float64, int64, bool or *Texture.
type Params struct {
	names  []string
	values map[string]any
}

// NewParams returns an empty set.
func NewParams() *Params {
	return &Params{values: make(map[string]any)}
}

// Set records name. The first Set fixes the position of name.
func (p *Params) Set(name string, v any) {
	if _, ok := p.values[name]; !ok {
		p.names = append(p.names, name)
	}
	p.values[name] = v
}

// Get returns the value of name.
func (p *Params) Get(name string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[name]
	return v, ok
}

// Has reports whether name was derived.
func (p *Params) Has(name string) bool {
	_, ok := p.Get(name)
	return ok
}

// Delete drops name.
func (p *Params) Delete(name string) {
	if _, ok := p.values[name]; !ok {
		return
	}
	delete(p.values, name)
	for i, n := range p.names {
		if n == name {
			p.names = append(p.names[:i], p.names[i+1:]...)
			break
		}
	}
}

// Names returns the derived parameter names in insertion order.
func (p *Params) Names() []string {
	if p == nil || len(p.names) == 0 {
		return nil
	}
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.names)
}

// Texture returns the texture value of name.
func (p *Params) Texture(name string) (*Texture, bool) {
	v, ok := p.Get(name)
	if !ok {
		return nil, false
	}
	t, ok := v.(*Texture)
	return t, ok
}

// Float returns a numeric value of name.
func (p *Params) Float(name string) (float64, bool) {
	v, ok := p.Get(name)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Bool returns a boolean value of name.
func (p *Params) Bool(name string) (bool, bool) {
	v, ok := p.Get(name)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Clone returns a deep copy; textures are copied by value.
func (p *Params) Clone() *Params {
	out := NewParams()
	if p == nil {
		return out
	}
	for _, n := range p.names {
		v := p.values[n]
		if t, ok := v.(*Texture); ok {
			c := *t
			v = &c
		}
		out.Set(n, v)
	}
	return out
}
