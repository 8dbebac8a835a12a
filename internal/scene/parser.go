package scene

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrSyntax marks malformed text documents.
var ErrSyntax = errors.New("scene: syntax error")

const textHeader = "#usda"

// Parse reads a text document.
func Parse(src string) (*Document, error) {
	src = strings.TrimPrefix(src, "\ufeff")
	if !strings.HasPrefix(strings.TrimLeft(src, " \t\r\n"), textHeader) {
		return nil, fmt.Errorf("%w: missing %s header", ErrSyntax, textHeader)
	}
	p := &parser{lex: newLexer(src), doc: New()}
	if err := p.parseLayer(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

type parser struct {
	lex    *lexer
	doc    *Document
	peeked []token
}

func (p *parser) peek() (token, error) {
	if len(p.peeked) == 0 {
		t, err := p.lex.next()
		if err != nil {
			return t, err
		}
		p.peeked = append(p.peeked, t)
	}
	return p.peeked[0], nil
}

func (p *parser) peekN(n int) (token, error) {
	for len(p.peeked) <= n {
		t, err := p.lex.next()
		if err != nil {
			return t, err
		}
		p.peeked = append(p.peeked, t)
	}
	return p.peeked[n], nil
}

func (p *parser) take() (token, error) {
	t, err := p.peek()
	if err != nil {
		return t, err
	}
	p.peeked = p.peeked[1:]
	return t, nil
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return fmt.Errorf("%w: line %d col %d: %s", ErrSyntax, t.line, t.col, fmt.Sprintf(format, args...))
}

func (p *parser) expect(kind tokenKind, text string) (token, error) {
	t, err := p.take()
	if err != nil {
		return t, err
	}
	if t.kind != kind || (text != "" && t.text != text) {
		want := kind.String()
		if text != "" {
			want = strconv.Quote(text)
		}
		return t, p.errorf(t, "expected %s, found %q", want, t.text)
	}
	return t, nil
}

func (p *parser) isPunct(text string) bool {
	t, err := p.peek()
	return err == nil && t.kind == tokPunct && t.text == text
}

func (p *parser) skipSeparators() error {
	for p.isPunct(";") || p.isPunct(",") {
		if _, err := p.take(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseLayer() error {
	if p.isPunct("(") {
		if err := p.parseLayerMeta(); err != nil {
			return err
		}
	}
	for {
		t, err := p.peek()
		if err != nil {
			return err
		}
		if t.kind == tokEOF {
			return nil
		}
		n, err := p.parsePrim()
		if err != nil {
			return err
		}
		p.doc.AddPrim(n)
	}
}

func (p *parser) parseLayerMeta() error {
	if _, err := p.expect(tokPunct, "("); err != nil {
		return err
	}
	for {
		if err := p.skipSeparators(); err != nil {
			return err
		}
		t, err := p.take()
		if err != nil {
			return err
		}
		switch {
		case t.kind == tokPunct && t.text == ")":
			return nil
		case t.kind == tokString:
			p.doc.Meta.Doc = t.text
			continue
		case t.kind != tokIdent:
			return p.errorf(t, "unexpected %q in layer metadata", t.text)
		}
		if _, err := p.expect(tokPunct, "="); err != nil {
			return err
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return err
		}
		switch t.text {
		case "defaultPrim":
			p.doc.Meta.DefaultPrim = lit.text
		case "upAxis":
			p.doc.Meta.UpAxis = lit.text
		case "metersPerUnit":
			p.doc.Meta.MetersPerUnit = lit.num
		case "doc":
			p.doc.Meta.Doc = lit.text
		}
	}
}

func (p *parser) parsePrim() (*Node, error) {
	t, err := p.expect(tokIdent, "")
	if err != nil {
		return nil, err
	}
	spec := Specifier(t.text)
	if spec != SpecDef && spec != SpecOver && spec != SpecClass {
		return nil, p.errorf(t, "expected def, over or class, found %q", t.text)
	}
	n := &Node{Specifier: spec}
	next, err := p.take()
	if err != nil {
		return nil, err
	}
	if next.kind == tokIdent {
		n.Type = next.text
		if next, err = p.take(); err != nil {
			return nil, err
		}
	}
	if next.kind != tokString {
		return nil, p.errorf(next, "expected prim name, found %q", next.text)
	}
	n.Name = next.text
	if p.isPunct("(") {
		if err := p.parsePrimMeta(n); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokPunct, "{"); err != nil {
		return nil, err
	}
	if err := p.parseBody(n); err != nil {
		return nil, err
	}
	return n, nil
}

var listOps = map[string]bool{"prepend": true, "append": true, "add": true, "delete": true, "reorder": true}

func (p *parser) parsePrimMeta(n *Node) error {
	if _, err := p.expect(tokPunct, "("); err != nil {
		return err
	}
	for {
		if err := p.skipSeparators(); err != nil {
			return err
		}
		t, err := p.take()
		if err != nil {
			return err
		}
		if t.kind == tokPunct && t.text == ")" {
			return nil
		}
		if t.kind == tokString {
			n.Meta.Documentation = t.text
			continue
		}
		if t.kind != tokIdent {
			return p.errorf(t, "unexpected %q in prim metadata", t.text)
		}
		key := t.text
		if listOps[key] {
			kt, err := p.expect(tokIdent, "")
			if err != nil {
				return err
			}
			key = kt.text
		}
		if _, err := p.expect(tokPunct, "="); err != nil {
			return err
		}
		if key == "references" || key == "payload" || key == "inherits" || key == "specializes" {
			refs, err := p.parseReferences()
			if err != nil {
				return err
			}
			if key == "references" && t.text != "delete" {
				n.Meta.References = append(n.Meta.References, refs...)
			}
			continue
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return err
		}
		switch key {
		case "kind":
			n.Meta.Kind = lit.text
		case "instanceable":
			n.Meta.Instanceable = lit.truthy()
		case "active":
			v := lit.truthy()
			n.Meta.Active = &v
		case "apiSchemas":
			for _, it := range lit.items {
				n.AddAPI(it.text)
			}
		case "doc":
			n.Meta.Documentation = lit.text
		}
	}
}

// parseReferences accepts a single arc, a bracketed list, or None.
func (p *parser) parseReferences() ([]Reference, error) {
	if p.isPunct("[") {
		if _, err := p.take(); err != nil {
			return nil, err
		}
		var refs []Reference
		for {
			if err := p.skipSeparators(); err != nil {
				return nil, err
			}
			if p.isPunct("]") {
				_, err := p.take()
				return refs, err
			}
			r, ok, err := p.parseReference()
			if err != nil {
				return nil, err
			}
			if ok {
				refs = append(refs, r)
			}
		}
	}
	r, ok, err := p.parseReference()
	if err != nil || !ok {
		return nil, err
	}
	return []Reference{r}, nil
}

func (p *parser) parseReference() (Reference, bool, error) {
	t, err := p.take()
	if err != nil {
		return Reference{}, false, err
	}
	var r Reference
	switch t.kind {
	case tokIdent:
		if t.text == "None" {
			return r, false, nil
		}
		return r, false, p.errorf(t, "unexpected %q in reference", t.text)
	case tokPath:
		r.Path = t.text
	case tokAsset:
		r.Asset = t.text
		if nt, err := p.peek(); err == nil && nt.kind == tokPath {
			p.take()
			r.Path = nt.text
		}
	default:
		return r, false, p.errorf(t, "unexpected %q in reference", t.text)
	}
	// Layer offsets and per-arc metadata are not modeled.
	if p.isPunct("(") {
		if err := p.skipBalanced("(", ")"); err != nil {
			return r, false, err
		}
	}
	return r, true, nil
}

func (p *parser) skipBalanced(open, close string) error {
	depth := 0
	for {
		t, err := p.take()
		if err != nil {
			return err
		}
		if t.kind == tokEOF {
			return p.errorf(t, "unbalanced %s", open)
		}
		if t.kind == tokPunct {
			switch t.text {
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					return nil
				}
			}
		}
	}
}

func (p *parser) parseBody(n *Node) error {
	for {
		if err := p.skipSeparators(); err != nil {
			return err
		}
		t, err := p.peek()
		if err != nil {
			return err
		}
		if t.kind == tokPunct && t.text == "}" {
			_, err := p.take()
			return err
		}
		if t.kind != tokIdent {
			return p.errorf(t, "unexpected %q in prim body", t.text)
		}
		switch t.text {
		case "def", "over", "class":
			child, err := p.parsePrim()
			if err != nil {
				return err
			}
			n.AddChild(child)
		case "variantSet":
			if err := p.skipVariantSet(); err != nil {
				return err
			}
		default:
			if err := p.parseProperty(n); err != nil {
				return err
			}
		}
	}
}

func (p *parser) skipVariantSet() error {
	for {
		t, err := p.take()
		if err != nil {
			return err
		}
		if t.kind == tokEOF {
			return p.errorf(t, "unterminated variantSet")
		}
		if t.kind == tokPunct && t.text == "=" {
			break
		}
	}
	if !p.isPunct("{") {
		t, _ := p.peek()
		return p.errorf(t, "expected variantSet body")
	}
	return p.skipBalanced("{", "}")
}

func (p *parser) parseProperty(n *Node) error {
	var custom, uniform bool
	t, err := p.take()
	if err != nil {
		return err
	}
	for t.kind == tokIdent && (t.text == "custom" || t.text == "uniform" || t.text == "varying" || t.text == "config") {
		switch t.text {
		case "custom":
			custom = true
		case "uniform", "config":
			uniform = true
		}
		if t, err = p.take(); err != nil {
			return err
		}
	}
	if t.kind == tokIdent && listOps[t.text] {
		if t, err = p.take(); err != nil {
			return err
		}
	}
	if t.kind != tokIdent {
		return p.errorf(t, "expected property type, found %q", t.text)
	}
	if t.text == "rel" {
		return p.parseRelationship(n, custom)
	}
	typeName := t.text
	if p.isPunct("[") {
		if _, err := p.take(); err != nil {
			return err
		}
		if _, err := p.expect(tokPunct, "]"); err != nil {
			return err
		}
		typeName += "[]"
	}
	nameTok, err := p.expect(tokIdent, "")
	if err != nil {
		return err
	}
	name := nameTok.text
	switch {
	case strings.HasSuffix(name, ".connect"):
		return p.parseConnection(n, strings.TrimSuffix(name, ".connect"), typeName, custom, uniform)
	case strings.HasSuffix(name, ".timeSamples"):
		return p.parseTimeSamples(n, strings.TrimSuffix(name, ".timeSamples"), typeName, custom, uniform)
	}
	attr := n.Attr(name)
	if attr == nil {
		attr = &Attribute{Name: name}
		n.Attrs = append(n.Attrs, attr)
	}
	attr.TypeName = typeName
	attr.Custom = custom
	attr.Uniform = uniform
	if p.isPunct("=") {
		p.take()
		lit, err := p.parseLiteral()
		if err != nil {
			return err
		}
		v, err := coerce(typeName, lit)
		if err != nil {
			return p.errorf(nameTok, "%s: %v", name, err)
		}
		attr.Value = v
	}
	if p.isPunct("(") {
		return p.parseAttrMeta(attr)
	}
	return nil
}

func (p *parser) parseConnection(n *Node, name, typeName string, custom, uniform bool) error {
	if _, err := p.expect(tokPunct, "="); err != nil {
		return err
	}
	var target string
	if p.isPunct("[") {
		lit, err := p.parseLiteral()
		if err != nil {
			return err
		}
		if len(lit.items) > 0 {
			target = lit.items[0].text
		}
	} else {
		t, err := p.take()
		if err != nil {
			return err
		}
		if t.kind != tokPath && !(t.kind == tokIdent && t.text == "None") {
			return p.errorf(t, "expected connection path, found %q", t.text)
		}
		if t.kind == tokPath {
			target = t.text
		}
	}
	attr := n.Attr(name)
	if attr == nil {
		attr = &Attribute{Name: name, TypeName: typeName, Custom: custom, Uniform: uniform}
		n.Attrs = append(n.Attrs, attr)
	}
	attr.Connection = target
	if p.isPunct("(") {
		return p.parseAttrMeta(attr)
	}
	return nil
}

// parseTimeSamples keeps the earliest sample.
func (p *parser) parseTimeSamples(n *Node, name, typeName string, custom, uniform bool) error {
	if _, err := p.expect(tokPunct, "="); err != nil {
		return err
	}
	if _, err := p.expect(tokPunct, "{"); err != nil {
		return err
	}
	best := math.Inf(1)
	var value Value
	for {
		if err := p.skipSeparators(); err != nil {
			return err
		}
		if p.isPunct("}") {
			p.take()
			break
		}
		tt, err := p.expect(tokNumber, "")
		if err != nil {
			return err
		}
		if _, err := p.expect(tokPunct, ":"); err != nil {
			return err
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return err
		}
		tm, _ := strconv.ParseFloat(tt.text, 64)
		if tm < best {
			v, err := coerce(typeName, lit)
			if err != nil {
				return p.errorf(tt, "%s: %v", name, err)
			}
			best, value = tm, v
		}
	}
	attr := n.Attr(name)
	if attr == nil {
		attr = &Attribute{Name: name}
		n.Attrs = append(n.Attrs, attr)
	}
	attr.TypeName, attr.Custom, attr.Uniform = typeName, custom, uniform
	if attr.Value == nil {
		attr.Value = value
	}
	if p.isPunct("(") {
		return p.parseAttrMeta(attr)
	}
	return nil
}

func (p *parser) parseRelationship(n *Node, custom bool) error {
	nameTok, err := p.expect(tokIdent, "")
	if err != nil {
		return err
	}
	rel := &Relationship{Name: nameTok.text, Custom: custom}
	if p.isPunct("=") {
		p.take()
		lit, err := p.parseLiteral()
		if err != nil {
			return err
		}
		switch lit.kind {
		case litPath:
			rel.Targets = []string{lit.text}
		case litList:
			for _, it := range lit.items {
				if it.kind == litPath {
					rel.Targets = append(rel.Targets, it.text)
				}
			}
		}
	}
	if existing := n.Rel(rel.Name); existing != nil {
		existing.Targets = append(existing.Targets, rel.Targets...)
	} else {
		n.Rels = append(n.Rels, rel)
	}
	if p.isPunct("(") {
		return p.skipBalanced("(", ")")
	}
	return nil
}

func (p *parser) parseAttrMeta(a *Attribute) error {
	if _, err := p.expect(tokPunct, "("); err != nil {
		return err
	}
	for {
		if err := p.skipSeparators(); err != nil {
			return err
		}
		t, err := p.take()
		if err != nil {
			return err
		}
		if t.kind == tokPunct && t.text == ")" {
			return nil
		}
		if t.kind == tokString {
			continue
		}
		if t.kind != tokIdent {
			return p.errorf(t, "unexpected %q in attribute metadata", t.text)
		}
		if _, err := p.expect(tokPunct, "="); err != nil {
			return err
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return err
		}
		switch t.text {
		case "interpolation":
			a.Meta.Interpolation = lit.text
		case "colorSpace":
			a.Meta.ColorSpace = lit.text
		case "elementSize":
			a.Meta.ElementSize = int(lit.num)
		}
	}
}

type litKind int

const (
	litNone litKind = iota
	litNumber
	litString
	litAsset
	litPath
	litIdent
	litTuple
	litList
	litDict
)

type literal struct {
	kind  litKind
	text  string
	num   float64
	items []literal
}

func (l literal) truthy() bool {
	switch l.kind {
	case litNumber:
		return l.num != 0
	case litIdent:
		return l.text == "true"
	}
	return false
}

func (p *parser) parseLiteral() (literal, error) {
	t, err := p.take()
	if err != nil {
		return literal{}, err
	}
	switch t.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return literal{}, p.errorf(t, "bad number %q", t.text)
		}
		return literal{kind: litNumber, text: t.text, num: f}, nil
	case tokString:
		return literal{kind: litString, text: t.text}, nil
	case tokAsset:
		return literal{kind: litAsset, text: t.text}, nil
	case tokPath:
		return literal{kind: litPath, text: t.text}, nil
	case tokIdent:
		switch t.text {
		case "inf", "nan":
			f, _ := strconv.ParseFloat(t.text, 64)
			return literal{kind: litNumber, text: t.text, num: f}, nil
		case "None":
			return literal{kind: litNone}, nil
		}
		return literal{kind: litIdent, text: t.text}, nil
	case tokPunct:
		switch t.text {
		case "(":
			items, err := p.parseItems(")")
			return literal{kind: litTuple, items: items}, err
		case "[":
			items, err := p.parseItems("]")
			return literal{kind: litList, items: items}, err
		case "{":
			p.peeked = append([]token{t}, p.peeked...)
			if err := p.skipBalanced("{", "}"); err != nil {
				return literal{}, err
			}
			return literal{kind: litDict}, nil
		}
	}
	return literal{}, p.errorf(t, "unexpected %q in value", t.text)
}

func (p *parser) parseItems(close string) ([]literal, error) {
	var items []literal
	for {
		if p.isPunct(",") {
			p.take()
			continue
		}
		if p.isPunct(close) {
			p.take()
			return items, nil
		}
		it, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
}

func coerce(typeName string, lit literal) (Value, error) {
	if lit.kind == litNone {
		return nil, nil
	}
	base := BaseType(typeName)
	shape := shapeOf(base)
	if !IsArrayType(typeName) {
		return coerceScalar(shape, lit)
	}
	if lit.kind != litList {
		return nil, fmt.Errorf("expected array for %s", typeName)
	}
	switch shape {
	case shapeBool:
		out := make([]bool, len(lit.items))
		for i, it := range lit.items {
			out[i] = it.truthy()
		}
		return out, nil
	case shapeInt:
		out := make([]int64, len(lit.items))
		for i, it := range lit.items {
			if it.kind != litNumber {
				return nil, fmt.Errorf("expected integer, found %q", it.text)
			}
			out[i] = int64(it.num)
		}
		return out, nil
	case shapeFloat:
		out := make([]float64, len(lit.items))
		for i, it := range lit.items {
			if it.kind != litNumber {
				return nil, fmt.Errorf("expected number, found %q", it.text)
			}
			out[i] = it.num
		}
		return out, nil
	case shapeString:
		out := make([]string, len(lit.items))
		for i, it := range lit.items {
			out[i] = it.text
		}
		return out, nil
	case shapeToken:
		out := make([]Token, len(lit.items))
		for i, it := range lit.items {
			out[i] = Token(it.text)
		}
		return out, nil
	case shapeAsset:
		out := make([]Asset, len(lit.items))
		for i, it := range lit.items {
			out[i] = Asset(it.text)
		}
		return out, nil
	default:
		out := make([]Tuple, len(lit.items))
		for i, it := range lit.items {
			tp, err := toTuple(it)
			if err != nil {
				return nil, err
			}
			out[i] = tp
		}
		return out, nil
	}
}

func coerceScalar(shape valueShape, lit literal) (Value, error) {
	switch shape {
	case shapeBool:
		return lit.truthy(), nil
	case shapeInt:
		if lit.kind != litNumber {
			return nil, fmt.Errorf("expected integer, found %q", lit.text)
		}
		return int64(lit.num), nil
	case shapeFloat:
		if lit.kind != litNumber {
			return nil, fmt.Errorf("expected number, found %q", lit.text)
		}
		return lit.num, nil
	case shapeString:
		return lit.text, nil
	case shapeToken:
		return Token(lit.text), nil
	case shapeAsset:
		return Asset(lit.text), nil
	case shapeMatrix:
		tp, err := toTuple(lit)
		if err != nil {
			return nil, err
		}
		if len(tp) != 16 {
			return nil, fmt.Errorf("matrix4d needs 16 values, found %d", len(tp))
		}
		var m Matrix
		copy(m[:], tp)
		return m, nil
	case shapeTuple:
		return toTuple(lit)
	}
	switch lit.kind {
	case litNumber:
		return lit.num, nil
	case litTuple:
		return toTuple(lit)
	case litAsset:
		return Asset(lit.text), nil
	default:
		return lit.text, nil
	}
}

// toTuple flattens nested tuples, so matrices read as 16 numbers.
func toTuple(lit literal) (Tuple, error) {
	switch lit.kind {
	case litNumber:
		return Tuple{lit.num}, nil
	case litTuple:
		var out Tuple
		for _, it := range lit.items {
			sub, err := toTuple(it)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected tuple, found %q", lit.text)
}
