package scene

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Write serializes doc as a text document.
func Write(w io.Writer, doc *Document) error {
	bw := bufio.NewWriter(w)
	tw := &textWriter{w: bw}
	tw.layer(doc)
	if tw.err != nil {
		return tw.err
	}
	return bw.Flush()
}

// Format returns the text form of doc.
func Format(doc *Document) string {
	var b strings.Builder
	_ = Write(&b, doc)
	return b.String()
}

type textWriter struct {
	w   *bufio.Writer
	err error
}

func (t *textWriter) printf(indent int, format string, args ...any) {
	if t.err != nil {
		return
	}
	if _, err := t.w.WriteString(strings.Repeat("    ", indent)); err != nil {
		t.err = err
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

func (t *textWriter) layer(doc *Document) {
	t.printf(0, "%s 1.0\n", textHeader)
	var meta []string
	if doc.Meta.Doc != "" {
		meta = append(meta, "doc = "+quote(doc.Meta.Doc))
	}
	if doc.Meta.DefaultPrim != "" {
		meta = append(meta, "defaultPrim = "+quote(doc.Meta.DefaultPrim))
	}
	if doc.Meta.MetersPerUnit != 0 {
		meta = append(meta, "metersPerUnit = "+formatFloat(doc.Meta.MetersPerUnit))
	}
	if doc.Meta.UpAxis != "" {
		meta = append(meta, "upAxis = "+quote(doc.Meta.UpAxis))
	}
	if len(meta) > 0 {
		t.printf(0, "(\n")
		for _, m := range meta {
			t.printf(1, "%s\n", m)
		}
		t.printf(0, ")\n")
	}
	for _, p := range doc.Prims() {
		t.printf(0, "\n")
		t.prim(p, 0)
	}
}

func (t *textWriter) prim(n *Node, indent int) {
	spec := n.Specifier
	if spec == "" {
		spec = SpecDef
	}
	head := string(spec)
	if n.Type != "" {
		head += " " + n.Type
	}
	t.printf(indent, "%s %s", head, quote(n.Name))
	if meta := primMeta(n); len(meta) > 0 {
		t.printf(0, " (\n")
		for _, m := range meta {
			t.printf(indent+1, "%s\n", m)
		}
		t.printf(indent, ")\n")
	} else {
		t.printf(0, "\n")
	}
	t.printf(indent, "{\n")
	for _, a := range n.Attrs {
		t.attr(a, indent+1)
	}
	for _, r := range n.Rels {
		t.rel(r, indent+1)
	}
	for i, c := range n.Children {
		if i > 0 || len(n.Attrs)+len(n.Rels) > 0 {
			t.printf(0, "\n")
		}
		t.prim(c, indent+1)
	}
	t.printf(indent, "}\n")
}

func primMeta(n *Node) []string {
	var meta []string
	if n.Meta.Documentation != "" {
		meta = append(meta, "doc = "+quote(n.Meta.Documentation))
	}
	if n.Meta.Active != nil {
		meta = append(meta, "active = "+strconv.FormatBool(*n.Meta.Active))
	}
	if len(n.Meta.APISchemas) > 0 {
		items := make([]string, len(n.Meta.APISchemas))
		for i, s := range n.Meta.APISchemas {
			items[i] = quote(s)
		}
		meta = append(meta, "prepend apiSchemas = ["+strings.Join(items, ", ")+"]")
	}
	if n.Meta.Instanceable {
		meta = append(meta, "instanceable = true")
	}
	if n.Meta.Kind != "" {
		meta = append(meta, "kind = "+quote(n.Meta.Kind))
	}
	switch len(n.Meta.References) {
	case 0:
	case 1:
		meta = append(meta, "prepend references = "+formatReference(n.Meta.References[0]))
	default:
		items := make([]string, len(n.Meta.References))
		for i, r := range n.Meta.References {
			items[i] = formatReference(r)
		}
		meta = append(meta, "prepend references = ["+strings.Join(items, ", ")+"]")
	}
	return meta
}

func formatReference(r Reference) string {
	var s string
	if r.Asset != "" {
		s = "@" + r.Asset + "@"
	}
	if r.Path != "" {
		s += "<" + r.Path + ">"
	}
	return s
}

func (t *textWriter) attr(a *Attribute, indent int) {
	var head strings.Builder
	if a.Custom {
		head.WriteString("custom ")
	}
	if a.Uniform {
		head.WriteString("uniform ")
	}
	head.WriteString(a.TypeName)
	head.WriteByte(' ')
	head.WriteString(a.Name)

	if a.Value != nil || a.Connection == "" {
		line := head.String()
		if a.Value != nil {
			line += " = " + FormatValue(a.Value)
		}
		t.printf(indent, "%s", line)
		t.attrMeta(a, indent)
	}
	if a.Connection != "" {
		t.printf(indent, "%s.connect = <%s>\n", head.String(), a.Connection)
	}
}

func (t *textWriter) attrMeta(a *Attribute, indent int) {
	var meta []string
	if a.Meta.ColorSpace != "" {
		meta = append(meta, "colorSpace = "+quote(a.Meta.ColorSpace))
	}
	if a.Meta.ElementSize > 0 {
		meta = append(meta, "elementSize = "+strconv.Itoa(a.Meta.ElementSize))
	}
	if a.Meta.Interpolation != "" {
		meta = append(meta, "interpolation = "+quote(a.Meta.Interpolation))
	}
	if len(meta) == 0 {
		t.printf(0, "\n")
		return
	}
	t.printf(0, " (\n")
	for _, m := range meta {
		t.printf(indent+1, "%s\n", m)
	}
	t.printf(indent, ")\n")
}

func (t *textWriter) rel(r *Relationship, indent int) {
	prefix := ""
	if r.Custom {
		prefix = "custom "
	}
	switch len(r.Targets) {
	case 0:
		t.printf(indent, "%srel %s\n", prefix, r.Name)
	case 1:
		t.printf(indent, "%srel %s = <%s>\n", prefix, r.Name, r.Targets[0])
	default:
		items := make([]string, len(r.Targets))
		for i, p := range r.Targets {
			items[i] = "<" + p + ">"
		}
		t.printf(indent, "%srel %s = [%s]\n", prefix, r.Name, strings.Join(items, ", "))
	}
}

// FormatValue renders a value in text syntax.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case string:
		return quote(x)
	case Token:
		return quote(string(x))
	case Asset:
		return "@" + string(x) + "@"
	case Tuple:
		return formatTuple(x)
	case Matrix:
		rows := make([]string, 4)
		for r := 0; r < 4; r++ {
			rows[r] = formatTuple(Tuple(x[r*4 : r*4+4]))
		}
		return "( " + strings.Join(rows, ", ") + " )"
	case []bool:
		return formatList(len(x), func(i int) string { return FormatValue(x[i]) })
	case []int64:
		return formatList(len(x), func(i int) string { return strconv.FormatInt(x[i], 10) })
	case []float64:
		return formatList(len(x), func(i int) string { return formatFloat(x[i]) })
	case []string:
		return formatList(len(x), func(i int) string { return quote(x[i]) })
	case []Token:
		return formatList(len(x), func(i int) string { return quote(string(x[i])) })
	case []Asset:
		return formatList(len(x), func(i int) string { return "@" + string(x[i]) + "@" })
	case []Tuple:
		return formatList(len(x), func(i int) string { return formatTuple(x[i]) })
	}
	return quote(fmt.Sprint(v))
}

func formatList(n int, item func(int) string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(item(i))
	}
	b.WriteByte(']')
	return b.String()
}

func formatTuple(t Tuple) string {
	parts := make([]string, len(t))
	for i, f := range t {
		parts[i] = formatFloat(f)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func quote(s string) string {
	return strconv.Quote(s)
}
