package scene

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var binaryMagic = []byte("SCNB")

const binaryVersion uint16 = 1

const (
	tagNil byte = iota
	tagBool
	tagInt
	tagFloat
	tagString
	tagToken
	tagAsset
	tagTuple
	tagMatrix
	tagBoolArray
	tagIntArray
	tagFloatArray
	tagStringArray
	tagTokenArray
	tagAssetArray
	tagTupleArray
)

const (
	flagCustom byte = 1 << iota
	flagUniform
)

// WriteBinary serializes doc in the binary container layout.
func WriteBinary(w io.Writer, doc *Document) error {
	bw := &binWriter{w: bufio.NewWriter(w)}
	bw.raw(binaryMagic)
	bw.u16(binaryVersion)
	bw.str(doc.Meta.DefaultPrim)
	bw.str(doc.Meta.UpAxis)
	bw.f64(doc.Meta.MetersPerUnit)
	bw.str(doc.Meta.Doc)
	prims := doc.Prims()
	bw.uvarint(uint64(len(prims)))
	for _, p := range prims {
		bw.node(p)
	}
	if bw.err != nil {
		return fmt.Errorf("scene: write binary: %w", bw.err)
	}
	return bw.w.Flush()
}

type binWriter struct {
	w   *bufio.Writer
	err error
	buf [binary.MaxVarintLen64]byte
}

func (b *binWriter) raw(p []byte) {
	if b.err == nil {
		_, b.err = b.w.Write(p)
	}
}

func (b *binWriter) u8(v byte) {
	if b.err == nil {
		b.err = b.w.WriteByte(v)
	}
}

func (b *binWriter) u16(v uint16) {
	binary.LittleEndian.PutUint16(b.buf[:2], v)
	b.raw(b.buf[:2])
}

func (b *binWriter) uvarint(v uint64) {
	n := binary.PutUvarint(b.buf[:], v)
	b.raw(b.buf[:n])
}

func (b *binWriter) varint(v int64) {
	n := binary.PutVarint(b.buf[:], v)
	b.raw(b.buf[:n])
}

func (b *binWriter) f64(v float64) {
	binary.LittleEndian.PutUint64(b.buf[:8], math.Float64bits(v))
	b.raw(b.buf[:8])
}

func (b *binWriter) str(s string) {
	b.uvarint(uint64(len(s)))
	if b.err == nil {
		_, b.err = b.w.WriteString(s)
	}
}

func (b *binWriter) strs(ss []string) {
	b.uvarint(uint64(len(ss)))
	for _, s := range ss {
		b.str(s)
	}
}

func (b *binWriter) floats(fs []float64) {
	b.uvarint(uint64(len(fs)))
	for _, f := range fs {
		b.f64(f)
	}
}

func (b *binWriter) node(n *Node) {
	b.str(string(n.Specifier))
	b.str(n.Type)
	b.str(n.Name)
	b.str(n.Meta.Kind)
	var flags byte
	if n.Meta.Instanceable {
		flags |= 1
	}
	if n.Meta.Active != nil {
		flags |= 2
		if *n.Meta.Active {
			flags |= 4
		}
	}
	b.u8(flags)
	b.strs(n.Meta.APISchemas)
	b.uvarint(uint64(len(n.Meta.References)))
	for _, r := range n.Meta.References {
		b.str(r.Asset)
		b.str(r.Path)
	}
	b.str(n.Meta.Documentation)

	b.uvarint(uint64(len(n.Attrs)))
	for _, a := range n.Attrs {
		b.str(a.Name)
		b.str(a.TypeName)
		var af byte
		if a.Custom {
			af |= flagCustom
		}
		if a.Uniform {
			af |= flagUniform
		}
		b.u8(af)
		b.str(a.Connection)
		b.str(a.Meta.Interpolation)
		b.str(a.Meta.ColorSpace)
		b.uvarint(uint64(a.Meta.ElementSize))
		b.value(a.Value)
	}
	b.uvarint(uint64(len(n.Rels)))
	for _, r := range n.Rels {
		b.str(r.Name)
		if r.Custom {
			b.u8(flagCustom)
		} else {
			b.u8(0)
		}
		b.strs(r.Targets)
	}
	b.uvarint(uint64(len(n.Children)))
	for _, c := range n.Children {
		b.node(c)
	}
}

func (b *binWriter) value(v Value) {
	switch x := v.(type) {
	case nil:
		b.u8(tagNil)
	case bool:
		b.u8(tagBool)
		if x {
			b.u8(1)
		} else {
			b.u8(0)
		}
	case int64:
		b.u8(tagInt)
		b.varint(x)
	case float64:
		b.u8(tagFloat)
		b.f64(x)
	case string:
		b.u8(tagString)
		b.str(x)
	case Token:
		b.u8(tagToken)
		b.str(string(x))
	case Asset:
		b.u8(tagAsset)
		b.str(string(x))
	case Tuple:
		b.u8(tagTuple)
		b.floats(x)
	case Matrix:
		b.u8(tagMatrix)
		for _, f := range x {
			b.f64(f)
		}
	case []bool:
		b.u8(tagBoolArray)
		b.uvarint(uint64(len(x)))
		for _, e := range x {
			if e {
				b.u8(1)
			} else {
				b.u8(0)
			}
		}
	case []int64:
		b.u8(tagIntArray)
		b.uvarint(uint64(len(x)))
		for _, e := range x {
			b.varint(e)
		}
	case []float64:
		b.u8(tagFloatArray)
		b.floats(x)
	case []string:
		b.u8(tagStringArray)
		b.strs(x)
	case []Token:
		b.u8(tagTokenArray)
		b.uvarint(uint64(len(x)))
		for _, e := range x {
			b.str(string(e))
		}
	case []Asset:
		b.u8(tagAssetArray)
		b.uvarint(uint64(len(x)))
		for _, e := range x {
			b.str(string(e))
		}
	case []Tuple:
		b.u8(tagTupleArray)
		b.uvarint(uint64(len(x)))
		for _, e := range x {
			b.floats(e)
		}
	default:
		if b.err == nil {
			b.err = fmt.Errorf("unsupported value type %T", v)
		}
	}
}

var errTruncated = errors.New("truncated data")

// ParseBinary decodes a binary container.
func ParseBinary(data []byte) (*Document, error) {
	if len(data) < len(binaryMagic)+2 || string(data[:len(binaryMagic)]) != string(binaryMagic) {
		return nil, fmt.Errorf("%w: bad binary header", ErrUnsupportedFormat)
	}
	r := &binReader{data: data, off: len(binaryMagic)}
	if v := r.u16(); v != binaryVersion {
		return nil, fmt.Errorf("%w: binary version %d", ErrUnsupportedFormat, v)
	}
	doc := New()
	doc.Meta.DefaultPrim = r.str()
	doc.Meta.UpAxis = r.str()
	doc.Meta.MetersPerUnit = r.f64()
	doc.Meta.Doc = r.str()
	count := r.count()
	for i := 0; i < count && r.err == nil; i++ {
		doc.AddPrim(r.node(0))
	}
	if r.err != nil {
		return nil, fmt.Errorf("scene: read binary at offset %d: %w", r.off, r.err)
	}
	return doc, nil
}

type binReader struct {
	data []byte
	off  int
	err  error
}

const maxDepth = 512

func (r *binReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *binReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.fail(errTruncated)
		return false
	}
	return true
}

func (r *binReader) u8() byte {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *binReader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *binReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.data[r.off:])
	if n <= 0 {
		r.fail(errTruncated)
		return 0
	}
	r.off += n
	return v
}

func (r *binReader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.data[r.off:])
	if n <= 0 {
		r.fail(errTruncated)
		return 0
	}
	r.off += n
	return v
}

// count reads a length prefix and bounds it by the remaining bytes.
func (r *binReader) count() int {
	v := r.uvarint()
	if v > uint64(len(r.data)-r.off) {
		r.fail(errTruncated)
		return 0
	}
	return int(v)
}

func (r *binReader) f64() float64 {
	if !r.need(8) {
		return 0
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.data[r.off:]))
	r.off += 8
	return v
}

func (r *binReader) str() string {
	n := r.count()
	if !r.need(n) {
		return ""
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s
}

func (r *binReader) strs() []string {
	n := r.count()
	if n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.str())
	}
	return out
}

func (r *binReader) floats() []float64 {
	n := r.count()
	out := make([]float64, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.f64())
	}
	return out
}

func (r *binReader) node(depth int) *Node {
	if depth > maxDepth {
		r.fail(errors.New("prim nesting too deep"))
		return &Node{}
	}
	n := &Node{}
	n.Specifier = Specifier(r.str())
	n.Type = r.str()
	n.Name = r.str()
	n.Meta.Kind = r.str()
	flags := r.u8()
	n.Meta.Instanceable = flags&1 != 0
	if flags&2 != 0 {
		active := flags&4 != 0
		n.Meta.Active = &active
	}
	n.Meta.APISchemas = r.strs()
	refs := r.count()
	for i := 0; i < refs && r.err == nil; i++ {
		n.Meta.References = append(n.Meta.References, Reference{Asset: r.str(), Path: r.str()})
	}
	n.Meta.Documentation = r.str()

	attrs := r.count()
	for i := 0; i < attrs && r.err == nil; i++ {
		a := &Attribute{Name: r.str(), TypeName: r.str()}
		af := r.u8()
		a.Custom = af&flagCustom != 0
		a.Uniform = af&flagUniform != 0
		a.Connection = r.str()
		a.Meta.Interpolation = r.str()
		a.Meta.ColorSpace = r.str()
		a.Meta.ElementSize = int(r.uvarint())
		a.Value = r.value()
		n.Attrs = append(n.Attrs, a)
	}
	rels := r.count()
	for i := 0; i < rels && r.err == nil; i++ {
		rel := &Relationship{Name: r.str()}
		rel.Custom = r.u8()&flagCustom != 0
		rel.Targets = r.strs()
		n.Rels = append(n.Rels, rel)
	}
	children := r.count()
	for i := 0; i < children && r.err == nil; i++ {
		n.AddChild(r.node(depth + 1))
	}
	return n
}

func (r *binReader) value() Value {
	switch tag := r.u8(); tag {
	case tagNil:
		return nil
	case tagBool:
		return r.u8() != 0
	case tagInt:
		return r.varint()
	case tagFloat:
		return r.f64()
	case tagString:
		return r.str()
	case tagToken:
		return Token(r.str())
	case tagAsset:
		return Asset(r.str())
	case tagTuple:
		return Tuple(r.floats())
	case tagMatrix:
		var m Matrix
		for i := range m {
			m[i] = r.f64()
		}
		return m
	case tagBoolArray:
		n := r.count()
		out := make([]bool, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			out = append(out, r.u8() != 0)
		}
		return out
	case tagIntArray:
		n := r.count()
		out := make([]int64, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			out = append(out, r.varint())
		}
		return out
	case tagFloatArray:
		return r.floats()
	case tagStringArray:
		return r.strs()
	case tagTokenArray:
		n := r.count()
		out := make([]Token, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			out = append(out, Token(r.str()))
		}
		return out
	case tagAssetArray:
		n := r.count()
		out := make([]Asset, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			out = append(out, Asset(r.str()))
		}
		return out
	case tagTupleArray:
		n := r.count()
		out := make([]Tuple, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			out = append(out, Tuple(r.floats()))
		}
		return out
	default:
		r.fail(fmt.Errorf("unknown value tag %d", tag))
		return nil
	}
}
