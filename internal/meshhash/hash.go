// Package meshhash computes the content key used to decide whether two meshes
// can share one prototype.
package meshhash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sort"
	"strings"

	"usd-instancer/internal/scene"
)

// Sum is a mesh content digest.
type Sum [sha256.Size]byte

func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

// Short returns the first 12 hex digits, for logs and names.
func (s Sum) Short() string {
	return s.String()[:12]
}

const (
	AttrPoints  = "points"
	AttrCounts  = "faceVertexCounts"
	AttrIndices = "faceVertexIndices"
	RelBinding  = "material:binding"
)

// Of hashes vertex count, face topology, positions, UV set names and bound
// material identity. Bindings are hashed by their resolved target path, so
// callers pass a normalizing resolver when paths differ between documents.
func Of(mesh *scene.Node, materialKey func(target string) string) Sum {
	h := sha256.New()
	points := tuples(mesh, AttrPoints)
	writeSection(h, "v")
	writeUint(h, uint64(len(points)))

	writeSection(h, "c")
	writeInts(h, ints(mesh, AttrCounts))
	writeSection(h, "i")
	writeInts(h, ints(mesh, AttrIndices))

	writeSection(h, "p")
	for _, p := range points {
		writeUint(h, uint64(len(p)))
		for _, f := range p {
			writeFloat(h, f)
		}
	}

	writeSection(h, "uv")
	for _, name := range UVSetNames(mesh) {
		writeString(h, name)
	}

	writeSection(h, "m")
	for _, b := range bindings(mesh, materialKey) {
		writeString(h, b)
	}

	var s Sum
	copy(s[:], h.Sum(nil))
	return s
}

// UVSetNames returns the sorted names of texture-coordinate primvars.
func UVSetNames(mesh *scene.Node) []string {
	var names []string
	for _, a := range mesh.Attrs {
		if IsUVPrimvar(a) {
			names = append(names, strings.TrimPrefix(a.Name, "primvars:"))
		}
	}
	sort.Strings(names)
	return names
}

// IsUVPrimvar reports whether a is a 2-component texture-coordinate primvar.
func IsUVPrimvar(a *scene.Attribute) bool {
	if !strings.HasPrefix(a.Name, "primvars:") || strings.HasSuffix(a.Name, ":indices") {
		return false
	}
	switch a.TypeName {
	case scene.TypeTexCoord2f, scene.TypeFloat2Array, "texCoord2d[]", "texCoord2h[]", "double2[]", "half2[]":
		return true
	}
	return false
}

func bindings(mesh *scene.Node, materialKey func(string) string) []string {
	key := func(t string) string {
		if materialKey != nil {
			return materialKey(t)
		}
		return t
	}
	var out []string
	if r := mesh.Rel(RelBinding); r != nil {
		for _, t := range r.Targets {
			out = append(out, "/:"+key(t))
		}
	}
	var subsets []string
	for _, c := range mesh.Children {
		if !c.IsA("GeomSubset") {
			continue
		}
		if r := c.Rel(RelBinding); r != nil {
			for _, t := range r.Targets {
				subsets = append(subsets, c.Name+":"+key(t))
			}
		}
	}
	sort.Strings(subsets)
	return append(out, subsets...)
}

func tuples(n *scene.Node, name string) []scene.Tuple {
	if a := n.Attr(name); a != nil {
		v, _ := a.Tuples()
		return v
	}
	return nil
}

func ints(n *scene.Node, name string) []int64 {
	if a := n.Attr(name); a != nil {
		v, _ := a.Ints()
		return v
	}
	return nil
}

func writeSection(h hash.Hash, tag string) {
	h.Write([]byte{0xff})
	h.Write([]byte(tag))
}

func writeUint(h hash.Hash, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	h.Write(b[:])
}

func writeInts(h hash.Hash, vs []int64) {
	writeUint(h, uint64(len(vs)))
	for _, v := range vs {
		writeUint(h, uint64(v))
	}
}

func writeFloat(h hash.Hash, f float64) {
	if f == 0 {
		f = 0 // folds -0 into +0
	}
	writeUint(h, math.Float64bits(f))
}

func writeString(h hash.Hash, s string) {
	writeUint(h, uint64(len(s)))
	h.Write([]byte(s))
}

// Combine folds several digests, in order, into one. It is used for owners
// holding more than one mesh.
func Combine(sums ...Sum) Sum {
	if len(sums) == 1 {
		return sums[0]
	}
	h := sha256.New()
	writeSection(h, "set")
	writeUint(h, uint64(len(sums)))
	for _, s := range sums {
		h.Write(s[:])
	}
	var out Sum
	copy(out[:], h.Sum(nil))
	return out
}

// FaceCount returns the number of faces of mesh.
func FaceCount(mesh *scene.Node) int {
	return len(ints(mesh, AttrCounts))
}
