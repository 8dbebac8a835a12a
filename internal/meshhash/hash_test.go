package meshhash_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"usd-instancer/internal/meshhash"
	"usd-instancer/internal/scene"
)

func quad(material string) *scene.Node {
	m := scene.NewNode("Quad", "Mesh")
	m.Set("faceVertexCounts", scene.TypeIntArray, []int64{4})
	m.Set("faceVertexIndices", scene.TypeIntArray, []int64{0, 1, 2, 3})
	m.Set("points", scene.TypePoint3f, []scene.Tuple{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}})
	m.Set("primvars:st", scene.TypeTexCoord2f, []scene.Tuple{{0, 0}, {1, 0}, {1, 1}, {0, 1}})
	if material != "" {
		m.SetRel("material:binding", material)
	}
	return m
}

func TestIdenticalMeshesHashEqual(t *testing.T) {
	a, b := quad("/Looks/A"), quad("/Looks/A")
	b.Name = "Other"
	assert.Equal(t, meshhash.Of(a, nil), meshhash.Of(b, nil))
}

func TestEachInputChangesHash(t *testing.T) {
	base := meshhash.Of(quad("/Looks/A"), nil)
	tests := []struct {
		name   string
		mutate func(*scene.Node)
	}{
		{"position", func(m *scene.Node) {
			pts, _ := m.Attr("points").Tuples()
			pts[2][2] = 0.001
		}},
		{"vertex count", func(m *scene.Node) {
			pts, _ := m.Attr("points").Tuples()
			m.Set("points", scene.TypePoint3f, append(pts, scene.Tuple{0, 0, 1}))
		}},
		{"topology", func(m *scene.Node) {
			m.Set("faceVertexIndices", scene.TypeIntArray, []int64{0, 2, 1, 3})
		}},
		{"uv set name", func(m *scene.Node) {
			m.Attr("primvars:st").Name = "primvars:UVMap"
		}},
		{"material", func(m *scene.Node) {
			m.SetRel("material:binding", "/Looks/B")
		}},
		{"subset material", func(m *scene.Node) {
			s := m.AddChild(scene.NewNode("side", "GeomSubset"))
			s.SetRel("material:binding", "/Looks/C")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := quad("/Looks/A")
			tt.mutate(m)
			assert.NotEqual(t, base, meshhash.Of(m, nil))
		})
	}
}

func TestMaterialKeyNormalizesPaths(t *testing.T) {
	byName := func(p string) string { return scene.BaseName(p) }
	a := meshhash.Of(quad("/root/_materials/Wood"), byName)
	b := meshhash.Of(quad("/other/Looks/Wood"), byName)
	assert.Equal(t, a, b)
}

func TestNegativeZeroFolds(t *testing.T) {
	a := quad("")
	b := quad("")
	pts, _ := b.Attr("points").Tuples()
	pts[0][0] = negZero()
	assert.Equal(t, meshhash.Of(a, nil), meshhash.Of(b, nil))
}

func negZero() float64 {
	z := 0.0
	return -z
}

func TestUVSetNames(t *testing.T) {
	m := quad("")
	m.Set("primvars:UVMap", scene.TypeFloat2Array, []scene.Tuple{{0, 0}})
	m.Set("primvars:displayColor", scene.TypeColor3fArray, []scene.Tuple{{1, 1, 1}})
	assert.Equal(t, []string{"UVMap", "st"}, meshhash.UVSetNames(m))
}

func TestCombine(t *testing.T) {
	a := meshhash.Of(quad(""), nil)
	b := meshhash.Of(quad("/Looks/B"), nil)

	assert.Equal(t, a, meshhash.Combine(a))
	assert.Equal(t, meshhash.Combine(a, b), meshhash.Combine(a, b))
	assert.NotEqual(t, meshhash.Combine(a, b), meshhash.Combine(b, a))
	assert.NotEqual(t, a, meshhash.Combine(a, a))
}

func TestFaceCount(t *testing.T) {
	assert.Equal(t, 1, meshhash.FaceCount(quad("")))
	assert.Equal(t, 0, meshhash.FaceCount(scene.NewNode("Empty", "Mesh")))
}
