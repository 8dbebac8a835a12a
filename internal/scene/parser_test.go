package scene

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usd-instancer/internal/mathutil"
)

const sampleDoc = `#usda 1.0
(
    defaultPrim = "root"
    metersPerUnit = 1
    upAxis = "Z"
    customLayerData = {
        string creator = "Blender v4.1"
    }
)

def Xform "root" (
    customData = {
        dictionary Blender = {
            bool generated = 1
        }
    }
)
{
    def Xform "Tree_001" (
        instanceable = true
        prepend references = </root/prototypes/Tree>
    )
    {
        float3 xformOp:translate = (1, 2, 3)
        float3 xformOp:rotateXYZ = (0, 0, 90)
        uniform token[] xformOpOrder = ["xformOp:translate", "xformOp:rotateXYZ"]
        custom string userProperties:blender:object_name = "Tree.001"
    }

    def Mesh "Ground" (
        prepend apiSchemas = ["MaterialBindingAPI"]
    )
    {
        int[] faceVertexCounts = [4]
        int[] faceVertexIndices = [0, 1, 2, 3]
        point3f[] points = [(-1, -1, 0), (1, -1, 0), (1, 1, 0), (-1, 1, 0)]
        float2[] primvars:UVMap = [(0, 0), (1, 0), (1, 1), (0, 1)] (
            interpolation = "faceVarying"
        )
        rel material:binding = </root/_materials/Grass>
        double3 xformOp:translate.timeSamples = {
            10: (0, 0, 5),
            1: (0, 0, 1),
        }
    }

    def Scope "_materials"
    {
        def Material "Grass"
        {
            token outputs:surface.connect = </root/_materials/Grass/Principled_BSDF.outputs:surface>

            def Shader "Principled_BSDF"
            {
                uniform token info:id = "UsdPreviewSurface"
                color3f inputs:diffuseColor = (0.1, 0.6, 0.2)
                float inputs:roughness = 0.75
                token outputs:surface
            }
        }
    }
}
`

func TestParseSample(t *testing.T) {
	doc, err := Parse(sampleDoc)
	require.NoError(t, err)

	assert.Equal(t, "root", doc.Meta.DefaultPrim)
	assert.Equal(t, "Z", doc.UpAxis())
	assert.Equal(t, 1.0, doc.Meta.MetersPerUnit)

	tree := doc.Find("/root/Tree_001")
	require.NotNil(t, tree)
	assert.True(t, tree.Meta.Instanceable)
	require.Len(t, tree.Meta.References, 1)
	assert.True(t, tree.Meta.References[0].Internal())
	assert.Equal(t, "/root/prototypes/Tree", tree.Meta.References[0].Path)
	assert.Equal(t, "Tree.001", tree.String("userProperties:blender:object_name"))
	assert.True(t, tree.Attr("userProperties:blender:object_name").Custom)

	ground := doc.Find("/root/Ground")
	require.NotNil(t, ground)
	assert.True(t, ground.HasAPI("MaterialBindingAPI"))
	counts, ok := ground.Attr("faceVertexCounts").Ints()
	require.True(t, ok)
	assert.Equal(t, []int64{4}, counts)
	uv := ground.Attr("primvars:UVMap")
	assert.Equal(t, "faceVarying", uv.Meta.Interpolation)
	assert.Equal(t, TypeFloat2Array, uv.TypeName)
	assert.Equal(t, []string{"/root/_materials/Grass"}, ground.Rel("material:binding").Targets)
	ts, ok := ground.Attr(OpTranslate).Tuple()
	require.True(t, ok)
	assert.Equal(t, Tuple{0, 0, 1}, ts, "earliest time sample wins")

	mat := doc.Find("/root/_materials/Grass")
	require.NotNil(t, mat)
	assert.Equal(t, "/root/_materials/Grass/Principled_BSDF.outputs:surface", mat.Attr("outputs:surface").Connection)
	shader := mat.Child("Principled_BSDF")
	assert.Equal(t, "UsdPreviewSurface", shader.String("info:id"))
	assert.Nil(t, shader.Attr("outputs:surface").Value)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing header", `def Xform "a" {}`},
		{"unterminated prim", "#usda 1.0\ndef Xform \"a\" {"},
		{"bad specifier", "#usda 1.0\nmake Xform \"a\" {}"},
		{"array expected", "#usda 1.0\ndef Mesh \"m\" {\n int[] faceVertexCounts = 4\n}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSyntax), "got %v", err)
		})
	}
}

func TestParseByteOrderMark(t *testing.T) {
	doc, err := Parse("\ufeff" + sampleDoc)
	require.NoError(t, err)
	assert.Equal(t, "root", doc.Meta.DefaultPrim)
	assert.NotNil(t, doc.Find("/root"))
}

func TestTextAndBinaryRoundTrip(t *testing.T) {
	doc, err := Parse(sampleDoc)
	require.NoError(t, err)

	again, err := Parse(Format(doc))
	require.NoError(t, err)
	assert.Equal(t, Format(doc), Format(again))

	var buf bytes.Buffer
	require.NoError(t, WriteBinary(&buf, doc))
	enc, err := Sniff(buf.Bytes()[:16])
	require.NoError(t, err)
	assert.Equal(t, EncodingBinary, enc)

	fromBinary, err := ParseBinary(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, Format(doc), Format(fromBinary))
}

func TestParseBinaryTruncated(t *testing.T) {
	doc, err := Parse(sampleDoc)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteBinary(&buf, doc))

	_, err = ParseBinary(buf.Bytes()[:buf.Len()/2])
	assert.Error(t, err)
}

func TestSniff(t *testing.T) {
	enc, err := Sniff([]byte("\n#usda 1.0\n"))
	require.NoError(t, err)
	assert.Equal(t, EncodingText, enc)

	_, err = Sniff([]byte("PXR-USDC\x00\x00"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Sniff([]byte{0x89, 'P', 'N', 'G'})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWorldTransform(t *testing.T) {
	doc, err := Parse(sampleDoc)
	require.NoError(t, err)

	world := WorldTransform(doc.Find("/root/Tree_001"))
	p := world.MulPoint(mathutil.Vec3{1, 0, 0})
	assert.InDeltaSlice(t, []float64{1, 3, 3}, p[:], 1e-9)
}

func TestSetTRSRoundTrip(t *testing.T) {
	n := NewNode("x", "Xform")
	want := mathutil.Compose(mathutil.Vec3{1, 2, 3}, mathutil.EulerToQuat(0.4, 0.1, -0.3), mathutil.Vec3{2, 2, 0.5})
	SetMatrix(n, want)
	got, reset := LocalTransform(n)
	assert.False(t, reset)
	assert.True(t, got.ApproxEqual(want, 1e-9))

	SetTRS(n, mathutil.Vec3{}, mathutil.QuatIdentity(), mathutil.Vec3{1, 1, 1})
	assert.Nil(t, n.Attr(OpOrder))
}

func TestResetXformStack(t *testing.T) {
	doc := New()
	parent := doc.AddPrim(NewNode("p", "Xform"))
	parent.Set(OpTranslate, TypeDouble3, Tuple{10, 0, 0})
	parent.Set(OpOrder, TypeTokenArray, []Token{OpTranslate})
	child := parent.AddChild(NewNode("c", "Xform"))
	child.Set(OpTranslate, TypeDouble3, Tuple{0, 1, 0})
	child.Set(OpOrder, TypeTokenArray, []Token{resetStack, OpTranslate})

	assert.Equal(t, mathutil.Vec3{0, 1, 0}, WorldTransform(child).Translation())
}

func TestCloneIsIndependent(t *testing.T) {
	doc, err := Parse(sampleDoc)
	require.NoError(t, err)
	src := doc.Find("/root/Ground")

	c := Clone(src)
	assert.Nil(t, c.Parent)
	assert.Equal(t, "/Ground", c.Path())
	pts, _ := c.Attr("points").Tuples()
	pts[0][0] = 99
	c.Meta.APISchemas[0] = "Changed"
	c.Rel("material:binding").Targets[0] = "/elsewhere"

	orig, _ := src.Attr("points").Tuples()
	assert.Equal(t, -1.0, orig[0][0])
	assert.Equal(t, "MaterialBindingAPI", src.Meta.APISchemas[0])
	assert.Equal(t, "/root/_materials/Grass", src.Rel("material:binding").Targets[0])
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "/a/b", ParentPath("/a/b/c"))
	assert.Equal(t, "/", ParentPath("/a"))
	assert.Equal(t, "c", BaseName("/a/b/c"))
	assert.True(t, HasPathPrefix("/a/b", "/a"))
	assert.False(t, HasPathPrefix("/ab", "/a"))
	got, ok := ReplacePathPrefix("/a/b/c", "/a/b", "/x")
	assert.True(t, ok)
	assert.Equal(t, "/x/c", got)
	prim, prop := SplitProperty("/a/b.outputs:rgb")
	assert.Equal(t, "/a/b", prim)
	assert.Equal(t, "outputs:rgb", prop)
	assert.Equal(t, "/a/b/c", JoinPath("/a", "b", "c"))
}
