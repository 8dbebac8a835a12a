package emit

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usd-instancer/internal/collect"
	"usd-instancer/internal/config"
	"usd-instancer/internal/convert"
	"usd-instancer/internal/logging"
	"usd-instancer/internal/material"
	"usd-instancer/internal/report"
	"usd-instancer/internal/scene"
	st "usd-instancer/internal/scene/scenetest"
	"usd-instancer/internal/texture"
)

const bark = "/root/_materials/Bark"

func yard(name string, offset float64, xs ...float64) string {
	body := []string{st.Quad("Ground", 1, "")}
	for i, x := range xs {
		body = append(body, st.Instance(name+"_inst"+string(rune('0'+i)), "/root/prototypes/Tree__938870308", [3]float64{x, 0, 0}))
	}
	return st.Xform(name, [3]float64{offset, 0, 0}, body...)
}

func forwardDoc(material string, anchors ...string) string {
	body := append([]string{}, anchors...)
	body = append(body,
		st.Scope("prototypes", st.Xform("Tree__938870308", [3]float64{}, st.Quad("TreeMesh", 2, bark))),
		st.Scope("_materials", material),
	)
	return st.Doc(st.Xform("root", [3]float64{}, body...))
}

func convertDoc(t *testing.T, src string, external bool) *convert.Output {
	t.Helper()
	m, err := collect.Collect(st.Parse(t, src), collect.Options{})
	require.NoError(t, err)
	return convert.Convert(m, convert.Options{UseExternalReferences: external})
}

func readDoc(t *testing.T, path string) *scene.Document {
	t.Helper()
	doc, err := scene.ReadFile(path)
	require.NoError(t, err)
	return doc
}

// assertNoSourcePaths fails when any relationship or connection still
// points into the source document's namespace.
func assertNoSourcePaths(t *testing.T, doc *scene.Document) {
	t.Helper()
	doc.Walk(func(n *scene.Node) bool {
		for _, r := range n.Rels {
			for _, target := range r.Targets {
				assert.True(t, strings.HasPrefix(target, "/Root"), "%s.%s -> %s", n.Path(), r.Name, target)
			}
		}
		for _, a := range n.Attrs {
			if a.Connection != "" {
				assert.True(t, strings.HasPrefix(a.Connection, "/"+rootName) || strings.HasPrefix(a.Connection, "/Looks"),
					"%s.%s -> %s", n.Path(), a.Name, a.Connection)
			}
		}
		return true
	})
}

func TestEmitInlineInstancer(t *testing.T) {
	out := convertDoc(t, forwardDoc(st.PreviewMaterial(bark, 0.4, 0.3, 0.2), yard("Yard", 10, 0, 1, 2, 3, 4)), false)
	dir := t.TempDir()
	target := filepath.Join(dir, "scene.usda")

	res, err := Emit(context.Background(), out, Options{OutputPath: target})
	require.NoError(t, err)
	assert.Equal(t, target, res.Output)
	assert.Empty(t, res.ExternalFiles)

	doc := readDoc(t, target)
	assert.Equal(t, rootName, doc.Meta.DefaultPrim)
	assertNoSourcePaths(t, doc)

	pi := doc.Find("/Root/Yard/Tree_instancer")
	require.NotNil(t, pi)
	assert.Equal(t, collect.TypeInstancer, pi.Type)
	positions, ok := pi.Attr("positions").Tuples()
	require.True(t, ok)
	assert.Len(t, positions, 4)
	orientations, ok := pi.Attr("orientations").Tuples()
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{1, 0, 0, 0}, []float64(orientations[0]), 1e-6)
	indices, ok := pi.Attr("protoIndices").Ints()
	require.True(t, ok)
	assert.Equal(t, []int64{0, 0, 0, 0}, indices)
	assert.Equal(t, []string{"/Root/Yard/Tree_instancer/Prototypes/Tree_938870308"}, pi.Rel("prototypes").Targets)

	proto := doc.Find("/Root/Yard/Tree_instancer/Prototypes/Tree_938870308")
	require.NotNil(t, proto)
	mesh := proto.Child("TreeMesh")
	require.NotNil(t, mesh)
	assert.Equal(t, []string{"/Root/Looks/Bark"}, mesh.Rel(relBinding).Targets)
	assert.True(t, mesh.HasAPI(bindingAPI))
	assert.Equal(t, "default", mesh.String(attrPurpose))

	ground := doc.Find("/Root/Yard/Ground")
	require.NotNil(t, ground)
	assert.Nil(t, ground.Rel(relBinding))

	mat := doc.Find("/Root/Looks/Bark")
	require.NotNil(t, mat)
	require.Len(t, mat.Meta.References, 1)
	assert.Equal(t, "./materials/"+material.SchemaFile, mat.Meta.References[0].Asset)
	assert.Equal(t, material.SchemaPrim, mat.Meta.References[0].Path)
	sh := mat.Child(material.ShaderName)
	require.NotNil(t, sh)
	assert.Equal(t, scene.SpecOver, sh.Specifier)
	c, ok := sh.Attr("inputs:diffuse_color_constant").Tuple()
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{0.4, 0.3, 0.2}, []float64(c), 1e-6)

	assert.False(t, res.Marker.Found)
	assert.Equal(t, filepath.Join(dir, MaterialsDir), res.Marker.MaterialsDir)
	assert.True(t, res.Marker.SchemaInstalled)
	assert.FileExists(t, filepath.Join(dir, MaterialsDir, material.SchemaFile))
	assert.NoFileExists(t, target+".lock")
}

func TestEmitExternalPrototypes(t *testing.T) {
	out := convertDoc(t, forwardDoc(st.PreviewMaterial(bark, 0.4, 0.3, 0.2), yard("Yard", 0, 1, 2), yard("Park", 50, 1, 2, 3)), true)
	dir := t.TempDir()
	target := filepath.Join(dir, "scene.usda")

	res, err := Emit(context.Background(), out, Options{OutputPath: target, UseExternalReferences: true})
	require.NoError(t, err)
	extPath := filepath.Join(dir, convert.ExternalDir, "Tree.usda")
	assert.Equal(t, []string{extPath}, res.ExternalFiles)

	main := readDoc(t, target)
	assertNoSourcePaths(t, main)
	for _, anchor := range []string{"Yard", "Park"} {
		ref := main.Find("/Root/" + anchor + "/Tree_instancer/Prototypes/Tree_938870308")
		require.NotNil(t, ref, anchor)
		require.Len(t, ref.Meta.References, 1)
		assert.Equal(t, "./Instance_Objs/Tree.usda", ref.Meta.References[0].Asset)
		assert.Empty(t, ref.Children)
	}
	looks := main.Find("/Root/Looks")
	require.NotNil(t, looks)
	assert.Empty(t, looks.Children, "materials only bound inside prototypes move to their files")

	ext := readDoc(t, extPath)
	assertNoSourcePaths(t, ext)
	assert.Equal(t, rootName, ext.Meta.DefaultPrim)
	root := ext.Find("/Root")
	require.NotNil(t, root)
	assert.Equal(t, kindModel, root.Meta.Kind)
	mesh := ext.Find("/Root/Tree/TreeMesh")
	require.NotNil(t, mesh)
	assert.Equal(t, []string{"/Root/Looks/Bark"}, mesh.Rel(relBinding).Targets)
	mat := ext.Find("/Root/Looks/Bark")
	require.NotNil(t, mat)
	assert.Equal(t, "../materials/"+material.SchemaFile, mat.Meta.References[0].Asset)
}

func TestEmitMarkerDirectory(t *testing.T) {
	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, MarkerFile), []byte("#usda 1.0\n"), 0644))
	target := filepath.Join(project, "scenes", "forest", "scene.usda")
	out := convertDoc(t, forwardDoc(st.PreviewMaterial(bark, 0.4, 0.3, 0.2), yard("Yard", 0, 1, 2)), false)

	res, err := Emit(context.Background(), out, Options{OutputPath: target})
	require.NoError(t, err)
	assert.True(t, res.Marker.Found)
	assert.Equal(t, filepath.Join(project, MarkerFile), res.Marker.Path)
	assert.Equal(t, filepath.Join(project, MaterialsDir), res.Marker.MaterialsDir)
	assert.True(t, res.Marker.SchemaInstalled)

	mat := readDoc(t, target).Find("/Root/Looks/Bark")
	require.NotNil(t, mat)
	assert.Equal(t, "../../materials/"+material.SchemaFile, mat.Meta.References[0].Asset)

	res, err = Emit(context.Background(), out, Options{OutputPath: target})
	require.NoError(t, err)
	assert.False(t, res.Marker.SchemaInstalled, "existing schema is left alone")
}

func TestEmitReplacesPreviousOutput(t *testing.T) {
	target := filepath.Join(t.TempDir(), "scene.usda")
	first := convertDoc(t, forwardDoc(st.PreviewMaterial(bark, 0.4, 0.3, 0.2), yard("Yard", 0, 1, 2)), false)
	second := convertDoc(t, forwardDoc(st.PreviewMaterial(bark, 0.4, 0.3, 0.2), yard("Park", 0, 1, 2)), false)

	_, err := Emit(context.Background(), first, Options{OutputPath: target})
	require.NoError(t, err)
	_, err = Emit(context.Background(), second, Options{OutputPath: target})
	require.NoError(t, err)

	doc := readDoc(t, target)
	assert.Nil(t, doc.Find("/Root/Yard"))
	assert.NotNil(t, doc.Find("/Root/Park"))
}

func TestEmitBinaryEncoding(t *testing.T) {
	target := filepath.Join(t.TempDir(), "scene.usdc")
	out := convertDoc(t, forwardDoc(st.PreviewMaterial(bark, 0.4, 0.3, 0.2), yard("Yard", 0, 1, 2)), false)

	_, err := Emit(context.Background(), out, Options{OutputPath: target, Encoding: scene.EncodingBinary})
	require.NoError(t, err)

	head := make([]byte, 4)
	f, err := os.Open(target)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Read(head)
	require.NoError(t, err)
	assert.Equal(t, "SCNB", string(head))
	assert.NotNil(t, readDoc(t, target).Find("/Root/Yard/Tree_instancer"))
}

func TestEmitLockedOutput(t *testing.T) {
	target := filepath.Join(t.TempDir(), "scene.usda")
	held := flock.New(target + ".lock")
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Unlock()

	out := convertDoc(t, forwardDoc(st.PreviewMaterial(bark, 0.4, 0.3, 0.2), yard("Yard", 0, 1, 2)), false)
	_, err = Emit(context.Background(), out, Options{OutputPath: target})
	require.ErrorIs(t, err, ErrOutputLocked)
	assert.NoFileExists(t, target)
}

const texturedBark = `def Material "Bark"
{
    token outputs:surface.connect = </root/_materials/Bark/Shader.outputs:surface>

    def Shader "Shader"
    {
        uniform token info:id = "UsdPreviewSurface"
        color3f inputs:diffuseColor.connect = </root/_materials/Bark/Diffuse.outputs:rgb>
        token outputs:surface
    }

    def Shader "Diffuse"
    {
        uniform token info:id = "UsdUVTexture"
        asset inputs:file = @./textures/bark.png@
        float3 outputs:rgb
    }
}
`

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestEmitConvertsTextures(t *testing.T) {
	src := t.TempDir()
	writePNG(t, filepath.Join(src, "textures", "bark.png"))
	out := convertDoc(t, forwardDoc(texturedBark, yard("Yard", 0, 1, 2)), false)

	dir := t.TempDir()
	target := filepath.Join(dir, "scene.usda")
	orch := texture.NewOrchestrator(texture.Options{
		BaseDir:    src,
		Transcoder: &texture.Native{Format: config.FormatPNG},
		Workers:    2,
	})
	res, err := Emit(context.Background(), out, Options{OutputPath: target, Textures: orch, TextureExt: ".png"})
	require.NoError(t, err)
	require.Len(t, res.Textures, 1)
	assert.Equal(t, texture.StatusNew, res.Textures[0].Status)

	sh := readDoc(t, target).Find("/Root/Looks/Bark/Shader")
	require.NotNil(t, sh)
	a := sh.Attr("inputs:diffuse_texture")
	require.NotNil(t, a)
	asset, _ := a.String()
	assert.Equal(t, "./textures/bark_albedo.png", asset)
	assert.Equal(t, "sRGB", a.Meta.ColorSpace)
	assert.FileExists(t, filepath.Join(dir, TexturesDir, "bark_albedo.png"))
}

func TestEmitReportsMissingTexture(t *testing.T) {
	out := convertDoc(t, forwardDoc(texturedBark, yard("Yard", 0, 1, 2)), false)
	orch := texture.NewOrchestrator(texture.Options{
		BaseDir:    t.TempDir(),
		Transcoder: &texture.Native{Format: config.FormatPNG},
	})
	res, err := Emit(context.Background(), out, Options{
		OutputPath: filepath.Join(t.TempDir(), "scene.usda"),
		Textures:   orch,
		TextureExt: ".png",
	})
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, report.TextureMissing, res.Issues[0].Code)
	assert.Equal(t, "./textures/bark.png", res.Issues[0].Path)
}

func TestEmitFailureKeepsPreviousOutput(t *testing.T) {
	out := convertDoc(t, forwardDoc(st.PreviewMaterial(bark, 0.4, 0.3, 0.2), yard("Yard", 0, 1, 2)), true)
	dir := t.TempDir()
	target := filepath.Join(dir, "scene.usda")
	require.NoError(t, os.WriteFile(target, []byte("previous"), 0644))
	// A file where the prototype folder should be makes staging fail.
	require.NoError(t, os.WriteFile(filepath.Join(dir, convert.ExternalDir), nil, 0644))

	_, err := Emit(context.Background(), out, Options{OutputPath: target, UseExternalReferences: true})
	require.Error(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
	names, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, n := range names {
		assert.False(t, strings.HasSuffix(n.Name(), ".tmp"), n.Name())
	}
	assert.NoFileExists(t, target+".lock")
}

const unwiredBark = `def Material "Bark"
{
    token outputs:surface.connect = </root/_materials/Bark/Shader.outputs:surface>

    def Shader "Shader"
    {
        uniform token info:id = "UsdPreviewSurface"
        color3f inputs:diffuseColor.connect = </root/_materials/Bark/Missing.outputs:rgb>
        token outputs:surface
    }
}
`

func TestEmitUnresolvedTextureIsEmptyAsset(t *testing.T) {
	out := convertDoc(t, forwardDoc(unwiredBark, yard("Yard", 0, 1, 2)), false)
	orch := texture.NewOrchestrator(texture.Options{
		BaseDir:    t.TempDir(),
		Transcoder: &texture.Native{Format: config.FormatPNG},
	})
	target := filepath.Join(t.TempDir(), "scene.usda")
	res, err := Emit(context.Background(), out, Options{OutputPath: target, Textures: orch, TextureExt: ".png"})
	require.NoError(t, err)
	assert.Empty(t, res.Textures)
	assert.Empty(t, res.Issues)

	sh := readDoc(t, target).Find("/Root/Looks/Bark/Shader")
	require.NotNil(t, sh)
	a := sh.Attr("inputs:diffuse_texture")
	require.NotNil(t, a)
	asset, ok := a.String()
	require.True(t, ok)
	assert.Empty(t, asset)
	assert.Equal(t, "sRGB", a.Meta.ColorSpace)
}

func testEmitter(opts Options) *emitter {
	if opts.Interpolation == "" {
		opts.Interpolation = config.InterpolationFaceVarying
	}
	return &emitter{opts: opts, logger: logging.NewNop()}
}

func bareMesh() *scene.Node {
	n := scene.NewNode("Rock", collect.TypeMesh)
	n.Set("faceVertexCounts", scene.TypeIntArray, []int64{4})
	n.Set(attrFaceIndices, scene.TypeIntArray, []int64{0, 1, 2, 3})
	n.Set(attrPoints, scene.TypePoint3f, []scene.Tuple{{0, 0, 0}, {4, 0, 0}, {4, 0, 2}, {0, 0, 2}})
	return n
}

func TestFixMeshUVs(t *testing.T) {
	t.Run("generated", func(t *testing.T) {
		e := testEmitter(Options{GenerateMissingUVs: true})
		mesh := bareMesh()
		e.fixMesh(&document{}, mesh)

		uv := mesh.Attr(primvarST)
		require.NotNil(t, uv)
		assert.Equal(t, scene.TypeTexCoord2f, uv.TypeName)
		assert.Equal(t, interpFaceVarying, uv.Meta.Interpolation)
		uvs, _ := uv.Tuples()
		assert.Equal(t, []scene.Tuple{{0, 0}, {1, 0}, {1, 1}, {0, 1}}, uvs)
		require.Len(t, e.issues, 1)
		assert.Equal(t, report.UVGenerated, e.issues[0].Code)
	})

	t.Run("missing", func(t *testing.T) {
		e := testEmitter(Options{})
		mesh := bareMesh()
		e.fixMesh(&document{}, mesh)
		assert.Nil(t, mesh.Attr(primvarST))
		require.Len(t, e.issues, 1)
		assert.Equal(t, report.UVMissing, e.issues[0].Code)
	})

	t.Run("failed", func(t *testing.T) {
		e := testEmitter(Options{GenerateMissingUVs: true})
		mesh := bareMesh()
		mesh.Set(attrFaceIndices, scene.TypeIntArray, []int64{0, 1, 2, 9})
		e.fixMesh(&document{external: true, path: "/out/Instance_Objs/Rock.usda"}, mesh)
		require.Len(t, e.issues, 1)
		assert.Equal(t, report.UVFailed, e.issues[0].Code)
		assert.Equal(t, "Rock.usda:/Rock", e.issues[0].Path)
	})

	t.Run("float2 coerced", func(t *testing.T) {
		e := testEmitter(Options{Interpolation: config.InterpolationNone})
		mesh := bareMesh()
		mesh.Set("primvars:uv", scene.TypeFloat2Array, []scene.Tuple{{0, 0}, {1, 0}, {1, 1}, {0, 1}})
		e.fixMesh(&document{}, mesh)
		assert.Equal(t, scene.TypeTexCoord2f, mesh.Attr("primvars:uv").TypeName)
		assert.Empty(t, e.issues)
	})
}

func TestFixMeshPurpose(t *testing.T) {
	tests := []struct {
		name    string
		purpose string
		want    string
	}{
		{name: "missing", want: "default"},
		{name: "guide", purpose: "guide", want: "default"},
		{name: "render kept", purpose: "render", want: "render"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mesh := bareMesh()
			mesh.Set(primvarST, scene.TypeTexCoord2f, []scene.Tuple{{0, 0}, {1, 0}, {1, 1}, {0, 1}}).Meta.Interpolation = interpFaceVarying
			if tt.purpose != "" {
				mesh.Set(attrPurpose, scene.TypeToken, scene.Token(tt.purpose))
			}
			testEmitter(Options{}).fixMesh(&document{}, mesh)
			assert.Equal(t, tt.want, mesh.String(attrPurpose))
			assert.True(t, mesh.HasAPI(bindingAPI))
		})
	}
}

func TestPlanarUVs(t *testing.T) {
	quad := []scene.Tuple{{0, 0, 0}, {2, 0, 0}, {2, 1, 0}, {0, 1, 0}}
	tests := []struct {
		name    string
		points  []scene.Tuple
		indices []int64
		want    []scene.Tuple
		err     error
	}{
		{
			name:    "xy plane",
			points:  quad,
			indices: []int64{0, 1, 2, 3},
			want:    []scene.Tuple{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		},
		{
			name:    "line uses unit divisor",
			points:  []scene.Tuple{{0, 0, 0}, {0, 0, 5}},
			indices: []int64{0, 1},
			want:    []scene.Tuple{{0, 0}, {1, 0}},
		},
		{name: "empty", err: errNoGeometry},
		{name: "point", points: []scene.Tuple{{1, 1, 1}}, indices: []int64{0}, err: errFlatBounds},
		{name: "bad index", points: quad, indices: []int64{0, 4}, err: errBadTopology},
		{name: "short point", points: []scene.Tuple{{0, 0}}, indices: []int64{0}, err: errShortPoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PlanarUVs(tt.points, tt.indices)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeInterpolation(t *testing.T) {
	// Two triangles sharing the edge 1-2.
	mesh := func() *scene.Node {
		n := scene.NewNode("M", collect.TypeMesh)
		n.Set(attrFaceIndices, scene.TypeIntArray, []int64{0, 1, 2, 2, 1, 3})
		n.Set(attrPoints, scene.TypePoint3f, []scene.Tuple{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}})
		return n
	}

	t.Run("vertex to face varying", func(t *testing.T) {
		n := mesh()
		a := n.Set(attrNormals, scene.TypeNormal3f, []scene.Tuple{{0, 0, 1}, {0, 0, 2}, {0, 0, 3}, {0, 0, 4}})
		a.Meta.Interpolation = interpVertex
		normalizeInterpolation(n, a, config.InterpolationFaceVarying)
		assert.Equal(t, interpFaceVarying, a.Meta.Interpolation)
		got, _ := a.Tuples()
		assert.Equal(t, []scene.Tuple{{0, 0, 1}, {0, 0, 2}, {0, 0, 3}, {0, 0, 3}, {0, 0, 2}, {0, 0, 4}}, got)
	})

	t.Run("indexed primvar flattened", func(t *testing.T) {
		n := mesh()
		a := n.Set(primvarST, scene.TypeTexCoord2f, []scene.Tuple{{0, 0}, {1, 1}})
		a.Meta.Interpolation = interpFaceVarying
		n.Set(primvarST+indicesSuffix, scene.TypeIntArray, []int64{0, 1, 1, 1, 1, 0})
		normalizeInterpolation(n, a, config.InterpolationFaceVarying)
		assert.Nil(t, n.Attr(primvarST+indicesSuffix))
		got, _ := a.Tuples()
		assert.Len(t, got, 6)
		assert.Equal(t, scene.Tuple{1, 1}, got[1])
	})

	t.Run("consistent corners collapse to vertex", func(t *testing.T) {
		n := mesh()
		a := n.Set(attrNormals, scene.TypeNormal3f, []scene.Tuple{{1}, {2}, {3}, {3}, {2}, {4}})
		a.Meta.Interpolation = interpFaceVarying
		normalizeInterpolation(n, a, config.InterpolationVertex)
		assert.Equal(t, interpVertex, a.Meta.Interpolation)
		got, _ := a.Tuples()
		assert.Equal(t, []scene.Tuple{{1}, {2}, {3}, {4}}, got)
	})

	t.Run("seams stay face varying", func(t *testing.T) {
		n := mesh()
		a := n.Set(primvarST, scene.TypeTexCoord2f, []scene.Tuple{{0, 0}, {1, 0}, {0, 1}, {0.5, 1}, {1, 0}, {1, 1}})
		a.Meta.Interpolation = interpFaceVarying
		normalizeInterpolation(n, a, config.InterpolationVertex)
		assert.Equal(t, interpFaceVarying, a.Meta.Interpolation)
	})
}

func TestApplySubsetRule(t *testing.T) {
	build := func() *scene.Node {
		mesh := scene.NewNode("M", collect.TypeMesh)
		mesh.SetRel(relBinding, "/Root/Looks/A")
		sub := mesh.AddChild(scene.NewNode("Sub", collect.TypeGeomSubset))
		sub.Set(attrFamilyName, scene.TypeToken, scene.Token("materialBind")).Uniform = true
		sub.SetRel(relBinding, "/Root/Looks/B")
		return mesh
	}

	t.Run("subset binding wins", func(t *testing.T) {
		mesh := build()
		testEmitter(Options{}).applySubsetRule(mesh)
		assert.Nil(t, mesh.Rel(relBinding))
		assert.NotNil(t, mesh.Child("Sub").Attr(attrFamilyName))
	})

	t.Run("family tag stripped", func(t *testing.T) {
		mesh := build()
		testEmitter(Options{StripSubsetFamilyTag: true}).applySubsetRule(mesh)
		assert.Nil(t, mesh.Child("Sub").Attr(attrFamilyName))
	})

	t.Run("unbound subsets keep mesh binding", func(t *testing.T) {
		mesh := build()
		mesh.Child("Sub").RemoveRel(relBinding)
		testEmitter(Options{}).applySubsetRule(mesh)
		assert.NotNil(t, mesh.Rel(relBinding))
	})
}

func TestRelAsset(t *testing.T) {
	tests := []struct {
		from, target, want string
	}{
		{"/p/out", "/p/out/textures", "./textures"},
		{"/p/out/Instance_Objs", "/p/out/textures", "../textures"},
		{"/p/out", "/p/materials/x.usda", "../materials/x.usda"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, relAsset(filepath.FromSlash(tt.from), filepath.FromSlash(tt.target)))
	}
}
