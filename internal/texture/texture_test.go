package texture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ftrvxmtrx/tga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usd-instancer/internal/config"
	"usd-instancer/internal/material"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestIndexResolvesByPathThenStem(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "textures", "Wood.png"), solid(1, 1, color.NRGBA{A: 255}))
	writePNG(t, filepath.Join(dir, "Wood.png"), solid(1, 1, color.NRGBA{A: 255}))
	writePNG(t, filepath.Join(dir, "Stone.png"), solid(1, 1, color.NRGBA{A: 255}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	idx := BuildIndex(dir)
	assert.Equal(t, 2, idx.Len())

	tests := []struct {
		authored string
		want     string
	}{
		{"@./Stone.png@", filepath.Join(dir, "Stone.png")},
		{`C:\art\wood.jpg`, filepath.Join(dir, "textures", "Wood.png")},
		{"elsewhere/STONE.tga", filepath.Join(dir, "Stone.png")},
	}
	for _, tt := range tests {
		t.Run(tt.authored, func(t *testing.T) {
			got, ok := idx.ResolvePath(tt.authored)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := idx.ResolvePath("missing.png")
	assert.False(t, ok)
	_, ok = idx.ResolvePath("")
	assert.False(t, ok)
}

func TestAlphaDetector(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "textures", "leaf.png"), solid(2, 2, color.NRGBA{G: 200, A: 90}))
	writePNG(t, filepath.Join(dir, "textures", "bark.png"), solid(2, 2, color.NRGBA{R: 90, A: 255}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not an image"), 0644))

	det := NewAlphaDetector(BuildIndex(dir))
	tests := []struct {
		authored string
		want     bool
	}{
		{"./textures/leaf.png", true},
		{`D:\export\LEAF.tga`, true},
		{"bark.png", false},
		{"broken.png", false},
		{"missing.png", false},
	}
	for _, tt := range tests {
		t.Run(tt.authored, func(t *testing.T) {
			assert.Equal(t, tt.want, det.HasAlpha(tt.authored))
		})
	}

	// Answers are cached per resolved file.
	require.NoError(t, os.Remove(filepath.Join(dir, "textures", "leaf.png")))
	assert.True(t, det.HasAlpha("leaf.png"))
}

func TestLoadRejectsNonImages(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "fake.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image at all"), 0644))
	_, err := Load(bad)
	assert.ErrorIs(t, err, ErrNotImage)

	good := filepath.Join(dir, "good.png")
	writePNG(t, good, solid(2, 3, color.NRGBA{R: 10, A: 128}))
	img, err := Load(good)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 3), img.Bounds())
	assert.True(t, HasAlpha(img))
}

func TestLoadDecodesBySniffedType(t *testing.T) {
	dir := t.TempDir()
	px := color.NRGBA{R: 200, G: 100, B: 50, A: 255}

	pngPath := filepath.Join(dir, "bark.png")
	writePNG(t, pngPath, solid(3, 2, px))
	// Content wins over the extension.
	misnamed := filepath.Join(dir, "moss.tga")
	writePNG(t, misnamed, solid(3, 2, px))

	tgaPath := filepath.Join(dir, "leaf.tga")
	f, err := os.Create(tgaPath)
	require.NoError(t, err)
	require.NoError(t, tga.Encode(f, solid(3, 2, px)))
	require.NoError(t, f.Close())

	for _, path := range []string{pngPath, misnamed, tgaPath} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			img, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
			assert.Equal(t, px, img.NRGBAAt(1, 1))
		})
	}
}

func TestPreprocess(t *testing.T) {
	t.Run("grayscale", func(t *testing.T) {
		g := Grayscale(solid(2, 2, color.NRGBA{R: 200, G: 200, B: 200, A: 255}))
		assert.Equal(t, g.Pix[0], g.Pix[1])
		assert.Equal(t, g.Pix[1], g.Pix[2])
	})
	t.Run("invert", func(t *testing.T) {
		g := InvertGray(solid(2, 2, color.NRGBA{A: 255}))
		assert.Equal(t, uint8(255), g.Pix[0])
		assert.Equal(t, uint8(255), g.Pix[3])
	})
	t.Run("combine alpha resamples", func(t *testing.T) {
		base := solid(4, 4, color.NRGBA{R: 255, A: 255})
		mask := solid(2, 2, color.NRGBA{A: 255})
		out := CombineAlpha(base, mask)
		assert.Equal(t, image.Rect(0, 0, 4, 4), out.Bounds())
		assert.Equal(t, uint8(255), out.Pix[0])
		assert.Equal(t, uint8(0), out.Pix[3])
		assert.Equal(t, uint8(255), base.Pix[3], "base is not modified")
	})
	t.Run("flat height gives up normal", func(t *testing.T) {
		n := BumpToNormal(solid(3, 3, color.NRGBA{R: 90, G: 90, B: 90, A: 255}), bumpStrength)
		assert.Equal(t, []uint8{128, 128, 255, 255}, n.Pix[:4])
	})
	t.Run("flip green", func(t *testing.T) {
		n := solid(1, 1, color.NRGBA{R: 128, G: 200, B: 255, A: 255})
		FlipGreen(n)
		assert.Equal(t, uint8(55), n.Pix[1])
	})
}

func TestNormalStyle(t *testing.T) {
	tests := []struct {
		path, configured, want string
	}{
		{"brick_normal_gl.png", config.NormalAuto, config.NormalOGL},
		{"brick_ogl_normal.png", config.NormalAuto, config.NormalOGL},
		{"brick_normal_dx.png", config.NormalAuto, config.NormalDX},
		{"brick_directx.png", config.NormalAuto, config.NormalDX},
		{"brick_gloss_dx.png", config.NormalAuto, config.NormalDX},
		{"brick_normal.png", config.NormalAuto, config.NormalOGL},
		{"brick_normal_gl.png", config.NormalDX, config.NormalDX},
	}
	for _, tt := range tests {
		t.Run(tt.path+"/"+tt.configured, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalStyle(tt.path, tt.configured))
		})
	}
}

func TestExternalArgs(t *testing.T) {
	e := &External{Path: "nvtt_export", Quality: 90, ExtraArgs: []string{"--dither"}}
	args := e.Args(Job{Input: "in.png", Role: material.RoleBaseColor, Gamma: material.GammaSRGB}, "out.dds")
	assert.Equal(t, []string{
		"--no-cuda", "in.png", "-o", "out.dds", "-f", "bc7", "-q", "highest",
		"--mip-gamma-correct", "--mips", "--dither",
	}, args)

	e.UseGPU = true
	e.ExtraArgs = nil
	e.Quality = 50
	args = e.Args(Job{Input: "n.png", Role: material.RoleNormal, Gamma: material.GammaLinear}, "n.dds")
	assert.Equal(t, []string{
		"n.png", "-o", "n.dds", "-f", "bc5", "-q", "normal", "--no-mip-gamma-correct", "--mips",
	}, args)
}

func TestBlockFormat(t *testing.T) {
	assert.Equal(t, "bc7", BlockFormat(material.RoleBaseColor))
	assert.Equal(t, "bc7", BlockFormat(material.RoleEmissive))
	assert.Equal(t, "bc5", BlockFormat(material.RoleNormal))
	for _, r := range []material.Role{material.RoleRoughness, material.RoleMetallic, material.RoleOpacity, material.RoleHeight} {
		assert.Equal(t, "bc4", BlockFormat(r), r)
	}
}

func TestTimeoutFor(t *testing.T) {
	assert.Equal(t, 30*time.Second, TimeoutFor(1000))
	assert.Equal(t, 60*time.Second, TimeoutFor(5<<20))
	assert.Equal(t, 120*time.Second, TimeoutFor(50<<20))
}

// fakeTool writes a fixed payload to the -o argument.
func fakeTool(calls *int, fail int) runFunc {
	return func(_ context.Context, _ string, args ...string) ([]byte, error) {
		*calls++
		if *calls <= fail {
			return []byte("boom\ndetail"), errors.New("exit status 1")
		}
		for i, a := range args {
			if a == "-o" {
				return nil, os.WriteFile(args[i+1], []byte("DDS "), 0644)
			}
		}
		return nil, nil
	}
}

func TestExternalTranscodeRetries(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.png")
	writePNG(t, in, solid(1, 1, color.NRGBA{A: 255}))
	out := filepath.Join(dir, "out", "a_albedo.dds")

	calls := 0
	e := &External{Path: "tool", Attempts: 3, run: fakeTool(&calls, 2)}
	require.NoError(t, e.Transcode(context.Background(), Job{Input: in, Output: out, Role: material.RoleBaseColor}))
	assert.Equal(t, 3, calls)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "DDS ", string(data))

	calls = 0
	e.Attempts = 1
	err = e.Transcode(context.Background(), Job{Input: in, Output: filepath.Join(dir, "b.dds")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.NoFileExists(t, filepath.Join(dir, "b.dds"))
	assert.NoFileExists(t, filepath.Join(dir, "b.partial.dds"))
}

func TestExternalCheck(t *testing.T) {
	calls := 0
	e := &External{Path: "tool", run: fakeTool(&calls, 1)}
	assert.Error(t, e.Check(context.Background()))
	assert.NoError(t, e.Check(context.Background()))
	assert.Error(t, (&External{}).Check(context.Background()))
}

func TestNewTranscoder(t *testing.T) {
	tr, err := New(config.Texture{Format: config.FormatWebP})
	require.NoError(t, err)
	assert.Equal(t, ".webp", tr.Ext())

	tr, err = New(config.Texture{Format: config.FormatDDS, Transcoder: "/opt/nvtt/nvtt_export", ExtraArgs: `--name "a b"`})
	require.NoError(t, err)
	assert.Equal(t, ".dds", tr.Ext())
	assert.Equal(t, []string{"--name", "a b"}, tr.(*External).ExtraArgs)

	_, err = New(config.Texture{Format: "ktx"})
	assert.Error(t, err)
}

func newTestOrchestrator(t *testing.T, format string) (*Orchestrator, string, string) {
	t.Helper()
	src := t.TempDir()
	out := t.TempDir()
	return NewOrchestrator(Options{
		BaseDir:    src,
		Transcoder: &Native{Format: format},
		Workers:    2,
	}), src, out
}

func TestOrchestratorDeduplicates(t *testing.T) {
	o, src, out := newTestOrchestrator(t, config.FormatPNG)
	writePNG(t, filepath.Join(src, "textures", "bark.png"), solid(2, 2, color.NRGBA{R: 100, A: 255}))

	req := Request{
		Dest:   filepath.Join(out, "bark_albedo.png"),
		Source: "./textures/bark.png",
		Role:   material.RoleBaseColor,
		Gamma:  material.GammaSRGB,
	}
	outs := o.Run(context.Background(), []Request{req, req})
	require.Len(t, outs, 2)
	assert.Equal(t, StatusNew, outs[0].Status)
	assert.Equal(t, StatusCached, outs[1].Status)

	again := o.Run(context.Background(), []Request{req})
	assert.Equal(t, StatusCached, again[0].Status)

	counts, failures := Tally(append(outs, again...))
	assert.Equal(t, 1, counts.New)
	assert.Equal(t, 2, counts.Cached)
	assert.Empty(t, failures)
	assert.FileExists(t, req.Dest)
}

func TestOrchestratorSkipsExisting(t *testing.T) {
	o, src, out := newTestOrchestrator(t, config.FormatPNG)
	writePNG(t, filepath.Join(src, "bark.png"), solid(1, 1, color.NRGBA{A: 255}))
	dest := filepath.Join(out, "bark_albedo.png")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0644))

	outs := o.Run(context.Background(), []Request{{Dest: dest, Source: "bark.png", Role: material.RoleBaseColor}})
	assert.Equal(t, StatusSkipped, outs[0].Status)
	data, _ := os.ReadFile(dest)
	assert.Equal(t, "old", string(data))
}

func TestOrchestratorMissingSource(t *testing.T) {
	o, _, out := newTestOrchestrator(t, config.FormatPNG)
	dest := filepath.Join(out, "ghost_roughness.png")
	outs := o.Run(context.Background(), []Request{{Dest: dest, Source: "ghost.png", Role: material.RoleRoughness}})

	assert.Equal(t, StatusFailed, outs[0].Status)
	assert.True(t, outs[0].Missing)
	assert.NoFileExists(t, dest)

	counts, failures := Tally(outs)
	assert.Equal(t, 1, counts.Failed)
	require.Len(t, failures, 1)
	assert.Equal(t, "ghost.png", failures[0].Source)
	assert.Equal(t, "roughness", failures[0].Role)
}

func TestOrchestratorDerivedAndAlpha(t *testing.T) {
	o, src, out := newTestOrchestrator(t, config.FormatPNG)
	writePNG(t, filepath.Join(src, "leaf.png"), solid(4, 4, color.NRGBA{R: 40, G: 200, B: 40, A: 255}))
	writePNG(t, filepath.Join(src, "leaf_mask.png"), solid(2, 2, color.NRGBA{A: 255}))

	rough := Request{
		Dest:   filepath.Join(out, "leaf_rough.png"),
		Source: "leaf.png",
		Role:   material.RoleRoughness,
		Derive: material.DeriveGrayscale,
	}
	albedo := Request{
		Dest:        filepath.Join(out, "leaf_leaf_mask_albedo.png"),
		Source:      "leaf.png",
		Role:        material.RoleBaseColor,
		AlphaSource: "leaf_mask.png",
	}
	outs := o.Run(context.Background(), []Request{rough, albedo})
	require.Equal(t, StatusNew, outs[0].Status, outs[0].Reason)
	require.Equal(t, StatusNew, outs[1].Status, outs[1].Reason)
	assert.True(t, outs[0].Derived())

	g, err := Load(rough.Dest)
	require.NoError(t, err)
	assert.Equal(t, g.Pix[0], g.Pix[1])

	a, err := Load(albedo.Dest)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), a.Pix[3])
}

func TestOrchestratorWebP(t *testing.T) {
	o, src, out := newTestOrchestrator(t, config.FormatWebP)
	writePNG(t, filepath.Join(src, "bark.png"), solid(2, 2, color.NRGBA{R: 1, G: 2, B: 3, A: 255}))
	dest := filepath.Join(out, "bark_albedo.webp")

	outs := o.Run(context.Background(), []Request{{Dest: dest, Source: "bark.png", Role: material.RoleBaseColor}})
	require.Equal(t, StatusNew, outs[0].Status, outs[0].Reason)
	img, err := Load(dest)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
}

func TestRequestFor(t *testing.T) {
	tex := &material.Texture{Source: "bark.png", Stem: "bark_albedo", Role: material.RoleBaseColor, Gamma: material.GammaSRGB}
	r := RequestFor(tex, "/out/textures", ".dds")
	assert.Equal(t, filepath.Join("/out/textures", "bark_albedo.dds"), r.Dest)
	assert.Equal(t, material.RoleBaseColor, r.Role)
}
