package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usd-instancer/internal/config"
)

// setHome points HOME at dir. go-homedir caches the first lookup, so the
// cache is dropped on both sides of the override.
func setHome(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("HOME", dir)
	homedir.Reset()
	t.Cleanup(homedir.Reset)
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	setHome(t, t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NotEmpty(t, resolved)
	assert.Equal(t, config.InterpolationFaceVarying, cfg.InterpolationMode)
	assert.Equal(t, config.DegenerateOriginEcho, cfg.DegeneratePolicy)
	assert.True(t, cfg.ConvertTextures)
	assert.True(t, cfg.AutoBlendAlpha)
	assert.False(t, cfg.UseExternalReferences)
	assert.Positive(t, cfg.Texture.Workers)
	require.NoError(t, cfg.Validate())
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadFormats(t *testing.T) {
	cases := []struct {
		name string
		file string
		body string
	}{
		{
			name: "toml",
			file: "cfg.toml",
			body: "use_external_references = true\ninterpolation_mode = \"per-vertex\"\n[texture]\nformat = \"png\"\n",
		},
		{
			name: "yaml",
			file: "cfg.yaml",
			body: "use_external_references: true\ninterpolation_mode: per-vertex\ntexture:\n  format: png\n",
		},
		{
			name: "json",
			file: "cfg.json",
			body: `{"use_external_references": true, "interpolation_mode": "per-vertex", "texture": {"format": "png"}}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tc.file)
			require.NoError(t, os.WriteFile(path, []byte(tc.body), 0o644))

			cfg, resolved, exists, err := config.Load(path)
			require.NoError(t, err)
			assert.True(t, exists)
			assert.Equal(t, path, resolved)
			assert.True(t, cfg.UseExternalReferences)
			assert.Equal(t, config.InterpolationVertex, cfg.InterpolationMode)
			assert.Equal(t, config.FormatPNG, cfg.Texture.Format)
			// Untouched keys keep their defaults.
			assert.True(t, cfg.ConvertTextures)
			assert.Equal(t, 90, cfg.Texture.Quality)
		})
	}
}

func TestResolveFlagsOverrideFile(t *testing.T) {
	cfg := config.Default()
	cfg.ConvertTextures = true
	off := false
	on := true

	require.NoError(t, cfg.Resolve(config.Flags{
		ConvertTextures:       &off,
		UseExternalReferences: &on,
		DegeneratePolicy:      "KEEP",
		Workers:               3,
	}))
	assert.False(t, cfg.ConvertTextures)
	assert.True(t, cfg.UseExternalReferences)
	assert.Equal(t, config.DegenerateKeep, cfg.DegeneratePolicy)
	assert.Equal(t, 3, cfg.Texture.Workers)
	// Nil flags leave values alone.
	assert.True(t, cfg.AutoBlendAlpha)
}

func TestResolveExpandsHome(t *testing.T) {
	home := t.TempDir()
	setHome(t, home)

	cfg := config.Default()
	require.NoError(t, cfg.Resolve(config.Flags{ReportFile: "~/report.json"}))
	assert.Equal(t, filepath.Join(home, "report.json"), cfg.ReportFile)

	// A second override within the same process is honored.
	other := t.TempDir()
	setHome(t, other)
	cfg = config.Default()
	require.NoError(t, cfg.Resolve(config.Flags{ReportFile: "~/report.json"}))
	assert.Equal(t, filepath.Join(other, "report.json"), cfg.ReportFile)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*config.Config) {}, ok: true},
		{name: "bad interpolation", mutate: func(c *config.Config) { c.InterpolationMode = "uniform" }},
		{name: "bad policy", mutate: func(c *config.Config) { c.DegeneratePolicy = "first" }},
		{name: "bad format", mutate: func(c *config.Config) { c.Texture.Format = "ktx" }},
		{name: "quality too high", mutate: func(c *config.Config) { c.Texture.Quality = 101 }},
		{name: "bad normal style", mutate: func(c *config.Config) { c.Texture.NormalStyle = "vulkan" }},
		{name: "dds without transcoder", mutate: func(c *config.Config) { c.Texture.Transcoder = "" }},
		{
			name: "png without transcoder",
			mutate: func(c *config.Config) {
				c.Texture.Format = config.FormatPNG
				c.Texture.Transcoder = ""
			},
			ok: true,
		},
		{name: "unbalanced extra args", mutate: func(c *config.Config) { c.Texture.ExtraArgs = `-o "unterminated` }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestTextureArgs(t *testing.T) {
	tex := config.Texture{ExtraArgs: `-y -sepalpha --name "with space"`}
	args, err := tex.Args()
	require.NoError(t, err)
	assert.Equal(t, []string{"-y", "-sepalpha", "--name", "with space"}, args)

	args, err = config.Texture{}.Args()
	require.NoError(t, err)
	assert.Nil(t, args)
}

func TestCreateSampleParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	require.NoError(t, config.CreateSample(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, toml.Unmarshal(data, &cfg))
	assert.Equal(t, config.InterpolationFaceVarying, cfg.InterpolationMode)

	loaded, _, exists, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, loaded.Validate())
}
