// Package config loads and resolves conversion settings.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed sample_config.toml
var sampleConfig string

// Interpolation modes for UV and normal primvars.
const (
	InterpolationFaceVarying = "face-varying"
	InterpolationVertex      = "per-vertex"
	InterpolationNone        = "none"
)

// Degenerate instance policies.
const (
	DegenerateOriginEcho = "origin-echo"
	DegenerateKeep       = "keep"
)

// Texture output formats.
const (
	FormatDDS  = "dds"
	FormatPNG  = "png"
	FormatWebP = "webp"
)

// Normal map styles.
const (
	NormalAuto = "auto"
	NormalDX   = "dx"
	NormalOGL  = "ogl"
)

// Texture holds texture conversion settings.
type Texture struct {
	Format      string `toml:"format" yaml:"format" json:"format"`
	Quality     int    `toml:"quality" yaml:"quality" json:"quality"`
	Workers     int    `toml:"workers" yaml:"workers" json:"workers"`
	Transcoder  string `toml:"transcoder" yaml:"transcoder" json:"transcoder"`
	ExtraArgs   string `toml:"extra_args" yaml:"extra_args" json:"extra_args"`
	UseGPU      bool   `toml:"use_gpu" yaml:"use_gpu" json:"use_gpu"`
	NormalStyle string `toml:"normal_style" yaml:"normal_style" json:"normal_style"`
}

// Args splits ExtraArgs with shell quoting rules.
func (t Texture) Args() ([]string, error) {
	if strings.TrimSpace(t.ExtraArgs) == "" {
		return nil, nil
	}
	args, err := shellwords.Parse(t.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("config: texture.extra_args: %w", err)
	}
	return args, nil
}

// Log holds log output settings.
type Log struct {
	Level  string `toml:"level" yaml:"level" json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"`
	File   string `toml:"file" yaml:"file" json:"file"`
}

// Config holds every recognized conversion option.
type Config struct {
	UseExternalReferences bool   `toml:"use_external_references" yaml:"use_external_references" json:"use_external_references"`
	ExportBinary          bool   `toml:"export_binary" yaml:"export_binary" json:"export_binary"`
	ConvertTextures       bool   `toml:"convert_textures" yaml:"convert_textures" json:"convert_textures"`
	InterpolationMode     string `toml:"interpolation_mode" yaml:"interpolation_mode" json:"interpolation_mode"`
	AutoBlendAlpha        bool   `toml:"auto_blend_alpha" yaml:"auto_blend_alpha" json:"auto_blend_alpha"`
	StripSubsetFamilyTag  bool   `toml:"strip_subset_family_tag" yaml:"strip_subset_family_tag" json:"strip_subset_family_tag"`
	GenerateMissingUVs    bool   `toml:"generate_missing_uvs" yaml:"generate_missing_uvs" json:"generate_missing_uvs"`
	Quiet                 bool   `toml:"quiet" yaml:"quiet" json:"quiet"`
	DegeneratePolicy      string `toml:"degenerate_policy" yaml:"degenerate_policy" json:"degenerate_policy"`
	ReportFile            string `toml:"report_file" yaml:"report_file" json:"report_file"`

	Texture Texture `toml:"texture" yaml:"texture" json:"texture"`
	Log     Log     `toml:"log" yaml:"log" json:"log"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ConvertTextures:    true,
		InterpolationMode:  InterpolationFaceVarying,
		AutoBlendAlpha:     true,
		GenerateMissingUVs: true,
		DegeneratePolicy:   DegenerateOriginEcho,
		Texture: Texture{
			Format:      FormatDDS,
			Quality:     90,
			Workers:     runtime.NumCPU(),
			Transcoder:  "texconv",
			NormalStyle: NormalAuto,
		},
		Log: Log{Level: "info", Format: "console"},
	}
}

// DefaultConfigPath returns the per-user configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/usd-instancer/config.toml")
}

// Load reads path over the defaults. An empty path tries the default
// location and returns the defaults when no file exists there. The format
// follows the extension: .yaml/.yml, .json, anything else is TOML.
func Load(path string) (Config, string, bool, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, err := DefaultConfigPath()
		if err != nil {
			return Config{}, "", false, err
		}
		path = p
	}
	resolved, err := expandPath(path)
	if err != nil {
		return Config{}, "", false, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, resolved, false, cfg.normalize()
		}
		return Config{}, resolved, false, fmt.Errorf("config: read %s: %w", resolved, err)
	}
	if err := decode(resolved, data, &cfg); err != nil {
		return Config{}, resolved, true, fmt.Errorf("config: parse %s: %w", resolved, err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, resolved, true, err
	}
	return cfg, resolved, true, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".json":
		return json.Unmarshal(data, cfg)
	default:
		return toml.Unmarshal(data, cfg)
	}
}

// Flags holds CLI flag values that override config file settings. Nil
// pointers and empty strings leave the file value alone.
type Flags struct {
	UseExternalReferences *bool
	ExportBinary          *bool
	ConvertTextures       *bool
	InterpolationMode     string
	AutoBlendAlpha        *bool
	StripSubsetFamilyTag  *bool
	GenerateMissingUVs    *bool
	Quiet                 *bool
	DegeneratePolicy      string
	ReportFile            string
	TextureFormat         string
	Workers               int
	LogLevel              string
}

// Resolve applies flag overrides and fills empty fields with defaults.
func (c *Config) Resolve(flags Flags) error {
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setBool(&c.UseExternalReferences, flags.UseExternalReferences)
	setBool(&c.ExportBinary, flags.ExportBinary)
	setBool(&c.ConvertTextures, flags.ConvertTextures)
	setBool(&c.AutoBlendAlpha, flags.AutoBlendAlpha)
	setBool(&c.StripSubsetFamilyTag, flags.StripSubsetFamilyTag)
	setBool(&c.GenerateMissingUVs, flags.GenerateMissingUVs)
	setBool(&c.Quiet, flags.Quiet)
	if flags.InterpolationMode != "" {
		c.InterpolationMode = flags.InterpolationMode
	}
	if flags.DegeneratePolicy != "" {
		c.DegeneratePolicy = flags.DegeneratePolicy
	}
	if flags.ReportFile != "" {
		c.ReportFile = flags.ReportFile
	}
	if flags.TextureFormat != "" {
		c.Texture.Format = flags.TextureFormat
	}
	if flags.Workers > 0 {
		c.Texture.Workers = flags.Workers
	}
	if flags.LogLevel != "" {
		c.Log.Level = flags.LogLevel
	}
	return c.normalize()
}

func (c *Config) normalize() error {
	def := Default()
	c.InterpolationMode = strings.ToLower(strings.TrimSpace(c.InterpolationMode))
	if c.InterpolationMode == "" {
		c.InterpolationMode = def.InterpolationMode
	}
	c.DegeneratePolicy = strings.ToLower(strings.TrimSpace(c.DegeneratePolicy))
	if c.DegeneratePolicy == "" {
		c.DegeneratePolicy = def.DegeneratePolicy
	}
	c.Texture.Format = strings.ToLower(strings.TrimSpace(c.Texture.Format))
	if c.Texture.Format == "" {
		c.Texture.Format = def.Texture.Format
	}
	if c.Texture.Quality <= 0 {
		c.Texture.Quality = def.Texture.Quality
	}
	if c.Texture.Workers <= 0 {
		c.Texture.Workers = def.Texture.Workers
	}
	if c.Texture.NormalStyle == "" {
		c.Texture.NormalStyle = def.Texture.NormalStyle
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}

	var err error
	if c.Texture.Transcoder, err = expandPath(c.Texture.Transcoder); err != nil {
		return err
	}
	if c.Log.File, err = expandPath(c.Log.File); err != nil {
		return err
	}
	if c.ReportFile, err = expandPath(c.ReportFile); err != nil {
		return err
	}
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	switch c.InterpolationMode {
	case InterpolationFaceVarying, InterpolationVertex, InterpolationNone:
	default:
		return fmt.Errorf("interpolation_mode must be one of %s, %s, %s (got %q)",
			InterpolationFaceVarying, InterpolationVertex, InterpolationNone, c.InterpolationMode)
	}
	switch c.DegeneratePolicy {
	case DegenerateOriginEcho, DegenerateKeep:
	default:
		return fmt.Errorf("degenerate_policy must be %s or %s (got %q)", DegenerateOriginEcho, DegenerateKeep, c.DegeneratePolicy)
	}
	switch c.Texture.Format {
	case FormatDDS, FormatPNG, FormatWebP:
	default:
		return fmt.Errorf("texture.format must be dds, png or webp (got %q)", c.Texture.Format)
	}
	if c.Texture.Quality > 100 {
		return errors.New("texture.quality must be between 1 and 100")
	}
	switch c.Texture.NormalStyle {
	case NormalAuto, NormalDX, NormalOGL:
	default:
		return fmt.Errorf("texture.normal_style must be auto, dx or ogl (got %q)", c.Texture.NormalStyle)
	}
	if c.Texture.Format == FormatDDS && c.ConvertTextures && strings.TrimSpace(c.Texture.Transcoder) == "" {
		return errors.New("texture.transcoder must be set when texture.format is dds")
	}
	if _, err := c.Texture.Args(); err != nil {
		return err
	}
	return nil
}

// CreateSample writes the sample configuration to path.
func CreateSample(path string) error {
	resolved, err := expandPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(resolved); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}
	if err := os.WriteFile(resolved, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("config: write sample: %w", err)
	}
	return nil
}

// Encode renders c as TOML.
func (c Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	out, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("config: expand %s: %w", p, err)
	}
	return out, nil
}
