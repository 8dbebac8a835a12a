package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"usd-instancer/internal/config"
	"usd-instancer/internal/logging"
)

type commandContext struct {
	configFlag *string
	logLevel   *string
	quiet      *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevel *string, quiet *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		logLevel:   logLevel,
		quiet:      quiet,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		flags := config.Flags{}
		if c.logLevel != nil {
			flags.LogLevel = *c.logLevel
		}
		if c.quiet != nil && *c.quiet {
			flags.Quiet = c.quiet
		}
		if err := cfg.Resolve(flags); err != nil {
			c.configErr = err
			return
		}
		c.config = &cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// resolved returns a copy of the loaded configuration with the command's
// flag overrides applied and validated.
func (c *commandContext) resolved(flags config.Flags) (config.Config, error) {
	base, err := c.ensureConfig()
	if err != nil {
		return config.Config{}, err
	}
	cfg := *base
	if err := cfg.Resolve(flags); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *commandContext) logger(cfg config.Config) (*slog.Logger, error) {
	return logging.NewFromConfig(cfg.Log, cfg.Quiet)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// conversionFlags are the per-run overrides shared by convert and batch.
type conversionFlags struct {
	external      bool
	binary        bool
	textures      bool
	blendAlpha    bool
	stripFamily   bool
	generateUVs   bool
	interpolation string
	degenerate    string
	reportFile    string
	textureFormat string
	workers       int
}

func (f *conversionFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.BoolVar(&f.external, "external", false, "Write each prototype to its own file and reference it")
	fs.BoolVar(&f.binary, "binary", false, "Write the binary container instead of text")
	fs.BoolVar(&f.textures, "textures", true, "Convert referenced textures")
	fs.BoolVar(&f.blendAlpha, "auto-blend-alpha", true, "Enable blending when alpha comes from a texture")
	fs.BoolVar(&f.stripFamily, "strip-subset-family", false, "Remove familyName from bound subsets")
	fs.BoolVar(&f.generateUVs, "generate-uvs", true, "Project texture coordinates for meshes without any")
	fs.StringVar(&f.interpolation, "interpolation", "", "Primvar interpolation (face-varying, per-vertex, none)")
	fs.StringVar(&f.degenerate, "degenerate", "", "Degenerate instance policy (origin-echo, keep)")
	fs.StringVar(&f.reportFile, "report", "", "Write the JSON report to this file")
	fs.StringVar(&f.textureFormat, "texture-format", "", "Texture output format (dds, png, webp)")
	fs.IntVar(&f.workers, "workers", 0, "Parallel texture conversions")
}

// toConfig returns overrides only for flags set on the command line, so
// config file values survive unset flags.
func (f *conversionFlags) toConfig(cmd *cobra.Command) config.Flags {
	fs := cmd.Flags()
	set := func(name string, v *bool) *bool {
		if fs.Changed(name) {
			return v
		}
		return nil
	}
	return config.Flags{
		UseExternalReferences: set("external", &f.external),
		ExportBinary:          set("binary", &f.binary),
		ConvertTextures:       set("textures", &f.textures),
		AutoBlendAlpha:        set("auto-blend-alpha", &f.blendAlpha),
		StripSubsetFamilyTag:  set("strip-subset-family", &f.stripFamily),
		GenerateMissingUVs:    set("generate-uvs", &f.generateUVs),
		InterpolationMode:     f.interpolation,
		DegeneratePolicy:      f.degenerate,
		ReportFile:            f.reportFile,
		TextureFormat:         f.textureFormat,
		Workers:               f.workers,
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
