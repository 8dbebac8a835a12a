// Package pipeline runs a conversion: read the input, collect, convert,
// emit and report.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"usd-instancer/internal/collect"
	"usd-instancer/internal/config"
	"usd-instancer/internal/convert"
	"usd-instancer/internal/emit"
	"usd-instancer/internal/logging"
	"usd-instancer/internal/material"
	"usd-instancer/internal/report"
	"usd-instancer/internal/scene"
	"usd-instancer/internal/texture"
)

// OutputSuffix is appended to the input name when no output is given.
const OutputSuffix = "_instanced"

// Options configures Run.
type Options struct {
	Config config.Config
	Logger *slog.Logger
	// Transcoder replaces the one built from Config.Texture.
	Transcoder texture.Transcoder
}

// DefaultOutput is the output path used for input when none is given: a
// sibling named <stem>_instanced with the configured extension.
func DefaultOutput(input string, binary bool) string {
	ext := scene.EncodingText.Ext()
	if binary {
		ext = scene.EncodingBinary.Ext()
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), stem+OutputSuffix+ext)
}

// Run converts the document at input and writes it to output. Recoverable
// problems end up in the returned Result; an error means nothing was
// written under the output name.
func Run(ctx context.Context, input, output string, opts Options) (*report.Result, error) {
	start := time.Now()
	cfg := opts.Config
	runID := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldRunID, runID))

	if output == "" {
		output = DefaultOutput(input, cfg.ExportBinary)
	}
	enc := scene.EncodingText
	if cfg.ExportBinary {
		enc = scene.EncodingBinary
	}
	baseDir := filepath.Dir(input)

	doc, err := scene.ReadFile(input)
	if err != nil {
		return nil, err
	}
	logger.Info("input loaded", logging.Path(input))

	index := texture.BuildIndex(baseDir)
	translator := material.NewTranslator(material.Options{
		AutoBlendAlpha: cfg.AutoBlendAlpha,
		BaseDir:        baseDir,
		HasAlpha:       texture.NewAlphaDetector(index).HasAlpha,
	})
	model, err := collect.Collect(doc, collect.Options{Translator: translator, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("pipeline: collect %s: %w", input, err)
	}

	policy, err := convert.PolicyByName(cfg.DegeneratePolicy)
	if err != nil {
		return nil, err
	}
	out := convert.Convert(model, convert.Options{
		UseExternalReferences: cfg.UseExternalReferences,
		Policy:                policy,
		Ext:                   enc.Ext(),
		Logger:                logger,
	})

	emitOpts := emit.Options{
		OutputPath:            output,
		Encoding:              enc,
		UseExternalReferences: cfg.UseExternalReferences,
		Interpolation:         cfg.InterpolationMode,
		GenerateMissingUVs:    cfg.GenerateMissingUVs,
		StripSubsetFamilyTag:  cfg.StripSubsetFamilyTag,
		Logger:                logger,
	}
	if cfg.ConvertTextures {
		tc, err := transcoderFor(ctx, cfg.Texture, opts.Transcoder, logger)
		if err != nil {
			return nil, err
		}
		emitOpts.TextureExt = tc.Ext()
		emitOpts.Textures = texture.NewOrchestrator(texture.Options{
			BaseDir:     baseDir,
			Index:       index,
			Transcoder:  tc,
			Workers:     cfg.Texture.Workers,
			NormalStyle: cfg.Texture.NormalStyle,
			Logger:      logger,
		})
	}

	emitted, err := emit.Emit(ctx, out, emitOpts)
	if err != nil {
		return nil, err
	}

	res := &report.Result{
		RunID:         runID,
		Input:         input,
		Output:        emitted.Output,
		Shape:         model.Shape.String(),
		Instancers:    len(out.Instancers) + len(out.Existing),
		Objects:       len(out.Objects),
		Materials:     len(out.Materials),
		ExternalFiles: relativeTo(filepath.Dir(emitted.Output), emitted.ExternalFiles),
		Prototypes:    prototypes(out),
		Marker:        emitted.Marker,
	}
	res.Textures, res.TextureFailures = texture.Tally(emitted.Textures)
	res.Merge(model.Issues)
	res.Merge(emitted.Issues)
	res.Duration = time.Since(start)

	if cfg.ReportFile != "" {
		if err := report.WriteJSON(cfg.ReportFile, res); err != nil {
			return res, err
		}
	}
	logger.Info("conversion finished",
		logging.Path(res.Output),
		logging.Int("instancers", res.Instancers),
		logging.Int("instances", res.TotalInstances()),
		logging.Int("issues", len(res.Issues)),
		logging.Duration("duration", res.Duration),
	)
	return res, nil
}

// transcoderFor builds the configured transcoder. One that fails its check
// is kept but fails every job, so each texture is reported.
func transcoderFor(ctx context.Context, cfg config.Texture, override texture.Transcoder, logger *slog.Logger) (texture.Transcoder, error) {
	tc := override
	if tc == nil {
		var err error
		if tc, err = texture.New(cfg); err != nil {
			return nil, err
		}
	}
	if err := tc.Check(ctx); err != nil {
		logger.Warn("texture transcoder unavailable", logging.String("transcoder", tc.Name()), logging.Error(err))
		return unavailable{Transcoder: tc, err: err}, nil
	}
	return tc, nil
}

type unavailable struct {
	texture.Transcoder
	err error
}

func (u unavailable) Transcode(context.Context, texture.Job) error {
	return fmt.Errorf("%s unavailable: %w", u.Name(), u.err)
}

func prototypes(out *convert.Output) []report.Prototype {
	var lines []report.Prototype
	for _, in := range out.Instancers {
		p := report.Prototype{
			Name:      in.Prototype.Name,
			Instancer: in.Path,
			Instances: len(in.Placements),
			Faces:     in.FaceCount,
		}
		if in.Prototype.External != nil {
			p.External = in.Prototype.External.File
		}
		lines = append(lines, p)
	}
	for _, ex := range out.Existing {
		counts := protoCounts(ex.Source)
		for i, target := range ex.Source.Prototypes {
			p := report.Prototype{
				Name:      scene.BaseName(target),
				Instancer: ex.Path,
				Instances: counts[i],
			}
			if i < len(ex.Source.FaceCounts) {
				p.Faces = ex.Source.FaceCounts[i]
			}
			lines = append(lines, p)
		}
	}
	return lines
}

// protoCounts counts the instances of each prototype of an input
// instancer. Without protoIndices every instance uses the first prototype.
func protoCounts(in *collect.Instancer) []int {
	counts := make([]int, len(in.Prototypes))
	if len(counts) == 0 {
		return counts
	}
	a := in.Node.Attr("protoIndices")
	if a == nil {
		counts[0] = in.InstanceCount
		return counts
	}
	idx, _ := a.Ints()
	for _, i := range idx {
		if i >= 0 && int(i) < len(counts) {
			counts[i]++
		}
	}
	return counts
}

func relativeTo(dir string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if rel, err := filepath.Rel(dir, p); err == nil {
			out[i] = filepath.ToSlash(rel)
		} else {
			out[i] = p
		}
	}
	return out
}
