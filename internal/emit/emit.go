// Package emit writes a converted model as output documents: the primary
// document, one file per external prototype, converted textures and the
// shared material schema file.
package emit

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"usd-instancer/internal/atomicfile"
	"usd-instancer/internal/config"
	"usd-instancer/internal/convert"
	"usd-instancer/internal/logging"
	"usd-instancer/internal/material"
	"usd-instancer/internal/report"
	"usd-instancer/internal/scene"
	"usd-instancer/internal/texture"
)

//go:embed AperturePBR_Opacity.usda
var schemaDoc []byte

// ErrOutputLocked is returned when another run holds the output path.
var ErrOutputLocked = errors.New("emit: output is locked by another run")

// Layout names.
const (
	MarkerFile   = "mod.usda"
	MaterialsDir = "materials"
	TexturesDir  = "textures"
)

// Options configures Emit.
type Options struct {
	OutputPath            string
	Encoding              scene.Encoding
	UseExternalReferences bool
	Interpolation         string
	GenerateMissingUVs    bool
	StripSubsetFamilyTag  bool
	// TextureExt is the extension written into texture asset paths.
	TextureExt string
	// Textures converts referenced textures; nil leaves them untouched.
	Textures *texture.Orchestrator
	Logger   *slog.Logger
}

// Result is what Emit produced.
type Result struct {
	Output        string
	ExternalFiles []string
	Textures      []texture.Outcome
	Marker        report.Marker
	Issues        []report.Issue
}

// Emit builds and writes every output document for out. Documents are
// written only after all of them are built, each through a temporary file.
func Emit(ctx context.Context, out *convert.Output, opts Options) (*Result, error) {
	if opts.Interpolation == "" {
		opts.Interpolation = config.InterpolationFaceVarying
	}
	if opts.TextureExt == "" {
		opts.TextureExt = ".dds"
	}
	logger := logging.NewComponentLogger(opts.Logger, "emit")

	outPath, err := filepath.Abs(opts.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("emit: resolve %s: %w", opts.OutputPath, err)
	}
	outDir := filepath.Dir(outPath)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("emit: create %s: %w", outDir, err)
	}

	lock := flock.New(outPath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("emit: lock %s: %w", outPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, outPath)
	}
	defer func() {
		lock.Unlock()
		os.Remove(lock.Path())
	}()

	res := &Result{Output: outPath, Marker: LocateMarker(outDir)}
	e := &emitter{
		out:    out,
		opts:   opts,
		outDir: outDir,
		marker: res.Marker,
		logger: logger,
	}

	main := e.buildMain()
	var files []*document
	if opts.UseExternalReferences {
		for _, ext := range out.External {
			files = append(files, e.buildExternal(ext))
		}
	}
	docs := append([]*document{main}, files...)

	for _, d := range docs {
		e.fixMeshes(d)
	}
	if opts.Textures != nil {
		res.Textures = e.convertTextures(ctx, docs)
	}
	for _, d := range docs {
		e.assignBindings(d)
	}
	if opts.UseExternalReferences {
		removed := pruneUnusedMaterials(main)
		if removed > 0 {
			logger.Debug("unused materials removed", logging.Int("count", removed))
		}
	}

	// Every document is staged before any is moved into place.
	var staging atomicfile.Staging
	defer staging.Discard()
	for _, d := range append(files, main) {
		if err := staging.Stage(d.path, func(w io.Writer) error {
			return scene.Encode(w, d.doc, opts.Encoding)
		}); err != nil {
			return nil, fmt.Errorf("emit: %w", err)
		}
	}
	if err := staging.Commit(); err != nil {
		return nil, fmt.Errorf("emit: %w", err)
	}
	for _, d := range files {
		res.ExternalFiles = append(res.ExternalFiles, d.path)
		logger.Debug("external prototype written", logging.Path(d.path))
	}

	installed, err := installSchema(res.Marker.MaterialsDir)
	if err != nil {
		logger.Warn("material schema not installed", logging.Error(err))
	}
	res.Marker.SchemaInstalled = installed

	res.Issues = e.issues
	logger.Info("emitted",
		logging.Path(outPath),
		logging.Int("external_files", len(res.ExternalFiles)),
		logging.Int("textures", len(res.Textures)),
		logging.Int("issues", len(res.Issues)),
	)
	return res, nil
}

type emitter struct {
	out    *convert.Output
	opts   Options
	outDir string
	marker report.Marker
	logger *slog.Logger
	issues []report.Issue
}

func (e *emitter) issue(code report.IssueCode, path, format string, args ...any) {
	e.issues = append(e.issues, report.NewIssue(code, path, format, args...))
}

// LocateMarker walks from dir towards the filesystem root looking for the
// project marker file. Without one the materials folder sits next to the
// output.
func LocateMarker(dir string) report.Marker {
	for cur := dir; ; {
		candidate := filepath.Join(cur, MarkerFile)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return report.Marker{
				Found:        true,
				Path:         candidate,
				MaterialsDir: filepath.Join(cur, MaterialsDir),
			}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return report.Marker{MaterialsDir: filepath.Join(dir, MaterialsDir)}
}

// installSchema writes the shared schema file unless one already exists.
func installSchema(dir string) (bool, error) {
	target := filepath.Join(dir, material.SchemaFile)
	if _, err := os.Stat(target); err == nil {
		return false, nil
	}
	if err := atomicfile.WriteBytes(target, schemaDoc); err != nil {
		return false, fmt.Errorf("emit: install %s: %w", target, err)
	}
	return true, nil
}

// relAsset returns target relative to fromDir with forward slashes and an
// explicit "./" for paths that do not climb.
func relAsset(fromDir, target string) string {
	rel, err := filepath.Rel(fromDir, target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel
}
