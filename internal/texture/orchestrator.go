// Package texture resolves, preprocesses and transcodes the textures
// referenced by converted materials.
package texture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"usd-instancer/internal/atomicfile"
	"usd-instancer/internal/config"
	"usd-instancer/internal/logging"
	"usd-instancer/internal/material"
	"usd-instancer/internal/report"
)

// Status is the outcome class of one request.
type Status string

const (
	StatusNew     Status = "new"
	StatusCached  Status = "cached"
	StatusSkipped Status = "skipped-existing"
	StatusFailed  Status = "failed"
)

// Request asks for the texture at Dest to be produced from Source.
type Request struct {
	Dest        string
	Source      string
	Role        material.Role
	Gamma       material.Gamma
	Derive      material.Derivation
	AlphaSource string
}

// RequestFor builds the request producing t as dir/<stem><ext>.
func RequestFor(t *material.Texture, dir, ext string) Request {
	return Request{
		Dest:        filepath.Join(dir, t.Stem+ext),
		Source:      t.Source,
		Role:        t.Role,
		Gamma:       t.Gamma,
		Derive:      t.Derive,
		AlphaSource: t.AlphaSource,
	}
}

// Outcome reports what happened to one request.
type Outcome struct {
	Request
	Status   Status
	Resolved string
	// Missing is set when no source file could be found.
	Missing bool
	Reason  string
}

// Derived reports whether the texture was produced from a donor image.
func (o Outcome) Derived() bool {
	return o.Derive != material.DeriveNone
}

// Options configures an Orchestrator.
type Options struct {
	// BaseDir is the directory of the source document; sources are looked
	// up relative to it.
	BaseDir     string
	Index       *Index
	Transcoder  Transcoder
	Workers     int
	NormalStyle string
	Logger      *slog.Logger
}

// Orchestrator runs texture requests for one conversion. Conversions are
// remembered across calls to Run.
type Orchestrator struct {
	opts   Options
	index  *Index
	cache  *Cache
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator. A nil Index is built from
// BaseDir.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	idx := opts.Index
	if idx == nil {
		idx = BuildIndex(opts.BaseDir)
	}
	return &Orchestrator{
		opts:   opts,
		index:  idx,
		cache:  NewCache(),
		logger: logging.NewComponentLogger(opts.Logger, "texture"),
	}
}

// Run processes reqs and returns one outcome per request, in order.
// Failures are recorded in the outcomes and never abort the batch.
func (o *Orchestrator) Run(ctx context.Context, reqs []Request) []Outcome {
	outs := make([]Outcome, len(reqs))
	keys := make([]Key, len(reqs))
	first := map[Key]int{}
	var pending []int
	var dups [][2]int

	for i, r := range reqs {
		outs[i].Request = r
		src, ok := o.index.ResolvePath(r.Source)
		if !ok {
			outs[i].Status = StatusFailed
			outs[i].Missing = true
			outs[i].Reason = "source not found"
			o.logger.Warn("texture source not found",
				logging.Path(r.Source), logging.String("role", string(r.Role)))
			continue
		}
		outs[i].Resolved = src

		alpha := ""
		if r.AlphaSource != "" {
			if a, ok := o.index.ResolvePath(r.AlphaSource); ok {
				alpha = a
			} else {
				o.logger.Warn("opacity source not found, converting without alpha",
					logging.Path(r.AlphaSource))
			}
		}
		k := Key{Source: src, Role: r.Role, Derive: r.Derive, Alpha: alpha}
		keys[i] = k

		if j, dup := first[k]; dup {
			dups = append(dups, [2]int{i, j})
			continue
		}
		first[k] = i

		if dest, reason, ok := o.cache.Lookup(k); ok {
			o.reuse(&outs[i], dest, reason)
			continue
		}
		if nonEmpty(r.Dest) {
			outs[i].Status = StatusSkipped
			o.cache.Store(k, r.Dest, "")
			o.logger.Debug("texture exists", logging.Path(r.Dest))
			continue
		}
		pending = append(pending, i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for _, i := range pending {
		g.Go(func() error {
			o.convert(gctx, &outs[i], keys[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, d := range dups {
		src := outs[d[1]]
		reason := ""
		if src.Status == StatusFailed {
			reason = src.Reason
		}
		o.reuse(&outs[d[0]], src.Dest, reason)
	}
	return outs
}

// reuse completes out from an earlier conversion.
func (o *Orchestrator) reuse(out *Outcome, dest, reason string) {
	if reason != "" {
		out.Status = StatusFailed
		out.Reason = reason
		return
	}
	if dest != out.Dest {
		if err := copyFile(dest, out.Dest); err != nil {
			out.Status = StatusFailed
			out.Reason = err.Error()
			return
		}
	}
	out.Status = StatusCached
}

func (o *Orchestrator) convert(ctx context.Context, out *Outcome, k Key) {
	log := o.logger.With(logging.Path(out.Resolved), logging.String("role", string(out.Role)))

	input, cleanup, err := o.prepare(out.Request, out.Resolved, k.Alpha)
	if err == nil {
		defer cleanup()
		err = o.opts.Transcoder.Transcode(ctx, Job{
			Input:  input,
			Output: out.Dest,
			Role:   out.Role,
			Gamma:  out.Gamma,
		})
	}
	if err != nil {
		out.Status = StatusFailed
		out.Reason = err.Error()
		o.cache.Store(k, out.Dest, out.Reason)
		log.Warn("texture conversion failed", logging.Error(err))
		return
	}
	out.Status = StatusNew
	o.cache.Store(k, out.Dest, "")
	log.Debug("texture converted", logging.String("dest", out.Dest))
}

// prepare returns the file handed to the transcoder. Sources that need
// pixel work are rendered to a temporary PNG removed by cleanup.
func (o *Orchestrator) prepare(r Request, src, alpha string) (string, func(), error) {
	noop := func() {}
	flip := r.Role == material.RoleNormal && r.Derive == material.DeriveNone &&
		NormalStyle(src, o.opts.NormalStyle) == config.NormalOGL
	if r.Derive == material.DeriveNone && alpha == "" && !flip && o.opts.Transcoder.Accepts(filepath.Ext(src)) {
		return src, noop, nil
	}

	img, err := Load(src)
	if err != nil {
		return "", noop, err
	}
	switch r.Derive {
	case material.DeriveGrayscale:
		img = Grayscale(img)
	case material.DeriveInvert:
		img = InvertGray(img)
	case material.DeriveNormal:
		img = BumpToNormal(img, bumpStrength)
	}
	if flip {
		FlipGreen(img)
	}
	if alpha != "" {
		a, err := Load(alpha)
		if err != nil {
			o.logger.Warn("opacity source unreadable, converting without alpha",
				logging.Path(alpha), logging.Error(err))
		} else {
			img = CombineAlpha(img, a)
		}
	}

	dir, err := os.MkdirTemp("", "instancer-tex-*")
	if err != nil {
		return "", noop, fmt.Errorf("texture: temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }
	stem := strings.TrimSuffix(filepath.Base(r.Dest), filepath.Ext(r.Dest))
	path := filepath.Join(dir, stem+".png")
	if err := savePNG(path, img); err != nil {
		cleanup()
		return "", noop, err
	}
	return path, cleanup, nil
}

// Tally sums outcomes into report counters and failures.
func Tally(outs []Outcome) (report.TextureCounts, []report.TextureFailure) {
	var counts report.TextureCounts
	var failures []report.TextureFailure
	for _, out := range outs {
		switch out.Status {
		case StatusNew:
			counts.New++
		case StatusCached:
			counts.Cached++
		case StatusSkipped:
			counts.SkippedExisting++
		case StatusFailed:
			counts.Failed++
			failures = append(failures, report.TextureFailure{
				Source: out.Source,
				Role:   string(out.Role),
				Reason: out.Reason,
			})
		}
	}
	return counts, failures
}

func nonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("texture: open %s: %w", src, err)
	}
	defer in.Close()
	return atomicfile.Write(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}
