package emit

import (
	"context"
	"path/filepath"

	"usd-instancer/internal/logging"
	"usd-instancer/internal/report"
	"usd-instancer/internal/texture"
)

// convertTextures produces every texture the documents point at into the
// shared textures folder. Requests for the same stem are deduplicated by
// the orchestrator.
func (e *emitter) convertTextures(ctx context.Context, docs []*document) []texture.Outcome {
	dir := filepath.Join(e.outDir, TexturesDir)
	var reqs []texture.Request
	for _, d := range docs {
		for _, t := range d.textures {
			reqs = append(reqs, texture.RequestFor(t, dir, e.opts.TextureExt))
		}
	}
	if len(reqs) == 0 {
		return nil
	}

	outs := e.opts.Textures.Run(ctx, reqs)
	seen := map[string]bool{}
	for _, o := range outs {
		if o.Status != texture.StatusFailed || seen[o.Dest] {
			continue
		}
		seen[o.Dest] = true
		if o.Missing {
			e.issue(report.TextureMissing, o.Source, "%s texture not found", o.Role)
			e.logger.Warn("texture not found", logging.Path(o.Source), logging.String("role", string(o.Role)))
			continue
		}
		e.issue(report.TextureFailed, o.Source, "%s", o.Reason)
	}
	return outs
}
