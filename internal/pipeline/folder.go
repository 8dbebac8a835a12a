package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"usd-instancer/internal/atomicfile"
	"usd-instancer/internal/logging"
	"usd-instancer/internal/report"
	"usd-instancer/internal/scene"
)

// ManifestFile is written to the output folder after a folder run.
const ManifestFile = "manifest.json"

// FolderResult holds the outcome of converting one file of a folder.
type FolderResult struct {
	Input   string
	Output  string
	Result  *report.Result
	Success bool
	Error   string
}

// ManifestEntry is one line of the folder manifest.
type ManifestEntry struct {
	Input      string `json:"input"`
	Output     string `json:"output,omitempty"`
	Shape      string `json:"shape,omitempty"`
	Instancers int    `json:"instancers"`
	Instances  int    `json:"instances"`
	Issues     int    `json:"issues"`
	Error      string `json:"error,omitempty"`
}

// Inputs lists the scene documents directly inside dir, by name.
func Inputs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pipeline: list %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case scene.EncodingText.Ext(), scene.EncodingBinary.Ext():
			if !strings.Contains(e.Name(), OutputSuffix+".") {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// RunFolder converts every document in dir, one after another, each into
// its own folder under outDir. A failing file is recorded and the loop
// continues.
func RunFolder(ctx context.Context, dir, outDir string, opts Options) ([]FolderResult, error) {
	files, err := Inputs(dir)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "batch")

	total := len(files)
	results := make([]FolderResult, total)
	var processed atomic.Int64
	start := time.Now()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if p := processed.Load(); p > 0 {
					logger.Info("progress",
						logging.Int("done", int(p)),
						logging.Int("total", total),
						logging.Duration("elapsed", time.Since(start)))
				}
			}
		}
	}()

	for i, input := range files {
		if err := ctx.Err(); err != nil {
			close(done)
			return results[:i], err
		}
		results[i] = convertOne(ctx, input, outDir, opts)
		processed.Add(1)
		if !results[i].Success {
			logger.Warn("file failed", logging.Path(input), logging.String("error", results[i].Error))
		}
	}
	close(done)

	if total > 0 {
		if err := WriteManifest(filepath.Join(outDir, ManifestFile), results); err != nil {
			return results, err
		}
	}
	return results, nil
}

func convertOne(ctx context.Context, input, outDir string, opts Options) FolderResult {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	ext := scene.EncodingText.Ext()
	if opts.Config.ExportBinary {
		ext = scene.EncodingBinary.Ext()
	}
	output := filepath.Join(outDir, stem, stem+ext)

	fileOpts := opts
	if opts.Config.ReportFile != "" {
		fileOpts.Config.ReportFile = filepath.Join(outDir, stem, "report.json")
	}
	res, err := Run(ctx, input, output, fileOpts)
	if err != nil {
		return FolderResult{Input: input, Output: output, Result: res, Error: err.Error()}
	}
	return FolderResult{Input: input, Output: output, Result: res, Success: true}
}

// WriteManifest writes the folder manifest to path.
func WriteManifest(path string, results []FolderResult) error {
	entries := make([]ManifestEntry, len(results))
	for i, r := range results {
		entries[i] = ManifestEntry{Input: filepath.Base(r.Input), Error: r.Error}
		if r.Result != nil {
			entries[i].Output = r.Output
			entries[i].Shape = r.Result.Shape
			entries[i].Instancers = r.Result.Instancers
			entries[i].Instances = r.Result.TotalInstances()
			entries[i].Issues = len(r.Result.Issues)
		}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := atomicfile.WriteBytes(path, data); err != nil {
		return fmt.Errorf("pipeline: write manifest: %w", err)
	}
	return nil
}
