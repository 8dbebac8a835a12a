package texture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/HugoSmits86/nativewebp"

	"usd-instancer/internal/atomicfile"
	"usd-instancer/internal/config"
	"usd-instancer/internal/material"
)

// Job is one transcode of an input image file into Output.
type Job struct {
	Input  string
	Output string
	Role   material.Role
	Gamma  material.Gamma
}

// Transcoder turns source images into renderer-ready texture files.
type Transcoder interface {
	Name() string
	// Ext is the extension of produced files, with the dot.
	Ext() string
	// Accepts reports whether input files with ext are read directly.
	Accepts(ext string) bool
	Check(ctx context.Context) error
	Transcode(ctx context.Context, job Job) error
}

// New returns the transcoder for the configured output format.
func New(cfg config.Texture) (Transcoder, error) {
	switch cfg.Format {
	case config.FormatPNG, config.FormatWebP:
		return &Native{Format: cfg.Format}, nil
	case config.FormatDDS, "":
		args, err := cfg.Args()
		if err != nil {
			return nil, err
		}
		return &External{
			Path:      cfg.Transcoder,
			UseGPU:    cfg.UseGPU,
			Quality:   cfg.Quality,
			ExtraArgs: args,
			Attempts:  defaultAttempts,
		}, nil
	}
	return nil, fmt.Errorf("texture: unsupported format %q", cfg.Format)
}

const (
	defaultAttempts = 3
	checkTimeout    = 10 * time.Second
)

// runFunc runs an executable and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// External drives a block-compression command line tool.
type External struct {
	Path      string
	UseGPU    bool
	Quality   int
	ExtraArgs []string
	Attempts  int

	run runFunc
}

func (e *External) Name() string { return filepath.Base(e.Path) }

func (e *External) Ext() string { return ".dds" }

var externalInputs = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tga": true,
	".bmp": true, ".tif": true, ".tiff": true, ".dds": true,
}

func (e *External) Accepts(ext string) bool {
	return externalInputs[strings.ToLower(ext)]
}

func (e *External) runner() runFunc {
	if e.run != nil {
		return e.run
	}
	return execRun
}

// Check runs the tool with --version.
func (e *External) Check(ctx context.Context) error {
	if e.Path == "" {
		return errors.New("texture: no transcoder configured")
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if out, err := e.runner()(ctx, e.Path, "--version"); err != nil {
		return fmt.Errorf("texture: check %s: %w: %s", e.Path, err, firstLine(out))
	}
	return nil
}

// BlockFormat returns the compression format used for role.
func BlockFormat(role material.Role) string {
	switch role {
	case material.RoleNormal:
		return "bc5"
	case material.RoleRoughness, material.RoleMetallic, material.RoleOpacity,
		material.RoleHeight, material.RoleMask:
		return "bc4"
	}
	return "bc7"
}

// Args returns the command line converting job.Input into output.
func (e *External) Args(job Job, output string) []string {
	var args []string
	if !e.UseGPU {
		args = append(args, "--no-cuda")
	}
	args = append(args, job.Input, "-o", output,
		"-f", BlockFormat(job.Role),
		"-q", qualityName(e.Quality))
	if job.Gamma == material.GammaSRGB {
		args = append(args, "--mip-gamma-correct")
	} else {
		args = append(args, "--no-mip-gamma-correct")
	}
	args = append(args, "--mips")
	return append(args, e.ExtraArgs...)
}

// qualityName maps a 0-100 quality to the tool's presets.
func qualityName(q int) string {
	switch {
	case q < 25:
		return "fastest"
	case q < 60:
		return "normal"
	case q < 90:
		return "production"
	}
	return "highest"
}

// TimeoutFor scales the per-call deadline with the input size.
func TimeoutFor(size int64) time.Duration {
	const mb = 1 << 20
	switch {
	case size < mb:
		return 30 * time.Second
	case size < 10*mb:
		return 60 * time.Second
	}
	return 120 * time.Second
}

// Transcode runs the tool into a temporary sibling of job.Output and renames
// it into place. Failed attempts are retried up to Attempts times.
func (e *External) Transcode(ctx context.Context, job Job) error {
	info, err := os.Stat(job.Input)
	if err != nil {
		return fmt.Errorf("texture: stat %s: %w", job.Input, err)
	}
	if err := os.MkdirAll(filepath.Dir(job.Output), 0755); err != nil {
		return fmt.Errorf("texture: create %s: %w", filepath.Dir(job.Output), err)
	}
	tmp := strings.TrimSuffix(job.Output, e.Ext()) + ".partial" + e.Ext()
	defer os.Remove(tmp)

	attempts := max(e.Attempts, 1)
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = e.attempt(ctx, job, tmp, TimeoutFor(info.Size()))
		if lastErr == nil {
			if err := os.Rename(tmp, job.Output); err != nil {
				return fmt.Errorf("texture: replace %s: %w", job.Output, err)
			}
			return nil
		}
		os.Remove(tmp)
	}
	return lastErr
}

func (e *External) attempt(ctx context.Context, job Job, tmp string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := e.runner()(ctx, e.Path, e.Args(job, tmp)...)
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("texture: %s timed out after %s", e.Name(), timeout)
	}
	if err != nil {
		return fmt.Errorf("texture: %s: %w: %s", e.Name(), err, firstLine(out))
	}
	if info, err := os.Stat(tmp); err != nil || info.Size() == 0 {
		return fmt.Errorf("texture: %s produced no output: %s", e.Name(), firstLine(out))
	}
	return nil
}

func firstLine(out []byte) string {
	out = bytes.TrimSpace(out)
	if i := bytes.IndexByte(out, '\n'); i >= 0 {
		out = out[:i]
	}
	return string(out)
}

// Native re-encodes images in process as PNG or lossless WebP.
type Native struct {
	Format string
}

func (n *Native) Name() string { return "native-" + n.Format }

func (n *Native) Ext() string { return "." + n.Format }

func (n *Native) Accepts(ext string) bool { return extRank(strings.ToLower(ext)) >= 0 }

func (n *Native) Check(context.Context) error { return nil }

func (n *Native) Transcode(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := Load(job.Input)
	if err != nil {
		return err
	}
	return atomicfile.Write(job.Output, func(w io.Writer) error {
		if n.Format == config.FormatWebP {
			return nativewebp.Encode(w, img, nil)
		}
		return png.Encode(w, img)
	})
}
