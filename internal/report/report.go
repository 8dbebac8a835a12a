// Package report holds the aggregated outcome of a conversion run.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"usd-instancer/internal/atomicfile"
)

// IssueCode classifies a recoverable problem.
type IssueCode string

const (
	UnresolvedReference IssueCode = "unresolved-reference"
	UnresolvedPrototype IssueCode = "unresolved-prototype"
	UnknownMaterial     IssueCode = "unknown-material"
	GeometrySkipped     IssueCode = "geometry-skipped"
	TextureMissing      IssueCode = "texture-missing"
	TextureFailed       IssueCode = "texture-failed"
	UVGenerated         IssueCode = "uv-generated"
	UVMissing           IssueCode = "uv-missing"
	UVFailed            IssueCode = "uv-failed"
)

// Issue is one recoverable problem. Recoverable problems never stop a run;
// they surface only here.
type Issue struct {
	Code    IssueCode `json:"code"`
	Path    string    `json:"path"`
	Message string    `json:"message,omitempty"`
}

func (i Issue) String() string {
	if i.Message == "" {
		return fmt.Sprintf("%s %s", i.Code, i.Path)
	}
	return fmt.Sprintf("%s %s: %s", i.Code, i.Path, i.Message)
}

// Prototype is the per-prototype line of the report.
type Prototype struct {
	Name      string `json:"name"`
	Instancer string `json:"instancer"`
	Instances int    `json:"instances"`
	Faces     int    `json:"faces"`
	External  string `json:"external,omitempty"`
}

// TextureFailure records a texture that could not be produced.
type TextureFailure struct {
	Source string `json:"source"`
	Role   string `json:"role"`
	Reason string `json:"reason"`
}

// TextureCounts tallies texture outcomes.
type TextureCounts struct {
	New             int `json:"new"`
	Cached          int `json:"cached"`
	SkippedExisting int `json:"skipped_existing"`
	Failed          int `json:"failed"`
}

// Marker describes the project marker lookup and the schema file install.
type Marker struct {
	Found           bool   `json:"found"`
	Path            string `json:"path,omitempty"`
	MaterialsDir    string `json:"materials_dir"`
	SchemaInstalled bool   `json:"schema_installed"`
}

// Result is returned to the caller of a run.
type Result struct {
	RunID           string           `json:"run_id"`
	Input           string           `json:"input"`
	Output          string           `json:"output"`
	Shape           string           `json:"shape"`
	Instancers      int              `json:"instancers"`
	Objects         int              `json:"objects"`
	Materials       int              `json:"materials"`
	ExternalFiles   []string         `json:"external_files,omitempty"`
	Prototypes      []Prototype      `json:"prototypes,omitempty"`
	Textures        TextureCounts    `json:"textures"`
	TextureFailures []TextureFailure `json:"texture_failures,omitempty"`
	UVGenerated     []string         `json:"uv_generated,omitempty"`
	UVMissing       []string         `json:"uv_missing,omitempty"`
	UVFailed        []string         `json:"uv_failed,omitempty"`
	Marker          Marker           `json:"marker"`
	Issues          []Issue          `json:"issues,omitempty"`
	Duration        time.Duration    `json:"duration_ns"`
}

// NewIssue formats an issue message.
func NewIssue(code IssueCode, path, format string, args ...any) Issue {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return Issue{Code: code, Path: path, Message: msg}
}

// Add records an issue. UV outcomes are also kept in their own lists.
func (r *Result) Add(code IssueCode, path, format string, args ...any) {
	r.Issues = append(r.Issues, NewIssue(code, path, format, args...))
	switch code {
	case UVGenerated:
		r.UVGenerated = append(r.UVGenerated, path)
	case UVMissing:
		r.UVMissing = append(r.UVMissing, path)
	case UVFailed:
		r.UVFailed = append(r.UVFailed, path)
	}
}

// Merge appends issues collected elsewhere.
func (r *Result) Merge(issues []Issue) {
	for _, i := range issues {
		r.Add(i.Code, i.Path, "%s", i.Message)
	}
}

// IssuesOf returns the issues with the given code.
func (r *Result) IssuesOf(code IssueCode) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Code == code {
			out = append(out, i)
		}
	}
	return out
}

// CodeCounts returns the number of issues per code, sorted by code.
func (r *Result) CodeCounts() []CodeCount {
	m := map[IssueCode]int{}
	for _, i := range r.Issues {
		m[i.Code]++
	}
	out := make([]CodeCount, 0, len(m))
	for c, n := range m {
		out = append(out, CodeCount{Code: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

type CodeCount struct {
	Code  IssueCode
	Count int
}

// TotalInstances sums instance counts over all prototypes.
func (r *Result) TotalInstances() int {
	n := 0
	for _, p := range r.Prototypes {
		n += p.Instances
	}
	return n
}

// WriteJSON writes results as indented JSON to path.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	if err := atomicfile.WriteBytes(path, data); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}
