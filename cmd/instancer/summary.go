package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"usd-instancer/internal/report"
)

// printSummary writes the aggregated report of one run. Recoverable
// problems are only visible here, so it is printed even in quiet mode.
func printSummary(w io.Writer, res *report.Result) {
	rows := [][]string{
		{"Output", res.Output},
		{"Input shape", res.Shape},
		{"Instancers", strconv.Itoa(res.Instancers)},
		{"Instances", strconv.Itoa(res.TotalInstances())},
		{"Objects", strconv.Itoa(res.Objects)},
		{"Materials", strconv.Itoa(res.Materials)},
		{"External files", strconv.Itoa(len(res.ExternalFiles))},
		{"Textures", fmt.Sprintf("%d new, %d cached, %d existing, %d failed",
			res.Textures.New, res.Textures.Cached, res.Textures.SkippedExisting, res.Textures.Failed)},
		{"UVs", fmt.Sprintf("%d generated, %d missing, %d failed",
			len(res.UVGenerated), len(res.UVMissing), len(res.UVFailed))},
		{"Marker", markerText(res.Marker)},
		{"Duration", res.Duration.Round(time.Millisecond).String()},
	}
	fmt.Fprintln(w, renderTable(w, []string{"Field", "Value"}, rows, nil))

	if len(res.Prototypes) > 0 {
		rows = nil
		for _, p := range res.Prototypes {
			rows = append(rows, []string{p.Name, p.Instancer, strconv.Itoa(p.Instances), strconv.Itoa(p.Faces), p.External})
		}
		fmt.Fprintln(w, renderTable(w,
			[]string{"Prototype", "Instancer", "Instances", "Faces", "File"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
	}

	if len(res.TextureFailures) > 0 {
		rows = nil
		for _, f := range res.TextureFailures {
			rows = append(rows, []string{f.Source, f.Role, f.Reason})
		}
		fmt.Fprintln(w, renderTable(w, []string{"Texture", "Role", "Reason"}, rows, nil))
	}

	if counts := res.CodeCounts(); len(counts) > 0 {
		rows = nil
		for _, c := range counts {
			rows = append(rows, []string{string(c.Code), strconv.Itoa(c.Count)})
		}
		fmt.Fprintln(w, renderTable(w, []string{"Issue", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
}

func markerText(m report.Marker) string {
	var b strings.Builder
	if m.Found {
		fmt.Fprintf(&b, "found %s", m.Path)
	} else {
		b.WriteString("not found")
	}
	fmt.Fprintf(&b, "; schema in %s", m.MaterialsDir)
	if m.SchemaInstalled {
		b.WriteString(" (installed)")
	}
	return b.String()
}
