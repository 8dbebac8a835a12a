package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"usd-instancer/internal/collect"
	"usd-instancer/internal/config"
	"usd-instancer/internal/logging"
	"usd-instancer/internal/material"
	"usd-instancer/internal/scene"
	"usd-instancer/internal/texture"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show how a scene document would be converted, without writing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.resolved(config.Flags{})
			if err != nil {
				return err
			}
			doc, err := scene.ReadFile(args[0])
			if err != nil {
				return err
			}
			translator := material.NewTranslator(material.Options{
				AutoBlendAlpha: cfg.AutoBlendAlpha,
				BaseDir:        filepath.Dir(args[0]),
				HasAlpha:       texture.NewAlphaDetector(texture.BuildIndex(filepath.Dir(args[0]))).HasAlpha,
			})
			m, err := collect.Collect(doc, collect.Options{Translator: translator, Logger: logging.NewNop()})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(out, []string{"Field", "Value"}, [][]string{
				{"File", args[0]},
				{"Shape", m.Shape.String()},
				{"Up axis", doc.UpAxis()},
				{"Anchors", strconv.Itoa(len(m.Anchors))},
				{"Families", strconv.Itoa(len(m.Groups))},
				{"Objects", strconv.Itoa(len(m.Objects))},
				{"Instancers", strconv.Itoa(len(m.Instancers))},
				{"Materials", strconv.Itoa(len(m.Materials))},
			}, nil))

			if len(m.Groups) > 0 {
				rows := make([][]string, 0, len(m.Groups))
				for _, g := range m.Groups {
					anchor := ""
					if g.Anchor != nil && !g.Anchor.Synthetic {
						anchor = g.Anchor.Name
					}
					rows = append(rows, []string{g.Hint, g.Key, anchor, strconv.Itoa(len(g.Members)), strconv.Itoa(g.FaceCount)})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"Family", "Key", "Anchor", "Members", "Faces"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
			}

			if len(m.Materials) > 0 {
				rows := make([][]string, 0, len(m.Materials))
				for _, d := range m.Materials {
					rows = append(rows, []string{d.Name, d.Kind.String(), strings.Join(d.Params.Names(), ", ")})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Material", "Kind", "Parameters"}, rows, nil))
			}

			for _, issue := range m.Issues {
				fmt.Fprintln(out, issue.String())
			}
			return nil
		},
	}
}
