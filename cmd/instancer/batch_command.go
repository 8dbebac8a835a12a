package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"usd-instancer/internal/pipeline"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var flags conversionFlags

	cmd := &cobra.Command{
		Use:   "batch <dir> <output-dir>",
		Short: "Convert every scene document in a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.resolved(flags.toConfig(cmd))
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cfg)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			results, err := pipeline.RunFolder(runCtx, args[0], args[1], pipeline.Options{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintf(out, "No scene documents in %s\n", args[0])
				return nil
			}
			failed := 0
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				if !r.Success {
					failed++
					rows = append(rows, []string{r.Input, "failed", "", "", r.Error})
					continue
				}
				rows = append(rows, []string{
					r.Input,
					r.Result.Shape,
					strconv.Itoa(r.Result.Instancers),
					strconv.Itoa(r.Result.TotalInstances()),
					strconv.Itoa(len(r.Result.Issues)),
				})
			}
			fmt.Fprintln(out, renderTable(out,
				[]string{"Input", "Shape", "Instancers", "Instances", "Issues"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
			fmt.Fprintf(out, "%d converted, %d failed\n", len(results)-failed, failed)
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(results))
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
