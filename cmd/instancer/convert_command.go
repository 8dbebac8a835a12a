package main

import (
	"encoding/json"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"usd-instancer/internal/pipeline"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var flags conversionFlags
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "convert <input> [output]",
		Short: "Convert one scene document",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.resolved(flags.toConfig(cmd))
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cfg)
			if err != nil {
				return err
			}
			output := ""
			if len(args) == 2 {
				output = args[1]
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			res, err := pipeline.Run(runCtx, args[0], output, pipeline.Options{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printSummary(out, res)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the report as JSON")
	return cmd
}
