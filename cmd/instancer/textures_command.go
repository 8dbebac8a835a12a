package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"usd-instancer/internal/config"
	"usd-instancer/internal/texture"
)

func newTexturesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "textures",
		Short: "Texture conversion utilities",
	}
	cmd.AddCommand(newTexturesCheckCommand(ctx))
	return cmd
}

func newTexturesCheckCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the configured texture transcoder is available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.resolved(config.Flags{TextureFormat: format})
			if err != nil {
				return err
			}
			tc, err := texture.New(cfg.Texture)
			if err != nil {
				return err
			}

			checkCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			checkErr := tc.Check(checkCtx)

			out := cmd.OutOrStdout()
			status := "available"
			if checkErr != nil {
				status = checkErr.Error()
			}
			fmt.Fprintln(out, renderTable(out, []string{"Field", "Value"}, [][]string{
				{"Format", cfg.Texture.Format},
				{"Transcoder", tc.Name()},
				{"Output extension", tc.Ext()},
				{"GPU", yesNo(cfg.Texture.UseGPU)},
				{"Status", status},
			}, nil))
			if checkErr != nil {
				return fmt.Errorf("transcoder unavailable: %w", checkErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Texture output format to check (dds, png, webp)")
	return cmd
}
