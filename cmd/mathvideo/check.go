package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/mathvideo/internal/render"
)

func newCheckCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify python, manim and ffmpeg are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results := render.CheckBinaries(cmd.Context(), root.cfg.Render.Python, root.cfg.Render.FFmpeg)
			rows := make([][]string, 0, len(results))
			failed := 0
			for _, r := range results {
				status := "ok"
				if !r.Passed {
					status = "missing"
					failed++
				}
				rows = append(rows, []string{r.Name, status, r.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Dependency", "Status", "Detail"}, rows))
			if failed > 0 {
				return errors.New("required tools are missing")
			}
			return nil
		},
	}
}
