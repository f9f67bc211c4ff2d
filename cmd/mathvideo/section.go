package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/mathvideo/internal/app"
	"github.com/example/mathvideo/internal/orchestrator"
)

func newSectionCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "section",
		Short: "Rework a single section of an existing project",
	}

	op := func(use, short string, run func(*cobra.Command, *app.App, string, string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <slug> <section>",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return root.withApp(cmd, func(a *app.App) error {
					return run(cmd, a, args[0], args[1])
				})
			},
		}
	}

	var suggestion string
	refine := op("refine", "Apply a critique or custom suggestion and re-render", func(cmd *cobra.Command, a *app.App, slug, id string) error {
		res, err := a.Orchestrator.RefineSection(cmd.Context(), slug, id, suggestion)
		return printSection(cmd, res, err)
	})
	refine.Flags().StringVar(&suggestion, "suggestion", "", "custom refinement instead of a visual critique")

	cmd.AddCommand(
		op("regenerate", "Generate fresh code for a section and render it", func(cmd *cobra.Command, a *app.App, slug, id string) error {
			res, err := a.Orchestrator.RegenerateSection(cmd.Context(), slug, id)
			return printSection(cmd, res, err)
		}),
		op("critique", "Run the visual critic on a rendered section", func(cmd *cobra.Command, a *app.App, slug, id string) error {
			c, err := a.Orchestrator.CritiqueSection(cmd.Context(), slug, id)
			if err != nil {
				return err
			}
			return writeJSON(cmd, c)
		}),
		refine,
		op("render", "Re-render a section's saved script", func(cmd *cobra.Command, a *app.App, slug, id string) error {
			res, err := a.Orchestrator.RenderSection(cmd.Context(), slug, id)
			return printSection(cmd, res, err)
		}),
	)
	return cmd
}

func printSection(cmd *cobra.Command, res orchestrator.SectionResult, err error) error {
	if err != nil {
		return err
	}
	if err := writeJSON(cmd, res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("section %s failed", res.SectionID)
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
