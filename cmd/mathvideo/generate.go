package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/example/mathvideo/internal/app"
	"github.com/example/mathvideo/internal/orchestrator"
)

func newGenerateCmd(root *rootOptions) *cobra.Command {
	var (
		noRender  bool
		images    []string
		documents []string
	)
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Run the full pipeline in the foreground",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := orchestrator.Request{Prompt: strings.Join(args, " "), Render: !noRender}
			var err error
			if req.Images, err = readInputs(images); err != nil {
				return err
			}
			if req.Documents, err = readInputs(documents); err != nil {
				return err
			}

			return root.withApp(cmd, func(a *app.App) error {
				runID := uuid.NewString()
				entry := log.WithField("run", runID)
				entry.WithField("render", req.Render).Info("generation started")

				res, err := a.Orchestrator.Run(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "project: %s\n", res.Task.Slug)
				fmt.Fprintf(out, "topic:   %s\n", res.Storyboard.Topic)
				for _, s := range res.Sections {
					fmt.Fprintf(out, "  %-14s %-8s attempts=%d refined=%t\n", s.SectionID, s.State, s.Attempts, s.Refined)
				}
				if res.FinalVideo != "" {
					fmt.Fprintf(out, "video:   %s\n", res.FinalVideo)
				}
				entry.Info("generation finished")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noRender, "no-render", false, "only produce the storyboard")
	cmd.Flags().StringArrayVar(&images, "image", nil, "image file to include (repeatable)")
	cmd.Flags().StringArrayVar(&documents, "document", nil, "pdf, txt or md file to include (repeatable)")
	return cmd
}

func readInputs(paths []string) ([]orchestrator.Input, error) {
	out := make([]orchestrator.Input, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		out = append(out, orchestrator.Input{Name: filepath.Base(p), Data: data})
	}
	return out, nil
}
