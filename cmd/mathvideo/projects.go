package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/example/mathvideo/internal/project"
)

func newProjectsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Inspect generated projects",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List projects, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				store := project.NewStore(root.cfg.Paths.OutputDir)
				list, err := store.List()
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No projects yet.")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, s := range list {
					rows = append(rows, []string{
						s.Slug,
						s.Topic,
						strconv.Itoa(s.SectionsCount),
						finalVideoSize(store, s.Slug),
						humanize.Time(s.CreatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Slug", "Topic", "Sections", "Video", "Updated"}, rows, 3, 4))
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <slug>",
			Short: "Show a project's storyboard, scripts and videos",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := project.NewStore(root.cfg.Paths.OutputDir).Open(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "project: %s\n", p.Slug)
				if sb, err := p.LoadStoryboard(); err == nil {
					fmt.Fprintf(out, "topic:   %s (%s)\n\n", sb.Topic, sb.TaskType)
					rows := make([][]string, 0, len(sb.Sections))
					for _, sec := range sb.Sections {
						video := "-"
						if v := p.SectionVideo(sec.ID); v != "" {
							video = sizeOf(v)
						}
						_, scriptErr := p.ReadScript(sec.ID)
						rows = append(rows, []string{sec.ID, sec.Title, strconv.FormatBool(scriptErr == nil), video})
					}
					fmt.Fprintln(out, renderTable([]string{"Section", "Title", "Script", "Video"}, rows, 4))
				} else {
					fmt.Fprintf(out, "storyboard: unavailable (%v)\n", err)
				}
				if _, err := os.Stat(p.FinalVideoPath()); err == nil {
					fmt.Fprintf(out, "final video: %s (%s)\n", p.FinalVideoPath(), sizeOf(p.FinalVideoPath()))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <slug>",
			Short: "Delete a project directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store := project.NewStore(root.cfg.Paths.OutputDir)
				p, err := store.Open(args[0])
				if err != nil {
					return err
				}
				unlock, err := p.Lock()
				if err != nil {
					return err
				}
				defer unlock()
				if err := store.Delete(p.Slug); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", p.Slug)
				return nil
			},
		},
	)
	return cmd
}

func finalVideoSize(store *project.Store, slug string) string {
	p, err := store.Open(slug)
	if err != nil {
		return "-"
	}
	return sizeOf(p.FinalVideoPath())
}

func sizeOf(path string) string {
	st, err := os.Stat(path)
	if err != nil {
		return "-"
	}
	return humanize.Bytes(uint64(st.Size()))
}
