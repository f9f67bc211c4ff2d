package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/example/mathvideo/internal/app"
	"github.com/example/mathvideo/internal/config"
	"github.com/example/mathvideo/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "mathvideo",
		Short:         "Turn math prompts into animated explainer videos",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, found, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			if opts.logFormat != "" {
				cfg.Logging.Format = opts.logFormat
			}
			logging.Setup(logging.Options{Format: cfg.Logging.Format, Level: cfg.Logging.Level, Output: cmd.ErrOrStderr()})
			if found {
				log.WithField("path", path).Debug("config loaded")
			}
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to mathvideo.toml (default $MATHVIDEO_CONFIG or ./mathvideo.toml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override log format (console or json)")

	cmd.AddCommand(
		newGenerateCmd(opts),
		newServeCmd(opts),
		newProjectsCmd(opts),
		newSectionCmd(opts),
		newCheckCmd(opts),
	)
	return cmd
}

// withApp builds the application for one command and closes it afterwards.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(*app.App) error) error {
	a, err := app.New(cmd.Context(), o.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
