// Package app wires configuration into a running pipeline and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/example/mathvideo/internal/agents"
	"github.com/example/mathvideo/internal/api"
	"github.com/example/mathvideo/internal/config"
	"github.com/example/mathvideo/internal/metrics"
	"github.com/example/mathvideo/internal/orchestrator"
	"github.com/example/mathvideo/internal/project"
	"github.com/example/mathvideo/internal/providers/llm"
	"github.com/example/mathvideo/internal/render"
	"github.com/example/mathvideo/internal/store"
)

const shutdownTimeout = 15 * time.Second

// App owns every long-lived component. Close releases them.
type App struct {
	Config       *config.Config
	Metrics      *metrics.Metrics
	Gateway      *llm.Gateway
	Projects     *project.Store
	Tasks        store.TaskStore
	Hub          *orchestrator.Hub
	Orchestrator *orchestrator.Orchestrator
	FFmpeg       *render.FFmpeg

	closers []func()
}

// New builds the application from cfg. The gateway is built even with no
// providers configured; model calls then fail per call.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Metrics: metrics.New()}

	gw, closeGW := llm.NewFromConfig(ctx, cfg, a.Metrics)
	a.Gateway = gw
	a.closers = append(a.closers, closeGW)

	if cfg.Paths.TaskDB != "" {
		db, err := store.OpenSQLite(cfg.Paths.TaskDB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open task store: %w", err)
		}
		a.Tasks = db
	} else {
		a.Tasks = store.NewMemory()
	}
	tasks := a.Tasks
	a.closers = append(a.closers, func() {
		if err := tasks.Close(); err != nil {
			log.WithError(err).Warn("close task store")
		}
	})

	a.Projects = project.NewStore(cfg.Paths.OutputDir)
	a.Hub = orchestrator.NewHub(a.Metrics)
	a.FFmpeg = &render.FFmpeg{Binary: cfg.Render.FFmpeg, Timeout: cfg.RenderTimeout()}

	skills := agents.NewSkillLibrary(cfg.Paths.SkillsDir)
	a.Orchestrator = orchestrator.New(orchestrator.Deps{
		Classifier: &agents.Classifier{Model: gw},
		Planner:    &agents.Planner{Model: gw, Skills: skills},
		Coder:      &agents.Coder{Model: gw, Skills: skills},
		Critic:     &agents.Critic{Model: gw, Frames: a.FFmpeg, Enabled: cfg.Features.VisualFeedback},
		Assets:     &agents.AssetEnhancer{Model: gw, Enabled: cfg.Features.Assets},
		Renderer: &render.ManimRenderer{
			Python:  cfg.Render.Python,
			Quality: cfg.Render.Quality,
			Timeout: cfg.RenderTimeout(),
		},
		Concat:   a.FFmpeg,
		Projects: a.Projects,
		Tasks:    a.Tasks,
		Hub:      a.Hub,
		Metrics:  a.Metrics,
	}, orchestrator.Options{
		MaxRetries:     cfg.Render.MaxRetries,
		SubscriberWait: cfg.SubscriberWait(),
	})

	log.WithFields(log.Fields{
		"output_dir":      cfg.Paths.OutputDir,
		"task_db":         cfg.Paths.TaskDB,
		"visual_feedback": cfg.Features.VisualFeedback,
		"assets":          cfg.Features.Assets,
	}).Debug("application ready")
	return a, nil
}

// Handler returns the HTTP API. Runs submitted through it live as long as
// baseCtx.
func (a *App) Handler(baseCtx context.Context) http.Handler {
	return api.New(api.Config{
		Pipeline:    a.Orchestrator,
		Hub:         a.Hub,
		Projects:    a.Projects,
		Metrics:     a.Metrics,
		Heartbeat:   a.Config.Heartbeat(),
		BaseContext: baseCtx,
	})
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down and
// waits for in-flight pipeline runs.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Paths.APIBind,
		Handler:           a.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		a.Orchestrator.Wait()
		return nil
	})
	return g.Wait()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
