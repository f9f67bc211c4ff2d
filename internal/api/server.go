// Package api serves the generation pipeline over HTTP and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/example/mathvideo/internal/agents"
	"github.com/example/mathvideo/internal/metrics"
	"github.com/example/mathvideo/internal/models"
	"github.com/example/mathvideo/internal/orchestrator"
	"github.com/example/mathvideo/internal/project"
	"github.com/example/mathvideo/internal/render"
	"github.com/example/mathvideo/internal/store"
)

// Pipeline is the orchestrator surface the handlers use.
type Pipeline interface {
	Submit(ctx context.Context, req orchestrator.Request) (models.Task, error)
	GetTask(ctx context.Context, id string) (models.Task, error)
	ListTasks(ctx context.Context, limit int) ([]models.Task, error)
	RegenerateSection(ctx context.Context, slug, sectionID string) (orchestrator.SectionResult, error)
	CritiqueSection(ctx context.Context, slug, sectionID string) (models.Critique, error)
	RefineSection(ctx context.Context, slug, sectionID, customSuggestion string) (orchestrator.SectionResult, error)
	RenderSection(ctx context.Context, slug, sectionID string) (orchestrator.SectionResult, error)
}

type Config struct {
	Pipeline  Pipeline
	Hub       *orchestrator.Hub
	Projects  *project.Store
	Metrics   *metrics.Metrics
	Heartbeat time.Duration
	// BaseContext bounds background pipeline runs started by requests.
	BaseContext    context.Context
	MaxUploadBytes int64
}

type Server struct {
	cfg    Config
	router chi.Router
}

const (
	defaultHeartbeat      = 30 * time.Second
	defaultMaxUploadBytes = 64 << 20
)

func New(cfg Config) *Server {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	s := &Server{cfg: cfg}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.StripSlashes)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", s.handleHealth)
	if s.cfg.Metrics != nil {
		r.Handle("/metrics", s.cfg.Metrics.Handler())
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.Projects.Root))))

	r.Route("/api", func(r chi.Router) {
		r.Route("/generate", func(r chi.Router) {
			r.Post("/", s.handleGenerate)
			r.Get("/ws/{taskID}", s.handleEvents)
			r.Post("/{slug}/section/{sectionID}", s.handleRegenerateSection)
		})
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleProjectList)
			r.Route("/{slug}", func(r chi.Router) {
				r.Get("/", s.handleProjectDetail)
				r.Delete("/", s.handleProjectDelete)
				r.Get("/storyboard", s.handleStoryboardGet)
				r.Put("/storyboard", s.handleStoryboardPut)
				r.Get("/videos", s.handleProjectVideos)
				r.Get("/scripts", s.handleProjectScripts)
			})
		})
		r.Route("/refiner/{slug}", func(r chi.Router) {
			r.Post("/critique/{sectionID}", s.handleCritique)
			r.Post("/refine", s.handleRefine)
			r.Post("/render/{sectionID}", s.handleRender)
		})
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleTaskList)
			r.Get("/{taskID}", s.handleTaskGet)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		log.WithError(err).Debug("write response")
	}
}

// respondError writes {success:false, error}. Error text is trimmed to its tail.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	entry := log.WithFields(log.Fields{"path": r.URL.Path, "status": status, "request_id": middleware.GetReqID(r.Context())})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("request failed")
	} else {
		entry.WithError(err).Debug("request rejected")
	}
	respondJSON(w, status, map[string]any{
		"success": false,
		"error":   trimError(err.Error()),
	})
}

func trimError(s string) string { return render.TailError(s, render.MaxErrorChars) }

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func errorStatus(err error) int {
	var br badRequest
	switch {
	case errors.As(err, &br), errors.Is(err, orchestrator.ErrEmptyRequest), errors.Is(err, project.ErrBadSlug),
		errors.Is(err, project.ErrBadSection):
		return http.StatusBadRequest
	case errors.Is(err, project.ErrNotFound), errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, orchestrator.ErrSectionNotFound), errors.Is(err, orchestrator.ErrNoVideo):
		return http.StatusNotFound
	case errors.Is(err, project.ErrLocked), errors.Is(err, project.ErrExists):
		return http.StatusConflict
	case errors.Is(err, agents.ErrCriticDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"elapsed":    time.Since(start).Round(time.Millisecond),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

// cors allows the local frontend during development.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
