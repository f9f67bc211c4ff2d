package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/example/mathvideo/internal/models"
)

const defaultTaskLimit = 50

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	limit := defaultTaskLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, r, badRequest{msg: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	tasks, err := s.cfg.Pipeline.ListTasks(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	task, err := s.cfg.Pipeline.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}
