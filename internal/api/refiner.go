package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCritique(w http.ResponseWriter, r *http.Request) {
	sectionID := chi.URLParam(r, "sectionID")
	c, err := s.cfg.Pipeline.CritiqueSection(r.Context(), chi.URLParam(r, "slug"), sectionID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if c.Issues == nil {
		c.Issues = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"section_id": sectionID,
		"critique":   c,
	})
}

type refineBody struct {
	SectionID        string `json:"section_id"`
	CustomSuggestion string `json:"custom_suggestion"`
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var body refineBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		respondError(w, r, badRequest{msg: fmt.Sprintf("invalid JSON body: %v", err)})
		return
	}
	if strings.TrimSpace(body.SectionID) == "" {
		respondError(w, r, badRequest{msg: "section_id is required"})
		return
	}
	res, err := s.cfg.Pipeline.RefineSection(r.Context(), chi.URLParam(r, "slug"), body.SectionID, strings.TrimSpace(body.CustomSuggestion))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondSection(w, res)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	res, err := s.cfg.Pipeline.RenderSection(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "sectionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondSection(w, res)
}
