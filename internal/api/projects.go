package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/mathvideo/internal/models"
	"github.com/example/mathvideo/internal/project"
)

func (s *Server) handleProjectList(w http.ResponseWriter, r *http.Request) {
	list, err := s.cfg.Projects.List()
	if err != nil {
		respondError(w, r, err)
		return
	}
	if list == nil {
		list = []project.Summary{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"projects": list})
}

func (s *Server) openProject(r *http.Request) (*project.Project, error) {
	return s.cfg.Projects.Open(chi.URLParam(r, "slug"))
}

type projectDetail struct {
	Slug       string             `json:"slug"`
	Storyboard *models.Storyboard `json:"storyboard"`
	Videos     []project.Video    `json:"videos"`
	Scripts    []project.Script   `json:"scripts"`
}

func (s *Server) handleProjectDetail(w http.ResponseWriter, r *http.Request) {
	p, err := s.openProject(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	detail := projectDetail{Slug: p.Slug, Videos: []project.Video{}, Scripts: []project.Script{}}
	// A project whose plan failed has no storyboard yet.
	if sb, err := p.LoadStoryboard(); err == nil {
		detail.Storyboard = sb
	}
	if v, err := p.Videos(); err == nil && v != nil {
		detail.Videos = v
	}
	if sc, err := p.Scripts(); err == nil && sc != nil {
		detail.Scripts = sc
	}
	respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleProjectDelete(w http.ResponseWriter, r *http.Request) {
	p, err := s.openProject(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	unlock, err := p.Lock()
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer unlock()
	if err := s.cfg.Projects.Delete(p.Slug); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "slug": p.Slug})
}

func (s *Server) handleStoryboardGet(w http.ResponseWriter, r *http.Request) {
	p, err := s.openProject(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	sb, err := p.LoadStoryboard()
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sb)
}

// handleStoryboardPut replaces the storyboard. Section ids must be present
// and unique so scripts and videos stay addressable.
func (s *Server) handleStoryboardPut(w http.ResponseWriter, r *http.Request) {
	p, err := s.openProject(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var sb models.Storyboard
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&sb); err != nil {
		respondError(w, r, badRequest{msg: fmt.Sprintf("invalid storyboard: %v", err)})
		return
	}
	if err := validateStoryboard(&sb); err != nil {
		respondError(w, r, err)
		return
	}
	unlock, err := p.Lock()
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer unlock()
	if err := p.SaveStoryboard(&sb); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "storyboard": sb})
}

func validateStoryboard(sb *models.Storyboard) error {
	if len(sb.Sections) == 0 {
		return badRequest{msg: "storyboard has no sections"}
	}
	seen := make(map[string]bool, len(sb.Sections))
	for i, sec := range sb.Sections {
		if sec.ID == "" {
			return badRequest{msg: fmt.Sprintf("section %d has no id", i+1)}
		}
		if !models.ValidSectionID(sec.ID) {
			return badRequest{msg: fmt.Sprintf("section id %q may only contain letters, digits, '_' and '-'", sec.ID)}
		}
		if seen[sec.ID] {
			return badRequest{msg: fmt.Sprintf("duplicate section id %q", sec.ID)}
		}
		seen[sec.ID] = true
	}
	return nil
}

func (s *Server) handleProjectVideos(w http.ResponseWriter, r *http.Request) {
	p, err := s.openProject(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	videos, err := p.Videos()
	if err != nil {
		respondError(w, r, err)
		return
	}
	if videos == nil {
		videos = []project.Video{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"videos": videos})
}

func (s *Server) handleProjectScripts(w http.ResponseWriter, r *http.Request) {
	p, err := s.openProject(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	scripts, err := p.Scripts()
	if err != nil {
		respondError(w, r, err)
		return
	}
	if scripts == nil {
		scripts = []project.Script{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"scripts": scripts})
}
