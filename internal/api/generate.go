package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/example/mathvideo/internal/orchestrator"
)

type generateBody struct {
	Prompt      string `json:"prompt"`
	Topic       string `json:"topic"`
	Description string `json:"description"`
	Render      *bool  `json:"render"`
}

func (b generateBody) text() string {
	for _, v := range []string{b.Prompt, b.Topic, b.Description} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

type generateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Slug    string `json:"slug"`
	TaskID  string `json:"task_id"`
}

// handleGenerate accepts JSON or multipart form submissions and starts a
// background pipeline run. Progress is streamed on /api/generate/ws/{taskID}.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeGenerate(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	task, err := s.cfg.Pipeline.Submit(s.cfg.BaseContext, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	log.WithFields(log.Fields{"task": task.ID, "slug": task.Slug, "render": task.Render}).Info("generation submitted")
	respondJSON(w, http.StatusAccepted, generateResponse{
		Success: true,
		Message: "generation started",
		Slug:    task.Slug,
		TaskID:  task.ID,
	})
}

func (s *Server) decodeGenerate(w http.ResponseWriter, r *http.Request) (orchestrator.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		return s.decodeMultipart(r)
	}
	var body generateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return orchestrator.Request{}, badRequest{msg: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	req := orchestrator.Request{Prompt: body.text(), Render: true}
	if body.Render != nil {
		req.Render = *body.Render
	}
	if req.Prompt == "" {
		return req, orchestrator.ErrEmptyRequest
	}
	return req, nil
}

func (s *Server) decodeMultipart(r *http.Request) (orchestrator.Request, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return orchestrator.Request{}, badRequest{msg: fmt.Sprintf("invalid form: %v", err)}
	}
	defer r.MultipartForm.RemoveAll()

	req := orchestrator.Request{Render: true}
	for _, key := range []string{"prompt", "topic", "description"} {
		if v := strings.TrimSpace(r.FormValue(key)); v != "" {
			req.Prompt = v
			break
		}
	}
	if v := r.FormValue("render"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, badRequest{msg: fmt.Sprintf("invalid render flag %q", v)}
		}
		req.Render = b
	}

	var err error
	if req.Images, err = readParts(r.MultipartForm, "images", "image"); err != nil {
		return req, err
	}
	if req.Documents, err = readParts(r.MultipartForm, "documents", "document"); err != nil {
		return req, err
	}
	if req.Prompt == "" && len(req.Images) == 0 && len(req.Documents) == 0 {
		return req, orchestrator.ErrEmptyRequest
	}
	return req, nil
}

func readParts(form *multipart.Form, keys ...string) ([]orchestrator.Input, error) {
	var out []orchestrator.Input
	for _, key := range keys {
		for _, fh := range form.File[key] {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
			}
			out = append(out, orchestrator.Input{Name: fh.Filename, Data: data})
		}
	}
	return out, nil
}

func (s *Server) handleRegenerateSection(w http.ResponseWriter, r *http.Request) {
	res, err := s.cfg.Pipeline.RegenerateSection(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "sectionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondSection(w, res)
}

// respondSection reports a section operation. Render failures are a normal
// outcome and still return 200 with success=false.
func respondSection(w http.ResponseWriter, res orchestrator.SectionResult) {
	if !res.Success {
		res.Error = trimError(res.Error)
	}
	respondJSON(w, http.StatusOK, res)
}
