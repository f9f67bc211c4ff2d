package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/mathvideo/internal/agents"
	"github.com/example/mathvideo/internal/models"
	"github.com/example/mathvideo/internal/progress"
	"github.com/example/mathvideo/internal/project"
	"github.com/example/mathvideo/internal/render"
)

var (
	ErrSectionNotFound = errors.New("section not found")
	ErrNoVideo         = errors.New("section has no rendered video")
)

// SectionResult is returned by single-section operations.
type SectionResult struct {
	Success   bool   `json:"success"`
	SectionID string `json:"section_id"`
	VideoPath string `json:"video_path,omitempty"`
	Error     string `json:"error,omitempty"`
	Refined   bool   `json:"refined,omitempty"`
	Message   string `json:"message,omitempty"`
}

type sectionTarget struct {
	proj    *project.Project
	sb      *models.Storyboard
	section models.Section
	index   int
	unlock  func()
}

func (o *Orchestrator) openSection(slug, sectionID string) (*sectionTarget, error) {
	if !models.ValidSectionID(sectionID) {
		return nil, fmt.Errorf("%w %q", project.ErrBadSection, sectionID)
	}
	p, err := o.Projects.Open(slug)
	if err != nil {
		return nil, err
	}
	sb, err := p.LoadStoryboard()
	if err != nil {
		return nil, err
	}
	sec, idx, ok := sb.Section(sectionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrSectionNotFound, sectionID, slug)
	}
	unlock, err := p.Lock()
	if err != nil {
		return nil, err
	}
	return &sectionTarget{proj: p, sb: sb, section: *sec, index: idx, unlock: unlock}, nil
}

func (o *Orchestrator) renderOnce(ctx context.Context, p *project.Project, sectionID string) SectionResult {
	res := o.Renderer.Render(ctx, p.ScriptPath(sectionID), agents.ClassName(sectionID), p.MediaDir())
	o.Metrics.RenderAttempt(res.OK())
	if !res.OK() {
		errText := render.TailError(res.ErrorText, render.MaxErrorChars)
		progress.Error(ctx, fmt.Sprintf("%s: render failed", sectionID))
		return SectionResult{SectionID: sectionID, Error: errText}
	}
	progress.Success(ctx, fmt.Sprintf("%s: rendered", sectionID))
	return SectionResult{Success: true, SectionID: sectionID, VideoPath: res.VideoPath}
}

// RegenerateSection writes fresh code for one section and renders it once. In
// sequential mode the previous section's script is used as context.
func (o *Orchestrator) RegenerateSection(ctx context.Context, slug, sectionID string) (SectionResult, error) {
	t, err := o.openSection(slug, sectionID)
	if err != nil {
		return SectionResult{}, err
	}
	defer t.unlock()

	previous := ""
	if models.SectionModeFor(t.sb.TaskType) == models.ModeSequential && t.index > 0 {
		previous, _ = t.proj.ReadScript(t.sb.Sections[t.index-1].ID)
	}
	art, err := o.Coder.Generate(ctx, t.section, previous, t.sb.TaskType, t.sb.AvailableAssets)
	if err != nil {
		return SectionResult{SectionID: sectionID, Error: err.Error()}, nil
	}
	if _, err := t.proj.WriteScript(sectionID, art.Code); err != nil {
		return SectionResult{}, err
	}
	return o.renderOnce(ctx, t.proj, sectionID), nil
}

// CritiqueSection reviews the latest rendered video of a section.
func (o *Orchestrator) CritiqueSection(ctx context.Context, slug, sectionID string) (models.Critique, error) {
	p, err := o.Projects.Open(slug)
	if err != nil {
		return models.Critique{}, err
	}
	sb, err := p.LoadStoryboard()
	if err != nil {
		return models.Critique{}, err
	}
	sec, _, ok := sb.Section(sectionID)
	if !ok {
		return models.Critique{}, fmt.Errorf("%w: %s in %s", ErrSectionNotFound, sectionID, slug)
	}
	video := p.SectionVideo(sectionID)
	if video == "" {
		return models.Critique{}, fmt.Errorf("%w: %s", ErrNoVideo, sectionID)
	}
	return o.Critic.Review(ctx, video, *sec)
}

// RefineSection applies customSuggestion, or a fresh critique when it is empty,
// and renders once.
func (o *Orchestrator) RefineSection(ctx context.Context, slug, sectionID, customSuggestion string) (SectionResult, error) {
	suggestion := customSuggestion
	if suggestion == "" {
		fb, err := o.CritiqueSection(ctx, slug, sectionID)
		if err != nil {
			return SectionResult{}, err
		}
		if !fb.HasIssues || fb.Suggestion == "" {
			return SectionResult{Success: true, SectionID: sectionID, Message: "no visual issues found"}, nil
		}
		suggestion = fb.Suggestion
	}

	t, err := o.openSection(slug, sectionID)
	if err != nil {
		return SectionResult{}, err
	}
	defer t.unlock()
	code, err := t.proj.ReadScript(sectionID)
	if err != nil {
		return SectionResult{}, err
	}
	video, _, ok := o.refineOnce(ctx, t.proj, sectionID, agents.ClassName(sectionID), code, suggestion)
	if !ok {
		return SectionResult{SectionID: sectionID, Error: "refinement did not produce a renderable scene"}, nil
	}
	return SectionResult{Success: true, SectionID: sectionID, VideoPath: video, Refined: true}, nil
}

// RenderSection renders the current script of a section once.
func (o *Orchestrator) RenderSection(ctx context.Context, slug, sectionID string) (SectionResult, error) {
	t, err := o.openSection(slug, sectionID)
	if err != nil {
		return SectionResult{}, err
	}
	defer t.unlock()
	if _, err := t.proj.ReadScript(sectionID); err != nil {
		return SectionResult{}, err
	}
	return o.renderOnce(ctx, t.proj, sectionID), nil
}
