package orchestrator

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/example/mathvideo/internal/agents"
	"github.com/example/mathvideo/internal/models"
	"github.com/example/mathvideo/internal/progress"
	"github.com/example/mathvideo/internal/project"
	"github.com/example/mathvideo/internal/render"
)

// renderSections processes sections in order. In sequential mode each section
// receives the last code of the previous section that rendered.
func (o *Orchestrator) renderSections(ctx context.Context, p *project.Project, sb *models.Storyboard) []models.SectionOutcome {
	sequential := models.SectionModeFor(sb.TaskType) == models.ModeSequential
	outcomes := make([]models.SectionOutcome, 0, len(sb.Sections))
	previous := ""
	for i, sec := range sb.Sections {
		if ctx.Err() != nil {
			outcomes = append(outcomes, models.SectionOutcome{SectionID: sec.ID, State: models.SectionFailed, ErrorText: ctx.Err().Error()})
			continue
		}
		progress.Info(ctx, fmt.Sprintf("section %d/%d: %s", i+1, len(sb.Sections), sec.Title))
		prev := ""
		if sequential {
			prev = previous
		}
		out, code := o.processSection(ctx, p, sb, sec, prev)
		outcomes = append(outcomes, out)
		if out.State == models.SectionSuccess {
			previous = code
		}
	}
	return outcomes
}

// processSection generates, renders with retry, critiques and refines one
// section. It returns the outcome and the last code that rendered.
func (o *Orchestrator) processSection(ctx context.Context, p *project.Project, sb *models.Storyboard, sec models.Section, previous string) (models.SectionOutcome, string) {
	out := models.SectionOutcome{SectionID: sec.ID, State: models.SectionPending}
	art, err := o.Coder.Generate(ctx, sec, previous, sb.TaskType, sb.AvailableAssets)
	if err != nil {
		out.State = models.SectionFailed
		out.ErrorText = err.Error()
		progress.Error(ctx, fmt.Sprintf("%s: %v", sec.ID, err))
		return out, ""
	}
	if _, err := p.WriteScript(sec.ID, art.Code); err != nil {
		out.State = models.SectionFailed
		out.ErrorText = err.Error()
		return out, ""
	}

	out, code := o.renderWithRetry(ctx, p, sec.ID, art.ClassName, art.Code)
	if out.State != models.SectionSuccess {
		return out, ""
	}

	suggestion, err := o.Critic.Critique(ctx, out.VideoPath, sec)
	switch {
	case errors.Is(err, agents.ErrCriticDisabled), errors.Is(err, agents.ErrNoFeedback):
		return out, code
	case err != nil:
		progress.Warn(ctx, fmt.Sprintf("%s: visual review skipped: %v", sec.ID, err))
		return out, code
	}

	video, refined, ok := o.refineOnce(ctx, p, sec.ID, art.ClassName, code, suggestion)
	if ok {
		out.VideoPath = video
		out.Refined = true
		out.Attempts++
		return out, refined
	}
	if refined != "" {
		out.Attempts++
	}
	return out, code
}

// renderWithRetry renders at most MaxRetries+1 times, asking the coder for a
// fix after each failure. An empty fix ends the loop early.
func (o *Orchestrator) renderWithRetry(ctx context.Context, p *project.Project, sectionID, className, code string) (models.SectionOutcome, string) {
	out := models.SectionOutcome{SectionID: sectionID, State: models.SectionPending}
	entry := log.WithField("section", sectionID)
	for attempt := 0; ; attempt++ {
		out.State = models.SectionRendering
		out.Attempts++
		progress.Info(ctx, fmt.Sprintf("%s: rendering (attempt %d/%d)", sectionID, attempt+1, o.opts.MaxRetries+1))
		res := o.Renderer.Render(ctx, p.ScriptPath(sectionID), className, p.MediaDir())
		o.Metrics.RenderAttempt(res.OK())
		if res.OK() {
			out.State = models.SectionSuccess
			out.VideoPath = res.VideoPath
			out.ErrorText = ""
			progress.Success(ctx, fmt.Sprintf("%s: rendered", sectionID))
			return out, code
		}

		out.ErrorText = render.TailError(res.ErrorText, render.MaxErrorChars)
		entry.WithField("attempt", attempt+1).Debug("render failed")
		if attempt >= o.opts.MaxRetries || ctx.Err() != nil {
			out.State = models.SectionFailed
			progress.Error(ctx, fmt.Sprintf("%s: render failed after %d attempt(s)", sectionID, out.Attempts))
			return out, ""
		}

		out.State = models.SectionRetryPending
		progress.Warn(ctx, fmt.Sprintf("%s: render failed, asking for a fix", sectionID))
		fixed := o.Coder.Fix(ctx, code, out.ErrorText)
		if fixed == "" {
			out.State = models.SectionFailed
			progress.Error(ctx, fmt.Sprintf("%s: no fix available", sectionID))
			return out, ""
		}
		code = agents.RenameScene(fixed, className)
		if _, err := p.WriteScript(sectionID, code); err != nil {
			out.State = models.SectionFailed
			out.ErrorText = err.Error()
			return out, ""
		}
	}
}

// refineOnce applies a suggestion and re-renders exactly once. A failed
// re-render keeps the refined script on disk but reports ok=false; refined is
// "" when the coder produced nothing.
func (o *Orchestrator) refineOnce(ctx context.Context, p *project.Project, sectionID, className, code, suggestion string) (video, refined string, ok bool) {
	progress.Info(ctx, fmt.Sprintf("%s: refining visuals", sectionID))
	refined = o.Coder.Refine(ctx, code, suggestion)
	if refined == "" {
		progress.Warn(ctx, fmt.Sprintf("%s: refinement produced no code; keeping the current video", sectionID))
		return "", "", false
	}
	refined = agents.RenameScene(refined, className)
	if _, err := p.WriteScript(sectionID, refined); err != nil {
		progress.Warn(ctx, fmt.Sprintf("%s: save refined script: %v", sectionID, err))
		return "", "", false
	}
	res := o.Renderer.Render(ctx, p.ScriptPath(sectionID), className, p.MediaDir())
	o.Metrics.RenderAttempt(res.OK())
	if !res.OK() {
		progress.Warn(ctx, fmt.Sprintf("%s: refined render failed; keeping the previous video", sectionID))
		return "", refined, false
	}
	progress.Success(ctx, fmt.Sprintf("%s: refined video rendered", sectionID))
	return res.VideoPath, refined, true
}
