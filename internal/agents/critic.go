package agents

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/example/mathvideo/internal/jsonrepair"
	"github.com/example/mathvideo/internal/models"
	"github.com/example/mathvideo/internal/progress"
	"github.com/example/mathvideo/internal/providers/llm"
)

var (
	// ErrCriticDisabled is returned without side effects when visual feedback
	// is switched off or no vision model is configured.
	ErrCriticDisabled = errors.New("visual critic disabled")
	// ErrNoFeedback means the critique ran but produced nothing actionable.
	ErrNoFeedback = errors.New("no visual feedback")
)

const maxCritiqueFrames = 4

// FrameExtractor samples still frames from a video.
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, videoPath, outDir string) ([]string, error)
}

type Critic struct {
	Model   Model
	Frames  FrameExtractor
	Enabled bool
}

// Active reports whether a critique would actually run.
func (c *Critic) Active() bool {
	return c != nil && c.Enabled && c.Frames != nil && c.Model.HasVision()
}

// Critique returns an actionable suggestion for the rendered section, or
// ErrNoFeedback when the video looks fine.
func (c *Critic) Critique(ctx context.Context, videoPath string, section models.Section) (string, error) {
	fb, err := c.Review(ctx, videoPath, section)
	if err != nil {
		return "", err
	}
	if !fb.HasIssues || strings.TrimSpace(fb.Suggestion) == "" {
		progress.Success(ctx, fmt.Sprintf("%s: no visual issues found", section.ID))
		return "", ErrNoFeedback
	}
	progress.Info(ctx, fmt.Sprintf("%s: visual issues: %s", section.ID, strings.Join(fb.Issues, "; ")))
	return fb.Suggestion, nil
}

// Review runs the vision rubric and returns the full feedback.
func (c *Critic) Review(ctx context.Context, videoPath string, section models.Section) (models.Critique, error) {
	if !c.Active() {
		return models.Critique{}, ErrCriticDisabled
	}
	progress.Info(ctx, fmt.Sprintf("%s: reviewing rendered frames", section.ID))
	frames, err := c.Frames.ExtractFrames(ctx, videoPath, FramesDir(videoPath))
	if err != nil {
		return models.Critique{}, fmt.Errorf("extract frames: %w", err)
	}
	if len(frames) == 0 {
		return models.Critique{}, fmt.Errorf("extract frames: %w", ErrNoFeedback)
	}

	images := make([]llm.Image, 0, maxCritiqueFrames)
	for _, i := range SelectFrames(len(frames)) {
		img, err := LoadImage(frames[i])
		if err != nil {
			continue
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return models.Critique{}, fmt.Errorf("load frames: %w", ErrNoFeedback)
	}

	prompt, err := llm.Render(critiquePrompt, map[string]string{
		"Title":        section.Title,
		"LectureLines": jsonList(section.LectureLines),
	})
	if err != nil {
		return models.Critique{}, err
	}
	raw, err := c.Model.CompleteVision(ctx, prompt, images, llm.Options{Temperature: 0.2, MaxTokens: 1024})
	if err != nil {
		return models.Critique{}, fmt.Errorf("vision critique: %w", err)
	}
	var fb models.Critique
	if err := jsonrepair.ExtractObject(raw, &fb); err != nil {
		return models.Critique{}, fmt.Errorf("parse critique: %w", err)
	}
	return fb, nil
}

// SelectFrames picks the first, last and two evenly spaced middle frames once
// there are more than four.
func SelectFrames(n int) []int {
	if n <= 0 {
		return nil
	}
	if n <= maxCritiqueFrames {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	return []int{0, n / 3, 2 * n / 3, n - 1}
}

// FramesDir is the frames directory next to the video.
func FramesDir(videoPath string) string {
	return filepath.Join(filepath.Dir(videoPath), "frames")
}
