package agents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/example/mathvideo/internal/jsonrepair"
	"github.com/example/mathvideo/internal/models"
	"github.com/example/mathvideo/internal/progress"
	"github.com/example/mathvideo/internal/providers/llm"
)

// ErrNoStoryboard means no usable storyboard could be produced. It is fatal to
// the project.
var ErrNoStoryboard = errors.New("storyboard generation failed")

const maxDescribedImages = 3

// Planner turns the request into a storyboard.
type Planner struct {
	Model  Model
	Skills *SkillLibrary
}

type PlanRequest struct {
	InputText    string
	ImagePaths   []string
	ImageContext string
	TaskType     models.TaskType
}

type storyboardVars struct {
	InputText    string
	ImageContext string
	TaskType     models.TaskType
	Guidance     string
	Sequential   bool
	Skills       string
}

// DescribeImages asks the vision model for a short description of up to three
// images. Any failure yields an empty description.
func (p *Planner) DescribeImages(ctx context.Context, paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	if !p.Model.HasVision() {
		progress.Warn(ctx, "no vision model configured; images are ignored")
		return ""
	}
	if len(paths) > maxDescribedImages {
		paths = paths[:maxDescribedImages]
	}
	images := make([]llm.Image, 0, len(paths))
	for _, path := range paths {
		img, err := LoadImage(path)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("skipping unreadable image")
			continue
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return ""
	}

	progress.Info(ctx, fmt.Sprintf("analysing %d image(s)", len(images)))
	desc, err := p.Model.CompleteVision(ctx, describeImagesPrompt, images, llm.Options{Temperature: 0.2, MaxTokens: 512})
	if err != nil {
		progress.Warn(ctx, fmt.Sprintf("image analysis failed: %v", err))
		return ""
	}
	desc = strings.TrimSpace(desc)
	progress.Success(ctx, "image analysis finished")
	return desc
}

// Generate builds and validates a storyboard.
func (p *Planner) Generate(ctx context.Context, req PlanRequest) (*models.Storyboard, error) {
	taskType := req.TaskType
	if !taskType.Valid() {
		taskType = DefaultTaskType
	}
	sequential := models.SectionModeFor(taskType) == models.ModeSequential
	imageContext := req.ImageContext
	if imageContext == "" {
		imageContext = "none"
	}
	vars := storyboardVars{
		InputText:    req.InputText,
		ImageContext: imageContext,
		TaskType:     taskType,
		Guidance:     guidance[string(taskType)],
		Sequential:   sequential,
		Skills:       p.Skills.Prompt(taskType),
	}

	progress.Info(ctx, fmt.Sprintf("generating %s storyboard", taskType))
	opts := llm.Options{Temperature: 0.7}
	var sb models.Storyboard
	err := p.Model.CompleteJSON(ctx, storyboardPrompt, vars, opts, &sb)
	if err != nil {
		progress.Warn(ctx, fmt.Sprintf("storyboard JSON failed (%v); retrying once", err))
		sb = models.Storyboard{}
		err = p.secondChance(ctx, vars, opts, &sb)
	}
	if err != nil {
		progress.Error(ctx, fmt.Sprintf("storyboard generation failed: %v", err))
		return nil, fmt.Errorf("%w: %w", ErrNoStoryboard, err)
	}

	if err := normalizeStoryboard(&sb, req.InputText); err != nil {
		progress.Error(ctx, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrNoStoryboard, err)
	}
	sb.TaskType = taskType
	sb.InputText = req.InputText
	sb.ImageContext = req.ImageContext
	sb.InputImages = nil
	for _, path := range req.ImagePaths {
		sb.InputImages = append(sb.InputImages, filepath.Base(path))
	}

	progress.Success(ctx, fmt.Sprintf("storyboard ready: %q, %d section(s)", sb.Topic, len(sb.Sections)))
	return &sb, nil
}

func (p *Planner) secondChance(ctx context.Context, vars storyboardVars, opts llm.Options, out *models.Storyboard) error {
	prompt, err := llm.Render(storyboardPrompt, vars)
	if err != nil {
		return err
	}
	raw, err := p.Model.CompleteText(ctx, prompt, opts)
	if err != nil {
		return err
	}
	_, err = jsonrepair.Decode(ctx, raw, nil, out)
	return err
}

// normalizeStoryboard fills missing ids, dedupes them and backfills the topic.
func normalizeStoryboard(sb *models.Storyboard, inputText string) error {
	if len(sb.Sections) == 0 {
		return errors.New("storyboard has no sections")
	}
	seen := make(map[string]int, len(sb.Sections))
	for i := range sb.Sections {
		s := &sb.Sections[i]
		s.ID = models.CleanSectionID(s.ID)
		if s.ID == "" {
			s.ID = fmt.Sprintf("section_%d", i+1)
		}
		base := s.ID
		for n := 2; seen[s.ID] > 0; n++ {
			s.ID = fmt.Sprintf("%s_%d", base, n)
		}
		seen[s.ID]++
		if s.Title == "" {
			s.Title = s.ID
		}
	}
	sb.Topic = strings.TrimSpace(sb.Topic)
	if sb.Topic == "" {
		sb.Topic = truncate(strings.TrimSpace(inputText), 60)
	}
	if sb.Topic == "" {
		sb.Topic = "untitled"
	}
	return nil
}

// LoadImage reads an image file and sniffs its MIME type.
func LoadImage(path string) (llm.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return llm.Image{}, err
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return llm.Image{}, fmt.Errorf("%s is not an image (%s)", filepath.Base(path), mime)
	}
	return llm.Image{MIMEType: mime, Data: data}, nil
}
