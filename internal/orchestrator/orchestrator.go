// Package orchestrator runs the video pipeline and broadcasts its progress.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/example/mathvideo/internal/agents"
	"github.com/example/mathvideo/internal/metrics"
	"github.com/example/mathvideo/internal/models"
	"github.com/example/mathvideo/internal/progress"
	"github.com/example/mathvideo/internal/project"
	"github.com/example/mathvideo/internal/render"
	"github.com/example/mathvideo/internal/slug"
	"github.com/example/mathvideo/internal/store"
)

type Classifier interface {
	Classify(ctx context.Context, text, imageContext string) models.TaskType
}

type Planner interface {
	DescribeImages(ctx context.Context, paths []string) string
	Generate(ctx context.Context, req agents.PlanRequest) (*models.Storyboard, error)
}

type Coder interface {
	Generate(ctx context.Context, section models.Section, previousCode string, taskType models.TaskType, assets map[string]string) (models.CodeArtifact, error)
	Fix(ctx context.Context, code, errText string) string
	Refine(ctx context.Context, code, feedback string) string
}

type Critic interface {
	Critique(ctx context.Context, videoPath string, section models.Section) (string, error)
	Review(ctx context.Context, videoPath string, section models.Section) (models.Critique, error)
}

type AssetEnhancer interface {
	Enhance(ctx context.Context, sb *models.Storyboard, assetsDir string)
}

type Concatenator interface {
	Concat(ctx context.Context, videos []string, out string) error
}

type disabledCritic struct{}

func (disabledCritic) Critique(context.Context, string, models.Section) (string, error) {
	return "", agents.ErrCriticDisabled
}

func (disabledCritic) Review(context.Context, string, models.Section) (models.Critique, error) {
	return models.Critique{}, agents.ErrCriticDisabled
}

// Deps are the pipeline stages and stores. Assets and Critic may be nil.
type Deps struct {
	Classifier Classifier
	Planner    Planner
	Coder      Coder
	Critic     Critic
	Assets     AssetEnhancer
	Renderer   render.Renderer
	Concat     Concatenator
	Projects   *project.Store
	Tasks      store.TaskStore
	Hub        *Hub
	Metrics    *metrics.Metrics
}

type Options struct {
	MaxRetries     int
	SubscriberWait time.Duration
}

const startupGrace = 200 * time.Millisecond

type Orchestrator struct {
	Deps
	opts Options
	now  func() time.Time

	wg sync.WaitGroup

	claimMu sync.Mutex
	claims  map[string]struct{}
}

func New(deps Deps, opts Options) *Orchestrator {
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Metrics)
	}
	if deps.Critic == nil {
		deps.Critic = disabledCritic{}
	}
	if deps.Tasks == nil {
		deps.Tasks = store.NewMemory()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Orchestrator{Deps: deps, opts: opts, now: time.Now, claims: map[string]struct{}{}}
}

// Input is an uploaded file.
type Input struct {
	Name string
	Data []byte
}

type Request struct {
	Prompt    string
	Render    bool
	Images    []Input
	Documents []Input
}

// Result summarises a finished run.
type Result struct {
	Task       models.Task
	Storyboard *models.Storyboard
	Sections   []models.SectionOutcome
	FinalVideo string
}

var ErrEmptyRequest = errors.New("a prompt, image or document is required")

// RequestSlug derives the initial project slug. Image names feed the hash so
// the same prompt with different figures gets its own project.
func RequestSlug(req Request) string {
	value := strings.TrimSpace(req.Prompt)
	if value == "" {
		value = "image-input"
	}
	names := make([]string, 0, len(req.Images)+len(req.Documents))
	for _, in := range append(append([]Input(nil), req.Images...), req.Documents...) {
		names = append(names, filepath.Base(in.Name))
	}
	return slug.Make(value, strings.Join(names, ","))
}

type prepared struct {
	task   models.Task
	proj   *project.Project
	images []string
	text   string
}

// prepare creates the project, stores inputs and records a pending task.
func (o *Orchestrator) prepare(ctx context.Context, req Request) (*prepared, error) {
	if strings.TrimSpace(req.Prompt) == "" && len(req.Images) == 0 && len(req.Documents) == 0 {
		return nil, ErrEmptyRequest
	}
	id := RequestSlug(req)
	if !o.claim(id) {
		return nil, fmt.Errorf("%w: task %s is being submitted", project.ErrLocked, id)
	}
	defer o.release(id)
	if existing, err := o.Tasks.Get(ctx, id); err == nil && !existing.Status.Terminal() {
		return nil, fmt.Errorf("%w: task %s is %s", project.ErrLocked, id, existing.Status)
	}
	p, err := o.Projects.Create(id)
	if err != nil {
		return nil, err
	}

	prep := &prepared{proj: p, text: strings.TrimSpace(req.Prompt)}
	for _, img := range req.Images {
		path, err := p.SaveInput(img.Name, bytes.NewReader(img.Data))
		if err != nil {
			return nil, fmt.Errorf("save image %s: %w", img.Name, err)
		}
		prep.images = append(prep.images, path)
	}
	for _, doc := range req.Documents {
		path, err := p.SaveInput(doc.Name, bytes.NewReader(doc.Data))
		if err != nil {
			return nil, fmt.Errorf("save document %s: %w", doc.Name, err)
		}
		text, err := project.DocumentText(path)
		if err != nil {
			log.WithError(err).WithField("document", doc.Name).Warn("could not read document")
			continue
		}
		if text != "" {
			prep.text = strings.TrimSpace(prep.text + "\n\n" + text)
		}
	}

	now := o.now()
	prep.task = models.Task{
		ID:        id,
		Prompt:    strings.TrimSpace(req.Prompt),
		Slug:      id,
		Render:    req.Render,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.Tasks.Put(ctx, prep.task); err != nil {
		return nil, fmt.Errorf("record task: %w", err)
	}
	return prep, nil
}

// claim reserves id until the pending task is stored, so two identical
// requests cannot both pass the duplicate check.
func (o *Orchestrator) claim(id string) bool {
	o.claimMu.Lock()
	defer o.claimMu.Unlock()
	if _, held := o.claims[id]; held {
		return false
	}
	o.claims[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.claimMu.Lock()
	delete(o.claims, id)
	o.claimMu.Unlock()
}

// Submit records the task and runs the pipeline in the background. ctx bounds
// the background run, so pass a server-lifetime context rather than a request
// context. The run waits briefly for a first subscriber so early log lines are
// not lost.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (models.Task, error) {
	prep, err := o.prepare(ctx, req)
	if err != nil {
		return models.Task{}, err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if o.opts.SubscriberWait > 0 {
			if o.Hub.WaitForSubscriber(ctx, prep.task.ID, o.opts.SubscriberWait) {
				select {
				case <-time.After(startupGrace):
				case <-ctx.Done():
				}
			}
		}
		if _, err := o.execute(ctx, prep, req.Render); err != nil {
			log.WithError(err).WithField("task_id", prep.task.ID).Warn("pipeline failed")
		}
	}()
	return prep.task, nil
}

// Run executes the pipeline synchronously.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	prep, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, prep, req.Render)
}

// Wait blocks until background runs finish.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) GetTask(ctx context.Context, id string) (models.Task, error) {
	return o.Tasks.Get(ctx, id)
}

func (o *Orchestrator) ListTasks(ctx context.Context, limit int) ([]models.Task, error) {
	return o.Tasks.List(ctx, limit)
}

func (o *Orchestrator) transition(ctx context.Context, t *models.Task, next models.Status, data map[string]any) {
	if err := t.Transition(next, o.now()); err != nil {
		log.WithError(err).WithField("task_id", t.ID).Error("task state")
		return
	}
	if err := o.Tasks.Put(context.WithoutCancel(ctx), *t); err != nil {
		log.WithError(err).WithField("task_id", t.ID).Warn("persist task")
	}
	o.Hub.Status(t.ID, next, data)
}

func (o *Orchestrator) fail(ctx context.Context, res *Result, started time.Time, err error) (*Result, error) {
	t := &res.Task
	t.Error = render.TailError(err.Error(), render.MaxErrorChars)
	progress.Error(ctx, t.Error)
	o.transition(ctx, t, models.StatusFailed, map[string]any{"error": t.Error})
	o.Metrics.TaskFinished(string(models.StatusFailed))
	o.Metrics.PipelineFinished(string(models.StatusFailed), time.Since(started))
	return res, err
}

func (o *Orchestrator) execute(ctx context.Context, prep *prepared, doRender bool) (*Result, error) {
	started := o.now()
	res := &Result{Task: prep.task}
	taskID := res.Task.ID
	ctx = progress.With(ctx, progress.Tee(o.Hub.Reporter(taskID), progress.Log()))
	logger := log.WithField("task_id", taskID)

	p := prep.proj
	unlock, err := p.Lock()
	if err != nil {
		return o.fail(ctx, res, started, err)
	}
	defer unlock()

	o.transition(ctx, &res.Task, models.StatusRunning, nil)
	progress.Info(ctx, "pipeline started")

	imageContext := o.Planner.DescribeImages(ctx, prep.images)
	taskType := o.Classifier.Classify(ctx, prep.text, imageContext)
	sb, err := o.Planner.Generate(ctx, agents.PlanRequest{
		InputText:    prep.text,
		ImagePaths:   prep.images,
		ImageContext: imageContext,
		TaskType:     taskType,
	})
	if err != nil {
		return o.fail(ctx, res, started, err)
	}
	res.Storyboard = sb

	if target := slug.Make(sb.Topic, ""); target != p.Slug {
		if err := o.Projects.Rename(p, target); err != nil {
			progress.Warn(ctx, fmt.Sprintf("keeping project name %s: %v", p.Slug, err))
		} else {
			progress.Info(ctx, fmt.Sprintf("project renamed to %s", p.Slug))
			res.Task.Slug = p.Slug
			if err := o.Tasks.Put(ctx, res.Task); err != nil {
				logger.WithError(err).Warn("persist task")
			}
		}
	}

	if err := p.SaveStoryboard(sb); err != nil {
		return o.fail(ctx, res, started, fmt.Errorf("save storyboard: %w", err))
	}
	if o.Assets != nil {
		o.Assets.Enhance(ctx, sb, p.AssetsDir())
		if len(sb.AvailableAssets) > 0 {
			if err := p.SaveStoryboard(sb); err != nil {
				progress.Warn(ctx, fmt.Sprintf("save storyboard assets: %v", err))
			}
		}
	}

	if !doRender {
		progress.Success(ctx, "storyboard saved; rendering skipped")
		return o.complete(ctx, res, started, false)
	}

	res.Sections = o.renderSections(ctx, p, sb)
	var videos []string
	for _, out := range res.Sections {
		if out.State == models.SectionSuccess {
			videos = append(videos, out.VideoPath)
		}
	}
	logger.WithFields(log.Fields{"sections": len(sb.Sections), "rendered": len(videos)}).Info("sections finished")
	if len(videos) == 0 {
		return o.fail(ctx, res, started, errors.New("no section rendered successfully"))
	}

	progress.Info(ctx, fmt.Sprintf("merging %d video(s)", len(videos)))
	if err := o.Concat.Concat(ctx, videos, p.FinalVideoPath()); err != nil {
		return o.fail(ctx, res, started, fmt.Errorf("merge videos: %w", err))
	}
	res.FinalVideo = p.FinalVideoPath()
	progress.Success(ctx, "final video ready")
	return o.complete(ctx, res, started, true)
}

func (o *Orchestrator) complete(ctx context.Context, res *Result, started time.Time, rendered bool) (*Result, error) {
	o.transition(ctx, &res.Task, models.StatusCompleted, map[string]any{"slug": res.Task.Slug, "rendered": rendered})
	o.Metrics.TaskFinished(string(models.StatusCompleted))
	o.Metrics.PipelineFinished(string(models.StatusCompleted), time.Since(started))
	return res, nil
}
