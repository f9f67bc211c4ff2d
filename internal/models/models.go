package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TaskType selects the storyboard and section generation strategy.
type TaskType string

const (
	TaskKnowledge TaskType = "knowledge"
	TaskGeometry  TaskType = "geometry"
	TaskProblem   TaskType = "problem"
	TaskProof     TaskType = "proof"
)

// TaskTypes lists valid task types in classification order.
var TaskTypes = []TaskType{TaskKnowledge, TaskGeometry, TaskProblem, TaskProof}

// Valid reports whether t is one of the known task types.
func (t TaskType) Valid() bool {
	for _, v := range TaskTypes {
		if t == v {
			return true
		}
	}
	return false
}

type SectionMode string

const (
	ModeIndependent SectionMode = "independent"
	ModeSequential  SectionMode = "sequential"
)

// SectionModeFor returns sequential for task types that build on the previous
// section's drawing, independent for everything else.
func SectionModeFor(t TaskType) SectionMode {
	switch t {
	case TaskGeometry, TaskProof:
		return ModeSequential
	default:
		return ModeIndependent
	}
}

// ValidSectionID reports whether id is non-empty and made only of ASCII
// letters, digits, '_' and '-'. Section ids name script files and glob
// patterns, so nothing else is allowed.
func ValidSectionID(id string) bool {
	return id != "" && CleanSectionID(id) == id
}

// CleanSectionID drops every character a section id may not contain.
func CleanSectionID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

type Section struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	LectureLines     []string `json:"lecture_lines"`
	Animations       []string `json:"animations"`
	InheritedObjects []string `json:"inherited_objects,omitempty"`
	NewObjects       []string `json:"new_objects,omitempty"`
}

type Storyboard struct {
	Topic           string            `json:"topic"`
	TaskType        TaskType          `json:"task_type"`
	Sections        []Section         `json:"sections"`
	InputText       string            `json:"input_text"`
	ImageContext    string            `json:"image_context,omitempty"`
	InputImages     []string          `json:"input_images,omitempty"`
	AvailableAssets map[string]string `json:"available_assets,omitempty"`
}

// Section returns the section with the given id and its index.
func (s *Storyboard) Section(id string) (*Section, int, bool) {
	for i := range s.Sections {
		if s.Sections[i].ID == id {
			return &s.Sections[i], i, true
		}
	}
	return nil, -1, false
}

// CodeArtifact is one generated scene script.
type CodeArtifact struct {
	SectionID string `json:"section_id"`
	Code      string `json:"code"`
	ClassName string `json:"class_name"`
	Path      string `json:"path,omitempty"`
}

type RenderStatus string

const (
	RenderSuccess RenderStatus = "success"
	RenderFailure RenderStatus = "failure"
)

type RenderResult struct {
	Status    RenderStatus `json:"status"`
	VideoPath string       `json:"video_path,omitempty"`
	ErrorText string       `json:"error_text,omitempty"`
}

func (r RenderResult) OK() bool { return r.Status == RenderSuccess }

type Critique struct {
	HasIssues  bool     `json:"has_issues"`
	Issues     []string `json:"issues"`
	Suggestion string   `json:"suggestion"`
}

// SectionState tracks one section through render and retry.
type SectionState string

const (
	SectionPending      SectionState = "pending"
	SectionRendering    SectionState = "rendering"
	SectionRetryPending SectionState = "retry_pending"
	SectionSuccess      SectionState = "success"
	SectionFailed       SectionState = "failed"
)

type SectionOutcome struct {
	SectionID string       `json:"section_id"`
	State     SectionState `json:"state"`
	Attempts  int          `json:"attempts"`
	VideoPath string       `json:"video_path,omitempty"`
	ErrorText string       `json:"error_text,omitempty"`
	Refined   bool         `json:"refined"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// CanTransition enforces pending -> running -> completed|failed. A pending task
// may also fail directly when it never starts.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

type Task struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	Slug      string    `json:"slug"`
	Render    bool      `json:"render"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition moves the task to next or returns ErrInvalidTransition.
func (t *Task) Transition(next Status, now time.Time) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}
	t.Status = next
	t.UpdatedAt = now
	return nil
}
