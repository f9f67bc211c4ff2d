package agents

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/example/mathvideo/internal/models"
	"github.com/example/mathvideo/internal/progress"
	"github.com/example/mathvideo/internal/providers/llm"
)

// ErrNoCode means the model produced no usable scene code. The section must not
// be rendered.
var ErrNoCode = errors.New("code generation failed")

// Coder writes, fixes and refines Manim scene scripts.
type Coder struct {
	Model  Model
	Skills *SkillLibrary
}

type codeVars struct {
	Title            string
	LectureLines     string
	Animations       string
	Assets           string
	PreviousCode     string
	InheritedObjects string
	NewObjects       string
	ClassName        string
	Skills           string
}

// Generate writes the scene for one section. previousCode is only used when the
// task type builds on earlier sections.
func (c *Coder) Generate(ctx context.Context, section models.Section, previousCode string, taskType models.TaskType, assets map[string]string) (models.CodeArtifact, error) {
	className := ClassName(section.ID)
	vars := codeVars{
		Title:        section.Title,
		LectureLines: jsonList(section.LectureLines),
		Animations:   jsonList(section.Animations),
		Assets:       assetList(assets),
		ClassName:    className,
		Skills:       c.Skills.Prompt(taskType),
	}
	if models.SectionModeFor(taskType) == models.ModeSequential && strings.TrimSpace(previousCode) != "" {
		vars.PreviousCode = previousCode
		vars.InheritedObjects = jsonList(section.InheritedObjects)
		vars.NewObjects = jsonList(section.NewObjects)
		progress.Info(ctx, fmt.Sprintf("generating code for %s (continuing previous section)", section.ID))
	} else {
		progress.Info(ctx, fmt.Sprintf("generating code for %s", section.ID))
	}

	prompt, err := llm.Render(codePrompt, vars)
	if err != nil {
		return models.CodeArtifact{}, fmt.Errorf("%w: %w", ErrNoCode, err)
	}
	raw, err := c.Model.CompleteText(ctx, prompt, llm.Options{Temperature: 0.5, MaxTokens: 16384})
	if err != nil {
		return models.CodeArtifact{}, fmt.Errorf("%w: %w", ErrNoCode, err)
	}
	code := CleanCode(raw)
	if code == "" {
		return models.CodeArtifact{}, fmt.Errorf("%w: empty completion", ErrNoCode)
	}
	return models.CodeArtifact{
		SectionID: section.ID,
		Code:      RenameScene(code, className),
		ClassName: className,
	}, nil
}

// Fix asks the model to repair code using the render error. An empty result
// means no fix is available.
func (c *Coder) Fix(ctx context.Context, code, errText string) string {
	return c.rewrite(ctx, fixPrompt, map[string]string{"Code": code, "Error": errText}, 0.2, "fix")
}

// Refine applies visual feedback to working code. An empty result means no
// refinement is available.
func (c *Coder) Refine(ctx context.Context, code, feedback string) string {
	return c.rewrite(ctx, refinePrompt, map[string]string{"Code": code, "Feedback": feedback}, 0.3, "refine")
}

func (c *Coder) rewrite(ctx context.Context, tmpl string, vars map[string]string, temp float32, what string) string {
	prompt, err := llm.Render(tmpl, vars)
	if err != nil {
		progress.Warn(ctx, fmt.Sprintf("code %s failed: %v", what, err))
		return ""
	}
	raw, err := c.Model.CompleteText(ctx, prompt, llm.Options{Temperature: temp, MaxTokens: 16384})
	if err != nil {
		progress.Warn(ctx, fmt.Sprintf("code %s failed: %v", what, err))
		return ""
	}
	return CleanCode(raw)
}

// CleanCode extracts the first python fenced block, else the first fenced
// block, else the whole reply.
func CleanCode(raw string) string {
	s := raw
	if _, after, ok := strings.Cut(s, "```python"); ok {
		s, _, _ = strings.Cut(after, "```")
	} else if _, after, ok := strings.Cut(s, "```"); ok {
		s, _, _ = strings.Cut(after, "```")
	}
	return strings.TrimSpace(s)
}

// ClassName derives the scene class from a section id: section_1 becomes
// Section1Scene.
func ClassName(sectionID string) string {
	parts := strings.FieldsFunc(sectionID, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	title := cases.Title(language.Und)
	var b strings.Builder
	for _, p := range parts {
		for _, r := range title.String(p) {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				b.WriteRune(r)
			}
		}
	}
	name := b.String()
	if name == "" || unicode.IsDigit(rune(name[0])) {
		name = "Section" + name
	}
	return name + "Scene"
}

var sceneHeader = regexp.MustCompile(`(?m)^class\s+\w+\s*\(([^)]*Scene[^)]*)\)\s*:`)

// RenameScene rewrites the first scene class header to className.
func RenameScene(code, className string) string {
	loc := sceneHeader.FindStringSubmatchIndex(code)
	if loc == nil {
		return code
	}
	header := fmt.Sprintf("class %s(%s):", className, code[loc[2]:loc[3]])
	return code[:loc[0]] + header + code[loc[1]:]
}

func assetList(assets map[string]string) string {
	if len(assets) == 0 {
		return ""
	}
	keys := make([]string, 0, len(assets))
	for k := range assets {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %q", k, assets[k]))
	}
	return strings.Join(lines, "; ")
}
