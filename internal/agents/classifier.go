package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/mathvideo/internal/jsonrepair"
	"github.com/example/mathvideo/internal/models"
	"github.com/example/mathvideo/internal/progress"
	"github.com/example/mathvideo/internal/providers/llm"
)

// DefaultTaskType is used whenever classification fails.
const DefaultTaskType = models.TaskKnowledge

type Classifier struct {
	Model Model
}

// Classify maps the request to a task type. It never fails: any model or parse
// error yields DefaultTaskType.
func (c *Classifier) Classify(ctx context.Context, text, imageContext string) models.TaskType {
	input := strings.TrimSpace(text)
	if input == "" {
		input = "(the user only provided images)"
	}
	if imageContext == "" {
		imageContext = "none"
	}
	prompt, err := llm.Render(classifyPrompt, map[string]string{"InputText": input, "ImageContext": imageContext})
	if err != nil {
		progress.Warn(ctx, fmt.Sprintf("task classification failed: %v; using %s", err, DefaultTaskType))
		return DefaultTaskType
	}

	progress.Info(ctx, "analysing task type")
	raw, err := c.Model.CompleteText(ctx, prompt, llm.Options{Temperature: 0.1, MaxTokens: 1024})
	if err != nil {
		progress.Warn(ctx, fmt.Sprintf("task classification failed: %v; using %s", err, DefaultTaskType))
		return DefaultTaskType
	}
	t, strategy := ParseTaskType(raw)
	if strategy == StrategyDefault {
		progress.Warn(ctx, fmt.Sprintf("could not read a task type from %q; using %s", truncate(raw, 80), t))
	} else {
		progress.Info(ctx, fmt.Sprintf("task type: %s", t))
	}
	return t
}

const (
	StrategyLiteral   = "literal"
	StrategyJSONField = "json-field"
	StrategySubstring = "substring"
	StrategyKeywords  = "keywords"
	StrategyDefault   = "default"
)

type taskTypeParser struct {
	name  string
	parse func(text string) (models.TaskType, bool)
}

var taskTypeParsers = []taskTypeParser{
	{StrategyLiteral, parseLiteral},
	{StrategyJSONField, parseJSONField},
	{StrategySubstring, parseSubstring},
	{StrategyKeywords, parseKeywords},
}

// ParseTaskType reads a task type from free-form model output and reports which
// strategy matched.
func ParseTaskType(raw string) (models.TaskType, string) {
	text := strings.ToLower(strings.TrimSpace(raw))
	for _, p := range taskTypeParsers {
		if t, ok := p.parse(text); ok {
			return t, p.name
		}
	}
	return DefaultTaskType, StrategyDefault
}

func parseLiteral(text string) (models.TaskType, bool) {
	t := models.TaskType(strings.Trim(text, " \t\n\"'`.。"))
	return t, t.Valid()
}

func parseJSONField(text string) (models.TaskType, bool) {
	var obj map[string]any
	if err := jsonrepair.ExtractObject(text, &obj); err != nil {
		return "", false
	}
	for _, key := range []string{"task_type", "type", "category"} {
		if s, ok := obj[key].(string); ok {
			if t := models.TaskType(strings.ToLower(strings.TrimSpace(s))); t.Valid() {
				return t, true
			}
		}
	}
	return "", false
}

// parseSubstring picks the valid literal that appears earliest in the text.
func parseSubstring(text string) (models.TaskType, bool) {
	best, bestAt := models.TaskType(""), -1
	for _, t := range models.TaskTypes {
		if i := strings.Index(text, string(t)); i >= 0 && (bestAt < 0 || i < bestAt) {
			best, bestAt = t, i
		}
	}
	return best, bestAt >= 0
}

var taskKeywords = []struct {
	word string
	t    models.TaskType
}{
	{"知识点", models.TaskKnowledge}, {"讲解", models.TaskKnowledge}, {"概念", models.TaskKnowledge},
	{"几何", models.TaskGeometry}, {"作图", models.TaskGeometry}, {"构造", models.TaskGeometry},
	{"应用", models.TaskProblem}, {"计算", models.TaskProblem}, {"求解", models.TaskProblem},
	{"证明", models.TaskProof}, {"推导", models.TaskProof}, {"论证", models.TaskProof},
	{"concept", models.TaskKnowledge}, {"explain", models.TaskKnowledge},
	{"construct", models.TaskGeometry}, {"figure", models.TaskGeometry},
	{"calculat", models.TaskProblem}, {"solve", models.TaskProblem},
	{"prove", models.TaskProof}, {"derivation", models.TaskProof},
}

func parseKeywords(text string) (models.TaskType, bool) {
	for _, k := range taskKeywords {
		if strings.Contains(text, k.word) {
			return k.t, true
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
