package agents

import (
	"embed"
	"encoding/json"
	"strings"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var (
	classifyPrompt       = mustPrompt("classify")
	describeImagesPrompt = mustPrompt("describe_images")
	storyboardPrompt     = mustPrompt("storyboard")
	codePrompt           = mustPrompt("code")
	fixPrompt            = mustPrompt("fix")
	refinePrompt         = mustPrompt("refine")
	critiquePrompt       = mustPrompt("critique")
	assetsPrompt         = mustPrompt("assets")
)

// storyboard guidance per task type
var guidance = map[string]string{
	"knowledge": "Explain the concept: motivate it, state it precisely, show an intuitive visual, work a short example, then summarise. Sections are independent of each other.",
	"geometry":  "Construct the figure step by step. The first section draws the base figure; every later section keeps what is already on screen and adds new points, lines or marks before explaining the relationship they reveal.",
	"problem":   "Restate the problem, identify what is known and what is asked, model it visually, solve it step by step, and finish with the answer and a quick check. Sections are independent of each other.",
	"proof":     "State the claim and what is given, then advance the argument one step per section on a persistent figure, highlighting the elements each step uses, and end with the conclusion.",
}

func mustPrompt(name string) string {
	b, err := promptFS.ReadFile("prompts/" + name + ".tmpl")
	if err != nil {
		panic(err)
	}
	return string(b)
}

// jsonList renders a list the way it should appear inside a prompt.
func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return strings.Join(items, "; ")
	}
	return string(b)
}
