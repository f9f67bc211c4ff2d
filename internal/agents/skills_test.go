package agents

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"

	"github.com/example/mathvideo/internal/models"
)

func TestSkillLibraryPrompt(t *testing.T) {
	lib := NewSkillLibraryFS(fstest.MapFS{
		"common/layout.md":         {Data: []byte("Keep text on the left.\n")},
		"geometry/angles.yaml":     {Data: []byte("name: Angles\nrules:\n  - Use Angle with radius 0.4\n  - Mark right angles with RightAngle\n")},
		"geometry/nested/extra.md": {Data: []byte("Nested skill.")},
		"proof/steps.yml":          {Data: []byte("rules: [one step per section]")},
		"geometry/broken.yaml":     {Data: []byte("rules: [unterminated")},
	})

	out := lib.Prompt(models.TaskGeometry)
	assert.Contains(t, out, "## Skills")
	assert.Contains(t, out, "Keep text on the left.")
	assert.Contains(t, out, "### Angles\n- Use Angle with radius 0.4")
	assert.Contains(t, out, "Nested skill.")
	assert.NotContains(t, out, "one step per section")

	assert.Contains(t, lib.Prompt(models.TaskProof), "### steps\n- one step per section")
	assert.Len(t, lib.Files(models.TaskKnowledge), 1)

	var none *SkillLibrary
	assert.Equal(t, "", none.Prompt(models.TaskGeometry))
	assert.Nil(t, NewSkillLibrary(""))
}
