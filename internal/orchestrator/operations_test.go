package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/mathvideo/internal/models"
	"github.com/example/mathvideo/internal/project"
)

func seedProject(t *testing.T, h *harness, taskType models.TaskType, ids ...string) *project.Project {
	p, err := h.projects.Create("seeded")
	require.NoError(t, err)
	sb := storyboard("Seeded", ids...)
	sb.TaskType = taskType
	require.NoError(t, p.SaveStoryboard(sb))
	for _, id := range ids {
		_, err := p.WriteScript(id, "old-"+id)
		require.NoError(t, err)
	}
	return p
}

func TestRegenerateSectionUsesPreviousScriptInSequentialMode(t *testing.T) {
	h := newHarness(t, models.TaskProof, nil)
	seedProject(t, h, models.TaskProof, "s1", "s2")

	res, err := h.o.RegenerateSection(context.Background(), "seeded", "s2")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.VideoPath)
	assert.Equal(t, []string{"old-s1"}, h.coder.previous)
	assert.Equal(t, 1, h.renderer.count("s2"))

	_, err = h.o.RegenerateSection(context.Background(), "seeded", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"old-s1", ""}, h.coder.previous)
}

func TestRegenerateSectionReportsRenderError(t *testing.T) {
	h := newHarness(t, models.TaskKnowledge, nil)
	seedProject(t, h, models.TaskKnowledge, "s1", "s2")
	h.renderer.ok = func(string) bool { return false }

	res, err := h.o.RegenerateSection(context.Background(), "seeded", "s2")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
	assert.Equal(t, []string{""}, h.coder.previous)
	assert.Equal(t, 1, h.renderer.count("s2"))
}

func TestSectionOperationsValidateTargets(t *testing.T) {
	h := newHarness(t, models.TaskKnowledge, nil)
	seedProject(t, h, models.TaskKnowledge, "s1")

	_, err := h.o.RenderSection(context.Background(), "missing", "s1")
	assert.ErrorIs(t, err, project.ErrNotFound)
	_, err = h.o.RenderSection(context.Background(), "seeded", "nope")
	assert.ErrorIs(t, err, ErrSectionNotFound)
	_, err = h.o.CritiqueSection(context.Background(), "seeded", "s1")
	assert.ErrorIs(t, err, ErrNoVideo)
}

func TestRenderThenRefineSection(t *testing.T) {
	h := newHarness(t, models.TaskKnowledge, nil)
	p := seedProject(t, h, models.TaskKnowledge, "s1")
	h.coder.refine = func(code string) string { return code + " refined" }

	res, err := h.o.RenderSection(context.Background(), "seeded", "s1")
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = h.o.RefineSection(context.Background(), "seeded", "s1", "bigger font")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Refined)
	code, err := p.ReadScript("s1")
	require.NoError(t, err)
	assert.Equal(t, "old-s1 refined", code)

	h.o.Critic = fakeCritic{}
	res, err = h.o.RefineSection(context.Background(), "seeded", "s1", "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Refined)
	assert.Equal(t, "no visual issues found", res.Message)

	fb, err := h.o.CritiqueSection(context.Background(), "seeded", "s1")
	require.NoError(t, err)
	assert.False(t, fb.HasIssues)
}
