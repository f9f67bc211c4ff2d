package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionModeFor(t *testing.T) {
	cases := map[TaskType]SectionMode{
		TaskGeometry:  ModeSequential,
		TaskProof:     ModeSequential,
		TaskKnowledge: ModeIndependent,
		TaskProblem:   ModeIndependent,
		"":            ModeIndependent,
		"calculus":    ModeIndependent,
	}
	for tt, want := range cases {
		assert.Equal(t, want, SectionModeFor(tt), "task type %q", tt)
	}
}

func TestTaskTransitions(t *testing.T) {
	now := time.Now()
	task := &Task{ID: "x", Status: StatusPending}

	require.NoError(t, task.Transition(StatusRunning, now))
	require.NoError(t, task.Transition(StatusCompleted, now))

	err := task.Transition(StatusRunning, now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StatusCompleted, task.Status)
}

func TestStatusCannotSkipRunning(t *testing.T) {
	assert.False(t, StatusPending.CanTransition(StatusCompleted))
	assert.True(t, StatusPending.CanTransition(StatusFailed))
	assert.False(t, StatusFailed.CanTransition(StatusFailed))
}

func TestStoryboardSectionLookup(t *testing.T) {
	sb := Storyboard{Sections: []Section{{ID: "a"}, {ID: "b"}}}
	sec, idx, ok := sb.Section("b")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "b", sec.ID)

	_, _, ok = sb.Section("zzz")
	assert.False(t, ok)
}

func TestSectionIDs(t *testing.T) {
	for id, valid := range map[string]bool{
		"section_1":     true,
		"intro-2":       true,
		"":              false,
		"../../escaped": false,
		"a/b":           false,
		`a\b`:           false,
		"video[0]":      false,
		"section 1":     false,
		"ünicode":       false,
	} {
		assert.Equal(t, valid, ValidSectionID(id), id)
	}
	assert.Equal(t, "escaped", CleanSectionID("../../escaped"))
	assert.Equal(t, "", CleanSectionID("../.."))
}
