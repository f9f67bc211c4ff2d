// Package store persists task records so task history survives restarts.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/example/mathvideo/internal/models"
)

var ErrTaskNotFound = errors.New("task not found")

// TaskStore keeps task records keyed by task id.
type TaskStore interface {
	Put(ctx context.Context, task models.Task) error
	Get(ctx context.Context, id string) (models.Task, error)
	List(ctx context.Context, limit int) ([]models.Task, error)
	Close() error
}

// Memory is a process-local TaskStore.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]models.Task
}

func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]models.Task)}
}

func (m *Memory) Put(_ context.Context, task models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return models.Task{}, ErrTaskNotFound
	}
	return t, nil
}

// List returns tasks newest first. limit <= 0 means all.
func (m *Memory) List(_ context.Context, limit int) ([]models.Task, error) {
	m.mu.RLock()
	out := make([]models.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
