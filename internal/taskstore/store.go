// Package taskstore keeps the status record of every task.
package taskstore

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/yokitheyo/pagesmith/internal/model"
)

var (
	ErrTerminal          = errors.New("task already reached a terminal status")
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// Store maps task ids to their current record. Implementations must make a
// Set immediately visible to subsequent Gets.
type Store interface {
	Get(taskID string) (model.Record, bool)
	Set(taskID string, rec model.Record) error
}

type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]model.Record
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]model.Record),
		now:   time.Now,
	}
}

func (s *MemoryStore) Get(taskID string) (model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[taskID]
	return rec, ok
}

// Set replaces the record wholesale. Writes against a terminal record, or
// writes that would move the status backwards, are rejected.
func (s *MemoryStore) Set(taskID string, rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.tasks[taskID]
	if prev.Status.Terminal() {
		return errors.Wrapf(ErrTerminal, "task %s is %s", taskID, prev.Status)
	}
	if !prev.Status.CanTransition(rec.Status) {
		return errors.Wrapf(ErrInvalidTransition, "task %s: %q -> %q", taskID, prev.Status, rec.Status)
	}
	rec.UpdatedAt = s.now()
	s.tasks[taskID] = rec
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
