package repository

import (
	"context"
	"sync"

	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

// MemoryStore keeps the current outcome in process memory. Used by one-shot
// commands that print the outcome instead of persisting it.
type MemoryStore struct {
	mu  sync.RWMutex
	cur entity.Outcome
	set bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Write(_ context.Context, o entity.Outcome) error {
	if _, err := encode(o); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur, s.set = o, true
	return nil
}

func (s *MemoryStore) ReadCurrent(context.Context) (entity.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return entity.Outcome{}, common.ErrNotAvailable
	}
	return s.cur, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }
