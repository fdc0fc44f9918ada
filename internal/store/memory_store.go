package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/bookloop/messaging-service/internal/domain"
	"github.com/bookloop/messaging-service/internal/utils"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// MemoryStore keeps messages in process memory. It backs the "memory" store
// driver for local runs and stands in for Mongo in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	msgs []domain.Message // insertion order
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: utils.NowUTC}
}

// WithClock replaces the timestamp source. Tests use it to pin ordering.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Append(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := *m
	stored.ID = uuid.NewString()
	stored.Participants = slices.Clone(m.Participants)

	s.mu.Lock()
	stored.Timestamp = s.now()
	s.msgs = append(s.msgs, stored)
	s.mu.Unlock()

	return clone(stored), nil
}

func (s *MemoryStore) MessagesTouching(ctx context.Context, identity string, order domain.SortOrder) ([]*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := domain.Normalize(identity)

	s.mu.RLock()
	out := make([]*domain.Message, 0)
	for _, m := range s.msgs {
		if lo.Contains(m.Participants, id) {
			out = append(out, clone(m))
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b *domain.Message) int {
		if order == domain.Descending {
			return b.Timestamp.Compare(a.Timestamp)
		}
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out, nil
}

// Len reports how many messages are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

func clone(m domain.Message) *domain.Message {
	m.Participants = slices.Clone(m.Participants)
	return &m
}
