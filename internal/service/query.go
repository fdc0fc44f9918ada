package service

import (
	"context"

	"github.com/bookloop/messaging-service/internal/domain"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// QueryService serves point-in-time reads. It keeps no state between calls;
// every read goes back to the store.
type QueryService struct {
	store MessageStore
	log   *zap.Logger
}

func NewQueryService(store MessageStore, log *zap.Logger) *QueryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &QueryService{store: store, log: log.Named("query")}
}

// AssembleThread returns the exchange between currentUser and counterpart in
// ascending timestamp order. No history is an empty slice.
func (s *QueryService) AssembleThread(ctx context.Context, currentUser, counterpart string) ([]*domain.Message, error) {
	if domain.Normalize(currentUser) == "" || domain.Normalize(counterpart) == "" {
		return nil, domain.InvalidPayload("currentUser and counterpart are required")
	}
	msgs, err := s.store.MessagesTouching(ctx, currentUser, domain.Ascending)
	if err != nil {
		s.log.Warn("thread query failed", zap.String("user", currentUser), zap.Error(err))
		return nil, domain.StoreUnavailable("assemble thread", err)
	}

	want := domain.Key(currentUser, counterpart)
	thread := lo.Filter(msgs, func(m *domain.Message, _ int) bool {
		return m.Key() == want
	})
	return thread, nil
}

// AggregateInbox collapses every message touching currentUser into one entry
// per counterpart, most recently contacted first. The store returns newest
// first, so the first message seen for a counterpart is its latest; ties
// follow store order.
func (s *QueryService) AggregateInbox(ctx context.Context, currentUser string) ([]domain.InboxEntry, error) {
	if domain.Normalize(currentUser) == "" {
		return nil, domain.InvalidPayload("currentUser is required")
	}
	msgs, err := s.store.MessagesTouching(ctx, currentUser, domain.Descending)
	if err != nil {
		s.log.Warn("inbox query failed", zap.String("user", currentUser), zap.Error(err))
		return nil, domain.StoreUnavailable("aggregate inbox", err)
	}

	latest := lo.UniqBy(msgs, func(m *domain.Message) string {
		return domain.Normalize(m.Counterpart(currentUser))
	})
	return lo.Map(latest, func(m *domain.Message, _ int) domain.InboxEntry {
		return domain.InboxEntry{
			Counterpart:     m.Counterpart(currentUser),
			LastMessageBody: m.Body,
			LastMessageTime: m.Timestamp,
		}
	}), nil
}
