package service

import (
	"context"

	"github.com/bookloop/messaging-service/internal/domain"
)

// MessageStore is the append-only message persistence contract.
//
// Append persists one message atomically and returns it with the
// server-assigned ID and timestamp. MessagesTouching returns a snapshot of
// every message whose participants include identity, ordered by timestamp.
// The order returned is authoritative; callers never re-sort it.
type MessageStore interface {
	Append(ctx context.Context, m *domain.Message) (*domain.Message, error)
	MessagesTouching(ctx context.Context, identity string, order domain.SortOrder) ([]*domain.Message, error)
}

// EventPublisher receives persisted messages for downstream consumers.
type EventPublisher interface {
	PublishMessageSent(ctx context.Context, m *domain.Message) error
}
