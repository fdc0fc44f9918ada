package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bookloop/messaging-service/internal/domain"
	"github.com/bookloop/messaging-service/internal/metrics"
	"go.uber.org/zap"
)

type SendMessageCommand struct {
	Sender   string
	Receiver string
	Body     string
}

// CommandService owns the write path: validate, persist, then announce.
type CommandService struct {
	store   MessageStore
	events  EventPublisher
	maxBody int
	log     *zap.Logger

	// PublishTimeout bounds one message.sent publish.
	PublishTimeout time.Duration
	publishing     sync.WaitGroup
}

const defaultPublishTimeout = 5 * time.Second

// NewCommandService wires the write path. events may be nil; maxBody <= 0
// leaves message length unbounded.
func NewCommandService(store MessageStore, events EventPublisher, maxBody int, log *zap.Logger) *CommandService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CommandService{
		store:          store,
		events:         events,
		maxBody:        maxBody,
		log:            log.Named("command"),
		PublishTimeout: defaultPublishTimeout,
	}
}

// SendMessage persists one message. Invalid payloads never reach the store.
// The returned message is the stored copy and is the only thing callers may
// broadcast. The message.sent event is published in the background, so a slow
// broker never delays the caller.
func (s *CommandService) SendMessage(ctx context.Context, cmd SendMessageCommand) (*domain.Message, error) {
	m := domain.NewMessage(strings.TrimSpace(cmd.Sender), strings.TrimSpace(cmd.Receiver), cmd.Body)
	if err := m.Validate(s.maxBody); err != nil {
		return nil, err
	}

	stored, err := s.store.Append(ctx, m)
	if err != nil {
		s.log.Error("append message", zap.String("sender", m.Sender), zap.String("receiver", m.Receiver), zap.Error(err))
		return nil, domain.StoreUnavailable("append message", err)
	}
	metrics.MessagesPersisted.Inc()

	if s.events != nil {
		s.publish(context.WithoutCancel(ctx), stored)
	}
	return stored, nil
}

func (s *CommandService) publish(ctx context.Context, m *domain.Message) {
	s.publishing.Add(1)
	go func() {
		defer s.publishing.Done()
		ctx, cancel := context.WithTimeout(ctx, s.PublishTimeout)
		defer cancel()
		if err := s.events.PublishMessageSent(ctx, m); err != nil {
			s.log.Warn("publish message.sent", zap.String("id", m.ID), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight event publishes finish. Call it before closing
// the publisher.
func (s *CommandService) Wait() {
	s.publishing.Wait()
}
