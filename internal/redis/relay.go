package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deliverer hands a relayed frame to local connections only.
type Deliverer interface {
	Deliver(payload []byte) int
}

// envelope wraps a broadcast frame with the instance that produced it.
type envelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// subscription is the part of *redis.PubSub the relay reads from.
type subscription interface {
	Receive(ctx context.Context) (interface{}, error)
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// Relay fans broadcasts out across service instances over Redis pub/sub.
type Relay struct {
	client    *redis.Client
	channel   string
	origin    string
	log       *zap.Logger
	subscribe func(ctx context.Context, channel string) subscription
}

func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	r := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return r, nil
}

func NewRelay(client *redis.Client, prefix string, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Relay{
		client:  client,
		channel: prefix + ":broadcast",
		origin:  uuid.NewString(),
		log:     log.Named("relay"),
	}
	r.subscribe = func(ctx context.Context, channel string) subscription {
		return r.client.Subscribe(ctx, channel)
	}
	return r
}

func (r *Relay) Channel() string { return r.channel }

func (r *Relay) Origin() string { return r.origin }

// Publish announces payload to the other instances. It matches the hub's
// PublishToOtherInstances signature.
func (r *Relay) Publish(ctx context.Context, payload []byte) error {
	b, err := encodeEnvelope(r.origin, payload)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

// Run delivers foreign broadcasts to hub until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, hub Deliverer) error {
	sub := r.subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("relay subscribed", zap.String("channel", r.channel), zap.String("origin", r.origin))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(hub, []byte(msg.Payload))
		}
	}
}

func (r *Relay) handle(hub Deliverer, raw []byte) int {
	payload, foreign, err := decodeEnvelope(r.origin, raw)
	if err != nil {
		r.log.Warn("dropping relay frame", zap.Error(err))
		return 0
	}
	if !foreign {
		return 0
	}
	return hub.Deliver(payload)
}

func encodeEnvelope(origin string, payload []byte) ([]byte, error) {
	if !json.Valid(payload) {
		return nil, errors.New("relay payload is not JSON")
	}
	return json.Marshal(envelope{Origin: origin, Payload: payload})
}

// decodeEnvelope unwraps raw and reports whether it came from another
// instance.
func decodeEnvelope(self string, raw []byte) ([]byte, bool, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Origin == "" || len(e.Payload) == 0 {
		return nil, false, errors.New("incomplete envelope")
	}
	return e.Payload, e.Origin != self, nil
}
