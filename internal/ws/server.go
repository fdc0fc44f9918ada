package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bookloop/messaging-service/internal/domain"
	"github.com/bookloop/messaging-service/internal/metrics"
	"github.com/bookloop/messaging-service/internal/service"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Frame types. Names match the events browser clients already emit and
// listen for.
const (
	EventSendMessage = "sendMessage"
	EventNewMessage  = "newMessage"
	EventError       = "error"
)

type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SendMessagePayload accepts the body under "message" (legacy clients) or
// "body".
type SendMessagePayload struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Message  string `json:"message"`
	Body     string `json:"body"`
}

func (p SendMessagePayload) text() string {
	if p.Body != "" {
		return p.Body
	}
	return p.Message
}

type OutboundFrame struct {
	Type  string          `json:"type"`
	Data  *domain.Message `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// MessageSender is the write path the live channel persists through.
type MessageSender interface {
	SendMessage(ctx context.Context, cmd service.SendMessageCommand) (*domain.Message, error)
}

// TokenValidator resolves a bearer token to a user identity.
type TokenValidator interface {
	Validate(token string) (string, error)
}

type Options struct {
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
	SendPerSecond  float64
	SendBurst      int
	SendTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteDeadline <= 0 {
		o.WriteDeadline = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.SendPerSecond <= 0 {
		o.SendPerSecond = 5
	}
	if o.SendBurst <= 0 {
		o.SendBurst = 10
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 10 * time.Second
	}
	return o
}

// Server is the live broadcast channel: it accepts sendMessage events,
// persists them, and fans the stored message out to every connection.
type Server struct {
	hub  *Hub
	cmd  MessageSender
	jv   TokenValidator // nil disables token checks
	opts Options
	log  *zap.Logger
}

func NewServer(hub *Hub, cmd MessageSender, jv TokenValidator, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{hub: hub, cmd: cmd, jv: jv, opts: opts.withDefaults(), log: log.Named("ws")}
}

func (s *Server) Hub() *Hub { return s.hub }

// session is the per-connection state the event handlers need.
type session struct {
	client   Client
	identity string // empty when auth is disabled
	limiter  *rate.Limiter
}

func (s *Server) newSession(c Client, identity string) *session {
	return &session{
		client:   c,
		identity: identity,
		limiter:  rate.NewLimiter(rate.Limit(s.opts.SendPerSecond), s.opts.SendBurst),
	}
}

// HandleWS is the websocket.Handler mounted with websocket.New().
func (s *Server) HandleWS() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		identity := ""
		if s.jv != nil {
			uid, err := s.jv.Validate(conn.Query("token"))
			if err != nil {
				s.log.Info("rejecting websocket: invalid token", zap.Error(err))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"))
				_ = conn.Close()
				return
			}
			identity = uid
		}

		c := NewConnection(conn)
		if !s.OnConnect(c) {
			_ = conn.Close()
			return
		}
		sess := s.newSession(c, identity)

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			c.writePump(s.opts)
		}()

		c.readPump(s.opts, func(data []byte) {
			s.handleFrame(context.Background(), sess, data)
		})

		s.OnDisconnect(c)
		c.Close()
		<-writerDone
	}
}

// OnConnect registers c with the hub.
func (s *Server) OnConnect(c Client) bool {
	ok := s.hub.Register(c)
	if ok {
		s.log.Info("client connected", zap.String("conn", c.ID()))
	}
	return ok
}

// OnDisconnect removes c from the hub. The connection is not reused.
func (s *Server) OnDisconnect(c Client) {
	s.hub.Unregister(c)
	s.log.Info("client disconnected", zap.String("conn", c.ID()))
}

func (s *Server) handleFrame(ctx context.Context, sess *session, data []byte) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		s.reject(sess.client, "malformed", domain.InvalidPayload("malformed frame"))
		return
	}
	switch f.Type {
	case EventSendMessage:
		var p SendMessagePayload
		if len(f.Data) == 0 || json.Unmarshal(f.Data, &p) != nil {
			s.reject(sess.client, "malformed", domain.InvalidPayload("malformed sendMessage data"))
			return
		}
		if !sess.limiter.Allow() {
			s.reject(sess.client, "rate_limited", domain.InvalidPayload("sending too fast"))
			return
		}
		_ = s.OnSendMessage(ctx, sess.client, sess.identity, p)
	default:
		s.reject(sess.client, "unknown_type", domain.InvalidPayload("unknown frame type "+f.Type))
	}
}

// OnSendMessage persists p and broadcasts the stored message to every live
// connection. On failure nothing is broadcast and only c hears about it.
// When identity is set, p.Sender must match it.
func (s *Server) OnSendMessage(ctx context.Context, c Client, identity string, p SendMessagePayload) error {
	if identity != "" && !domain.SameIdentity(identity, p.Sender) {
		err := domain.InvalidPayload("sender does not match authenticated user")
		s.reject(c, "forbidden_sender", err)
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	m, err := s.cmd.SendMessage(sendCtx, service.SendMessageCommand{Sender: p.Sender, Receiver: p.Receiver, Body: p.text()})
	cancel()
	if err != nil {
		reason := "store_unavailable"
		if errors.Is(err, domain.ErrInvalidMessagePayload) {
			reason = "invalid_payload"
		}
		s.reject(c, reason, err)
		return err
	}

	s.BroadcastMessage(ctx, m)
	return nil
}

// BroadcastMessage fans a persisted message out as a newMessage frame and
// returns the number of local deliveries.
func (s *Server) BroadcastMessage(ctx context.Context, m *domain.Message) int {
	b, err := json.Marshal(OutboundFrame{Type: EventNewMessage, Data: m})
	if err != nil {
		s.log.Error("encode broadcast", zap.String("id", m.ID), zap.Error(err))
		return 0
	}
	n := s.hub.Broadcast(ctx, b)
	s.log.Debug("message broadcast", zap.String("id", m.ID), zap.Int("deliveries", n))
	return n
}

func (s *Server) reject(c Client, reason string, err error) {
	metrics.SendsRejected.WithLabelValues(reason).Inc()
	msg := err.Error()
	if !errors.Is(err, domain.ErrInvalidMessagePayload) {
		msg = "message could not be saved"
	}
	s.log.Info("send rejected", zap.String("conn", c.ID()), zap.String("reason", reason), zap.Error(err))
	b, _ := json.Marshal(OutboundFrame{Type: EventError, Error: msg})
	c.Send(b)
}
