package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bookloop/messaging-service/internal/config"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// NewBreaker returns the circuit breaker guarding store calls, or nil when
// disabled. It trips after MaxFailures consecutive failures and lets a single
// trial request through once TimeoutSec has passed.
func NewBreaker(cfg config.BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxFailures := uint32(cfg.MaxFailures)
	if maxFailures == 0 {
		maxFailures = 1
	}
	st := gobreaker.Settings{
		Name:        "message-store",
		MaxRequests: 1,
		Interval:    time.Duration(cfg.IntervalSec) * time.Second,
		Timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// a caller giving up is not a store failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return gobreaker.NewCircuitBreaker(st)
}
