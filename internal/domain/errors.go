package domain

import (
	"errors"
	"fmt"
)

var (
	ErrStoreUnavailable      = errors.New("message store unavailable")
	ErrInvalidMessagePayload = errors.New("invalid message payload")
)

// StoreUnavailable wraps any persistence failure into ErrStoreUnavailable.
// Errors already carrying it are returned untouched.
func StoreUnavailable(op string, err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

// InvalidPayload reports a rejected send event or query.
func InvalidPayload(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessagePayload, reason)
}
