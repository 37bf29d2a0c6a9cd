package service

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInvalidLanguage        = errors.New("invalid language")
	ErrInvalidPhoneNumber     = errors.New("invalid phone number")
	ErrTooManyInvalidAttempts = errors.New("too many invalid registration attempts")
	ErrServiceUnavailable     = errors.New("service unavailable")
	ErrPersistenceFailed      = errors.New("failed to persist registration")
	ErrStoreFailed            = errors.New("registration store failure")
)

// storeError classifies a store failure. Timeouts and cancellations become
// ErrServiceUnavailable, everything else is wrapped with fallback.
func storeError(op string, err error, fallback error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %s: %v", ErrServiceUnavailable, op, err)
	}
	return fmt.Errorf("%w: %s: %v", fallback, op, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
