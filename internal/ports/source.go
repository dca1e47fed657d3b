package ports

import (
	"context"
	"errors"
	"time"

	"github.com/ghalamif/tempflow/internal/domain"
)

// ErrWaitTimeout is returned by EventSource.Wait when no data arrived before
// the timeout. It is part of normal operation, not a failure.
var ErrWaitTimeout = errors.New("wait timed out")

// EventSource is the middleware boundary a subscriber polls.
//
// Wait returns nil once data is available, an error matching ErrWaitTimeout
// when the timeout elapses first, and any other error when waiting failed.
// Drain never blocks and hands every record to exactly one caller.
type EventSource interface {
	Wait(ctx context.Context, timeout time.Duration) error
	Drain() domain.Batch
	Close() error
}
