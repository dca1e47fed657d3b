package ports

import "context"

// Writer publishes encoded samples on a single topic.
type Writer interface {
	Write(ctx context.Context, payload []byte) error
	// Dispose announces that the writer's instance is gone; readers see it as
	// an invalid record.
	Dispose(ctx context.Context) error
	Close() error
}
