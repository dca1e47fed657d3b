package ports

import "github.com/ghalamif/tempflow/internal/domain"

// Sink receives the valid records of a batch in arrival order.
type Sink interface {
	WriteBatch(records []domain.Record) error
	Name() string
}
