package ports

import "github.com/ghalamif/tempflow/internal/domain"

type JournalEntryID uint64

// Journal is an append-only log of received records.
type Journal interface {
	Append(r domain.Record) (JournalEntryID, error)
	Iterate(from JournalEntryID, fn func(id JournalEntryID, r domain.Record) error) error
	Stats() JournalStats
	Close() error
}

type JournalStats struct {
	Entries   uint64
	LastID    JournalEntryID
	SizeBytes int64
}
