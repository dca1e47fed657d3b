package domain

import "time"

// Instance states carried next to a record. Anything other than StateAlive is a
// lifecycle notification without application data.
const (
	StateAlive     = "alive"
	StateDisposed  = "disposed"
	StateNoWriters = "no_writers"
	StateUnknown   = "unknown"
)

// Record is one unit received from an event source.
type Record struct {
	// Valid is false for pure lifecycle notifications; Payload is then empty.
	Valid         bool      `json:"valid"`
	Payload       []byte    `json:"payload,omitempty"`
	Topic         string    `json:"topic"`
	InstanceState string    `json:"instance_state"`
	WriterID      string    `json:"writer_id,omitempty"`
	Seq           uint64    `json:"seq"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Batch holds the records returned by a single drain, in arrival order.
type Batch []Record

// ValidCount returns the number of records carrying application data.
func (b Batch) ValidCount() int {
	n := 0
	for i := range b {
		if b[i].Valid {
			n++
		}
	}
	return n
}
