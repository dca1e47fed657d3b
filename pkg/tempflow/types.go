package tempflow

import (
	"github.com/ghalamif/tempflow/internal/adapters/memory"
	"github.com/ghalamif/tempflow/internal/app/poll"
	"github.com/ghalamif/tempflow/internal/app/publish"
	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
)

// Record is one entry drained from an event source. Payload is only set when
// Valid is true; invalid records announce instance lifecycle changes.
type Record = domain.Record

// Batch is everything a single drain returned, in arrival order.
type Batch = domain.Batch

// Temperature is the reading carried on the ChocolateTemperature topic.
type Temperature = domain.Temperature

// HelloMessage is the payload of the hello world topic.
type HelloMessage = domain.HelloMessage

// EventSource is waited on and drained by the subscriber loop.
type EventSource = ports.EventSource

// Writer publishes payloads on one topic.
type Writer = ports.Writer

// Sink consumes the valid records of each drained batch.
type Sink = ports.Sink

// Observability emits metrics and structured logs.
type Observability = ports.Observability

// Field is a structured log/metric field used by Observability implementations.
type Field = ports.Field

// Journal is the append-only record log used for replay.
type Journal = ports.Journal

// JournalStats exposes journal metadata for observability.
type JournalStats = ports.JournalStats

// JournalEntryID uniquely identifies a journal entry.
type JournalEntryID = ports.JournalEntryID

// RunState is the shutdown latch shared by loops and signal handlers.
type RunState = poll.RunState

// Stats summarizes a finished subscriber run.
type Stats = poll.Stats

// StopReason tells why a subscriber run ended.
type StopReason = poll.StopReason

// PublishStats summarizes a finished publisher run.
type PublishStats = publish.Stats

// SampleFactory builds the payload for the count-th write of a publisher.
type SampleFactory = publish.SampleFactory

// MemoryBus is an in-process transport shared by publishers and subscribers.
type MemoryBus = memory.Bus

const (
	StopShutdown       = poll.StopShutdown
	StopTargetReached  = poll.StopTargetReached
	StopWaitFailure    = poll.StopWaitFailure
	StopTimeoutCeiling = poll.StopTimeoutCeiling
)

var (
	ErrWaitTimeout    = ports.ErrWaitTimeout
	ErrWaitFailed     = poll.ErrWaitFailed
	ErrTimeoutCeiling = poll.ErrTimeoutCeiling
)

// NewRunState returns a running latch.
func NewRunState() *RunState { return poll.NewRunState() }

// NewMemoryBus returns a bus whose subscriber queues hold up to capacity records.
func NewMemoryBus(capacity int) *MemoryBus { return memory.NewBus(capacity) }
