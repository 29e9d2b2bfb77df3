package acquisition

import (
	"context"
	"time"

	"github.com/Aquilesorei/talon/internal/scale"
)

// State is the lifecycle position of a session run.
type State int

const (
	StateIdle State = iota
	StateDiscovering
	StateLocked
	StateCompleting
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateLocked:
		return "locked"
	case StateCompleting:
		return "completing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// EventKind identifies an observation pushed by a session.
type EventKind int

const (
	EventDiscovering EventKind = iota
	EventCandidates
	EventLocked
	EventLiveReading
	EventCountdown
	EventResult
	EventNoData
	EventCancelled
	EventAborted
)

func (k EventKind) String() string {
	return [...]string{
		"discovering",
		"candidates",
		"locked",
		"live_reading",
		"countdown",
		"result",
		"no_data",
		"cancelled",
		"aborted",
	}[k]
}

// Terminal reports whether the kind ends a run. Exactly one terminal event is
// emitted per run that left Idle.
func (k EventKind) Terminal() bool {
	switch k {
	case EventResult, EventNoData, EventCancelled, EventAborted:
		return true
	}
	return false
}

// Event is one observation. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind
	SessionID string
	State     State
	At        time.Time

	Candidates []scale.CandidateDevice // EventCandidates
	Target     scale.CandidateDevice   // EventLocked
	Sample     scale.DecodedSample     // EventLiveReading
	Remaining  int                     // EventLocked, EventCountdown
	Result     *scale.AcquisitionResult
	Err        error // EventAborted
}

// Observer receives events on the session goroutine and must not block.
type Observer func(Event)

// Transport is the discovery side of the radio. Advertisements flow back
// through Session.Ingest.
type Transport interface {
	StartDiscovery(ctx context.Context) error
	StopDiscovery() error
}

// Sink receives the acquisition result. Deliver is called on the session
// goroutine and must hand slow work off instead of blocking.
type Sink interface {
	Deliver(res scale.AcquisitionResult)
}
