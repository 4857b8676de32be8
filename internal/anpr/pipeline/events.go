package pipeline

import (
	"time"

	"github.com/banshee-data/plate.report/internal/anpr/aggregate"
)

// EventKind discriminates pipeline events on the bus.
type EventKind string

const (
	// EventStarted is published once when the pipeline begins running.
	EventStarted EventKind = "started"

	// EventStopped is published once when every stage has quiesced,
	// whether by Stop, source exhaustion, or a stage-fatal shutdown.
	EventStopped EventKind = "stopped"

	// EventReading carries one confirmed plate reading.
	EventReading EventKind = "reading"

	// EventDiagnostic carries a non-fatal stage error. The pipeline has
	// already recovered; the consumer may log or surface it.
	EventDiagnostic EventKind = "diagnostic"

	// EventStageFatal reports that a stage failed repeatedly and the
	// pipeline is shutting down.
	EventStageFatal EventKind = "stage_fatal"

	// EventSourceExhausted reports that the input source has no more
	// frames. Terminal but not an error; a drain and EventStopped follow.
	EventSourceExhausted EventKind = "source_exhausted"
)

// Event is the consumer-facing notification type. Reading is set only for
// EventReading; Stage and Message are set for diagnostics and fatals.
type Event struct {
	Kind    EventKind               `json:"kind"`
	Time    time.Time               `json:"time"`
	Stage   string                  `json:"stage,omitempty"`
	Message string                  `json:"message,omitempty"`
	Reading *aggregate.ReadingEvent `json:"reading,omitempty"`
}
