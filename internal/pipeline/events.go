package pipeline

import (
	"time"

	"github.com/nextlevelbuilder/jobscout/pkg/protocol"
)

// Event reports run and stage progress. Type is one of the protocol
// run/stage event subtypes.
type Event struct {
	Type     string
	RunID    string
	Stage    string
	Name     string
	Index    int // 1-based
	Total    int
	Attempt  int
	Duration time.Duration
	Err      error
}

// Observer receives events synchronously on the run's goroutine.
type Observer func(Event)

// Payload converts e into its wire form.
func (e Event) Payload() protocol.StagePayload {
	p := protocol.StagePayload{
		Type:       e.Type,
		RunID:      e.RunID,
		Stage:      e.Stage,
		Name:       e.Name,
		Index:      e.Index,
		Total:      e.Total,
		Attempt:    e.Attempt,
		DurationMs: e.Duration.Milliseconds(),
	}
	if e.Err != nil {
		p.Error = FormatFailure(e.Err)
	}
	return p
}
