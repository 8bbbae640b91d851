package protocol

// Event names pushed over the analyze stream.
const (
	EventRun    = "run"
	EventStage  = "stage"
	EventReport = "report"
	EventError  = "error"
)

// Event subtypes (in payload.type).
const (
	RunEventStarted   = "run.started"
	RunEventCompleted = "run.completed"
	RunEventFailed    = "run.failed"

	StageEventStarted   = "stage.started"
	StageEventRetrying  = "stage.retrying"
	StageEventCompleted = "stage.completed"
	StageEventFailed    = "stage.failed"
)
