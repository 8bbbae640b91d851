// Package protocol defines the wire format of the jobscout analyze API.
package protocol

// Protocol version, reported by /healthz.
const ProtocolVersion = 1

// Frame types.
const (
	FrameTypeEvent    = "event"
	FrameTypeResponse = "res"
)

// ErrorShape describes an API error.
type ErrorShape struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Stage        string `json:"stage,omitempty"`
	Retryable    bool   `json:"retryable,omitempty"`
	RetryAfterMs int    `json:"retryAfterMs,omitempty"`
}

// EventFrame is one streamed event.
type EventFrame struct {
	Type    string `json:"type"` // always "event"
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
	Seq     int64  `json:"seq"`
}

// ResponseFrame is the body of a non-streaming analyze call.
type ResponseFrame struct {
	Type    string      `json:"type"` // always "res"
	ID      string      `json:"id"`
	OK      bool        `json:"ok"`
	Cached  bool        `json:"cached,omitempty"`
	Payload any         `json:"payload,omitempty"`
	Error   *ErrorShape `json:"error,omitempty"`
}

// StagePayload is the payload of stage events.
type StagePayload struct {
	Type       string `json:"type"`
	RunID      string `json:"runId"`
	Stage      string `json:"stage"`
	Name       string `json:"name"`
	Index      int    `json:"index"`
	Total      int    `json:"total"`
	Attempt    int    `json:"attempt,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Error      string `json:"error,omitempty"`
}

func NewEventFrame(event string, seq int64, payload any) *EventFrame {
	return &EventFrame{Type: FrameTypeEvent, Event: event, Seq: seq, Payload: payload}
}

func NewOKResponse(id string, payload any) *ResponseFrame {
	return &ResponseFrame{Type: FrameTypeResponse, ID: id, OK: true, Payload: payload}
}

func NewErrorResponse(id, code, message string) *ResponseFrame {
	return &ResponseFrame{
		Type:  FrameTypeResponse,
		ID:    id,
		Error: &ErrorShape{Code: code, Message: message},
	}
}
