package form

import "time"

// FieldUpdate is one extracted key/value pair from a conversation turn.
type FieldUpdate struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RawTurnResult is a gateway turn payload resolved into one of two shapes
// at the decode boundary: Text for a plain reply, Structured for a payload
// that carried an extraction envelope.
type RawTurnResult struct {
	Text       string
	Structured *StructuredTurn
}

// StructuredTurn is the decoded extraction envelope. Fields holds the
// current protocol shape (an ordered sequence of updates); Legacy holds the
// old flat-map shape. At most one of the two is set. When both are nil the
// envelope carried no recognizable extraction and the message passes
// through untouched.
type StructuredTurn struct {
	AIMessage string
	Fields    []FieldUpdate
	Legacy    map[string]string
}

// TurnReply is the externally visible result of one conversation turn.
// FormData is a snapshot of the session's accumulated state as of this
// turn, or nil when the turn carried no extraction.
type TurnReply struct {
	Response string            `json:"response"`
	FormData map[string]string `json:"formData,omitempty"`
}

// SessionSummary is a read-only snapshot of a session's state.
type SessionSummary struct {
	SessionID string            `json:"sessionId"`
	Schema    Schema            `json:"schema"`
	CreatedAt time.Time         `json:"createdAt"`
	FormData  map[string]string `json:"formData"`
}
