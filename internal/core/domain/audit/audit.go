package audit

import (
	"time"

	"github.com/google/uuid"
)

// AccessEvent is one card presentation as seen by the door loop.
type AccessEvent struct {
	ID           uuid.UUID `json:"id" db:"id"`
	TraceID      string    `json:"trace_id" db:"trace_id"`
	CardHash     string    `json:"card_hash" db:"card_hash"`
	Status       string    `json:"status" db:"status"`
	Source       string    `json:"source" db:"source"`
	Reason       string    `json:"reason" db:"reason"`
	Granted      bool      `json:"granted" db:"granted"`
	StateBefore  string    `json:"state_before" db:"state_before"`
	StateAfter   string    `json:"state_after" db:"state_after"`
	ActuationErr string    `json:"actuation_error,omitempty" db:"actuation_error"`
	OccurredAt   time.Time `json:"occurred_at" db:"occurred_at"`
}

// RecordAccessRequest carries what the door loop knows after handling a presentation.
type RecordAccessRequest struct {
	TraceID      string
	CardHash     string
	Status       string
	Source       string
	Reason       string
	Granted      bool
	StateBefore  string
	StateAfter   string
	ActuationErr error
}

// AccessEventFilter represents filters for querying access events
type AccessEventFilter struct {
	Granted   *bool      `json:"granted,omitempty" query:"granted"`
	CardHash  *string    `json:"card_hash,omitempty" query:"card_hash"`
	StartTime *time.Time `json:"start_time,omitempty" query:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" query:"end_time"`
	Limit     int        `json:"limit" query:"limit"`
	Offset    int        `json:"offset" query:"offset"`
}
