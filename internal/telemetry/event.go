// Package telemetry carries consent audit events from the reconciler to OTel and Kafka.
package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the reconciler.
const (
	EventLookupFound    = "kvkk.lookup.found"
	EventLookupNotFound = "kvkk.lookup.not_found"
	EventRecordCreated  = "kvkk.record.created"
	EventPermitUpdated  = "kvkk.permit.updated"
	EventRequestFailed  = "kvkk.request.failed"
)

// SourceConsole is the source label for events raised by operator sessions.
const SourceConsole = "kvkk-console"

// Event is one audit-relevant consent operation. Phones are carried only as PhoneHash.
type Event struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	EventType  string    `json:"eventType"`
	Source     string    `json:"source"`
	Operator   string    `json:"operator,omitempty"`
	PhoneHash  string    `json:"phoneHash,omitempty"`
	RecordCode string    `json:"recordCode,omitempty"`
	Permitted  *bool     `json:"permitted,omitempty"`
	Operation  string    `json:"operation,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewEvent returns an event with a fresh ID and the current UTC time.
func NewEvent(sessionID, eventType string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		EventType: eventType,
		Source:    SourceConsole,
		CreatedAt: time.Now().UTC(),
	}
}
