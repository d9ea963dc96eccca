package events

import (
	"time"

	"github.com/spec-kit/wellness-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSubjectVerified  EventType = "subject_verified"
	EventResetRequested   EventType = "reset_requested"
	EventResetLinkOpened  EventType = "reset_link_opened"
	EventVerificationSent EventType = "verification_sent"
)

// Event represents a domain event emitted by the verification subsystem.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Subject   domain.SubjectRef `json:"subject"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   interface{}       `json:"payload,omitempty"`
}

// SubjectVerifiedPayload payload.
type SubjectVerifiedPayload struct {
	Notified bool `json:"notified"`
}

// ResetLinkOpenedPayload payload. The desktop bridge uses the token to open
// its reset-entry screen; no validation happens at the landing page.
type ResetLinkOpenedPayload struct {
	Token string `json:"token"`
}
