package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/protocol-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketDeleted       EventType = "ticket_deleted"
	EventTicketEdited        EventType = "ticket_edited"
	EventUpdateAppended      EventType = "update_appended"
	EventProblemTypeChanged  EventType = "problem_type_changed"
	EventClientChanged       EventType = "client_changed"
)

// Event represents a domain event emitted by services after their unit of work commits.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// New stamps an event with a fresh id.
func New(eventType EventType, ticketID, actorID string, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		ActorID:   actorID,
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Number        int                 `json:"number"`
	ProblemTypeID string              `json:"problem_type_id"`
	ClientIDs     []string            `json:"client_ids"`
	Status        domain.TicketStatus `json:"status"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Number    int                 `json:"number"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	Number int `json:"number"`
}

// UpdateAppendedPayload payload.
type UpdateAppendedPayload struct {
	UpdateID    string `json:"update_id"`
	Number      int    `json:"number"`
	TextPreview string `json:"text_preview"`
}

// EntityChangedPayload describes a registry mutation.
type EntityChangedPayload struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}
