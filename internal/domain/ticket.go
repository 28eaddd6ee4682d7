package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusFinalized  TicketStatus = "FINALIZED"
)

// FirstTicketNumber is assigned when no ticket has ever been numbered.
const FirstTicketNumber = 1000

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusFinalized:
		return true
	}
	return false
}

// Label returns the localized display label used by exports and the UI.
func (s TicketStatus) Label() string {
	switch s {
	case TicketStatusOpen:
		return "Aberto"
	case TicketStatusInProgress:
		return "Em Andamento"
	case TicketStatusFinalized:
		return "Finalizado"
	}
	return string(s)
}

// Rank orders statuses for back-office listings.
func (s TicketStatus) Rank() int {
	switch s {
	case TicketStatusOpen:
		return 0
	case TicketStatusInProgress:
		return 1
	case TicketStatusFinalized:
		return 2
	}
	return 99
}

// Ticket is the aggregate for support requests ("protocolos").
type Ticket struct {
	ID            string
	Number        int
	ClientIDs     []string
	DeviceID      string
	ProblemTypeID string
	Description   string
	Status        TicketStatus
	CreatedBy     string
	CreatedAt     time.Time
	FinalizedAt   *time.Time
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusInProgress, TicketStatusFinalized},
	TicketStatusInProgress: {TicketStatusFinalized},
	TicketStatusFinalized:  {},
}

// ErrInvalidTransition is returned by Transition for moves outside the lifecycle table.
type ErrInvalidTransition struct {
	From TicketStatus
	To   TicketStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether current -> next is allowed. Re-saving the same status is always allowed.
func CanTransition(current, next TicketStatus) bool {
	if current == next {
		return true
	}
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Transition applies next to the ticket. It reports whether anything changed.
// finalizedAt is stamped with now the first time the ticket becomes Finalized and never overwritten.
func (t *Ticket) Transition(next TicketStatus, now time.Time) (bool, error) {
	if !next.Valid() {
		return false, &ErrInvalidTransition{From: t.Status, To: next}
	}
	if !CanTransition(t.Status, next) {
		return false, &ErrInvalidTransition{From: t.Status, To: next}
	}
	changed := t.Status != next
	t.Status = next
	if next == TicketStatusFinalized && t.FinalizedAt == nil {
		stamp := now
		t.FinalizedAt = &stamp
		changed = true
	}
	return changed, nil
}
