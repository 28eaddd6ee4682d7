package dto

import (
	"time"

	"github.com/spec-kit/protocol-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	ClientIDs     []string `json:"client_ids" validate:"required,min=1,dive,notblank"`
	DeviceID      string   `json:"device_id" validate:"notblank,max=100"`
	ProblemTypeID string   `json:"problem_type_id" validate:"notblank"`
	Description   string   `json:"description" validate:"notblank"`
	FirstUpdate   string   `json:"first_update"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status domain.TicketStatus `json:"status" validate:"required,oneof=OPEN IN_PROGRESS FINALIZED"`
}

// AppendUpdateRequest payload.
type AppendUpdateRequest struct {
	Text string `json:"text" validate:"notblank"`
}

// AdminTicketPatchRequest lists the editable ticket fields. Absent fields are left unchanged.
type AdminTicketPatchRequest struct {
	ClientIDs     *[]string            `json:"client_ids" validate:"omitempty,min=1"`
	DeviceID      *string              `json:"device_id" validate:"omitempty,max=100"`
	ProblemTypeID *string              `json:"problem_type_id"`
	Description   *string              `json:"description"`
	Status        *domain.TicketStatus `json:"status" validate:"omitempty,oneof=OPEN IN_PROGRESS FINALIZED"`
}

// NextNumberResponse previews the number of the next ticket.
type NextNumberResponse struct {
	Number int `json:"number"`
}

// TicketResponse is the list representation.
type TicketResponse struct {
	ID            string              `json:"id"`
	Number        int                 `json:"number"`
	ClientIDs     []string            `json:"client_ids"`
	DeviceID      string              `json:"device_id"`
	ProblemTypeID string              `json:"problem_type_id"`
	Description   string              `json:"description"`
	Status        domain.TicketStatus `json:"status"`
	StatusLabel   string              `json:"status_label"`
	CreatedBy     string              `json:"created_by"`
	CreatedAt     time.Time           `json:"created_at"`
	FinalizedAt   *time.Time          `json:"finalized_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketResponse
	Clients     []ClientResponse     `json:"clients"`
	ProblemType *ProblemTypeResponse `json:"problem_type"`
	Creator     *UserResponse        `json:"creator"`
	Updates     []UpdateResponse     `json:"updates"`
}

// UpdateResponse represents one timeline note.
type UpdateResponse struct {
	ID       string    `json:"id"`
	TicketID string    `json:"ticket_id"`
	Text     string    `json:"text"`
	AuthorID string    `json:"author_id"`
	PostedAt time.Time `json:"posted_at"`
}

// AppendUpdateResponse carries the stored note and the ticket after promotion.
type AppendUpdateResponse struct {
	Update   UpdateResponse `json:"update"`
	Ticket   TicketResponse `json:"ticket"`
	Promoted bool           `json:"promoted"`
}

// AdminTicketResponse is one row of the back-office listing.
type AdminTicketResponse struct {
	TicketResponse
	PrimaryClientName string `json:"primary_client_name"`
	ProblemTypeName   string `json:"problem_type_name"`
	LatestUpdate      string `json:"latest_update,omitempty"`
}
