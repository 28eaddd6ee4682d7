package dto

import "time"

// CreateClientRequest payload.
type CreateClientRequest struct {
	Name   string `json:"name" validate:"notblank,max=255"`
	Email  string `json:"email" validate:"required,email"`
	Secret string `json:"secret" validate:"notblank"`
}

// UpdateClientRequest payload. Absent fields are left unchanged.
type UpdateClientRequest struct {
	Name   *string `json:"name" validate:"omitempty,max=255"`
	Email  *string `json:"email" validate:"omitempty,email"`
	Secret *string `json:"secret"`
	Active *bool   `json:"active"`
}

// VerifyClientSecretRequest payload.
type VerifyClientSecretRequest struct {
	Secret string `json:"secret" validate:"required"`
}

// VerifyClientSecretResponse reports whether the secret matched.
type VerifyClientSecretResponse struct {
	Valid bool `json:"valid"`
}

// ClientResponse never exposes the secret hash.
type ClientResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registered_at"`
}

// CreateProblemTypeRequest payload.
type CreateProblemTypeRequest struct {
	Name        string `json:"name" validate:"notblank,max=100"`
	Description string `json:"description"`
}

// UpdateProblemTypeRequest payload. Absent fields are left unchanged.
type UpdateProblemTypeRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

// ProblemTypeResponse representation.
type ProblemTypeResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   *string   `json:"created_by"`
}
