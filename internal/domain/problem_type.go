package domain

import "time"

// ProblemType classifies tickets. Retired types are deactivated, never removed while referenced.
type ProblemType struct {
	ID          string
	Name        string
	Description string
	Active      bool
	CreatedAt   time.Time
	CreatedBy   *string
}
