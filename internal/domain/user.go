package domain

import "time"

// User is an operator of the system. Superusers manage the problem taxonomy and the back-office.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Superuser    bool
	Active       bool
	CreatedAt    time.Time
}
