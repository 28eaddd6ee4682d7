package domain

import "time"

// Client is a customer record referenced by tickets.
type Client struct {
	ID           string
	Name         string
	Email        string
	SecretHash   string
	RegisteredAt time.Time
	Active       bool
}
