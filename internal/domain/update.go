package domain

import "time"

// Update is an append-only note on a ticket timeline.
type Update struct {
	ID       string
	TicketID string
	Text     string
	AuthorID string
	PostedAt time.Time
	// Seq orders updates that share a PostedAt value.
	Seq int64
}
