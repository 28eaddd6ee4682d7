package dto

import "time"

// DashboardResponse summarises the ticket base.
type DashboardResponse struct {
	Counts          map[string]int         `json:"counts"`
	Total           int                    `json:"total"`
	Latest          []TicketResponse       `json:"latest"`
	TopProblemTypes []ProblemTypeUsageItem `json:"top_problem_types"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// ProblemTypeUsageItem counts tickets of one problem type.
type ProblemTypeUsageItem struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Tickets int    `json:"tickets"`
}

// SearchResponse groups global search matches.
type SearchResponse struct {
	Query        string                `json:"query"`
	Tickets      []TicketResponse      `json:"tickets"`
	Clients      []ClientResponse      `json:"clients"`
	ProblemTypes []ProblemTypeResponse `json:"problem_types"`
}
