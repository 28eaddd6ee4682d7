package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/protocol-service/internal/cache"
	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/events"
	"github.com/spec-kit/protocol-service/internal/repository"
)

const (
	dashboardCacheKey    = "dashboard"
	dashboardLatestCount = 5
	dashboardTopTypes    = 5
	exportTimeLayout     = "02/01/2006 15:04"
)

// ExportHeader is the first row of the ticket CSV export.
var ExportHeader = []string{
	"Número", "Status", "Tipo de Problema", "BUIC Dispositivo",
	"Descrição do Problema", "Usuário Criador", "Data de Criação", "Data de Finalização",
}

// ReportService serves the read-only dashboard, search and export views.
type ReportService struct {
	deps     Dependencies
	cache    cache.Cache
	ttl      time.Duration
	location *time.Location
}

// ReportOptions tunes caching and export formatting.
type ReportOptions struct {
	// Cache is optional; nil computes the dashboard on every call.
	Cache        cache.Cache
	DashboardTTL time.Duration
	// Location renders export timestamps. Defaults to UTC.
	Location *time.Location
}

// Dashboard summarises the ticket base.
type Dashboard struct {
	Counts          map[domain.TicketStatus]int `json:"counts"`
	Total           int                         `json:"total"`
	Latest          []domain.Ticket             `json:"latest"`
	TopProblemTypes []ProblemTypeUsage          `json:"top_problem_types"`
	GeneratedAt     time.Time                   `json:"generated_at"`
}

// ProblemTypeUsage counts tickets of one problem type.
type ProblemTypeUsage struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Tickets int    `json:"tickets"`
}

// SearchResult groups global search matches.
type SearchResult struct {
	Query        string
	Tickets      []domain.Ticket
	Clients      []domain.Client
	ProblemTypes []domain.ProblemType
}

// NewReportService constructs the service.
func NewReportService(deps Dependencies, opts ReportOptions) *ReportService {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{
		deps:     deps.withDefaults(),
		cache:    opts.Cache,
		ttl:      opts.DashboardTTL,
		location: loc,
	}
}

// RegisterHandlers drops the cached dashboard whenever tickets or the taxonomy change.
func (s *ReportService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil || s.cache == nil {
		return
	}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketEdited,
		events.EventTicketDeleted,
		events.EventProblemTypeChanged,
	} {
		dispatcher.Subscribe(eventType, s.invalidateDashboard)
	}
}

func (s *ReportService) invalidateDashboard(ctx context.Context, _ events.Event) error {
	return s.cache.Delete(ctx, dashboardCacheKey)
}

// Dashboard returns status counts, the latest tickets and the busiest active problem types.
func (s *ReportService) Dashboard(ctx context.Context) (*Dashboard, error) {
	if cached, ok := s.cachedDashboard(ctx); ok {
		return cached, nil
	}

	counts, err := s.deps.Repos.Tickets.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := s.deps.Repos.Tickets.List(ctx, repository.TicketFilter{
		Order: repository.OrderCreatedDesc,
		Limit: dashboardLatestCount,
	})
	if err != nil {
		return nil, err
	}
	top, err := s.deps.Repos.ProblemTypes.TopByTicketCount(ctx, dashboardTopTypes)
	if err != nil {
		return nil, err
	}

	dashboard := &Dashboard{
		Counts:          counts,
		Latest:          latest,
		TopProblemTypes: make([]ProblemTypeUsage, 0, len(top)),
		GeneratedAt:     s.deps.Clock(),
	}
	for _, n := range counts {
		dashboard.Total += n
	}
	for _, entry := range top {
		dashboard.TopProblemTypes = append(dashboard.TopProblemTypes, ProblemTypeUsage{
			ID:      entry.ProblemType.ID,
			Name:    entry.ProblemType.Name,
			Tickets: entry.Tickets,
		})
	}
	s.storeDashboard(ctx, dashboard)
	return dashboard, nil
}

func (s *ReportService) cachedDashboard(ctx context.Context) (*Dashboard, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, dashboardCacheKey)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.deps.Logger.Warn("dashboard cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var dashboard Dashboard
	if err := json.Unmarshal(raw, &dashboard); err != nil {
		s.deps.Logger.Warn("dashboard cache entry unreadable", zap.Error(err))
		return nil, false
	}
	return &dashboard, true
}

func (s *ReportService) storeDashboard(ctx context.Context, dashboard *Dashboard) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(dashboard)
	if err != nil {
		s.deps.Logger.Warn("dashboard encode failed", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, dashboardCacheKey, raw, s.ttl); err != nil {
		s.deps.Logger.Warn("dashboard cache write failed", zap.Error(err))
	}
}

// Search matches q, case-insensitively, against tickets, clients and active problem types.
// A blank query matches nothing.
func (s *ReportService) Search(ctx context.Context, q string) (*SearchResult, error) {
	term := strings.TrimSpace(q)
	result := &SearchResult{Query: term}
	if term == "" {
		return result, nil
	}

	tickets, err := s.deps.Repos.Tickets.List(ctx, repository.TicketFilter{
		SearchTerm: &term,
		Order:      repository.OrderCreatedDesc,
	})
	if err != nil {
		return nil, err
	}
	clients, err := s.deps.Repos.Clients.List(ctx, repository.ClientFilter{SearchTerm: &term})
	if err != nil {
		return nil, err
	}
	active := true
	problemTypes, err := s.deps.Repos.ProblemTypes.List(ctx, repository.ProblemTypeFilter{
		Active:     &active,
		SearchTerm: &term,
	})
	if err != nil {
		return nil, err
	}

	result.Tickets = tickets
	result.Clients = clients
	result.ProblemTypes = problemTypes
	return result, nil
}

// ExportCSV writes every ticket ordered by number.
func (s *ReportService) ExportCSV(ctx context.Context, w io.Writer) error {
	tickets, err := s.deps.Repos.Tickets.List(ctx, repository.TicketFilter{Order: repository.OrderNumberAsc})
	if err != nil {
		return err
	}
	problemTypes, err := s.deps.Repos.ProblemTypes.List(ctx, repository.ProblemTypeFilter{})
	if err != nil {
		return err
	}
	typeNames := make(map[string]string, len(problemTypes))
	for _, pt := range problemTypes {
		typeNames[pt.ID] = pt.Name
	}
	usernames := map[string]string{}

	writer := csv.NewWriter(w)
	if err := writer.Write(ExportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, ticket := range tickets {
		username, ok := usernames[ticket.CreatedBy]
		if !ok {
			user, err := s.deps.Repos.Users.GetByID(ctx, ticket.CreatedBy)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			if user != nil {
				username = user.Username
			}
			usernames[ticket.CreatedBy] = username
		}

		finalizedAt := ""
		if ticket.FinalizedAt != nil {
			finalizedAt = s.formatTime(*ticket.FinalizedAt)
		}
		record := []string{
			strconv.Itoa(ticket.Number),
			ticket.Status.Label(),
			typeNames[ticket.ProblemTypeID],
			ticket.DeviceID,
			ticket.Description,
			username,
			s.formatTime(ticket.CreatedAt),
			finalizedAt,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", ticket.Number, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func (s *ReportService) formatTime(t time.Time) string {
	return t.In(s.location).Format(exportTimeLayout)
}
