package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/repository"
)

type ticketRepository struct {
	s *Store
}

// nextNumber must be called with the lock held.
func (r *ticketRepository) nextNumber() int {
	highest := domain.FirstTicketNumber - 1
	if r.s.watermark > highest {
		highest = r.s.watermark
	}
	for _, t := range r.s.tickets {
		if t.Number > highest {
			highest = t.Number
		}
	}
	return highest + 1
}

func (r *ticketRepository) NextNumber(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.nextNumber(), nil
}

func (r *ticketRepository) CreateNumbered(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.checkReferences(ticket); err != nil {
		return err
	}
	if _, ok := r.s.users[ticket.CreatedBy]; !ok {
		return repository.ErrInvalidReference
	}

	number := r.nextNumber()
	ticket.ID = newID()
	ticket.Number = number
	ticket.CreatedAt = r.s.now()
	ticket.ClientIDs = dedupe(ticket.ClientIDs)
	r.s.tickets[ticket.ID] = cloneTicket(*ticket)
	r.s.watermark = number
	return nil
}

// checkReferences must be called with the lock held.
func (r *ticketRepository) checkReferences(ticket *domain.Ticket) error {
	if _, ok := r.s.problemTypes[ticket.ProblemTypeID]; !ok {
		return repository.ErrInvalidReference
	}
	for _, id := range ticket.ClientIDs {
		if _, ok := r.s.clients[id]; !ok {
			return repository.ErrInvalidReference
		}
	}
	return nil
}

func (r *ticketRepository) Update(_ context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Status != expected {
		return repository.ErrStaleWrite
	}
	if err := r.checkReferences(ticket); err != nil {
		return err
	}
	current.DeviceID = ticket.DeviceID
	current.ProblemTypeID = ticket.ProblemTypeID
	current.Description = ticket.Description
	current.Status = ticket.Status
	current.FinalizedAt = cloneTime(ticket.FinalizedAt)
	current.ClientIDs = dedupe(ticket.ClientIDs)
	r.s.tickets[ticket.ID] = current
	return nil
}

func (r *ticketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t = cloneTicket(t)
	return &t, nil
}

// GetForUpdate needs no row lock here: WithinTx already serialises units of work.
func (r *ticketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *ticketRepository) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	term := normalizeTerm(filter.SearchTerm)
	var result []domain.Ticket
	for _, t := range r.s.tickets {
		if filter.ProblemTypeID != nil && t.ProblemTypeID != *filter.ProblemTypeID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, t.Status) {
			continue
		}
		if term != "" && !r.matches(t, term) {
			continue
		}
		result = append(result, cloneTicket(t))
	}

	sortTickets(result, filter.Order)

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// matches must be called with the lock held.
func (r *ticketRepository) matches(t domain.Ticket, term string) bool {
	if strings.Contains(itoa(t.Number), term) || contains(t.DeviceID, term) || contains(t.Description, term) {
		return true
	}
	if pt, ok := r.s.problemTypes[t.ProblemTypeID]; ok && contains(pt.Name, term) {
		return true
	}
	for _, id := range t.ClientIDs {
		if c, ok := r.s.clients[id]; ok && (contains(c.Name, term) || contains(c.Email, term)) {
			return true
		}
	}
	return false
}

func sortTickets(tickets []domain.Ticket, order repository.TicketOrder) {
	newestFirst := func(a, b domain.Ticket) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Number > b.Number
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		a, b := tickets[i], tickets[j]
		switch order {
		case repository.OrderStatusRank:
			if a.Status.Rank() != b.Status.Rank() {
				return a.Status.Rank() < b.Status.Rank()
			}
			return newestFirst(a, b)
		case repository.OrderNumberAsc:
			return a.Number < b.Number
		default:
			return newestFirst(a, b)
		}
	})
}

func (r *ticketRepository) CountByStatus(_ context.Context) (map[domain.TicketStatus]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := map[domain.TicketStatus]int{
		domain.TicketStatusOpen:       0,
		domain.TicketStatusInProgress: 0,
		domain.TicketStatusFinalized:  0,
	}
	for _, t := range r.s.tickets {
		counts[t.Status]++
	}
	return counts, nil
}

func (r *ticketRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tickets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.tickets, id)
	delete(r.s.updates, id)
	return nil
}

func hasStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
