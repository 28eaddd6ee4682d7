package memory

import (
	"context"
	"sort"

	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/repository"
)

type updateRepository struct {
	s *Store
}

func (r *updateRepository) Create(_ context.Context, update *domain.Update) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tickets[update.TicketID]; !ok {
		return repository.ErrInvalidReference
	}
	if _, ok := r.s.users[update.AuthorID]; !ok {
		return repository.ErrInvalidReference
	}
	r.s.updateSeq++
	update.ID = newID()
	update.Seq = r.s.updateSeq
	r.s.updates[update.TicketID] = append(r.s.updates[update.TicketID], *update)
	return nil
}

func (r *updateRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.Update, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	stored := r.s.updates[ticketID]
	if len(stored) == 0 {
		return nil, nil
	}
	result := make([]domain.Update, len(stored))
	copy(result, stored)
	sort.Slice(result, func(i, j int) bool {
		if !result[i].PostedAt.Equal(result[j].PostedAt) {
			return result[i].PostedAt.After(result[j].PostedAt)
		}
		return result[i].Seq > result[j].Seq
	})
	return result, nil
}

func (r *updateRepository) Latest(ctx context.Context, ticketID string) (*domain.Update, error) {
	updates, err := r.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, repository.ErrNotFound
	}
	return &updates[0], nil
}
