package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/repository"
)

type clientRepository struct {
	s *Store
}

func (r *clientRepository) Create(_ context.Context, client *domain.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.emailTaken(client.Email, "") {
		return repository.ErrDuplicate
	}
	client.ID = newID()
	client.RegisteredAt = r.s.now()
	r.s.clients[client.ID] = *client
	return nil
}

func (r *clientRepository) Update(_ context.Context, client *domain.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.clients[client.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if r.emailTaken(client.Email, client.ID) {
		return repository.ErrDuplicate
	}
	current.Name = client.Name
	current.Email = client.Email
	current.SecretHash = client.SecretHash
	current.Active = client.Active
	r.s.clients[client.ID] = current
	return nil
}

// emailTaken must be called with the lock held.
func (r *clientRepository) emailTaken(email, exceptID string) bool {
	for id, existing := range r.s.clients {
		if id != exceptID && strings.EqualFold(existing.Email, email) {
			return true
		}
	}
	return false
}

func (r *clientRepository) GetByID(_ context.Context, id string) (*domain.Client, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	client, ok := r.s.clients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &client, nil
}

func (r *clientRepository) GetByEmail(_ context.Context, email string) (*domain.Client, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, client := range r.s.clients {
		if strings.EqualFold(client.Email, email) {
			c := client
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *clientRepository) GetByIDs(_ context.Context, ids []string) ([]domain.Client, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.Client
	for _, id := range ids {
		if client, ok := r.s.clients[id]; ok {
			result = append(result, client)
		}
	}
	sortClients(result)
	return result, nil
}

func (r *clientRepository) List(_ context.Context, filter repository.ClientFilter) ([]domain.Client, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	term := normalizeTerm(filter.SearchTerm)
	var result []domain.Client
	for _, client := range r.s.clients {
		if filter.Active != nil && client.Active != *filter.Active {
			continue
		}
		if term != "" && !contains(client.Name, term) && !contains(client.Email, term) {
			continue
		}
		result = append(result, client)
	}
	sortClients(result)
	return result, nil
}

func (r *clientRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.clients[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.clients, id)
	for ticketID, t := range r.s.tickets {
		kept := t.ClientIDs[:0:0]
		for _, clientID := range t.ClientIDs {
			if clientID != id {
				kept = append(kept, clientID)
			}
		}
		t.ClientIDs = kept
		r.s.tickets[ticketID] = t
	}
	return nil
}

func sortClients(clients []domain.Client) {
	sort.Slice(clients, func(i, j int) bool { return clients[i].Name < clients[j].Name })
}
