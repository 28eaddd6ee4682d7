package memory

import (
	"context"
	"sort"

	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/repository"
)

type problemTypeRepository struct {
	s *Store
}

func (r *problemTypeRepository) Create(_ context.Context, pt *domain.ProblemType) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.problemTypes {
		if existing.Name == pt.Name {
			return repository.ErrDuplicate
		}
	}
	if pt.CreatedBy != nil {
		if _, ok := r.s.users[*pt.CreatedBy]; !ok {
			return repository.ErrInvalidReference
		}
	}
	pt.ID = newID()
	pt.CreatedAt = r.s.now()
	r.s.problemTypes[pt.ID] = *pt
	return nil
}

func (r *problemTypeRepository) Update(_ context.Context, pt *domain.ProblemType) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.problemTypes[pt.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, existing := range r.s.problemTypes {
		if id != pt.ID && existing.Name == pt.Name {
			return repository.ErrDuplicate
		}
	}
	current.Name = pt.Name
	current.Description = pt.Description
	current.Active = pt.Active
	r.s.problemTypes[pt.ID] = current
	return nil
}

func (r *problemTypeRepository) GetByID(_ context.Context, id string) (*domain.ProblemType, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	pt, ok := r.s.problemTypes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &pt, nil
}

func (r *problemTypeRepository) List(_ context.Context, filter repository.ProblemTypeFilter) ([]domain.ProblemType, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	term := normalizeTerm(filter.SearchTerm)
	var result []domain.ProblemType
	for _, pt := range r.s.problemTypes {
		if filter.Active != nil && pt.Active != *filter.Active {
			continue
		}
		if term != "" && !contains(pt.Name, term) && !contains(pt.Description, term) {
			continue
		}
		result = append(result, pt)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *problemTypeRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.problemTypes[id]; !ok {
		return repository.ErrNotFound
	}
	for _, t := range r.s.tickets {
		if t.ProblemTypeID == id {
			return repository.ErrReferenced
		}
	}
	delete(r.s.problemTypes, id)
	return nil
}

func (r *problemTypeRepository) CountTickets(_ context.Context, id string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	count := 0
	for _, t := range r.s.tickets {
		if t.ProblemTypeID == id {
			count++
		}
	}
	return count, nil
}

func (r *problemTypeRepository) TopByTicketCount(_ context.Context, limit int) ([]repository.ProblemTypeCount, error) {
	if limit <= 0 {
		limit = 5
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[string]int)
	for _, t := range r.s.tickets {
		counts[t.ProblemTypeID]++
	}
	var result []repository.ProblemTypeCount
	for id, total := range counts {
		pt, ok := r.s.problemTypes[id]
		if !ok || !pt.Active {
			continue
		}
		result = append(result, repository.ProblemTypeCount{ProblemType: pt, Tickets: total})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Tickets != result[j].Tickets {
			return result[i].Tickets > result[j].Tickets
		}
		return result[i].ProblemType.Name < result[j].ProblemType.Name
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
