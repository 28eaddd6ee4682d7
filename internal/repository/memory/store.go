// Package memory provides process-local implementations of the repository interfaces.
// They back the memory storage driver and the service and handler tests.
package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/repository"
)

// Store holds every table behind one mutex.
type Store struct {
	mu sync.RWMutex
	// unit serialises WithinTx callers.
	unit sync.Mutex

	problemTypes map[string]domain.ProblemType
	clients      map[string]domain.Client
	tickets      map[string]domain.Ticket
	updates      map[string][]domain.Update
	users        map[string]domain.User

	watermark int
	updateSeq int64

	now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		problemTypes: make(map[string]domain.ProblemType),
		clients:      make(map[string]domain.Client),
		tickets:      make(map[string]domain.Ticket),
		updates:      make(map[string][]domain.Update),
		users:        make(map[string]domain.User),
		now:          time.Now,
	}
}

// SetClock replaces the source of CreatedAt and RegisteredAt stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// NewRepositories returns a Repositories bundle over a fresh store.
func NewRepositories() repository.Repositories {
	return NewStore().Repositories()
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		ProblemTypes: &problemTypeRepository{s: s},
		Clients:      &clientRepository{s: s},
		Tickets:      &ticketRepository{s: s},
		Updates:      &updateRepository{s: s},
		Users:        &userRepository{s: s},
		Tx:           &txManager{s: s},
	}
}

type unitKey struct{}

type txManager struct {
	s *Store
}

// WithinTx serialises units of work. Writes are applied immediately and are not rolled back on error.
func (m *txManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(unitKey{}) != nil {
		return fn(ctx)
	}
	m.s.unit.Lock()
	defer m.s.unit.Unlock()
	return fn(context.WithValue(ctx, unitKey{}, true))
}

func newID() string {
	return uuid.NewString()
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	t.ClientIDs = cloneStrings(t.ClientIDs)
	t.FinalizedAt = cloneTime(t.FinalizedAt)
	return t
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}

func normalizeTerm(term *string) string {
	if term == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*term))
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
