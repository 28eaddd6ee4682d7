package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/events"
	"github.com/spec-kit/protocol-service/internal/repository"
	apperrors "github.com/spec-kit/protocol-service/pkg/util"
)

func TestAppendUpdatePromotesOnlyFromOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pt := env.problemType("Hardware")
	client := env.client("ACME", "ops@acme.test")
	ticket := env.ticket(pt, client)

	first, err := env.timeline.AppendUpdate(ctx, env.operator, ticket.ID, "first visit")
	require.NoError(t, err)
	assert.True(t, first.Promoted)

	second, err := env.timeline.AppendUpdate(ctx, env.operator, ticket.ID, "second visit")
	require.NoError(t, err)
	assert.False(t, second.Promoted)
	assert.Equal(t, domain.TicketStatusInProgress, second.Ticket.Status)

	_, err = env.tickets.Finalize(ctx, env.operator, ticket.ID)
	require.NoError(t, err)

	late, err := env.timeline.AppendUpdate(ctx, env.operator, ticket.ID, "customer called back")
	require.NoError(t, err)
	assert.False(t, late.Promoted)
	assert.Equal(t, domain.TicketStatusFinalized, late.Ticket.Status)
}

func TestAppendUpdateOrdersSameInstantByInsertion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pt := env.problemType("Hardware")
	client := env.client("ACME", "ops@acme.test")
	ticket := env.ticket(pt, client)

	for _, text := range []string{"one", "two", "three"} {
		_, err := env.timeline.AppendUpdate(ctx, env.operator, ticket.ID, text)
		require.NoError(t, err)
	}

	updates, err := env.timeline.ListUpdates(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, updates, 3)
	assert.Equal(t, []string{"three", "two", "one"}, []string{updates[0].Text, updates[1].Text, updates[2].Text})
}

func TestAppendUpdateNeverPostsBeforeLatest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pt := env.problemType("Hardware")
	client := env.client("ACME", "ops@acme.test")
	ticket := env.ticket(pt, client)

	env.clock.Advance(time.Hour)
	first, err := env.timeline.AppendUpdate(ctx, env.operator, ticket.ID, "ahead")
	require.NoError(t, err)

	env.clock.Advance(-2 * time.Hour)
	second, err := env.timeline.AppendUpdate(ctx, env.operator, ticket.ID, "skewed clock")
	require.NoError(t, err)
	assert.False(t, second.Update.PostedAt.Before(first.Update.PostedAt))

	updates, err := env.timeline.ListUpdates(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "skewed clock", updates[0].Text)
}

func TestAppendUpdateRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pt := env.problemType("Hardware")
	client := env.client("ACME", "ops@acme.test")
	ticket := env.ticket(pt, client)

	_, err := env.timeline.AppendUpdate(ctx, env.operator, ticket.ID, "   <b></b> ")
	domainErr := requireCode(t, err, apperrors.CodeValidation)
	assert.Contains(t, domainErr.Details["fields"], "text")

	_, err = env.timeline.AppendUpdate(ctx, env.operator, "missing", "note")
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = env.timeline.AppendUpdate(ctx, domain.Actor{}, ticket.ID, "note")
	requireCode(t, err, apperrors.CodeUnauthorized)

	reloaded, err := env.tickets.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, reloaded.Ticket.Status)
	assert.Empty(t, reloaded.Updates)
}

func TestAppendUpdatePublishesAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pt := env.problemType("Hardware")
	client := env.client("ACME", "ops@acme.test")
	ticket := env.ticket(pt, client)

	var seen []events.EventType
	env.dispatcher.SubscribeAll(func(_ context.Context, event events.Event) error {
		seen = append(seen, event.Type)
		return nil
	})

	_, err := env.timeline.AppendUpdate(ctx, env.operator, ticket.ID, "checked cable")
	require.NoError(t, err)
	assert.Equal(t, []events.EventType{events.EventUpdateAppended, events.EventTicketStatusChanged}, seen)
}

// racingTicketRepo runs BeforeUpdate once, ahead of the first status write that goes through it.
type racingTicketRepo struct {
	repository.TicketRepository
	BeforeUpdate func(ctx context.Context, ticket *domain.Ticket)

	once    sync.Once
	mu      sync.Mutex
	updates int
}

func (r *racingTicketRepo) Update(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	r.mu.Lock()
	r.updates++
	r.mu.Unlock()
	r.once.Do(func() { r.BeforeUpdate(ctx, ticket) })
	return r.TicketRepository.Update(ctx, ticket, expected)
}

// finalizeBehind stores a Finalized copy of the ticket directly, as a competing request would.
func finalizeBehind(t *testing.T, inner repository.TicketRepository, at time.Time) func(context.Context, *domain.Ticket) {
	return func(ctx context.Context, ticket *domain.Ticket) {
		stored, err := inner.GetByID(ctx, ticket.ID)
		require.NoError(t, err)
		from := stored.Status
		_, err = stored.Transition(domain.TicketStatusFinalized, at)
		require.NoError(t, err)
		require.NoError(t, inner.Update(ctx, stored, from))
	}
}

func TestPromotionDoesNotOverwriteConcurrentFinalize(t *testing.T) {
	var racer *racingTicketRepo
	finalizedAt := time.Date(2024, 3, 5, 14, 35, 0, 0, time.UTC)
	env := newTestEnvWithRepos(t, func(repos *repository.Repositories) {
		racer = &racingTicketRepo{TicketRepository: repos.Tickets}
		racer.BeforeUpdate = finalizeBehind(t, repos.Tickets, finalizedAt)
		repos.Tickets = racer
	})
	ctx := context.Background()
	pt := env.problemType("Hardware")
	client := env.client("ACME", "ops@acme.test")
	ticket := env.ticket(pt, client)

	result, err := env.timeline.AppendUpdate(ctx, env.operator, ticket.ID, "checked cable")
	require.NoError(t, err)
	assert.False(t, result.Promoted)
	assert.Equal(t, domain.TicketStatusFinalized, result.Ticket.Status)

	stored, err := env.tickets.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusFinalized, stored.Ticket.Status)
	require.NotNil(t, stored.Ticket.FinalizedAt)
	assert.True(t, finalizedAt.Equal(*stored.Ticket.FinalizedAt))
	require.Len(t, stored.Updates, 1)
	assert.Equal(t, "checked cable", stored.Updates[0].Text)
}

func TestAdminStatusEditRejectedAfterConcurrentFinalize(t *testing.T) {
	var racer *racingTicketRepo
	env := newTestEnvWithRepos(t, func(repos *repository.Repositories) {
		racer = &racingTicketRepo{TicketRepository: repos.Tickets}
		racer.BeforeUpdate = finalizeBehind(t, repos.Tickets, time.Date(2024, 3, 5, 14, 35, 0, 0, time.UTC))
		repos.Tickets = racer
	})
	ctx := context.Background()
	pt := env.problemType("Hardware")
	client := env.client("ACME", "ops@acme.test")
	ticket := env.ticket(pt, client)

	inProgress := domain.TicketStatusInProgress
	description := "relay replaced"
	_, err := env.tickets.AdminUpdate(ctx, env.admin, ticket.ID, TicketPatch{Status: &inProgress, Description: &description})
	requireCode(t, err, apperrors.CodeInvalidTransition)

	stored, err := env.tickets.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusFinalized, stored.Ticket.Status)
	assert.NotNil(t, stored.Ticket.FinalizedAt)
	assert.Equal(t, "no link", stored.Ticket.Description)
}

func TestStatusWriteGivesUpWithRetryableConflict(t *testing.T) {
	var mock *staleTicketRepo
	env := newTestEnvWithRepos(t, func(repos *repository.Repositories) {
		mock = &staleTicketRepo{TicketRepository: repos.Tickets}
		repos.Tickets = mock
	})
	ctx := context.Background()
	pt := env.problemType("Hardware")
	client := env.client("ACME", "ops@acme.test")
	ticket := env.ticket(pt, client)

	_, err := env.tickets.Finalize(ctx, env.operator, ticket.ID)
	domainErr := requireCode(t, err, apperrors.CodeConflict)
	assert.Equal(t, true, domainErr.Details["retryable"])
	assert.Equal(t, statusAttempts, mock.calls)
}

// staleTicketRepo reports every status write as lost to a concurrent writer.
type staleTicketRepo struct {
	repository.TicketRepository
	calls int
}

func (r *staleTicketRepo) Update(context.Context, *domain.Ticket, domain.TicketStatus) error {
	r.calls++
	return repository.ErrStaleWrite
}
