package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/protocol-service/internal/domain"
	"github.com/spec-kit/protocol-service/internal/repository"
)

type fixture struct {
	repos repository.Repositories
	user  domain.User
	pt    domain.ProblemType
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	repos := NewRepositories()

	user := domain.User{Username: "operator", Active: true}
	require.NoError(t, repos.Users.Create(ctx, &user))
	pt := domain.ProblemType{Name: "Hardware", Active: true}
	require.NoError(t, repos.ProblemTypes.Create(ctx, &pt))

	return fixture{repos: repos, user: user, pt: pt}
}

func (f fixture) ticket(t *testing.T, clientIDs ...string) domain.Ticket {
	t.Helper()
	ticket := domain.Ticket{
		ClientIDs:     clientIDs,
		DeviceID:      "BUIC-1",
		ProblemTypeID: f.pt.ID,
		Description:   "screen flickers",
		Status:        domain.TicketStatusOpen,
		CreatedBy:     f.user.ID,
	}
	require.NoError(t, f.repos.Tickets.CreateNumbered(context.Background(), &ticket))
	return ticket
}

func TestCreateNumberedStartsAtFirstNumber(t *testing.T) {
	f := newFixture(t)

	next, err := f.repos.Tickets.NextNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.FirstTicketNumber, next)

	first := f.ticket(t)
	second := f.ticket(t)
	assert.Equal(t, 1000, first.Number)
	assert.Equal(t, 1001, second.Number)
}

func TestNumbersAreNotReusedAfterDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ticket(t)
	last := f.ticket(t)
	require.NoError(t, f.repos.Tickets.Delete(ctx, last.ID))

	next := f.ticket(t)
	assert.Equal(t, 1002, next.Number)
}

func TestConcurrentCreatesYieldDistinctNumbers(t *testing.T) {
	f := newFixture(t)

	const n = 50
	numbers := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket := domain.Ticket{ProblemTypeID: f.pt.ID, CreatedBy: f.user.ID, Status: domain.TicketStatusOpen}
			if err := f.repos.Tickets.CreateNumbered(context.Background(), &ticket); err == nil {
				numbers <- ticket.Number
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int]bool)
	for number := range numbers {
		assert.False(t, seen[number], "duplicate number %d", number)
		seen[number] = true
	}
	assert.Len(t, seen, n)
	for i := 0; i < n; i++ {
		assert.True(t, seen[1000+i])
	}
}

func TestCreateNumberedRejectsUnknownReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket := domain.Ticket{ProblemTypeID: "missing", CreatedBy: f.user.ID}
	assert.ErrorIs(t, f.repos.Tickets.CreateNumbered(ctx, &ticket), repository.ErrInvalidReference)

	ticket = domain.Ticket{ProblemTypeID: f.pt.ID, CreatedBy: f.user.ID, ClientIDs: []string{"missing"}}
	assert.ErrorIs(t, f.repos.Tickets.CreateNumbered(ctx, &ticket), repository.ErrInvalidReference)
}

func TestProblemTypeDeleteBlockedWhileReferenced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t)

	assert.ErrorIs(t, f.repos.ProblemTypes.Delete(ctx, f.pt.ID), repository.ErrReferenced)

	require.NoError(t, f.repos.Tickets.Delete(ctx, ticket.ID))
	assert.NoError(t, f.repos.ProblemTypes.Delete(ctx, f.pt.ID))
}

func TestDuplicateNamesAndEmails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.repos.ProblemTypes.Create(ctx, &domain.ProblemType{Name: "Hardware"}), repository.ErrDuplicate)

	require.NoError(t, f.repos.Clients.Create(ctx, &domain.Client{Name: "ACME", Email: "ops@acme.test"}))
	assert.ErrorIs(t, f.repos.Clients.Create(ctx, &domain.Client{Name: "Other", Email: "OPS@acme.test"}), repository.ErrDuplicate)

	assert.ErrorIs(t, f.repos.Users.Create(ctx, &domain.User{Username: "operator"}), repository.ErrDuplicate)
}

func TestClientDeleteDetachesFromTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acme := domain.Client{Name: "ACME", Email: "ops@acme.test"}
	globex := domain.Client{Name: "Globex", Email: "it@globex.test"}
	require.NoError(t, f.repos.Clients.Create(ctx, &acme))
	require.NoError(t, f.repos.Clients.Create(ctx, &globex))
	ticket := f.ticket(t, acme.ID, globex.ID)

	require.NoError(t, f.repos.Clients.Delete(ctx, acme.ID))

	stored, err := f.repos.Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{globex.ID}, stored.ClientIDs)
}

func TestListOrdersAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acme := domain.Client{Name: "ACME", Email: "ops@acme.test"}
	require.NoError(t, f.repos.Clients.Create(ctx, &acme))

	open := f.ticket(t)
	finalized := f.ticket(t, acme.ID)
	progress := f.ticket(t)

	now := time.Now()
	finalized.Status = domain.TicketStatusFinalized
	finalized.FinalizedAt = &now
	require.NoError(t, f.repos.Tickets.Update(ctx, &finalized, domain.TicketStatusOpen))
	progress.Status = domain.TicketStatusInProgress
	require.NoError(t, f.repos.Tickets.Update(ctx, &progress, domain.TicketStatusOpen))

	ranked, err := f.repos.Tickets.List(ctx, repository.TicketFilter{Order: repository.OrderStatusRank})
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, []int{open.Number, progress.Number, finalized.Number},
		[]int{ranked[0].Number, ranked[1].Number, ranked[2].Number})

	term := "acme"
	found, err := f.repos.Tickets.List(ctx, repository.TicketFilter{SearchTerm: &term})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, finalized.ID, found[0].ID)

	byNumber, err := f.repos.Tickets.List(ctx, repository.TicketFilter{Order: repository.OrderNumberAsc, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, byNumber, 2)
	assert.Equal(t, 1001, byNumber[0].Number)

	counts, err := f.repos.Tickets.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.TicketStatusOpen])
	assert.Equal(t, 1, counts[domain.TicketStatusInProgress])
	assert.Equal(t, 1, counts[domain.TicketStatusFinalized])
}

func TestTicketUpdateRejectsStaleStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t)

	now := time.Now()
	finalized := ticket
	finalized.Status = domain.TicketStatusFinalized
	finalized.FinalizedAt = &now
	require.NoError(t, f.repos.Tickets.Update(ctx, &finalized, domain.TicketStatusOpen))

	promoted := ticket
	promoted.Status = domain.TicketStatusInProgress
	assert.ErrorIs(t, f.repos.Tickets.Update(ctx, &promoted, domain.TicketStatusOpen), repository.ErrStaleWrite)

	stored, err := f.repos.Tickets.GetForUpdate(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusFinalized, stored.Status)
	require.NotNil(t, stored.FinalizedAt)

	missing := domain.Ticket{ID: "missing"}
	assert.ErrorIs(t, f.repos.Tickets.Update(ctx, &missing, domain.TicketStatusOpen), repository.ErrNotFound)
}

func TestUpdatesNewestFirstWithSeqTieBreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.ticket(t)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first := domain.Update{TicketID: ticket.ID, AuthorID: f.user.ID, Text: "first", PostedAt: at}
	second := domain.Update{TicketID: ticket.ID, AuthorID: f.user.ID, Text: "second", PostedAt: at}
	require.NoError(t, f.repos.Updates.Create(ctx, &first))
	require.NoError(t, f.repos.Updates.Create(ctx, &second))

	updates, err := f.repos.Updates.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "second", updates[0].Text)

	latest, err := f.repos.Updates.Latest(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", latest.Text)

	require.NoError(t, f.repos.Tickets.Delete(ctx, ticket.ID))
	_, err = f.repos.Updates.Latest(ctx, ticket.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTopByTicketCountSkipsInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	retired := domain.ProblemType{Name: "Legacy", Active: false}
	require.NoError(t, f.repos.ProblemTypes.Create(ctx, &retired))
	f.ticket(t)
	ticket := domain.Ticket{ProblemTypeID: retired.ID, CreatedBy: f.user.ID, Status: domain.TicketStatusOpen}
	require.NoError(t, f.repos.Tickets.CreateNumbered(ctx, &ticket))

	top, err := f.repos.ProblemTypes.TopByTicketCount(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Hardware", top[0].ProblemType.Name)
	assert.Equal(t, 1, top[0].Tickets)
}
