package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/protocol-service/internal/domain"
)

var ticketColumnNames = []string{
	"id", "number", "device_id", "problem_type_id", "description", "status",
	"created_by", "created_at", "finalized_at", "client_ids",
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func draftTicket() domain.Ticket {
	return domain.Ticket{
		ClientIDs:     []string{"c-1"},
		DeviceID:      "BUIC-001",
		ProblemTypeID: "pt-1",
		Description:   "no link",
		Status:        domain.TicketStatusOpen,
		CreatedBy:     "u-1",
	}
}

func expectNextNumber(mock pgxmock.PgxPoolIface, number int) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT GREATEST(")).
		WithArgs(domain.FirstTicketNumber).
		WillReturnRows(pgxmock.NewRows([]string{"number"}).AddRow(number))
}

func expectTicketInsert(mock pgxmock.PgxPoolIface, number int) *pgxmock.ExpectedQuery {
	return mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tickets (number, device_id")).
		WithArgs(number, "BUIC-001", "pt-1", "no link", domain.TicketStatusOpen, "u-1", pgxmock.AnyArg())
}

func TestNextNumberReadsHighWaterMark(t *testing.T) {
	mock := newMockPool(t)
	expectNextNumber(mock, 1042)

	next, err := NewTicketRepository(mock).NextNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1042, next)
}

func TestCreateNumberedInsertsLinksAndBumpsWatermark(t *testing.T) {
	mock := newMockPool(t)
	createdAt := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	expectNextNumber(mock, 1000)
	expectTicketInsert(mock, 1000).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow("t-1", createdAt))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ticket_clients WHERE ticket_id=$1")).
		WithArgs("t-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ticket_clients (ticket_id, client_id, position)")).
		WithArgs("t-1", "c-1", 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ticket_number_watermark (id, last_number) VALUES (1, $1)")).
		WithArgs(1000).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ticket := draftTicket()
	require.NoError(t, NewTicketRepository(mock).CreateNumbered(context.Background(), &ticket))
	assert.Equal(t, 1000, ticket.Number)
	assert.Equal(t, "t-1", ticket.ID)
	assert.True(t, createdAt.Equal(ticket.CreatedAt))
}

func TestCreateNumberedConflictRollsBackOnlySavepoint(t *testing.T) {
	mock := newMockPool(t)
	numberTaken := &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: ticketNumberConstraint}

	mock.ExpectBegin()
	mock.ExpectBegin()
	expectNextNumber(mock, 1000)
	expectTicketInsert(mock, 1000).WillReturnError(numberTaken)
	mock.ExpectRollback()

	mock.ExpectBegin()
	expectNextNumber(mock, 1001)
	expectTicketInsert(mock, 1001).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow("t-2", time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ticket_clients")).
		WithArgs("t-2").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ticket_clients")).
		WithArgs("t-2", "c-1", 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ticket_number_watermark")).
		WithArgs(1001).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectCommit()

	repo := NewTicketRepository(mock)
	err := NewTxManager(mock).WithinTx(context.Background(), func(ctx context.Context) error {
		first := draftTicket()
		assert.ErrorIs(t, repo.CreateNumbered(ctx, &first), ErrNumberConflict)

		second := draftTicket()
		if err := repo.CreateNumbered(ctx, &second); err != nil {
			return err
		}
		assert.Equal(t, 1001, second.Number)
		return nil
	})
	require.NoError(t, err)
}

func TestTicketUpdateIsConditionalOnStatus(t *testing.T) {
	mock := newMockPool(t)
	ticket := draftTicket()
	ticket.ID = "t-1"
	ticket.Status = domain.TicketStatusInProgress

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id=$6 AND status=$7")).
		WithArgs("BUIC-001", "pt-1", "no link", domain.TicketStatusInProgress, pgxmock.AnyArg(), "t-1", domain.TicketStatusOpen).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)")).
		WithArgs("t-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := NewTicketRepository(mock).Update(context.Background(), &ticket, domain.TicketStatusOpen)
	assert.ErrorIs(t, err, ErrStaleWrite)
}

func TestTicketUpdateMissingRow(t *testing.T) {
	mock := newMockPool(t)
	ticket := draftTicket()
	ticket.ID = "t-9"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets SET")).
		WithArgs("BUIC-001", "pt-1", "no link", domain.TicketStatusOpen, pgxmock.AnyArg(), "t-9", domain.TicketStatusOpen).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("t-9").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := NewTicketRepository(mock).Update(context.Background(), &ticket, domain.TicketStatusOpen)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetForUpdateLocksRow(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM tickets t WHERE t.id=$1 FOR UPDATE OF t")).
		WithArgs("t-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := NewTicketRepository(mock).GetForUpdate(context.Background(), "t-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTicketListBuildsFilterAndOrder(t *testing.T) {
	mock := newMockPool(t)
	problemTypeID := "pt-1"
	term := " 50%_OFF "

	mock.ExpectQuery(`(?s)WHERE 1=1 AND t\.problem_type_id=\$1 AND t\.status IN \(\$2,\$3\) AND \(CAST\(t\.number AS TEXT\) LIKE \$4 ESCAPE.*ORDER BY CASE t\.status.*LIMIT 10 OFFSET 5`).
		WithArgs(problemTypeID, domain.TicketStatusOpen, domain.TicketStatusInProgress, `%50\%\_off%`).
		WillReturnRows(pgxmock.NewRows(ticketColumnNames))

	tickets, err := NewTicketRepository(mock).List(context.Background(), TicketFilter{
		ProblemTypeID: &problemTypeID,
		Statuses:      []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress},
		SearchTerm:    &term,
		Order:         OrderStatusRank,
		Limit:         10,
		Offset:        5,
	})
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestClientSearchEscapesWildcards(t *testing.T) {
	mock := newMockPool(t)
	term := "_"

	mock.ExpectQuery(regexp.QuoteMeta(`(LOWER(name) LIKE $1 ESCAPE '\' OR LOWER(email) LIKE $1 ESCAPE '\')`)).
		WithArgs(`%\_%`).
		WillReturnRows(pgxmock.NewRows([]string{"placeholder"}))

	clients, err := NewClientRepository(mock).List(context.Background(), ClientFilter{SearchTerm: &term})
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, "%acme%", likePattern("  ACME "))
	assert.Equal(t, `%50\%\_off%`, likePattern("50%_OFF"))
	assert.Equal(t, `%a\\b%`, likePattern(`a\b`))
}
