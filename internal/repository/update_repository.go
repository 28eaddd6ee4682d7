package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/protocol-service/internal/domain"
)

// UpdateRepository manages the append-only ticket timeline.
type UpdateRepository interface {
	Create(ctx context.Context, update *domain.Update) error
	// ListByTicket returns updates newest first; ties on PostedAt resolve to the later insert.
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Update, error)
	// Latest returns the newest update of the ticket, or ErrNotFound.
	Latest(ctx context.Context, ticketID string) (*domain.Update, error)
}

type updateRepository struct {
	pool Pool
}

// NewUpdateRepository builds repository.
func NewUpdateRepository(pool Pool) UpdateRepository {
	return &updateRepository{pool: pool}
}

func (r *updateRepository) Create(ctx context.Context, update *domain.Update) error {
	const query = `
        INSERT INTO ticket_updates (ticket_id, text, author_id, posted_at)
        VALUES ($1,$2,$3,$4)
        RETURNING id, seq`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		update.TicketID,
		update.Text,
		update.AuthorID,
		update.PostedAt,
	).Scan(&update.ID, &update.Seq)
	return translate(err, ErrInvalidReference)
}

func (r *updateRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Update, error) {
	const query = `
        SELECT id, ticket_id, text, author_id, posted_at, seq
        FROM ticket_updates WHERE ticket_id=$1 ORDER BY posted_at DESC, seq DESC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Update
	for rows.Next() {
		update, err := scanUpdate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *update)
	}
	return result, rows.Err()
}

func (r *updateRepository) Latest(ctx context.Context, ticketID string) (*domain.Update, error) {
	const query = `
        SELECT id, ticket_id, text, author_id, posted_at, seq
        FROM ticket_updates WHERE ticket_id=$1 ORDER BY posted_at DESC, seq DESC LIMIT 1`
	update, err := scanUpdate(conn(ctx, r.pool).QueryRow(ctx, query, ticketID))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return update, nil
}

func scanUpdate(row pgx.Row) (*domain.Update, error) {
	var update domain.Update
	if err := row.Scan(
		&update.ID,
		&update.TicketID,
		&update.Text,
		&update.AuthorID,
		&update.PostedAt,
		&update.Seq,
	); err != nil {
		return nil, err
	}
	return &update, nil
}
