package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/protocol-service/internal/domain"
)

// TicketOrder selects the listing order.
type TicketOrder int

const (
	// OrderCreatedDesc lists newest tickets first.
	OrderCreatedDesc TicketOrder = iota
	// OrderStatusRank lists Open, then InProgress, then Finalized, newest first inside each group.
	OrderStatusRank
	// OrderNumberAsc lists by ticket number.
	OrderNumberAsc
)

// TicketFilter captures listing and search parameters.
type TicketFilter struct {
	ProblemTypeID *string
	Statuses      []domain.TicketStatus
	SearchTerm    *string
	Order         TicketOrder
	// Limit of zero returns every match.
	Limit  int
	Offset int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// CreateNumbered assigns the next ticket number and inserts the ticket and its client links
	// as one atomic unit. It returns ErrNumberConflict when a concurrent writer took the number.
	CreateNumbered(ctx context.Context, ticket *domain.Ticket) error
	// NextNumber reports the number CreateNumbered would assign now. It reserves nothing.
	NextNumber(ctx context.Context) (int, error)
	// Update writes the ticket back only while the stored status still equals expected.
	// It returns ErrStaleWrite when another writer changed the status first.
	Update(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetForUpdate reads the ticket and locks its row until the surrounding unit of work ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error)
	Delete(ctx context.Context, id string) error
}

type ticketRepository struct {
	pool Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `t.id, t.number, t.device_id, t.problem_type_id, t.description, t.status,
               t.created_by, t.created_at, t.finalized_at,
               ARRAY(SELECT tc.client_id::text FROM ticket_clients tc WHERE tc.ticket_id = t.id ORDER BY tc.position) AS client_ids`

// The watermark keeps numbers from being reused after the highest-numbered ticket is deleted.
const nextNumberQuery = `
        SELECT GREATEST(
            COALESCE((SELECT MAX(number) FROM tickets), 0),
            COALESCE((SELECT last_number FROM ticket_number_watermark WHERE id = 1), 0),
            $1::int - 1
        ) + 1`

func (r *ticketRepository) NextNumber(ctx context.Context) (int, error) {
	var number int
	if err := conn(ctx, r.pool).QueryRow(ctx, nextNumberQuery, domain.FirstTicketNumber).Scan(&number); err != nil {
		return 0, err
	}
	return number, nil
}

func (r *ticketRepository) CreateNumbered(ctx context.Context, ticket *domain.Ticket) error {
	tx, err := begin(ctx, r.pool)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := r.insertNumbered(ctx, tx, ticket); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err, ErrInvalidReference)
	}
	return nil
}

func (r *ticketRepository) insertNumbered(ctx context.Context, tx pgx.Tx, ticket *domain.Ticket) error {
	var number int
	if err := tx.QueryRow(ctx, nextNumberQuery, domain.FirstTicketNumber).Scan(&number); err != nil {
		return err
	}

	const insertTicket = `
        INSERT INTO tickets (number, device_id, problem_type_id, description, status, created_by, finalized_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	if err := tx.QueryRow(ctx, insertTicket,
		number,
		ticket.DeviceID,
		ticket.ProblemTypeID,
		ticket.Description,
		ticket.Status,
		ticket.CreatedBy,
		ticket.FinalizedAt,
	).Scan(&ticket.ID, &ticket.CreatedAt); err != nil {
		return translate(err, ErrInvalidReference)
	}

	if err := replaceClientLinks(ctx, tx, ticket.ID, ticket.ClientIDs); err != nil {
		return err
	}

	const bumpWatermark = `
        INSERT INTO ticket_number_watermark (id, last_number) VALUES (1, $1)
        ON CONFLICT (id) DO UPDATE SET last_number = GREATEST(ticket_number_watermark.last_number, EXCLUDED.last_number)`
	if _, err := tx.Exec(ctx, bumpWatermark, number); err != nil {
		return err
	}

	ticket.Number = number
	return nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	tx, err := begin(ctx, r.pool)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	const query = `
        UPDATE tickets SET device_id=$1, problem_type_id=$2, description=$3, status=$4, finalized_at=$5
        WHERE id=$6 AND status=$7`
	cmd, err := tx.Exec(ctx, query,
		ticket.DeviceID,
		ticket.ProblemTypeID,
		ticket.Description,
		ticket.Status,
		ticket.FinalizedAt,
		ticket.ID,
		expected,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return translate(err, ErrInvalidReference)
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists)
		_ = tx.Rollback(ctx)
		switch {
		case err != nil:
			return translate(err, ErrInvalidReference)
		case exists:
			return ErrStaleWrite
		default:
			return ErrNotFound
		}
	}
	if err := replaceClientLinks(ctx, tx, ticket.ID, ticket.ClientIDs); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func replaceClientLinks(ctx context.Context, tx pgx.Tx, ticketID string, clientIDs []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM ticket_clients WHERE ticket_id=$1`, ticketID); err != nil {
		return err
	}
	for i, clientID := range clientIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO ticket_clients (ticket_id, client_id, position) VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`,
			ticketID, clientID, i,
		); err != nil {
			return translate(err, ErrInvalidReference)
		}
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t WHERE t.id=$1`
	ticket, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return ticket, nil
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t WHERE t.id=$1 FOR UPDATE OF t`
	ticket, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ProblemTypeID != nil {
		args = append(args, *filter.ProblemTypeID)
		clauses = append(clauses, fmt.Sprintf("t.problem_type_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, likePattern(*filter.SearchTerm))
		p := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(`(CAST(t.number AS TEXT) LIKE %[1]s ESCAPE '\'
            OR LOWER(t.device_id) LIKE %[1]s ESCAPE '\'
            OR LOWER(t.description) LIKE %[1]s ESCAPE '\'
            OR EXISTS (SELECT 1 FROM problem_types pt WHERE pt.id = t.problem_type_id AND LOWER(pt.name) LIKE %[1]s ESCAPE '\')
            OR EXISTS (SELECT 1 FROM ticket_clients tc JOIN clients c ON c.id = tc.client_id
                       WHERE tc.ticket_id = t.id AND (LOWER(c.name) LIKE %[1]s ESCAPE '\' OR LOWER(c.email) LIKE %[1]s ESCAPE '\')))`, p))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets t WHERE %s ORDER BY %s`,
		ticketColumns, strings.Join(clauses, " AND "), orderClause(filter.Order))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func orderClause(order TicketOrder) string {
	switch order {
	case OrderStatusRank:
		return `CASE t.status WHEN 'OPEN' THEN 0 WHEN 'IN_PROGRESS' THEN 1 WHEN 'FINALIZED' THEN 2 ELSE 99 END, t.created_at DESC, t.number DESC`
	case OrderNumberAsc:
		return `t.number ASC`
	default:
		return `t.created_at DESC, t.number DESC`
	}
}

func (r *ticketRepository) CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[domain.TicketStatus]int{
		domain.TicketStatusOpen:       0,
		domain.TicketStatusInProgress: 0,
		domain.TicketStatusFinalized:  0,
	}
	for rows.Next() {
		var status domain.TicketStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Delete removes the ticket; updates and client links cascade in the schema.
func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return translate(err, ErrReferenced)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.DeviceID,
		&ticket.ProblemTypeID,
		&ticket.Description,
		&ticket.Status,
		&ticket.CreatedBy,
		&ticket.CreatedAt,
		&ticket.FinalizedAt,
		&ticket.ClientIDs,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
