package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/protocol-service/internal/domain"
)

// ProblemTypeFilter narrows problem type listings.
type ProblemTypeFilter struct {
	Active     *bool
	SearchTerm *string
}

// ProblemTypeCount pairs a problem type with the number of tickets classified under it.
type ProblemTypeCount struct {
	ProblemType domain.ProblemType
	Tickets     int
}

// ProblemTypeRepository manages the problem taxonomy.
type ProblemTypeRepository interface {
	Create(ctx context.Context, pt *domain.ProblemType) error
	Update(ctx context.Context, pt *domain.ProblemType) error
	GetByID(ctx context.Context, id string) (*domain.ProblemType, error)
	List(ctx context.Context, filter ProblemTypeFilter) ([]domain.ProblemType, error)
	Delete(ctx context.Context, id string) error
	CountTickets(ctx context.Context, id string) (int, error)
	TopByTicketCount(ctx context.Context, limit int) ([]ProblemTypeCount, error)
}

type problemTypeRepository struct {
	pool Pool
}

// NewProblemTypeRepository builds the repository.
func NewProblemTypeRepository(pool Pool) ProblemTypeRepository {
	return &problemTypeRepository{pool: pool}
}

const problemTypeColumns = `id, name, description, is_active, created_at, created_by`

func (r *problemTypeRepository) Create(ctx context.Context, pt *domain.ProblemType) error {
	const query = `
        INSERT INTO problem_types (name, description, is_active, created_by)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		pt.Name,
		pt.Description,
		pt.Active,
		pt.CreatedBy,
	).Scan(&pt.ID, &pt.CreatedAt)
	return translate(err, ErrInvalidReference)
}

func (r *problemTypeRepository) Update(ctx context.Context, pt *domain.ProblemType) error {
	const query = `
        UPDATE problem_types SET name=$1, description=$2, is_active=$3
        WHERE id=$4`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query,
		pt.Name,
		pt.Description,
		pt.Active,
		pt.ID,
	)
	if err != nil {
		return translate(err, ErrInvalidReference)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *problemTypeRepository) GetByID(ctx context.Context, id string) (*domain.ProblemType, error) {
	query := `SELECT ` + problemTypeColumns + ` FROM problem_types WHERE id=$1`
	pt, err := scanProblemType(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return pt, nil
}

func (r *problemTypeRepository) List(ctx context.Context, filter ProblemTypeFilter) ([]domain.ProblemType, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("is_active=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, likePattern(*filter.SearchTerm))
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(`(LOWER(name) LIKE %s ESCAPE '\' OR LOWER(description) LIKE %s ESCAPE '\')`, placeholder, placeholder))
	}
	query := fmt.Sprintf(`SELECT %s FROM problem_types WHERE %s ORDER BY name ASC`,
		problemTypeColumns, strings.Join(clauses, " AND "))

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ProblemType
	for rows.Next() {
		pt, err := scanProblemType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *pt)
	}
	return result, rows.Err()
}

func (r *problemTypeRepository) Delete(ctx context.Context, id string) error {
	cmd, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM problem_types WHERE id=$1`, id)
	if err != nil {
		return translate(err, ErrReferenced)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *problemTypeRepository) CountTickets(ctx context.Context, id string) (int, error) {
	var count int
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE problem_type_id=$1`, id).Scan(&count)
	return count, err
}

func (r *problemTypeRepository) TopByTicketCount(ctx context.Context, limit int) ([]ProblemTypeCount, error) {
	if limit <= 0 {
		limit = 5
	}
	const query = `
        SELECT pt.id, pt.name, pt.description, pt.is_active, pt.created_at, pt.created_by, COUNT(t.id) AS total
        FROM problem_types pt
        JOIN tickets t ON t.problem_type_id = pt.id
        WHERE pt.is_active = TRUE
        GROUP BY pt.id
        ORDER BY total DESC, pt.name ASC
        LIMIT $1`
	rows, err := conn(ctx, r.pool).Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ProblemTypeCount
	for rows.Next() {
		var item ProblemTypeCount
		pt := &item.ProblemType
		if err := rows.Scan(&pt.ID, &pt.Name, &pt.Description, &pt.Active, &pt.CreatedAt, &pt.CreatedBy, &item.Tickets); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func scanProblemType(row pgx.Row) (*domain.ProblemType, error) {
	var pt domain.ProblemType
	if err := row.Scan(&pt.ID, &pt.Name, &pt.Description, &pt.Active, &pt.CreatedAt, &pt.CreatedBy); err != nil {
		return nil, err
	}
	return &pt, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring pattern in which the term's own wildcards match literally.
// Queries using it must declare ESCAPE '\'.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(term))) + "%"
}
