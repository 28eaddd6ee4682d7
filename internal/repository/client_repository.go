package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/protocol-service/internal/domain"
)

// ClientFilter narrows client listings.
type ClientFilter struct {
	Active     *bool
	SearchTerm *string
}

// ClientRepository manages the client registry.
type ClientRepository interface {
	Create(ctx context.Context, client *domain.Client) error
	Update(ctx context.Context, client *domain.Client) error
	GetByID(ctx context.Context, id string) (*domain.Client, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Client, error)
	GetByEmail(ctx context.Context, email string) (*domain.Client, error)
	List(ctx context.Context, filter ClientFilter) ([]domain.Client, error)
	Delete(ctx context.Context, id string) error
}

type clientRepository struct {
	pool Pool
}

// NewClientRepository builds the repository.
func NewClientRepository(pool Pool) ClientRepository {
	return &clientRepository{pool: pool}
}

const clientColumns = `id, name, email, secret_hash, registered_at, is_active`

func (r *clientRepository) Create(ctx context.Context, client *domain.Client) error {
	const query = `
        INSERT INTO clients (name, email, secret_hash, is_active)
        VALUES ($1,$2,$3,$4)
        RETURNING id, registered_at`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		client.Name,
		client.Email,
		client.SecretHash,
		client.Active,
	).Scan(&client.ID, &client.RegisteredAt)
	return translate(err, ErrInvalidReference)
}

func (r *clientRepository) Update(ctx context.Context, client *domain.Client) error {
	const query = `
        UPDATE clients SET name=$1, email=$2, secret_hash=$3, is_active=$4
        WHERE id=$5`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query,
		client.Name,
		client.Email,
		client.SecretHash,
		client.Active,
		client.ID,
	)
	if err != nil {
		return translate(err, ErrInvalidReference)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *clientRepository) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id=$1`
	client, err := scanClient(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return client, nil
}

func (r *clientRepository) GetByEmail(ctx context.Context, email string) (*domain.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE LOWER(email)=LOWER($1)`
	client, err := scanClient(conn(ctx, r.pool).QueryRow(ctx, query, email))
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return client, nil
}

func (r *clientRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Client, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = ANY($1::uuid[]) ORDER BY name ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, ids)
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	defer rows.Close()
	clients, err := scanClients(rows)
	if err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return clients, nil
}

func (r *clientRepository) List(ctx context.Context, filter ClientFilter) ([]domain.Client, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("is_active=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, likePattern(*filter.SearchTerm))
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(`(LOWER(name) LIKE %s ESCAPE '\' OR LOWER(email) LIKE %s ESCAPE '\')`, placeholder, placeholder))
	}
	query := fmt.Sprintf(`SELECT %s FROM clients WHERE %s ORDER BY name ASC`,
		clientColumns, strings.Join(clauses, " AND "))

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClients(rows)
}

// Delete removes the client; ticket links are dropped by the schema, tickets survive.
func (r *clientRepository) Delete(ctx context.Context, id string) error {
	cmd, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM clients WHERE id=$1`, id)
	if err != nil {
		return translate(err, ErrReferenced)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanClient(row pgx.Row) (*domain.Client, error) {
	var client domain.Client
	if err := row.Scan(
		&client.ID,
		&client.Name,
		&client.Email,
		&client.SecretHash,
		&client.RegisteredAt,
		&client.Active,
	); err != nil {
		return nil, err
	}
	return &client, nil
}

func scanClients(rows pgx.Rows) ([]domain.Client, error) {
	var result []domain.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *client)
	}
	return result, rows.Err()
}
