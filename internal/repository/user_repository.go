package repository

import (
	"context"

	"github.com/spec-kit/protocol-service/internal/domain"
)

// UserRepository defines persistence access for operators.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

type userRepository struct {
	pool Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, username, email, password_hash, is_superuser, is_active, created_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (username, email, password_hash, is_superuser, is_active)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at`

	err := conn(ctx, r.pool).QueryRow(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Superuser,
		user.Active,
	).Scan(&user.ID, &user.CreatedAt)
	return translate(err, ErrInvalidReference)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET username=$1, email=$2, password_hash=$3, is_superuser=$4, is_active=$5
        WHERE id=$6`

	cmd, err := conn(ctx, r.pool).Exec(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Superuser,
		user.Active,
		user.ID,
	)
	if err != nil {
		return translate(err, ErrInvalidReference)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username=$1`
	return r.fetchSingle(ctx, query, username)
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := conn(ctx, r.pool).QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Superuser,
		&user.Active,
		&user.CreatedAt,
	); err != nil {
		return nil, translate(err, ErrInvalidReference)
	}
	return &user, nil
}
