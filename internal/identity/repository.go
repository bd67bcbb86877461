package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound indicates no users row exists for the principal.
var ErrUserNotFound = errors.New("identity: user not found")

// User is the local projection of an identity-provider principal.
type User struct {
	ID        string
	Email     string
	Name      string
	Phone     string
	Verified  bool
	CreatedAt time.Time
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads and repairs the users projection.
type Repository struct {
	pool rowQuerier
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("identity: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithExec(exec rowQuerier) *Repository {
	if exec == nil {
		panic("identity: exec required")
	}
	return &Repository{pool: exec}
}

// GetByID fetches a user row.
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, email, name, phone, verified, created_at
		FROM users
		WHERE id = $1
	`
	var u User
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.Verified, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("identity: select user: %w", err)
	}
	return &u, nil
}

// EnsureProjection guarantees a users row exists for the principal,
// synthesizing one from token claims when the identity provider created the
// principal before the projection materialized. A unique violation means a
// concurrent request won the race; re-read and continue.
func (r *Repository) EnsureProjection(ctx context.Context, p Principal) (*User, error) {
	user, err := r.GetByID(ctx, p.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	insert := `
		INSERT INTO users (id, email, name, phone, verified)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.pool.Exec(ctx, insert, p.ID, p.Email, p.Name, p.Phone, p.Verified); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return r.GetByID(ctx, p.ID)
		}
		return nil, fmt.Errorf("identity: synthesize user: %w", err)
	}

	return r.GetByID(ctx, p.ID)
}
