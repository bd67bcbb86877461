package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrPaymentNotFound indicates no payment row matched the lookup.
	ErrPaymentNotFound = errors.New("payments: payment not found")

	// ErrAccountNotProvisioned is the user-actionable FK failure: the users
	// row is still missing despite projection synthesis.
	ErrAccountNotProvisioned = errors.New("payments: account not fully provisioned, retry shortly")

	// ErrLinkConflict means the payment is already linked to an appointment
	// or is not in a linkable state.
	ErrLinkConflict = errors.New("payments: payment not linkable")

	// ErrDuplicateProviderRef means a concurrent insert won the
	// (user, provider ref) uniqueness race; the existing row is the payment.
	ErrDuplicateProviderRef = errors.New("payments: provider ref already recorded for user")
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists payment records.
type Repository struct {
	pool rowQuerier
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithExec(exec rowQuerier) *Repository {
	if exec == nil {
		panic("payments: exec required")
	}
	return &Repository{pool: exec}
}

const paymentColumns = `id, user_id, amount_pesewas, currency, payment_method, provider, status, provider_ref, appointment_id, metadata, created_at, updated_at`

// Insert persists a new payment row.
func (r *Repository) Insert(ctx context.Context, p *Payment) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("payments: marshal metadata: %w", err)
	}
	query := `
		INSERT INTO payments (id, user_id, amount_pesewas, currency, payment_method, provider, status, provider_ref, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		RETURNING created_at, updated_at
	`
	err = r.pool.QueryRow(ctx, query,
		p.ID,
		p.UserID,
		p.AmountPesewas,
		p.Currency,
		string(p.Method),
		string(p.Provider),
		string(p.Status),
		p.ProviderRef,
		meta,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == "23503":
				return ErrAccountNotProvisioned
			case pgErr.Code == "23505" && pgErr.ConstraintName == "idx_payments_user_provider_ref":
				return ErrDuplicateProviderRef
			}
		}
		return fmt.Errorf("payments: insert payment: %w", err)
	}
	return nil
}

// GetByID fetches a payment row.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// FindByProviderRef looks up the idempotency key (user, provider ref).
func (r *Repository) FindByProviderRef(ctx context.Context, userID, providerRef string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 AND provider_ref = $2`
	return r.scanOne(r.pool.QueryRow(ctx, query, userID, providerRef))
}

// UpdateStatus records a settlement transition.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Payment, error) {
	query := `
		UPDATE payments
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + paymentColumns
	return r.scanOne(r.pool.QueryRow(ctx, query, id, string(status)))
}

// LinkAppointment sets appointment_id on a completed, not-yet-linked
// payment. The WHERE guard is what keeps linkage immutable outside the
// refund flow; zero rows affected means the payment was not linkable.
func (r *Repository) LinkAppointment(ctx context.Context, paymentID, appointmentID uuid.UUID) error {
	query := `
		UPDATE payments
		SET appointment_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'completed' AND appointment_id IS NULL
	`
	ct, err := r.pool.Exec(ctx, query, paymentID, appointmentID)
	if err != nil {
		return fmt.Errorf("payments: link appointment: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrLinkConflict
	}
	return nil
}

// MarkRefunded records a refund and releases the appointment linkage.
func (r *Repository) MarkRefunded(ctx context.Context, id uuid.UUID) (*Payment, error) {
	query := `
		UPDATE payments
		SET status = 'refunded', appointment_id = NULL, updated_at = now()
		WHERE id = $1 AND status = 'completed'
		RETURNING ` + paymentColumns
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *Repository) scanOne(row pgx.Row) (*Payment, error) {
	var (
		p           Payment
		method      string
		provider    string
		status      string
		providerRef *string
		apptID      *uuid.UUID
		meta        []byte
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.AmountPesewas,
		&p.Currency,
		&method,
		&provider,
		&status,
		&providerRef,
		&apptID,
		&meta,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payments: scan payment: %w", err)
	}
	p.Method = Method(method)
	p.Provider = ProviderName(provider)
	p.Status = Status(status)
	if providerRef != nil {
		p.ProviderRef = *providerRef
	}
	p.AppointmentID = apptID
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, fmt.Errorf("payments: decode metadata: %w", err)
		}
	}
	return &p, nil
}
