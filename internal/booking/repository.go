package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAppointmentNotFound indicates no appointment row matched.
var ErrAppointmentNotFound = errors.New("booking: appointment not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists appointments.
type Repository struct {
	pool querier
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithExec(exec querier) *Repository {
	if exec == nil {
		panic("booking: exec required")
	}
	return &Repository{pool: exec}
}

const appointmentColumns = `id, user_id, branch_id, scheduled_at, treatment_type, notes, status, created_at, updated_at`

// Insert persists a new appointment.
func (r *Repository) Insert(ctx context.Context, a *Appointment) error {
	query := `
		INSERT INTO appointments (id, user_id, branch_id, scheduled_at, treatment_type, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		a.ID,
		a.UserID,
		a.BranchID,
		a.ScheduledAt,
		a.TreatmentType,
		a.Notes,
		string(a.Status),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("booking: insert appointment: %w", err)
	}
	return nil
}

// Delete removes an appointment row. Used as the compensating action when
// payment linkage fails; deleting an already-deleted row reports success so
// retries stay idempotent.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("booking: delete appointment: %w", err)
	}
	return nil
}

// GetByID fetches an appointment.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// HasConflict reports whether any pending or confirmed appointment exists at
// the branch inside [t-window, t+window]. Deliberately coarse: the clinic
// cannot run back-to-back slots, so the whole window is blocked.
func (r *Repository) HasConflict(ctx context.Context, branchID string, t time.Time, window time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE branch_id = $1
			  AND status IN ('pending', 'confirmed')
			  AND scheduled_at BETWEEN $2 AND $3
		)
	`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, branchID, t.Add(-window), t.Add(window)).Scan(&exists); err != nil {
		return false, fmt.Errorf("booking: conflict check: %w", err)
	}
	return exists, nil
}

// UpdateStatus transitions the lifecycle state, appending (never replacing)
// an optional note.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, note string) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $2,
		    notes = CASE WHEN $3 = '' THEN notes
		            WHEN notes = '' THEN $3
		            ELSE notes || E'\n' || $3 END,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + appointmentColumns
	return r.scanOne(r.pool.QueryRow(ctx, query, id, string(status), note))
}

// Reschedule moves the appointment and resets it to pending for
// re-confirmation.
func (r *Repository) Reschedule(ctx context.Context, id uuid.UUID, newTime time.Time) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET scheduled_at = $2, status = 'pending', updated_at = now()
		WHERE id = $1
		RETURNING ` + appointmentColumns
	return r.scanOne(r.pool.QueryRow(ctx, query, id, newTime))
}

// ListForUser returns the user's appointments, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE user_id = $1 ORDER BY scheduled_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("booking: list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *Repository) scanOne(row pgx.Row) (*Appointment, error) {
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return a, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		status string
	)
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.BranchID,
		&a.ScheduledAt,
		&a.TreatmentType,
		&a.Notes,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("booking: scan appointment: %w", err)
	}
	a.Status = Status(status)
	return &a, nil
}
