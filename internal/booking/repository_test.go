package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func appointmentRows(mock pgxmock.PgxPoolIface, id uuid.UUID, userID string, status Status) *pgxmock.Rows {
	now := time.Now().UTC()
	return mock.NewRows([]string{
		"id", "user_id", "branch_id", "scheduled_at", "treatment_type",
		"notes", "status", "created_at", "updated_at",
	}).AddRow(id, userID, "accra-central", now.Add(48*time.Hour), "dental_cleaning", "", string(status), now, now)
}

func TestRepositoryInsertReturnsTimestamps(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	a := &Appointment{
		ID:            uuid.New(),
		UserID:        "u-1",
		BranchID:      "accra-central",
		ScheduledAt:   time.Now().Add(48 * time.Hour),
		TreatmentType: "dental_cleaning",
		Status:        StatusPending,
	}

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(a.ID, a.UserID, a.BranchID, a.ScheduledAt, a.TreatmentType, a.Notes, "pending").
		WillReturnRows(mock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	if err := repo.Insert(context.Background(), a); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
		t.Fatal("timestamps not populated from RETURNING")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryDeleteIsIdempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	id := uuid.New()

	// Zero rows affected is still success; compensation retries must not
	// fail on an already-deleted row.
	mock.ExpectExec("DELETE FROM appointments").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestRepositoryHasConflictBoundsTheWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	at := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	window := time.Hour

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("accra-central", at.Add(-window), at.Add(window)).
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(true))

	conflict, err := repo.HasConflict(context.Background(), "accra-central", at, window)
	if err != nil {
		t.Fatalf("HasConflict: %v", err)
	}
	if !conflict {
		t.Fatal("expected conflict")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryUpdateStatusNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	id := uuid.New()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "confirmed", "note").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.UpdateStatus(context.Background(), id, StatusConfirmed, "note"); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestRepositoryRescheduleResetsToPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	id := uuid.New()
	newTime := time.Now().Add(96 * time.Hour)

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, newTime).
		WillReturnRows(appointmentRows(mock, id, "u-1", StatusPending))

	appt, err := repo.Reschedule(context.Background(), id, newTime)
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if appt.Status != StatusPending {
		t.Fatalf("status = %q, want pending", appt.Status)
	}
}

func TestRepositoryListForUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	now := time.Now().UTC()
	rows := mock.NewRows([]string{
		"id", "user_id", "branch_id", "scheduled_at", "treatment_type",
		"notes", "status", "created_at", "updated_at",
	}).
		AddRow(uuid.New(), "u-1", "accra-central", now.Add(72*time.Hour), "dental_cleaning", "", "pending", now, now).
		AddRow(uuid.New(), "u-1", "kumasi-branch", now.Add(24*time.Hour), "consultation", "bring referral", "confirmed", now, now)

	mock.ExpectQuery("SELECT id, user_id").WithArgs("u-1").WillReturnRows(rows)

	appts, err := repo.ListForUser(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("appointments = %d, want 2", len(appts))
	}
	if appts[1].Status != StatusConfirmed || appts[1].Notes != "bring referral" {
		t.Fatalf("unexpected row: %#v", appts[1])
	}
}
