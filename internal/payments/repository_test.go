package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func paymentRows(mock pgxmock.PgxPoolIface, id uuid.UUID, userID string, status Status, ref string) *pgxmock.Rows {
	refVal := &ref
	if ref == "" {
		refVal = nil
	}
	var apptID *uuid.UUID
	now := time.Now().UTC()
	return mock.NewRows([]string{
		"id", "user_id", "amount_pesewas", "currency", "payment_method",
		"provider", "status", "provider_ref", "appointment_id", "metadata",
		"created_at", "updated_at",
	}).AddRow(id, userID, int64(10000), "GHS", "momo_mtn", "local", string(status), refVal, apptID, []byte(`{"phone":"+233201234567"}`), now, now)
}

func TestRepositoryInsertTranslatesFKViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	p := &Payment{
		ID:            uuid.New(),
		UserID:        "u-1",
		AmountPesewas: 10000,
		Currency:      "GHS",
		Method:        MethodMomoMTN,
		Provider:      ProviderLocal,
		Status:        StatusPending,
		ProviderRef:   "LOC-1",
	}

	mock.ExpectQuery("INSERT INTO payments").
		WithArgs(p.ID, p.UserID, p.AmountPesewas, p.Currency, "momo_mtn", "local", "pending", "LOC-1", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "payments_user_id_fkey"})

	if err := repo.Insert(context.Background(), p); !errors.Is(err, ErrAccountNotProvisioned) {
		t.Fatalf("expected ErrAccountNotProvisioned, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryInsertTranslatesProviderRefRace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	p := &Payment{
		ID:            uuid.New(),
		UserID:        "u-1",
		AmountPesewas: 10000,
		Currency:      "GHS",
		Method:        MethodMomoMTN,
		Provider:      ProviderLocal,
		Status:        StatusPending,
		ProviderRef:   "LOC-1",
	}

	mock.ExpectQuery("INSERT INTO payments").
		WithArgs(p.ID, p.UserID, p.AmountPesewas, p.Currency, "momo_mtn", "local", "pending", "LOC-1", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_payments_user_provider_ref"})

	if err := repo.Insert(context.Background(), p); !errors.Is(err, ErrDuplicateProviderRef) {
		t.Fatalf("expected ErrDuplicateProviderRef, got %v", err)
	}
}

func TestRepositoryGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	id := uuid.New()
	mock.ExpectQuery("SELECT id, user_id").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), id); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestRepositoryFindByProviderRef(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	id := uuid.New()
	mock.ExpectQuery("SELECT id, user_id").
		WithArgs("u-1", "LOC-1").
		WillReturnRows(paymentRows(mock, id, "u-1", StatusPending, "LOC-1"))

	payment, err := repo.FindByProviderRef(context.Background(), "u-1", "LOC-1")
	if err != nil {
		t.Fatalf("FindByProviderRef: %v", err)
	}
	if payment.ID != id || payment.ProviderRef != "LOC-1" {
		t.Fatalf("unexpected payment: %#v", payment)
	}
	if payment.Metadata["phone"] != "+233201234567" {
		t.Fatalf("metadata not decoded: %#v", payment.Metadata)
	}
}

func TestRepositoryLinkAppointmentGuard(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	paymentID, apptID := uuid.New(), uuid.New()

	// Zero rows affected: already linked, or not completed.
	mock.ExpectExec("UPDATE payments").
		WithArgs(paymentID, apptID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.LinkAppointment(context.Background(), paymentID, apptID); !errors.Is(err, ErrLinkConflict) {
		t.Fatalf("expected ErrLinkConflict, got %v", err)
	}
}

func TestRepositoryLinkAppointmentSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	paymentID, apptID := uuid.New(), uuid.New()

	mock.ExpectExec("UPDATE payments").
		WithArgs(paymentID, apptID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.LinkAppointment(context.Background(), paymentID, apptID); err != nil {
		t.Fatalf("LinkAppointment: %v", err)
	}
}

func TestRepositoryMarkRefundedOnlyFromCompleted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	id := uuid.New()

	// A pending payment matches no row; the guard maps that to not found.
	mock.ExpectQuery("UPDATE payments").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	if _, err := repo.MarkRefunded(context.Background(), id); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}
