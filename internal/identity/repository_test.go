package identity

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func userRows(mock pgxmock.PgxPoolIface, id string) *pgxmock.Rows {
	return mock.NewRows([]string{"id", "email", "name", "phone", "verified", "created_at"}).
		AddRow(id, "ama@example.com", "Ama Mensah", "+233201234567", true, time.Now().UTC())
}

func TestEnsureProjectionExistingUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	mock.ExpectQuery("SELECT id").WithArgs("u-1").WillReturnRows(userRows(mock, "u-1"))

	user, err := repo.EnsureProjection(context.Background(), Principal{ID: "u-1"})
	if err != nil {
		t.Fatalf("EnsureProjection returned error: %v", err)
	}
	if user.ID != "u-1" {
		t.Fatalf("unexpected user: %#v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEnsureProjectionSynthesizesMissingRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)
	p := Principal{ID: "u-2", Email: "kofi@example.com", Name: "Kofi Owusu", Phone: "+233501112233", Verified: true}

	mock.ExpectQuery("SELECT id").WithArgs("u-2").WillReturnError(errNoRowsForTest())
	mock.ExpectExec("INSERT INTO users").
		WithArgs("u-2", p.Email, p.Name, p.Phone, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT id").WithArgs("u-2").WillReturnRows(userRows(mock, "u-2"))

	user, err := repo.EnsureProjection(context.Background(), p)
	if err != nil {
		t.Fatalf("EnsureProjection returned error: %v", err)
	}
	if user.ID != "u-2" {
		t.Fatalf("unexpected user: %#v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEnsureProjectionLostRaceIsSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithExec(mock)

	mock.ExpectQuery("SELECT id").WithArgs("u-3").WillReturnError(errNoRowsForTest())
	mock.ExpectExec("INSERT INTO users").
		WithArgs("u-3", "", "", "", false).
		WillReturnError(uniqueViolationForTest())
	mock.ExpectQuery("SELECT id").WithArgs("u-3").WillReturnRows(userRows(mock, "u-3"))

	user, err := repo.EnsureProjection(context.Background(), Principal{ID: "u-3"})
	if err != nil {
		t.Fatalf("expected lost insert race to be treated as success, got %v", err)
	}
	if user.ID != "u-3" {
		t.Fatalf("unexpected user: %#v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
