package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"cpeconnect.org/internal/grants"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestCreateProject(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into projects").
		WithArgs(sqlmock.AnyArg(), "org-1", "Formation numérique", "digital_productivity", "",
			"draft", 0.75, 20000.0, 0.0, "", "finance@tremblay.example", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	p := grants.Project{
		OrganizationID: "org-1",
		Title:          "Formation numérique",
		Stream:         "digital_productivity",
		Status:         grants.ProjectDraft,
		FundingRate:    0.75,
		TotalBudget:    20000,
		CreatedBy:      "finance@tremblay.example",
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := store.CreateProject(context.Background(), &p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected generated project id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("from projects where id=").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetProject(context.Background(), "missing")
	if !errors.Is(err, grants.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateOrganizationConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into organizations").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "organizations_name_key"})

	org := grants.Organization{Name: "Boulangerie Tremblay"}
	err := store.CreateOrganization(context.Background(), &org)
	if !errors.Is(err, grants.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateClaimAttachesLinesAtomically(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into payment_claims").
		WithArgs(sqlmock.AnyArg(), "p-1", "org-1", "submitted", 1500.0, "", sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("update cost_lines set payment_claim_id").
		WithArgs(sqlmock.AnyArg(), "l-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update cost_lines set payment_claim_id").
		WithArgs(sqlmock.AnyArg(), "l-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claim := grants.PaymentClaim{
		ProjectID:      "p-1",
		OrganizationID: "org-1",
		Status:         grants.ClaimSubmitted,
		TotalAmount:    1500,
		SubmittedAt:    time.Now().UTC(),
	}
	if err := store.CreateClaim(context.Background(), &claim, []string{"l-1", "l-2"}); err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateClaimRollsBackOnClaimedLine(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into payment_claims").
		WillReturnResult(sqlmock.NewResult(1, 1))
	// Zero rows updated means the line was grabbed by another claim.
	mock.ExpectExec("update cost_lines set payment_claim_id").
		WithArgs(sqlmock.AnyArg(), "l-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	claim := grants.PaymentClaim{ProjectID: "p-1", OrganizationID: "org-1", Status: grants.ClaimSubmitted}
	err := store.CreateClaim(context.Background(), &claim, []string{"l-1"})
	if !errors.Is(err, grants.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRejectClaimReleasesLines(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update payment_claims set status").
		WithArgs("c-1", "rejected", "Pièces manquantes").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update cost_lines set payment_claim_id=null").
		WithArgs("c-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	claim := grants.PaymentClaim{ID: "c-1", Status: grants.ClaimRejected, RejectionReason: "Pièces manquantes"}
	if err := store.RejectClaim(context.Background(), &claim); err != nil {
		t.Fatalf("RejectClaim: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkNotificationReadRequiresOwner(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update notifications set read=true").
		WithArgs("n-1", "other@x.example").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkNotificationRead(context.Background(), "n-1", "other@x.example")
	if !errors.Is(err, grants.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
