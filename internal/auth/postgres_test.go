package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGFindUserByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)
	ctx := context.Background()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`select id, email, password_hash, user_type, status, locked`).
		WithArgs("ana@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "password_hash", "user_type", "status", "locked", "created_at", "updated_at",
		}).AddRow("user-1", "ana@example.com", "hash", "staff", "active", false, created, created))

	u, err := store.Users(ctx).FindByEmail(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if u.ID != "user-1" || u.UserType != UserTypeStaff || u.Locked {
		t.Fatalf("unexpected user: %+v", u)
	}

	mock.ExpectQuery(`select id, email, password_hash, user_type, status, locked`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.Users(ctx).FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGFindRefreshToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)
	ctx := context.Background()
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`select id, token_hash, session_id`).
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "token_hash", "session_id", "issued_at", "expires_at",
			"rotated_from_id", "rotated_to_id", "rotated", "revoked", "revoked_reason",
		}).AddRow("tok-1", "abc", "sess-1", issued, issued.Add(48*time.Hour), "", "", false, false, ""))

	tok, err := store.RefreshTokens(ctx).Find(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if tok.SessionID != "sess-1" || !tok.Live() {
		t.Fatalf("unexpected token: %+v", tok)
	}

	mock.ExpectQuery(`select id, token_hash, session_id`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.RefreshTokens(ctx).Find(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRotateWinnerCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)
	ctx := context.Background()
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	succ := &RefreshToken{
		ID:            "tok-2",
		TokenHash:     "def",
		SessionID:     "sess-1",
		IssuedAt:      issued,
		ExpiresAt:     issued.Add(48 * time.Hour),
		RotatedFromID: "tok-1",
	}

	mock.ExpectBegin()
	mock.ExpectExec(`update refresh_tokens set rotated=true`).
		WithArgs("tok-1", "tok-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into refresh_tokens`).
		WithArgs("tok-2", "def", "sess-1", succ.IssuedAt, succ.ExpiresAt, "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := store.RefreshTokens(ctx).Rotate(ctx, "tok-1", succ)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if !ok {
		t.Fatal("expected rotation to win")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRotateLoserRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`update refresh_tokens set rotated=true`).
		WithArgs("tok-1", "tok-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ok, err := store.RefreshTokens(ctx).Rotate(ctx, "tok-1", &RefreshToken{ID: "tok-2"})
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if ok {
		t.Fatal("stale predecessor must lose the rotation")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGSetCurrentRoleMissingSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)
	ctx := context.Background()

	mock.ExpectExec(`update sessions set current_role_assignment_id`).
		WithArgs("sess-1", "ra-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Sessions(ctx).SetCurrentRole(ctx, "sess-1", "ra-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGAuditAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)
	ctx := context.Background()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`insert into audit_events`).
		WithArgs("ev-1", "user-1", EventLogin, string(SeverityLow), "login succeeded",
			"10.0.0.1", "ua", []byte(`{"session_id":"s1"}`), created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Audit(ctx).Append(ctx, &AuditEvent{
		ID:          "ev-1",
		ActorUserID: "user-1",
		EventType:   EventLogin,
		Severity:    SeverityLow,
		Message:     "login succeeded",
		IPAddress:   "10.0.0.1",
		UserAgent:   "ua",
		Metadata:    map[string]string{"session_id": "s1"},
		CreatedAt:   created,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
