package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newRefreshFixture(t *testing.T, now *time.Time) (*MemStore, *SessionManager, *RefreshService, *Session) {
	t.Helper()
	store := NewMemStore()
	clock := func() time.Time { return *now }
	sessions := NewSessionManager(store, 7*24*time.Hour, clock)
	auditor := NewAuditor(store, clock)
	refresh := NewRefreshService(store, sessions, auditor, 48*time.Hour, clock)

	sess, err := sessions.Create(context.Background(), "user-1", UserTypeStaff, "ra-1", "10.0.0.1", "ua")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return store, sessions, refresh, sess
}

func TestRefreshIssueAndRotate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, _, refresh, sess := newRefreshFixture(t, &now)
	ctx := context.Background()

	raw1, rec1, err := refresh.Issue(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if rec1.RotatedFromID != "" {
		t.Fatalf("root token must not have a predecessor: %q", rec1.RotatedFromID)
	}

	now = now.Add(time.Hour)
	raw2, rec2, err := refresh.Rotate(ctx, raw1, "10.0.0.1", "ua")
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if raw2 == raw1 {
		t.Fatal("rotation must mint a new raw token")
	}
	if rec2.RotatedFromID != rec1.ID {
		t.Fatalf("successor not linked to predecessor: %q", rec2.RotatedFromID)
	}
	if rec2.SessionID != sess.ID {
		t.Fatalf("rotation must stay on the same session: %q", rec2.SessionID)
	}
	// sliding expiry: the successor's window starts at rotation time
	if !rec2.ExpiresAt.Equal(now.Add(48 * time.Hour)) {
		t.Fatalf("unexpected successor expiry: %v", rec2.ExpiresAt)
	}

	if _, err := refresh.Validate(ctx, raw2, "", ""); err != nil {
		t.Fatalf("successor should validate: %v", err)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, _, refresh, sess := newRefreshFixture(t, &now)
	ctx := context.Background()

	raw, _, err := refresh.Issue(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	now = now.Add(48 * time.Hour)
	if _, err := refresh.Validate(ctx, raw, "", ""); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if _, _, err := refresh.Rotate(ctx, raw, "", ""); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired on rotate, got %v", err)
	}
}

func TestRefreshMalformedAndWrongSecret(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, _, refresh, sess := newRefreshFixture(t, &now)
	ctx := context.Background()

	_, rec, err := refresh.Issue(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for _, bad := range []string{"", "garbage", "a.b.c", rec.ID + ".", rec.ID + ".wrongsecret"} {
		if _, err := refresh.Validate(ctx, bad, "", ""); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Validate(%q): expected ErrNotFound, got %v", bad, err)
		}
	}
}

func TestRefreshTheftContainment(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store, sessions, refresh, sess := newRefreshFixture(t, &now)
	ctx := context.Background()

	// legitimate chain T1 -> T2 -> T3
	raw1, _, err := refresh.Issue(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	raw2, _, err := refresh.Rotate(ctx, raw1, "", "")
	if err != nil {
		t.Fatalf("rotate T1: %v", err)
	}
	raw3, _, err := refresh.Rotate(ctx, raw2, "", "")
	if err != nil {
		t.Fatalf("rotate T2: %v", err)
	}

	// attacker replays the already-rotated T1
	if _, _, err := refresh.Rotate(ctx, raw1, "6.6.6.6", "evil"); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("expected ErrReuseDetected, got %v", err)
	}

	// the whole chain is dead, including the head the victim still holds
	if _, err := refresh.Validate(ctx, raw3, "", ""); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("chain head should be revoked, got %v", err)
	}
	if _, err := sessions.GetActive(ctx, sess.ID); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("session should be revoked, got %v", err)
	}

	stored, err := store.Sessions(ctx).Find(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.RevokedReason != ReasonTokenReuse {
		t.Fatalf("unexpected revocation reason: %q", stored.RevokedReason)
	}

	var sawDetection bool
	for _, ev := range store.Events() {
		if ev.EventType == EventReuseDetected {
			sawDetection = true
			if ev.Severity != SeverityHigh {
				t.Fatalf("reuse detection must be high severity, got %q", ev.Severity)
			}
			if ev.Metadata["session_id"] != sess.ID {
				t.Fatalf("audit event missing session id: %+v", ev.Metadata)
			}
		}
	}
	if !sawDetection {
		t.Fatal("no reuse-detection audit event recorded")
	}
}

func TestRefreshRotateRace(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, _, refresh, sess := newRefreshFixture(t, &now)
	ctx := context.Background()

	raw, _, err := refresh.Issue(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = refresh.Rotate(ctx, raw, "", "")
		}(i)
	}
	wg.Wait()

	var wins, replays int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrReuseDetected) || errors.Is(err, ErrNotFound):
			replays++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || replays != 1 {
		t.Fatalf("wins=%d replays=%d, want exactly one winner", wins, replays)
	}

	// whether or not the loser's winner token survives, the predecessor is
	// spent either way; replaying it is always detected
	if _, _, err := refresh.Rotate(ctx, raw, "", ""); err == nil {
		t.Fatal("spent token must not rotate again")
	}
}
