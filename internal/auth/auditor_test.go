package auth

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"qrdine.org/internal/obs"
)

func TestAuditorAppendsEvent(t *testing.T) {
	store := NewMemStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := NewAuditor(store, func() time.Time { return now })

	a.Log(context.Background(), "user-1", EventRoleSwitch, SeverityMedium, "session role switched",
		AuditContext{IP: "10.0.0.1", UserAgent: "ua", Metadata: map[string]string{"session_id": "s1"}})

	events := store.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.ID == "" || ev.ActorUserID != "user-1" || ev.EventType != EventRoleSwitch {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Severity != SeverityMedium || ev.Metadata["session_id"] != "s1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !ev.CreatedAt.Equal(now) {
		t.Fatalf("unexpected timestamp: %v", ev.CreatedAt)
	}
}

type failingAuditStore struct{ *MemStore }

func (failingAuditStore) Audit(context.Context) AuditStore { return failingAppend{} }

type failingAppend struct{}

func (failingAppend) Append(context.Context, *AuditEvent) error {
	return errors.New("disk full")
}

func TestAuditorStoreFailureIsBestEffort(t *testing.T) {
	var buf bytes.Buffer
	obs.Logger().SetOutput(&buf)
	defer obs.Logger().SetOutput(os.Stdout)

	a := NewAuditor(failingAuditStore{NewMemStore()}, nil)

	// must not panic and has no error to return
	a.Log(context.Background(), "user-1", EventLogin, SeverityLow, "login succeeded", AuditContext{})

	line := buf.String()
	if !strings.Contains(line, "audit event dropped") || !strings.Contains(line, "disk full") {
		t.Fatalf("expected warn line about dropped event, got %q", line)
	}
}
