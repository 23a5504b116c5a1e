package auth

import (
	"context"
	"encoding/json"
	"time"

	"qrdine.org/internal/ids"
	"qrdine.org/internal/obs"
)

// AuditContext carries the request-scoped fields attached to every event.
type AuditContext struct {
	IP        string
	UserAgent string
	Metadata  map[string]string
}

// Auditor appends security events to the append-only audit store. Writes
// are best-effort: auth flows must never fail because audit logging did.
// A dropped event increments a counter and emits a local warning line, so
// silent audit loss stays observable.
type Auditor struct {
	store Store
	now   func() time.Time
}

// NewAuditor constructs an auditor over the given store.
func NewAuditor(store Store, now func() time.Time) *Auditor {
	if now == nil {
		now = time.Now
	}
	return &Auditor{store: store, now: now}
}

// Log appends one event. Never returns an error.
func (a *Auditor) Log(ctx context.Context, actorUserID, eventType string, severity Severity, message string, actx AuditContext) {
	event := &AuditEvent{
		ID:          ids.New(),
		ActorUserID: actorUserID,
		EventType:   eventType,
		Severity:    severity,
		Message:     message,
		IPAddress:   actx.IP,
		UserAgent:   actx.UserAgent,
		Metadata:    actx.Metadata,
		CreatedAt:   a.now().UTC(),
	}
	if err := a.store.Audit(ctx).Append(ctx, event); err != nil {
		obs.IncAuditFailure()
		line, _ := json.Marshal(map[string]any{
			"ts":    a.now().UTC().Format(time.RFC3339Nano),
			"level": "warn",
			"msg":   "audit event dropped",
			"event": eventType,
			"error": err.Error(),
		})
		obs.Logger().Println(string(line))
	}
}
