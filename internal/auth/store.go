package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	RoleAssignments(ctx context.Context) RoleAssignmentStore
	Sessions(ctx context.Context) SessionStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	Audit(ctx context.Context) AuditStore
}

// UserStore looks up identities.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// RoleAssignmentStore manages role grants.
type RoleAssignmentStore interface {
	Find(ctx context.Context, id string) (*RoleAssignment, error)
	ListByUser(ctx context.Context, userID string) ([]*RoleAssignment, error)
}

// SessionStore manages session records.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	SetCurrentRole(ctx context.Context, sessionID, roleAssignmentID string) error
	Revoke(ctx context.Context, sessionID, reason string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) error
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*Session, error)
}

// RefreshTokenStore manages rotation chains.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	// Rotate marks the predecessor rotated and inserts the successor as one
	// atomic operation, conditional on the predecessor still being live.
	// Returns false without side effects when a concurrent rotation won.
	Rotate(ctx context.Context, predecessorID string, successor *RefreshToken) (bool, error)
	RevokeChain(ctx context.Context, sessionID, reason string) error
	RevokeAllForUser(ctx context.Context, userID, reason string) error
}

// AuditStore appends immutable events.
type AuditStore interface {
	Append(ctx context.Context, event *AuditEvent) error
}

// wrapStore reclassifies context timeouts and cancellations as retryable
// infrastructure failures, distinct from authentication verdicts.
func wrapStore(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
