package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"qrdine.org/internal/ids"
)

const defaultSessionTTL = 7 * 24 * time.Hour

// SessionManager owns the session record lifecycle. It is the authoritative
// "is this session still valid" check that stateless access token
// verification defers to for sensitive operations.
type SessionManager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionManager constructs a manager over the given store.
func NewSessionManager(store Store, ttl time.Duration, now func() time.Time) *SessionManager {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &SessionManager{store: store, ttl: ttl, now: now}
}

// Create inserts a new non-revoked session for the identity and role.
func (m *SessionManager) Create(ctx context.Context, userID string, userType UserType, roleAssignmentID, ip, ua string) (*Session, error) {
	now := m.now().UTC()
	s := &Session{
		ID:                      ids.New(),
		UserID:                  userID,
		UserType:                userType,
		CurrentRoleAssignmentID: roleAssignmentID,
		IssuedAt:                now,
		ExpiresAt:               now.Add(m.ttl),
		IPAddress:               ip,
		UserAgent:               ua,
	}
	if err := m.store.Sessions(ctx).Create(ctx, s); err != nil {
		return nil, wrapStore(err)
	}
	return s, nil
}

// GetActive returns the session only if it is neither revoked nor expired.
func (m *SessionManager) GetActive(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrNotFound
	}
	s, err := m.store.Sessions(ctx).Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, wrapStore(err)
	}
	if s.Revoked || !m.now().Before(s.ExpiresAt) {
		return nil, ErrSessionRevoked
	}
	return s, nil
}

// SetCurrentRole mutates the session's current role in place. Role
// switching is a transition on the existing session, not a new one, so
// logout-all semantics stay "one login = one session".
func (m *SessionManager) SetCurrentRole(ctx context.Context, sessionID, roleAssignmentID string) error {
	return wrapStore(m.store.Sessions(ctx).SetCurrentRole(ctx, sessionID, roleAssignmentID))
}

// ListActive returns the user's non-revoked, non-expired sessions.
func (m *SessionManager) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	sessions, err := m.store.Sessions(ctx).ListActiveByUser(ctx, userID, m.now().UTC())
	if err != nil {
		return nil, wrapStore(err)
	}
	return sessions, nil
}

// Revoke marks one session revoked and cascades to its refresh chain.
func (m *SessionManager) Revoke(ctx context.Context, sessionID, reason string) error {
	now := m.now().UTC()
	if err := m.store.Sessions(ctx).Revoke(ctx, sessionID, reason, now); err != nil {
		return wrapStore(err)
	}
	return wrapStore(m.store.RefreshTokens(ctx).RevokeChain(ctx, sessionID, reason))
}

// RevokeAll marks every session of a user revoked and cascades to all of
// the user's refresh chains.
func (m *SessionManager) RevokeAll(ctx context.Context, userID, reason string) error {
	now := m.now().UTC()
	if err := m.store.Sessions(ctx).RevokeAllForUser(ctx, userID, reason, now); err != nil {
		return wrapStore(err)
	}
	return wrapStore(m.store.RefreshTokens(ctx).RevokeAllForUser(ctx, userID, reason))
}
