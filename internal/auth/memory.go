package auth

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore implements Store in memory behind one mutex. It backs local
// development and tests; production runs on PGStore.
type MemStore struct {
	mu          sync.Mutex
	users       map[string]*User
	byEmail     map[string]string
	assignments map[string]*RoleAssignment
	sessions    map[string]*Session
	tokens      map[string]*RefreshToken
	events      []*AuditEvent
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:       make(map[string]*User),
		byEmail:     make(map[string]string),
		assignments: make(map[string]*RoleAssignment),
		sessions:    make(map[string]*Session),
		tokens:      make(map[string]*RefreshToken),
	}
}

func (m *MemStore) Users(context.Context) UserStore                     { return memUserStore{m} }
func (m *MemStore) RoleAssignments(context.Context) RoleAssignmentStore { return memRoleStore{m} }
func (m *MemStore) Sessions(context.Context) SessionStore               { return memSessionStore{m} }
func (m *MemStore) RefreshTokens(context.Context) RefreshTokenStore     { return memTokenStore{m} }
func (m *MemStore) Audit(context.Context) AuditStore                    { return memAuditStore{m} }

// AddUser seeds an identity.
func (m *MemStore) AddUser(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	m.byEmail[u.Email] = u.ID
}

// AddAssignment seeds a role assignment.
func (m *MemStore) AddAssignment(a *RoleAssignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.assignments[a.ID] = &cp
}

// Events returns a snapshot of appended audit events.
func (m *MemStore) Events() []*AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*AuditEvent, len(m.events))
	copy(out, m.events)
	return out
}

type memUserStore struct{ m *MemStore }

func (s memUserStore) Find(_ context.Context, id string) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	id, ok := s.m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.m.users[id]
	return &cp, nil
}

type memRoleStore struct{ m *MemStore }

func (s memRoleStore) Find(_ context.Context, id string) (*RoleAssignment, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.assignments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s memRoleStore) ListByUser(_ context.Context, userID string) ([]*RoleAssignment, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*RoleAssignment
	for _, a := range s.m.assignments {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memSessionStore struct{ m *MemStore }

func (s memSessionStore) Create(_ context.Context, sess *Session) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cp := *sess
	s.m.sessions[sess.ID] = &cp
	return nil
}

func (s memSessionStore) Find(_ context.Context, id string) (*Session, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sess, ok := s.m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s memSessionStore) SetCurrentRole(_ context.Context, sessionID, roleAssignmentID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sess, ok := s.m.sessions[sessionID]
	if !ok || sess.Revoked {
		return ErrNotFound
	}
	sess.CurrentRoleAssignmentID = roleAssignmentID
	return nil
}

func (s memSessionStore) Revoke(_ context.Context, sessionID, reason string, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sess, ok := s.m.sessions[sessionID]
	if !ok || sess.Revoked {
		return nil
	}
	sess.Revoked = true
	sess.RevokedAt = at
	sess.RevokedReason = reason
	return nil
}

func (s memSessionStore) RevokeAllForUser(_ context.Context, userID, reason string, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, sess := range s.m.sessions {
		if sess.UserID == userID && !sess.Revoked {
			sess.Revoked = true
			sess.RevokedAt = at
			sess.RevokedReason = reason
		}
	}
	return nil
}

func (s memSessionStore) ListActiveByUser(_ context.Context, userID string, now time.Time) ([]*Session, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*Session
	for _, sess := range s.m.sessions {
		if sess.UserID == userID && !sess.Revoked && now.Before(sess.ExpiresAt) {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memTokenStore struct{ m *MemStore }

func (s memTokenStore) Create(_ context.Context, tok *RefreshToken) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cp := *tok
	s.m.tokens[tok.ID] = &cp
	return nil
}

func (s memTokenStore) Find(_ context.Context, id string) (*RefreshToken, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	tok, ok := s.m.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

// Rotate performs the mark-and-insert under one lock so concurrent
// rotations of the same token cannot both succeed.
func (s memTokenStore) Rotate(_ context.Context, predecessorID string, successor *RefreshToken) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	pred, ok := s.m.tokens[predecessorID]
	if !ok || pred.Rotated || pred.Revoked {
		return false, nil
	}
	pred.Rotated = true
	pred.RotatedToID = successor.ID
	cp := *successor
	s.m.tokens[successor.ID] = &cp
	return true, nil
}

func (s memTokenStore) RevokeChain(_ context.Context, sessionID, reason string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, tok := range s.m.tokens {
		if tok.SessionID == sessionID && !tok.Revoked {
			tok.Revoked = true
			tok.RevokedReason = reason
		}
	}
	return nil
}

func (s memTokenStore) RevokeAllForUser(_ context.Context, userID, reason string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	byUser := make(map[string]bool)
	for _, sess := range s.m.sessions {
		if sess.UserID == userID {
			byUser[sess.ID] = true
		}
	}
	for _, tok := range s.m.tokens {
		if byUser[tok.SessionID] && !tok.Revoked {
			tok.Revoked = true
			tok.RevokedReason = reason
		}
	}
	return nil
}

type memAuditStore struct{ m *MemStore }

func (s memAuditStore) Append(_ context.Context, event *AuditEvent) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cp := *event
	s.m.events = append(s.m.events, &cp)
	return nil
}
