package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"qrdine.org/internal/obs"
)

const defaultAccessTTL = 15 * time.Minute

// Service composes the token codec, permission resolver, session manager,
// refresh token service, rate limiter and auditor into the four credential
// lifecycle operations: authenticate, refresh, switch-role and revoke.
type Service struct {
	store    Store
	codec    *TokenCodec
	resolver *Resolver
	sessions *SessionManager
	refresh  *RefreshService
	limiter  *Limiter
	auditor  *Auditor

	verifyPassword func(hash, password string) error
	now            func() time.Time

	// collected by options before components are built
	secret        []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	sessionTTL    time.Duration
	catalog       map[string][]string
	limiterMax    int
	limiterWindow time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithSessionTTL configures session lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
		return nil
	}
}

// WithCatalog overrides the role template permission catalog.
func WithCatalog(catalog map[string][]string) ServiceOption {
	return func(s *Service) error {
		if catalog != nil {
			s.catalog = catalog
		}
		return nil
	}
}

// WithRateLimit configures the refresh endpoint attempt budget per client.
func WithRateLimit(max int, window time.Duration) ServiceOption {
	return func(s *Service) error {
		s.limiterMax = max
		s.limiterWindow = window
		return nil
	}
}

// WithPasswordVerifier overrides the password check (useful for tests).
func WithPasswordVerifier(fn func(hash, password string) error) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.verifyPassword = fn
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the orchestrator with optional configuration.
func NewService(store Store, secret []byte, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store:          store,
		secret:         secret,
		verifyPassword: VerifyPassword,
		now:            time.Now,
		accessTTL:      defaultAccessTTL,
		refreshTTL:     defaultRefreshTTL,
		sessionTTL:     defaultSessionTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}

	codec, err := NewTokenCodec(svc.secret, svc.issuer, svc.accessTTL, svc.now)
	if err != nil {
		return nil, err
	}
	svc.codec = codec
	svc.resolver = NewResolver(svc.catalog)
	svc.sessions = NewSessionManager(store, svc.sessionTTL, svc.now)
	svc.auditor = NewAuditor(store, svc.now)
	svc.refresh = NewRefreshService(store, svc.sessions, svc.auditor, svc.refreshTTL, svc.now)
	svc.limiter = NewLimiter(svc.limiterMax, svc.limiterWindow, svc.now)
	return svc, nil
}

// TokenPair holds both bearer credentials with their expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Grant is the result of a successful lifecycle operation: the session
// binding, the active role snapshot and the freshly minted credentials.
// Role switches keep the refresh chain, so their grants carry no refresh
// token.
type Grant struct {
	SessionID   string
	UserID      string
	UserType    UserType
	Role        RoleClaim
	Permissions []string
	TokenPair
}

// Authenticate verifies credentials, opens a session on the user's default
// role and mints the initial access/refresh pair.
func (s *Service) Authenticate(ctx context.Context, email, password, ip, ua string) (Grant, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		obs.IncLogin("invalid")
		return Grant{}, ErrInvalidCredentials
	}

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.IncLogin("invalid")
			return Grant{}, ErrInvalidCredentials
		}
		return Grant{}, wrapStore(err)
	}
	actx := AuditContext{IP: ip, UserAgent: ua}
	if user.Locked {
		obs.IncLogin("locked")
		s.auditor.Log(ctx, user.ID, EventLoginFailed, SeverityMedium, "login rejected: account locked", actx)
		return Grant{}, ErrAccountLocked
	}
	if user.Status != UserStatusActive {
		obs.IncLogin("inactive")
		s.auditor.Log(ctx, user.ID, EventLoginFailed, SeverityMedium, "login rejected: account inactive", actx)
		return Grant{}, ErrAccountInactive
	}
	if err := s.verifyPassword(user.PasswordHash, password); err != nil {
		obs.IncLogin("invalid")
		s.auditor.Log(ctx, user.ID, EventLoginFailed, SeverityMedium, "login rejected: bad password", actx)
		return Grant{}, ErrInvalidCredentials
	}

	assignment, err := s.defaultAssignment(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrForbiddenRole) {
			obs.IncLogin("inactive")
			s.auditor.Log(ctx, user.ID, EventLoginFailed, SeverityMedium, "login rejected: no active role", actx)
			return Grant{}, ErrAccountInactive
		}
		return Grant{}, err
	}

	session, err := s.sessions.Create(ctx, user.ID, user.UserType, assignment.ID, ip, ua)
	if err != nil {
		return Grant{}, err
	}
	grant, err := s.mint(ctx, session, assignment, true)
	if err != nil {
		return Grant{}, err
	}

	obs.IncLogin("ok")
	actx.Metadata = map[string]string{"session_id": session.ID, "role_template": assignment.RoleTemplate}
	s.auditor.Log(ctx, user.ID, EventLogin, SeverityLow, "login succeeded", actx)
	return grant, nil
}

// Refresh rotates a refresh token and mints a new access token from the
// existing session, preserving whatever role the session currently holds.
func (s *Service) Refresh(ctx context.Context, rawRefresh, ip, ua string) (Grant, error) {
	key := ip
	if !s.limiter.Allow(key) {
		obs.IncRefresh("throttled")
		return Grant{}, ErrThrottled
	}

	rawSucc, succ, err := s.refresh.Rotate(ctx, rawRefresh, ip, ua)
	if err != nil {
		switch {
		case errors.Is(err, ErrReuseDetected):
			obs.IncRefresh("reuse_detected")
		case errors.Is(err, ErrStoreUnavailable):
			obs.IncRefresh("store_error")
		default:
			obs.IncRefresh("invalid")
		}
		return Grant{}, err
	}

	session, err := s.sessions.GetActive(ctx, succ.SessionID)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			obs.IncRefresh("store_error")
			return Grant{}, err
		}
		obs.IncRefresh("session_revoked")
		if errors.Is(err, ErrNotFound) {
			return Grant{}, ErrSessionRevoked
		}
		return Grant{}, err
	}

	assignment := s.currentAssignment(ctx, session)
	grant, err := s.mintWith(session, assignment, TokenPair{
		RefreshToken:     rawSucc,
		RefreshExpiresAt: succ.ExpiresAt,
	})
	if err != nil {
		return Grant{}, err
	}

	s.limiter.Reset(key)
	obs.IncRefresh("ok")
	s.auditor.Log(ctx, session.UserID, EventTokenRefresh, SeverityLow, "refresh token rotated",
		AuditContext{IP: ip, UserAgent: ua, Metadata: map[string]string{"session_id": session.ID}})
	return grant, nil
}

// SwitchRole moves the session's current role to another of the user's own
// assignments and mints a new access token bound to the same session.
func (s *Service) SwitchRole(ctx context.Context, sessionID, targetRoleAssignmentID, ip, ua string) (Grant, error) {
	session, err := s.sessions.GetActive(ctx, sessionID)
	if err != nil {
		return Grant{}, err
	}

	assignments, err := s.store.RoleAssignments(ctx).ListByUser(ctx, session.UserID)
	if err != nil {
		return Grant{}, wrapStore(err)
	}
	var target *RoleAssignment
	for _, a := range assignments {
		if a.ID == targetRoleAssignmentID && a.IsActive {
			target = a
			break
		}
	}
	if target == nil {
		return Grant{}, ErrForbiddenRole
	}

	fromID := session.CurrentRoleAssignmentID
	if err := s.sessions.SetCurrentRole(ctx, session.ID, target.ID); err != nil {
		return Grant{}, err
	}
	session.CurrentRoleAssignmentID = target.ID

	grant, err := s.mintWith(session, target, TokenPair{})
	if err != nil {
		return Grant{}, err
	}

	s.auditor.Log(ctx, session.UserID, EventRoleSwitch, SeverityMedium, "session role switched",
		AuditContext{IP: ip, UserAgent: ua, Metadata: map[string]string{
			"session_id":           session.ID,
			"from_role_assignment": fromID,
			"to_role_assignment":   target.ID,
			"to_role_template":     target.RoleTemplate,
		}})
	return grant, nil
}

// Logout revokes one session and its refresh chain.
func (s *Service) Logout(ctx context.Context, sessionID, ip, ua string) error {
	session, err := s.sessions.GetActive(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, session.ID, ReasonLogout); err != nil {
		return err
	}
	s.auditor.Log(ctx, session.UserID, EventLogout, SeverityLow, "session revoked on logout",
		AuditContext{IP: ip, UserAgent: ua, Metadata: map[string]string{"session_id": session.ID}})
	return nil
}

// LogoutAll revokes every session of a user and all derived refresh chains.
func (s *Service) LogoutAll(ctx context.Context, userID, ip, ua string) error {
	if err := s.sessions.RevokeAll(ctx, userID, ReasonLogoutAll); err != nil {
		return err
	}
	s.auditor.Log(ctx, userID, EventLogoutAll, SeverityMedium, "all sessions revoked",
		AuditContext{IP: ip, UserAgent: ua})
	return nil
}

// VerifyAccess statelessly verifies an access token: signature and expiry
// only. Sensitive operations additionally consult CheckSession.
func (s *Service) VerifyAccess(raw string) (*AccessClaims, error) {
	return s.codec.Verify(raw)
}

// CheckSession is the authoritative liveness check behind the short-lived
// token: it sees revocations the stateless verification cannot.
func (s *Service) CheckSession(ctx context.Context, sessionID string) (*Session, error) {
	return s.sessions.GetActive(ctx, sessionID)
}

// Sessions lists the user's active sessions, most recent last.
func (s *Service) Sessions(ctx context.Context, userID string) ([]*Session, error) {
	return s.sessions.ListActive(ctx, userID)
}

// defaultAssignment picks the user's first active role assignment.
func (s *Service) defaultAssignment(ctx context.Context, userID string) (*RoleAssignment, error) {
	assignments, err := s.store.RoleAssignments(ctx).ListByUser(ctx, userID)
	if err != nil {
		return nil, wrapStore(err)
	}
	for _, a := range assignments {
		if a.IsActive {
			return a, nil
		}
	}
	return nil, ErrForbiddenRole
}

// currentAssignment loads the session's current role. A deleted assignment
// degrades to an empty role snapshot rather than failing the refresh.
func (s *Service) currentAssignment(ctx context.Context, session *Session) *RoleAssignment {
	a, err := s.store.RoleAssignments(ctx).Find(ctx, session.CurrentRoleAssignmentID)
	if err != nil {
		return &RoleAssignment{UserID: session.UserID, UserType: session.UserType}
	}
	return a
}

func (s *Service) mint(ctx context.Context, session *Session, assignment *RoleAssignment, withRefresh bool) (Grant, error) {
	pair := TokenPair{}
	if withRefresh {
		raw, rec, err := s.refresh.Issue(ctx, session.ID)
		if err != nil {
			return Grant{}, err
		}
		pair.RefreshToken = raw
		pair.RefreshExpiresAt = rec.ExpiresAt
	}
	return s.mintWith(session, assignment, pair)
}

func (s *Service) mintWith(session *Session, assignment *RoleAssignment, pair TokenPair) (Grant, error) {
	role := RoleClaim{
		UserType:     session.UserType,
		RoleTemplate: assignment.RoleTemplate,
		RestaurantID: assignment.RestaurantID,
	}
	permissions := s.resolver.ResolveList(assignment)
	access, exp, err := s.codec.Issue(session.UserID, session.ID, role, permissions)
	if err != nil {
		return Grant{}, err
	}
	pair.AccessToken = access
	pair.AccessExpiresAt = exp
	return Grant{
		SessionID:   session.ID,
		UserID:      session.UserID,
		UserType:    session.UserType,
		Role:        role,
		Permissions: permissions,
		TokenPair:   pair,
	}, nil
}
