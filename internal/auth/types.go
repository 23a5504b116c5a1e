package auth

import "time"

// UserType discriminates the identity variants sharing the auth subsystem.
// The core never branches on the variant beyond carrying the tag through
// tokens and audit events.
type UserType string

const (
	UserTypePlatformAdmin   UserType = "platform_admin"
	UserTypeRestaurantOwner UserType = "restaurant_owner"
	UserTypeStaff           UserType = "staff"
)

// User statuses.
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// User is the minimal identity record the auth core needs. Variant-specific
// profile data lives with the owning feature, not here.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	UserType     UserType
	Status       string
	Locked       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RoleAssignment grants a user a role template, optionally scoped to one
// restaurant, with additive custom permission overrides. A user may hold
// several assignments; the full list defines the roles available for
// in-session switching.
type RoleAssignment struct {
	ID                string
	UserID            string
	UserType          UserType
	RoleTemplate      string
	RestaurantID      string // empty for platform-scope roles
	CustomPermissions []string
	IsActive          bool
	CreatedAt         time.Time
}

// Session is the server-side record of one authenticated login. Role
// switching mutates CurrentRoleAssignmentID in place; sessions are revoked,
// never deleted, so the audit trail stays intact.
type Session struct {
	ID                      string
	UserID                  string
	UserType                UserType
	CurrentRoleAssignmentID string
	IssuedAt                time.Time
	ExpiresAt               time.Time
	IPAddress               string
	UserAgent               string
	Revoked                 bool
	RevokedAt               time.Time
	RevokedReason           string
}

// RefreshToken is one link in a session's rotation chain. Only the SHA-256
// hash of the secret is persisted; rotation marks the record rotated and
// links the successor so replays of stale links are detectable.
type RefreshToken struct {
	ID            string
	TokenHash     string
	SessionID     string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	RotatedFromID string
	RotatedToID   string
	Rotated       bool
	Revoked       bool
	RevokedReason string
}

// Live reports whether the token is still the chain head.
func (t *RefreshToken) Live() bool {
	return !t.Rotated && !t.Revoked
}

// Severity classifies audit events.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Audit event types emitted by the auth core.
const (
	EventLogin         = "login"
	EventLoginFailed   = "login_failed"
	EventLogout        = "logout"
	EventLogoutAll     = "logout_all_sessions"
	EventTokenRefresh  = "token_refreshed"
	EventRoleSwitch    = "role_switch"
	EventReuseDetected = "token_reuse_detected"
)

// AuditEvent is an append-only record of one security-relevant action.
type AuditEvent struct {
	ID          string
	ActorUserID string
	EventType   string
	Severity    Severity
	Message     string
	IPAddress   string
	UserAgent   string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// Revocation reasons written to sessions and refresh chains.
const (
	ReasonLogout        = "logout"
	ReasonLogoutAll     = "logout_all_sessions"
	ReasonTokenReuse    = "token_reuse_detected"
	ReasonRotated       = "rotated"
	ReasonAdminRevoked  = "admin_revoked"
	ReasonSessionClosed = "session_revoked"
)
