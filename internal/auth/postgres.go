package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore { return &userStore{db: s.db} }
func (s *PGStore) RoleAssignments(context.Context) RoleAssignmentStore {
	return &roleAssignmentStore{db: s.db}
}
func (s *PGStore) Sessions(context.Context) SessionStore { return &sessionStore{db: s.db} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}
func (s *PGStore) Audit(context.Context) AuditStore { return &auditStore{db: s.db} }

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, user_type, status, locked, created_at, updated_at
		 from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, user_type, status, locked, created_at, updated_at
		 from users where email=$1`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.UserType, &u.Status, &u.Locked, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Role assignment store ----------------------------------------------------
type roleAssignmentStore struct{ db *sql.DB }

func (s *roleAssignmentStore) Find(ctx context.Context, id string) (*RoleAssignment, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, user_type, role_template, restaurant_id, custom_permissions, is_active, created_at
		 from role_assignments where id=$1`, id)
	var (
		a            RoleAssignment
		restaurantID sql.NullString
		custom       []byte
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.UserType, &a.RoleTemplate, &restaurantID, &custom, &a.IsActive, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.RestaurantID = restaurantID.String
	_ = json.Unmarshal(custom, &a.CustomPermissions)
	return &a, nil
}

func (s *roleAssignmentStore) ListByUser(ctx context.Context, userID string) ([]*RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, user_type, role_template, restaurant_id, custom_permissions, is_active, created_at
		 from role_assignments where user_id=$1 order by created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*RoleAssignment
	for rows.Next() {
		var (
			a            RoleAssignment
			restaurantID sql.NullString
			custom       []byte
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.UserType, &a.RoleTemplate, &restaurantID, &custom, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.RestaurantID = restaurantID.String
		_ = json.Unmarshal(custom, &a.CustomPermissions)
		result = append(result, &a)
	}
	return result, rows.Err()
}

// Session store ------------------------------------------------------------
type sessionStore struct{ db *sql.DB }

func (s *sessionStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, user_id, user_type, current_role_assignment_id, issued_at, expires_at, ip_address, user_agent)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		sess.ID, sess.UserID, sess.UserType, sess.CurrentRoleAssignmentID,
		sess.IssuedAt, sess.ExpiresAt, sess.IPAddress, sess.UserAgent,
	)
	return err
}

func (s *sessionStore) Find(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, user_type, current_role_assignment_id, issued_at, expires_at,
		        ip_address, user_agent, revoked, revoked_at, revoked_reason
		 from sessions where id=$1`, id)
	var (
		sess      Session
		revokedAt sql.NullTime
		reason    sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.UserType, &sess.CurrentRoleAssignmentID,
		&sess.IssuedAt, &sess.ExpiresAt, &sess.IPAddress, &sess.UserAgent,
		&sess.Revoked, &revokedAt, &reason); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sess.RevokedAt = revokedAt.Time
	sess.RevokedReason = reason.String
	return &sess, nil
}

func (s *sessionStore) SetCurrentRole(ctx context.Context, sessionID, roleAssignmentID string) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set current_role_assignment_id=$2 where id=$1 and revoked=false`,
		sessionID, roleAssignmentID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sessionStore) Revoke(ctx context.Context, sessionID, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set revoked=true, revoked_at=$2, revoked_reason=$3 where id=$1 and revoked=false`,
		sessionID, at, reason)
	return err
}

func (s *sessionStore) RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set revoked=true, revoked_at=$2, revoked_reason=$3 where user_id=$1 and revoked=false`,
		userID, at, reason)
	return err
}

func (s *sessionStore) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, user_type, current_role_assignment_id, issued_at, expires_at,
		        ip_address, user_agent, revoked, revoked_at, revoked_reason
		 from sessions where user_id=$1 and revoked=false and expires_at > $2 order by issued_at`,
		userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Session
	for rows.Next() {
		var (
			sess      Session
			revokedAt sql.NullTime
			reason    sql.NullString
		)
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.UserType, &sess.CurrentRoleAssignmentID,
			&sess.IssuedAt, &sess.ExpiresAt, &sess.IPAddress, &sess.UserAgent,
			&sess.Revoked, &revokedAt, &reason); err != nil {
			return nil, err
		}
		sess.RevokedAt = revokedAt.Time
		sess.RevokedReason = reason.String
		result = append(result, &sess)
	}
	return result, rows.Err()
}

// Refresh token store ------------------------------------------------------
type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, token_hash, session_id, issued_at, expires_at, rotated_from_id)
		 values($1,$2,$3,$4,$5,nullif($6,''))`,
		tok.ID, tok.TokenHash, tok.SessionID, tok.IssuedAt, tok.ExpiresAt, tok.RotatedFromID,
	)
	return err
}

func (s *refreshTokenStore) Find(ctx context.Context, id string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, token_hash, session_id, issued_at, expires_at,
		        coalesce(rotated_from_id,''), coalesce(rotated_to_id,''), rotated, revoked, coalesce(revoked_reason,'')
		 from refresh_tokens where id=$1`, id)
	var tok RefreshToken
	if err := row.Scan(&tok.ID, &tok.TokenHash, &tok.SessionID, &tok.IssuedAt, &tok.ExpiresAt,
		&tok.RotatedFromID, &tok.RotatedToID, &tok.Rotated, &tok.Revoked, &tok.RevokedReason); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

// Rotate is the race-sensitive step of the chain: the conditional update
// and the successor insert commit together or not at all. Two concurrent
// rotations of one token cannot both pass the rowcount check.
func (s *refreshTokenStore) Rotate(ctx context.Context, predecessorID string, successor *RefreshToken) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update refresh_tokens set rotated=true, rotated_to_id=$2
		 where id=$1 and rotated=false and revoked=false`,
		predecessorID, successor.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`insert into refresh_tokens(id, token_hash, session_id, issued_at, expires_at, rotated_from_id)
		 values($1,$2,$3,$4,$5,$6)`,
		successor.ID, successor.TokenHash, successor.SessionID,
		successor.IssuedAt, successor.ExpiresAt, predecessorID,
	); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *refreshTokenStore) RevokeChain(ctx context.Context, sessionID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true, revoked_reason=$2 where session_id=$1 and revoked=false`,
		sessionID, reason)
	return err
}

func (s *refreshTokenStore) RevokeAllForUser(ctx context.Context, userID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true, revoked_reason=$2
		 where revoked=false and session_id in (select id from sessions where user_id=$1)`,
		userID, reason)
	return err
}

// Audit store --------------------------------------------------------------
type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, event *AuditEvent) error {
	meta, _ := json.Marshal(event.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_events(id, actor_user_id, event_type, severity, message, ip_address, user_agent, metadata, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		event.ID, event.ActorUserID, event.EventType, event.Severity, event.Message,
		event.IPAddress, event.UserAgent, meta, event.CreatedAt,
	)
	return err
}
