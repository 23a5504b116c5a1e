package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"qrdine.org/internal/ids"
	"qrdine.org/internal/obs"
)

const defaultRefreshTTL = 14 * 24 * time.Hour

// RefreshService issues, rotates and theft-checks the long-lived refresh
// tokens backing each session. Tokens form a singly linked rotation chain;
// presenting an already-rotated or revoked link is treated as evidence of
// theft and revokes the whole chain through the session manager.
type RefreshService struct {
	store    Store
	sessions *SessionManager
	auditor  *Auditor
	ttl      time.Duration
	now      func() time.Time
}

// NewRefreshService constructs the service. The session manager handles the
// chain-wide revocation on reuse detection.
func NewRefreshService(store Store, sessions *SessionManager, auditor *Auditor, ttl time.Duration, now func() time.Time) *RefreshService {
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	if now == nil {
		now = time.Now
	}
	return &RefreshService{store: store, sessions: sessions, auditor: auditor, ttl: ttl, now: now}
}

// Issue creates the root token of a new chain for the session. The raw
// token is returned once and never persisted; only the secret's hash is.
func (s *RefreshService) Issue(ctx context.Context, sessionID string) (string, *RefreshToken, error) {
	raw, rec, err := s.generate(sessionID, "")
	if err != nil {
		return "", nil, err
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return "", nil, wrapStore(err)
	}
	return raw, rec, nil
}

// Validate resolves a raw token to its live record. An already-rotated or
// revoked record triggers the theft response before the error surfaces.
func (s *RefreshService) Validate(ctx context.Context, raw, ip, ua string) (*RefreshToken, error) {
	rec, err := s.lookup(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !rec.Live() {
		s.containBreach(ctx, rec, ip, ua)
		return nil, ErrReuseDetected
	}
	if !s.now().Before(rec.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return rec, nil
}

// Rotate exchanges a live token for its successor with a fresh sliding
// expiry. Marking the predecessor rotated and inserting the successor is
// one conditional store operation, so of two concurrent rotations exactly
// one wins; the loser is handled as a replay.
func (s *RefreshService) Rotate(ctx context.Context, raw, ip, ua string) (string, *RefreshToken, error) {
	rec, err := s.Validate(ctx, raw, ip, ua)
	if err != nil {
		return "", nil, err
	}
	rawSucc, succ, err := s.generate(rec.SessionID, rec.ID)
	if err != nil {
		return "", nil, err
	}
	ok, err := s.store.RefreshTokens(ctx).Rotate(ctx, rec.ID, succ)
	if err != nil {
		return "", nil, wrapStore(err)
	}
	if !ok {
		// A concurrent rotation already consumed this token.
		s.containBreach(ctx, rec, ip, ua)
		return "", nil, ErrReuseDetected
	}
	return rawSucc, succ, nil
}

func (s *RefreshService) lookup(ctx context.Context, raw string) (*RefreshToken, error) {
	id, secret, err := splitRefreshToken(raw)
	if err != nil {
		return nil, ErrNotFound
	}
	rec, err := s.store.RefreshTokens(ctx).Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, wrapStore(err)
	}
	if !matchTokenHash(rec.TokenHash, secret) {
		return nil, ErrNotFound
	}
	return rec, nil
}

// containBreach revokes the session and with it the entire chain, forcing
// re-authentication. Security-critical, so it is never silent: a
// high-severity audit event and a metric accompany every detection.
func (s *RefreshService) containBreach(ctx context.Context, rec *RefreshToken, ip, ua string) {
	obs.IncReuseDetected()

	actor := ""
	if sess, err := s.store.Sessions(ctx).Find(ctx, rec.SessionID); err == nil {
		actor = sess.UserID
	}
	_ = s.sessions.Revoke(ctx, rec.SessionID, ReasonTokenReuse)
	s.auditor.Log(ctx, actor, EventReuseDetected, SeverityHigh,
		"rotated or revoked refresh token replayed; chain revoked",
		AuditContext{IP: ip, UserAgent: ua, Metadata: map[string]string{
			"session_id": rec.SessionID,
			"token_id":   rec.ID,
		}})
}

func (s *RefreshService) generate(sessionID, predecessorID string) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	sum := sha256.Sum256([]byte(secret))
	now := s.now().UTC()
	rec := &RefreshToken{
		ID:            ids.New(),
		TokenHash:     hex.EncodeToString(sum[:]),
		SessionID:     sessionID,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.ttl),
		RotatedFromID: predecessorID,
	}
	return rec.ID + "." + secret, rec, nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func matchTokenHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
