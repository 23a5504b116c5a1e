package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"qrdine.org/internal/audit"
	"qrdine.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type switchRoleRequest struct {
	RoleAssignmentID string `json:"role_assignment_id"`
}

type grantResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitzero"`
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
	UserType         string    `json:"user_type"`
	RoleTemplate     string    `json:"role_template"`
	RestaurantID     string    `json:"restaurant_id,omitempty"`
	Permissions      []string  `json:"permissions"`
}

func grantPayload(g auth.Grant) grantResponse {
	return grantResponse{
		AccessToken:      g.AccessToken,
		AccessExpiresAt:  g.AccessExpiresAt,
		RefreshToken:     g.RefreshToken,
		RefreshExpiresAt: g.RefreshExpiresAt,
		SessionID:        g.SessionID,
		UserID:           g.UserID,
		UserType:         string(g.UserType),
		RoleTemplate:     g.Role.RoleTemplate,
		RestaurantID:     g.Role.RestaurantID,
		Permissions:      g.Permissions,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	grant, err := a.auth.Authenticate(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"session_id": grant.SessionID,
		"user_type":  string(grant.UserType),
	})
	writeJSON(w, http.StatusOK, grantPayload(grant))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	grant, err := a.auth.Refresh(r.Context(), req.RefreshToken, clientIP(r), r.UserAgent())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"session_id": grant.SessionID,
	})
	writeJSON(w, http.StatusOK, grantPayload(grant))
}

func (a *API) handleSwitchRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, authFailedMessage)
		return
	}
	var req switchRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RoleAssignmentID) == "" {
		writeError(w, r, http.StatusBadRequest, "role_assignment_id is required")
		return
	}

	grant, err := a.auth.SwitchRole(r.Context(), claims.SessionID, req.RoleAssignmentID, clientIP(r), r.UserAgent())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.role_switch", map[string]any{
		"session_id":         grant.SessionID,
		"role_assignment_id": req.RoleAssignmentID,
	})
	writeJSON(w, http.StatusOK, grantPayload(grant))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, authFailedMessage)
		return
	}

	if err := a.auth.Logout(r.Context(), claims.SessionID, clientIP(r), r.UserAgent()); err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"session_id": claims.SessionID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, authFailedMessage)
		return
	}

	// Logout-all is a sensitive operation: the short-lived token is not
	// enough, the session itself must still be live.
	if _, err := a.auth.CheckSession(r.Context(), claims.SessionID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	if err := a.auth.LogoutAll(r.Context(), claims.UserID(), clientIP(r), r.UserAgent()); err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.logout_all", map[string]any{
		"user_id": claims.UserID(),
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out_all"})
}

type sessionResponse struct {
	SessionID        string    `json:"session_id"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	IPAddress        string    `json:"ip_address,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
	Current          bool      `json:"current"`
	RoleAssignmentID string    `json:"role_assignment_id"`
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, authFailedMessage)
		return
	}

	sessions, err := a.auth.Sessions(r.Context(), claims.UserID())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			SessionID:        s.ID,
			IssuedAt:         s.IssuedAt,
			ExpiresAt:        s.ExpiresAt,
			IPAddress:        s.IPAddress,
			UserAgent:        s.UserAgent,
			Current:          s.ID == claims.SessionID,
			RoleAssignmentID: s.CurrentRoleAssignmentID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// authFailedMessage is the uniform client-visible message for every
// authentication failure. Internal distinctions feed logs and metrics
// only, never the response body.
const authFailedMessage = "invalid or expired session, please log in again"

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrThrottled):
		w.Header().Set("Retry-After", "60")
		writeError(w, r, http.StatusTooManyRequests, "too many attempts")
	case errors.Is(err, auth.ErrForbiddenRole):
		writeError(w, r, http.StatusForbidden, "role not available")
	case errors.Is(err, auth.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "temporarily unavailable, retry later")
	default:
		writeError(w, r, http.StatusUnauthorized, authFailedMessage)
	}
}
