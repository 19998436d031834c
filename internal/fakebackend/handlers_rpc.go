package fakebackend

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-admin-client/internal/utils"
	"github.com/rs/zerolog/log"
)

type loginParams struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	UserAgent string `json:"user_agent"`
}

type refreshParams struct {
	RefreshToken string `json:"refresh_token"`
	UserAgent    string `json:"user_agent"`
}

type switchHoldingParams struct {
	HoldingID int64 `json:"holding_id"`
}

type tokenResponse struct {
	UserID           int64  `json:"user_id"`
	RoleCode         string `json:"role_code"`
	HoldingID        *int64 `json:"holding_id"`
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresAt        string `json:"expires_at"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresAt string `json:"refresh_expires_at"`
}

type identityResponse struct {
	UserID       int64    `json:"user_id"`
	SessionID    string   `json:"sid"`
	RoleCode     string   `json:"role_code"`
	HoldingID    *int64   `json:"holding_id"`
	CompanyID    *int64   `json:"company_id"`
	BranchID     *int64   `json:"branch_id"`
	Capabilities []string `json:"capabilities"`
}

type switchHoldingResponse struct {
	UserID      int64  `json:"user_id"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}

// loginHandler answers with the v2 success envelope.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var params loginParams
	if err := decodeParams(r, &params); err != nil {
		writeNativeError(w, http.StatusBadRequest, "PGRST102", "Invalid request body", err.Error(), "")
		return
	}

	user, ok := s.users.authenticate(params.Username, params.Password)
	if !ok {
		writeDomainError(w, http.StatusUnauthorized, "auth.invalid_credentials", "Invalid username or password", "errors.auth.invalid_credentials")
		return
	}

	refreshToken, err := newRefreshToken()
	if err != nil {
		log.Err(err).Msg("creating refresh token")
		writeNativeError(w, http.StatusInternalServerError, "XX000", "internal error", "", "")
		return
	}
	sess := &session{
		id:               uuid.NewString(),
		userID:           user.ID,
		holdingID:        user.HoldingID,
		refreshToken:     refreshToken,
		refreshExpiresAt: s.nowFunc().Add(s.refreshTTL).Truncate(time.Second),
	}
	s.sessions.create(sess)

	resp, ok := s.tokenResponse(w, user, sess)
	if !ok {
		return
	}
	log.Debug().Int64("user_id", user.ID).Int64("holding_id", utils.Value(sess.holdingID)).Str("sid", sess.id).Str("user_agent", params.UserAgent).Msg("fakebackend login")
	writeSuccess(w, resp)
}

// refreshHandler rotates the refresh token and answers in the legacy
// single-row array shape.
func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	var params refreshParams
	if err := decodeParams(r, &params); err != nil || params.RefreshToken == "" {
		writeFlatError(w, http.StatusBadRequest, "auth.token_missing", "refresh_token is required")
		return
	}

	sess, ok := s.sessions.getByRefresh(params.RefreshToken)
	if !ok || sess.revoked {
		writeFlatError(w, http.StatusUnauthorized, "auth.token_invalid", "Invalid refresh token")
		return
	}
	if !s.nowFunc().Before(sess.refreshExpiresAt) {
		s.sessions.delete(sess.id)
		writeFlatError(w, http.StatusUnauthorized, "auth.session_expired", "Session expired")
		return
	}
	user, ok := s.users.get(sess.userID)
	if !ok {
		writeFlatError(w, http.StatusUnauthorized, "auth.token_invalid", "Invalid refresh token")
		return
	}

	next, err := newRefreshToken()
	if err != nil {
		log.Err(err).Msg("creating refresh token")
		writeNativeError(w, http.StatusInternalServerError, "XX000", "internal error", "", "")
		return
	}
	expiresAt := s.nowFunc().Add(s.refreshTTL).Truncate(time.Second)
	if !s.sessions.rotate(sess.id, next, expiresAt) {
		writeFlatError(w, http.StatusUnauthorized, "auth.token_invalid", "Invalid refresh token")
		return
	}
	sess.refreshToken = next
	sess.refreshExpiresAt = expiresAt

	resp, ok := s.tokenResponse(w, user, &sess)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, []tokenResponse{resp})
}

func (s *Server) tokenResponse(w http.ResponseWriter, user User, sess *session) (tokenResponse, bool) {
	accessToken, expiresAt, err := s.createAccessToken(user.ID, sess)
	if err != nil {
		log.Err(err).Msg("creating access token")
		writeNativeError(w, http.StatusInternalServerError, "XX000", "internal error", "", "")
		return tokenResponse{}, false
	}
	return tokenResponse{
		UserID:           user.ID,
		RoleCode:         user.RoleCode,
		HoldingID:        sess.holdingID,
		AccessToken:      accessToken,
		TokenType:        "bearer",
		ExpiresAt:        expiresAt.UTC().Format(time.RFC3339),
		RefreshToken:     sess.refreshToken,
		RefreshExpiresAt: sess.refreshExpiresAt.UTC().Format(time.RFC3339),
	}, true
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	s.sessions.delete(claims.SessionID)
	w.WriteHeader(http.StatusNoContent)
}

// meHandler reports revoked sessions in-band with HTTP 200.
func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	sess, ok := s.liveSession(w, claims)
	if !ok {
		return
	}
	user, ok := s.users.get(claims.userID())
	if !ok {
		writeDomainError(w, http.StatusOK, "auth.unauthenticated", "Unknown user", "")
		return
	}

	identity := identityResponse{
		UserID:       user.ID,
		SessionID:    sess.id,
		RoleCode:     user.RoleCode,
		HoldingID:    sess.holdingID,
		Capabilities: []string{},
	}
	if sess.holdingID != nil {
		identity.CompanyID = user.CompanyID
		identity.BranchID = user.BranchID
		identity.Capabilities = user.Capabilities
	}
	writeSuccess(w, identity)
}

// switchHoldingHandler answers with a bare object, as the older RPCs do.
func (s *Server) switchHoldingHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	sess, ok := s.liveSession(w, claims)
	if !ok {
		return
	}

	var params switchHoldingParams
	if err := decodeParams(r, &params); err != nil {
		writeNativeError(w, http.StatusBadRequest, "PGRST102", "Invalid request body", err.Error(), "")
		return
	}
	user, ok := s.users.get(sess.userID)
	if !ok || !user.HasHolding(params.HoldingID) {
		writeDomainError(w, http.StatusForbidden, "holding.forbidden", "You do not have access to this holding", "errors.holding.forbidden")
		return
	}

	s.sessions.setHolding(sess.id, params.HoldingID)
	holdingID := params.HoldingID
	sess.holdingID = &holdingID

	accessToken, expiresAt, err := s.createAccessToken(user.ID, &sess)
	if err != nil {
		log.Err(err).Msg("creating access token")
		writeNativeError(w, http.StatusInternalServerError, "XX000", "internal error", "", "")
		return
	}
	writeJSON(w, http.StatusOK, switchHoldingResponse{
		UserID:      user.ID,
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) liveSession(w http.ResponseWriter, claims *accessClaims) (session, bool) {
	sess, ok := s.sessions.get(claims.SessionID)
	if !ok || sess.revoked {
		writeDomainError(w, http.StatusOK, "auth.session_revoked", "Session has been revoked", "errors.auth.session_revoked")
		return session{}, false
	}
	return sess, true
}
