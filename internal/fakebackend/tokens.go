package fakebackend

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const refreshTokenBytes = 32

// accessClaims are the claims PostgREST reads from the access token.
type accessClaims struct {
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	HoldingID *int64 `json:"holding_id"`
	jwt.RegisteredClaims
}

func (c *accessClaims) userID() int64 {
	id, _ := strconv.ParseInt(c.Subject, 10, 64)
	return id
}

func (s *Server) createAccessToken(userID int64, sess *session) (string, time.Time, error) {
	now := s.nowFunc()
	expiresAt := now.Add(s.accessTTL).Truncate(time.Second)
	claims := accessClaims{
		SessionID: sess.id,
		Role:      "authenticated",
		HoldingID: sess.holdingID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "[Server.createAccessToken] sign")
	}
	return signed, expiresAt, nil
}

func (s *Server) parseAccessToken(raw string) (*accessClaims, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.nowFunc), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func newRefreshToken() (string, error) {
	tokenBytes := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "failed to generate random bytes")
	}
	return hex.EncodeToString(tokenBytes), nil
}

type session struct {
	id               string
	userID           int64
	holdingID        *int64
	refreshToken     string
	refreshExpiresAt time.Time
	revoked          bool
}

type sessionRepo struct {
	sessions  map[string]*session
	byRefresh map[string]string // refresh token to session ID
	lock      sync.RWMutex
}

func newSessionRepo() *sessionRepo {
	return &sessionRepo{
		sessions:  make(map[string]*session),
		byRefresh: make(map[string]string),
	}
}

func (r *sessionRepo) create(sess *session) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.sessions[sess.id] = sess
	r.byRefresh[sess.refreshToken] = sess.id
}

func (r *sessionRepo) get(sid string) (session, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	sess, ok := r.sessions[sid]
	if !ok {
		return session{}, false
	}
	return *sess, true
}

func (r *sessionRepo) getByRefresh(refreshToken string) (session, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	sid, ok := r.byRefresh[refreshToken]
	if !ok {
		return session{}, false
	}
	return *r.sessions[sid], true
}

// rotate swaps the session's refresh token. The old token stops working.
func (r *sessionRepo) rotate(sid, refreshToken string, expiresAt time.Time) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	sess, ok := r.sessions[sid]
	if !ok {
		return false
	}
	delete(r.byRefresh, sess.refreshToken)
	sess.refreshToken = refreshToken
	sess.refreshExpiresAt = expiresAt
	r.byRefresh[refreshToken] = sid
	return true
}

func (r *sessionRepo) setHolding(sid string, holdingID int64) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	sess, ok := r.sessions[sid]
	if !ok {
		return false
	}
	sess.holdingID = &holdingID
	return true
}

func (r *sessionRepo) delete(sid string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if sess, ok := r.sessions[sid]; ok {
		delete(r.byRefresh, sess.refreshToken)
		delete(r.sessions, sid)
	}
}

func (r *sessionRepo) revokeUser(userID int64) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	n := 0
	for _, sess := range r.sessions {
		if sess.userID == userID && !sess.revoked {
			sess.revoked = true
			n++
		}
	}
	return n
}
