package token

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	ierrors "github.com/jrsteele09/go-admin-client/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultLeadWindow is how long before expiry an access token is refreshed.
const DefaultLeadWindow = 60 * time.Second

// timeLayouts are tried in order when reading stored expiry values.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Store reads and writes the token pair through a Storage backend. Writes made
// through one Store are serialized; the conditional writes compare against the
// stored refresh token under the same lock.
type Store struct {
	storage    Storage
	leadWindow time.Duration
	nowFunc    func() time.Time

	mu sync.Mutex
}

type StoreOption func(*Store)

func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// WithLeadWindow overrides DefaultLeadWindow.
func WithLeadWindow(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.leadWindow = d
		}
	}
}

func NewStore(storage Storage, opts ...StoreOption) *Store {
	s := &Store{
		storage:    storage,
		leadWindow: DefaultLeadWindow,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccessToken returns the stored access token, or "" when none is usable.
func (s *Store) AccessToken() string {
	return s.get(KeyAccessToken)
}

func (s *Store) RefreshToken() string {
	return s.get(KeyRefreshToken)
}

func (s *Store) UserID() string {
	return s.get(KeyUserID)
}

// ExpiresAt is the access token expiry. ok is false when it is missing or unparsable.
func (s *Store) ExpiresAt() (time.Time, bool) {
	return s.getTime(KeyExpiresAt)
}

func (s *Store) RefreshExpiresAt() (time.Time, bool) {
	return s.getTime(KeyRefreshExpiresAt)
}

// IsTokenExpired is true when the expiry is unknown or has passed.
func (s *Store) IsTokenExpired() bool {
	expiresAt, ok := s.ExpiresAt()
	return !ok || !s.nowFunc().Before(expiresAt)
}

// ShouldRefreshToken is true while the access token is still valid but within
// the lead window of its expiry. It is false for expired or unknown expiries;
// use IsTokenExpired for those.
func (s *Store) ShouldRefreshToken() bool {
	expiresAt, ok := s.ExpiresAt()
	if !ok {
		return false
	}
	remaining := expiresAt.Sub(s.nowFunc())
	return remaining > 0 && remaining <= s.leadWindow
}

// IsRefreshTokenExpired applies the same unknown-means-expired rule to the refresh token.
func (s *Store) IsRefreshTokenExpired() bool {
	expiresAt, ok := s.RefreshExpiresAt()
	return !ok || !s.nowFunc().Before(expiresAt)
}

// Pair returns the stored pair. ok is false when either token is missing.
func (s *Store) Pair() (Pair, bool) {
	p := Pair{
		AccessToken:  s.AccessToken(),
		RefreshToken: s.RefreshToken(),
		UserID:       s.UserID(),
	}
	p.AccessExpiresAt, _ = s.ExpiresAt()
	p.RefreshExpiresAt, _ = s.RefreshExpiresAt()
	return p, p.AccessToken != "" && p.RefreshToken != ""
}

// StoreTokens persists a full pair, replacing whatever was stored. When the
// access expiry is not given it is read from the token's own exp claim.
func (s *Store) StoreTokens(p Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeTokensLocked(p)
}

// StoreTokensIfRefresh persists p only while the stored refresh token is still
// expected. stored is false when the tokens were replaced or cleared since
// expected was read.
func (s *Store) StoreTokensIfRefresh(expected string, p Pair) (stored bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.get(KeyRefreshToken) != expected {
		return false, nil
	}
	if err := s.storeTokensLocked(p); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) storeTokensLocked(p Pair) error {
	if isUnset(p.AccessToken) || isUnset(p.RefreshToken) {
		return errors.Wrap(ierrors.ErrInvalidTokenPair, "[Store.StoreTokens] access and refresh tokens are required")
	}
	if p.AccessExpiresAt.IsZero() {
		p.AccessExpiresAt = ExpiryFromJWT(p.AccessToken)
	}

	values := map[string]string{
		KeyAccessToken:      p.AccessToken,
		KeyRefreshToken:     p.RefreshToken,
		KeyExpiresAt:        formatTime(p.AccessExpiresAt),
		KeyRefreshExpiresAt: formatTime(p.RefreshExpiresAt),
		KeyUserID:           p.UserID,
	}
	if err := s.storage.Set(values); err != nil {
		return errors.Wrap(err, "[Store.StoreTokens] write tokens")
	}
	return nil
}

// StoreAccessToken replaces only the access token and its expiry. The refresh
// token is left untouched.
func (s *Store) StoreAccessToken(accessToken string, expiresAt time.Time) error {
	if isUnset(accessToken) {
		return errors.Wrap(ierrors.ErrNoAccessToken, "[Store.StoreAccessToken]")
	}
	if expiresAt.IsZero() {
		expiresAt = ExpiryFromJWT(accessToken)
	}
	values := map[string]string{
		KeyAccessToken: accessToken,
		KeyExpiresAt:   formatTime(expiresAt),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Set(values); err != nil {
		return errors.Wrap(err, "[Store.StoreAccessToken] write token")
	}
	return nil
}

// Clear removes every persisted key together.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked()
}

// ClearIfRefresh clears the tokens only while the stored refresh token is
// still expected.
func (s *Store) ClearIfRefresh(expected string) (cleared bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.get(KeyRefreshToken) != expected {
		return false, nil
	}
	if err := s.clearLocked(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) clearLocked() error {
	if err := s.storage.Remove(Keys...); err != nil {
		return errors.Wrap(err, "[Store.Clear] remove tokens")
	}
	return nil
}

func (s *Store) get(key string) string {
	value, ok, err := s.storage.Get(key)
	if err != nil {
		log.Err(err).Str("key", key).Msg("reading token storage")
		return ""
	}
	if !ok || isUnset(value) {
		return ""
	}
	return value
}

func (s *Store) getTime(key string) (time.Time, bool) {
	value := s.get(key)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ExpiryFromJWT reads the exp claim without verifying the signature. It
// returns the zero time for opaque or malformed tokens.
func ExpiryFromJWT(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// isUnset guards against literal "undefined"/"null" strings that older clients
// wrote into storage.
func isUnset(value string) bool {
	switch strings.TrimSpace(value) {
	case "", "undefined", "null":
		return true
	}
	return false
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
