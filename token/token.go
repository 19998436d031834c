// Package token persists the access/refresh token pair and answers questions
// about its validity. The pair always lives in a Storage backend so any part of
// the process (or another process sharing the backend) can rebuild it.
package token

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Storage keys. They are the only core state that is persisted.
const (
	KeyAccessToken      = "access_token"
	KeyRefreshToken     = "refresh_token"
	KeyExpiresAt        = "expires_at"
	KeyRefreshExpiresAt = "refresh_expires_at"
	KeyUserID           = "user_id"
)

// Keys lists every persisted key.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyExpiresAt, KeyRefreshExpiresAt, KeyUserID}

// Storage is a durable key/value store scoped to one backend origin.
type Storage interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) (string, bool, error)
	// Set writes all values in one step. An empty value removes the key.
	Set(values map[string]string) error
	// Remove deletes all keys in one step.
	Remove(keys ...string) error
}

// Pair is the token pair returned by login and refresh.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	UserID           string
}

// OAuth2Token converts the pair for use with golang.org/x/oauth2 clients.
func (p Pair) OAuth2Token() *oauth2.Token {
	tokenType := p.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  p.AccessToken,
		TokenType:    tokenType,
		RefreshToken: p.RefreshToken,
		Expiry:       p.AccessExpiresAt,
	}
}

var unsafeOriginChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// OriginName turns a backend URL into a name usable as a file name or key
// prefix, so tokens for different backends never collide.
func OriginName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.Trim(unsafeOriginChars.ReplaceAllString(rawURL, "_"), "_")
	}
	name := u.Hostname()
	if port := u.Port(); port != "" {
		name += "_" + port
	}
	return unsafeOriginChars.ReplaceAllString(name, "_")
}
