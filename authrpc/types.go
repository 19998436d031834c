package authrpc

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-admin-client/token"
	"github.com/pkg/errors"
)

// ID is a backend identifier. The backend sends ids as numbers or strings
// depending on the column type, so both are accepted.
type ID string

func (id ID) String() string {
	return string(id)
}

func (id ID) IsZero() bool {
	return id == ""
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(err, "[ID.UnmarshalJSON]")
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Wrapf(err, "[ID.UnmarshalJSON] %s is neither string nor number", data)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes integer ids as numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Timestamp accepts RFC 3339, PostgreSQL text timestamps and unix seconds.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}
	if len(data) > 0 && data[0] != '"' {
		secs, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return errors.Wrapf(err, "[Timestamp.UnmarshalJSON] %s", data)
		}
		ts.Time = time.Unix(secs, 0).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "[Timestamp.UnmarshalJSON]")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		ts.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t
			return nil
		}
	}
	return errors.Errorf("[Timestamp.UnmarshalJSON] unrecognized timestamp %q", s)
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339Nano))
}

// TokenResponse is returned by login and refresh_token.
type TokenResponse struct {
	UserID           ID        `json:"user_id"`
	RoleCode         string    `json:"role_code"`
	HoldingID        *ID       `json:"holding_id"`
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        Timestamp `json:"expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt Timestamp `json:"refresh_expires_at"`
}

// Pair extracts the token pair to persist.
func (r TokenResponse) Pair() token.Pair {
	return token.Pair{
		AccessToken:      r.AccessToken,
		RefreshToken:     r.RefreshToken,
		TokenType:        r.TokenType,
		AccessExpiresAt:  r.ExpiresAt.Time,
		RefreshExpiresAt: r.RefreshExpiresAt.Time,
		UserID:           r.UserID.String(),
	}
}

// Identity is the current user as reported by me.
type Identity struct {
	UserID       ID       `json:"user_id"`
	SessionID    string   `json:"sid"`
	RoleCode     string   `json:"role_code"`
	HoldingID    *ID      `json:"holding_id"`
	CompanyID    *ID      `json:"company_id"`
	BranchID     *ID      `json:"branch_id"`
	Capabilities []string `json:"capabilities"`
}

// SwitchHoldingResponse carries an access token scoped to the chosen holding.
// The refresh token is unchanged by a switch.
type SwitchHoldingResponse struct {
	UserID      ID        `json:"user_id"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   Timestamp `json:"expires_at"`
}
