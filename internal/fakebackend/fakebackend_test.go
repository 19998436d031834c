package fakebackend_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-admin-client/internal/fakebackend"
	"github.com/stretchr/testify/require"
)

const (
	testUserID   = int64(7)
	testUsername = "alice"
	testPassword = "s3cret"
)

type clock struct {
	now  time.Time
	lock sync.Mutex
}

func (c *clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

type testFixture struct {
	backend *fakebackend.Server
	server  *httptest.Server
	clock   *clock
}

func setupTestFixture(t *testing.T, opts ...fakebackend.Option) *testFixture {
	t.Helper()
	f := &testFixture{clock: &clock{now: time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)}}
	opts = append([]fakebackend.Option{fakebackend.WithNowFunc(f.clock.Now)}, opts...)
	f.backend = fakebackend.New(opts...)

	holding := int64(1)
	company := int64(10)
	require.NoError(t, f.backend.AddUser(fakebackend.User{
		ID:           testUserID,
		Username:     testUsername,
		RoleCode:     "admin",
		HoldingID:    &holding,
		CompanyID:    &company,
		Holdings:     []int64{2},
		Capabilities: []string{"devices.read"},
	}, testPassword))

	f.server = httptest.NewServer(f.backend)
	t.Cleanup(f.server.Close)
	return f
}

type result struct {
	status int
	header http.Header
	body   map[string]any
	rows   []map[string]any
}

func (f *testFixture) do(t *testing.T, method, path, token string, body any, headers ...string) result {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	res := result{status: resp.StatusCode, header: resp.Header}
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0:
	case trimmed[0] == '[':
		require.NoError(t, json.Unmarshal(trimmed, &res.rows))
	default:
		require.NoError(t, json.Unmarshal(trimmed, &res.body))
	}
	return res
}

func (f *testFixture) login(t *testing.T) map[string]any {
	t.Helper()
	res := f.do(t, http.MethodPost, "/rpc/login", "", map[string]string{"username": testUsername, "password": testPassword})
	require.Equal(t, http.StatusOK, res.status)
	require.Equal(t, true, res.body["ok"])
	return res.body["data"].(map[string]any)
}

func TestLogin(t *testing.T) {
	t.Run("valid credentials return a v2 envelope", func(t *testing.T) {
		f := setupTestFixture(t)

		data := f.login(t)
		require.EqualValues(t, testUserID, data["user_id"])
		require.Equal(t, "admin", data["role_code"])
		require.EqualValues(t, 1, data["holding_id"])
		require.Equal(t, "bearer", data["token_type"])
		require.NotEmpty(t, data["access_token"])
		require.Len(t, data["refresh_token"], 64)
		require.Equal(t, "2025-03-14T12:15:00Z", data["expires_at"])
		require.Equal(t, "2025-03-21T12:00:00Z", data["refresh_expires_at"])
		require.Equal(t, 1, f.backend.Calls(fakebackend.RouteLogin))
	})

	t.Run("usernames are case insensitive", func(t *testing.T) {
		f := setupTestFixture(t)

		res := f.do(t, http.MethodPost, "/rpc/login", "", map[string]string{"username": "ALICE", "password": testPassword})
		require.Equal(t, http.StatusOK, res.status)
	})

	t.Run("bad password is a nested domain error", func(t *testing.T) {
		f := setupTestFixture(t)

		res := f.do(t, http.MethodPost, "/rpc/login", "", map[string]string{"username": testUsername, "password": "nope"})
		require.Equal(t, http.StatusUnauthorized, res.status)
		require.Equal(t, false, res.body["ok"])
		errBody := res.body["error"].(map[string]any)
		require.Equal(t, "auth.invalid_credentials", errBody["code"])
	})
}

func TestRefresh(t *testing.T) {
	t.Run("rotates the refresh token and answers with one row", func(t *testing.T) {
		f := setupTestFixture(t)
		data := f.login(t)
		oldRefresh := data["refresh_token"].(string)

		res := f.do(t, http.MethodPost, "/rpc/refresh_token", "", map[string]string{"refresh_token": oldRefresh})
		require.Equal(t, http.StatusOK, res.status)
		require.Len(t, res.rows, 1)
		newRefresh := res.rows[0]["refresh_token"].(string)
		require.NotEqual(t, oldRefresh, newRefresh)

		reused := f.do(t, http.MethodPost, "/rpc/refresh_token", "", map[string]string{"refresh_token": oldRefresh})
		require.Equal(t, http.StatusUnauthorized, reused.status)
		require.Equal(t, "auth.token_invalid", reused.body["code"])
	})

	t.Run("expired refresh token is a flat error", func(t *testing.T) {
		f := setupTestFixture(t)
		data := f.login(t)

		f.clock.Advance(8 * 24 * time.Hour)
		res := f.do(t, http.MethodPost, "/rpc/refresh_token", "", map[string]string{"refresh_token": data["refresh_token"].(string)})
		require.Equal(t, http.StatusUnauthorized, res.status)
		require.Equal(t, false, res.body["ok"])
		require.Equal(t, "auth.session_expired", res.body["code"])
	})
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name     string
		token    func(f *testFixture, t *testing.T) string
		advance  time.Duration
		wantCode string
	}{
		{
			name:     "missing token",
			token:    func(*testFixture, *testing.T) string { return "" },
			wantCode: "PGRST302",
		},
		{
			name:     "garbage token",
			token:    func(*testFixture, *testing.T) string { return "not-a-jwt" },
			wantCode: "PGRST301",
		},
		{
			name: "expired token",
			token: func(f *testFixture, t *testing.T) string {
				return f.login(t)["access_token"].(string)
			},
			advance:  16 * time.Minute,
			wantCode: "PGRST303",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := setupTestFixture(t)
			token := tc.token(f, t)
			f.clock.Advance(tc.advance)

			res := f.do(t, http.MethodPost, "/rpc/me", token, map[string]any{})
			require.Equal(t, http.StatusUnauthorized, res.status)
			require.Equal(t, tc.wantCode, res.body["code"])
			require.Contains(t, res.body, "details")
			require.Contains(t, res.body, "hint")
		})
	}
}

func TestMe(t *testing.T) {
	t.Run("returns the identity of the session", func(t *testing.T) {
		f := setupTestFixture(t)
		token := f.login(t)["access_token"].(string)

		res := f.do(t, http.MethodPost, "/rpc/me", token, map[string]any{})
		require.Equal(t, http.StatusOK, res.status)
		data := res.body["data"].(map[string]any)
		require.EqualValues(t, testUserID, data["user_id"])
		require.NotEmpty(t, data["sid"])
		require.EqualValues(t, 10, data["company_id"])
		require.Equal(t, []any{"devices.read"}, data["capabilities"])
	})

	t.Run("revoked session is reported in-band", func(t *testing.T) {
		f := setupTestFixture(t)
		token := f.login(t)["access_token"].(string)
		require.Equal(t, 1, f.backend.RevokeUserSessions(testUserID))

		res := f.do(t, http.MethodPost, "/rpc/me", token, map[string]any{})
		require.Equal(t, http.StatusOK, res.status)
		require.Equal(t, false, res.body["ok"])
		require.Equal(t, "auth.session_revoked", res.body["error"].(map[string]any)["code"])
	})
}

func TestSwitchHolding(t *testing.T) {
	t.Run("allowed holding returns a bare object", func(t *testing.T) {
		f := setupTestFixture(t)
		token := f.login(t)["access_token"].(string)

		res := f.do(t, http.MethodPost, "/rpc/switch_holding", token, map[string]any{"holding_id": 2})
		require.Equal(t, http.StatusOK, res.status)
		require.NotContains(t, res.body, "ok")
		newToken := res.body["access_token"].(string)

		me := f.do(t, http.MethodPost, "/rpc/me", newToken, map[string]any{})
		require.EqualValues(t, 2, me.body["data"].(map[string]any)["holding_id"])
	})

	t.Run("foreign holding is forbidden", func(t *testing.T) {
		f := setupTestFixture(t)
		token := f.login(t)["access_token"].(string)

		res := f.do(t, http.MethodPost, "/rpc/switch_holding", token, map[string]any{"holding_id": 99})
		require.Equal(t, http.StatusForbidden, res.status)
		require.Equal(t, "holding.forbidden", res.body["error"].(map[string]any)["code"])
	})
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	data := f.login(t)
	token := data["access_token"].(string)

	res := f.do(t, http.MethodPost, "/rpc/logout", token, map[string]any{})
	require.Equal(t, http.StatusNoContent, res.status)

	me := f.do(t, http.MethodPost, "/rpc/me", token, map[string]any{})
	require.Equal(t, "auth.session_revoked", me.body["error"].(map[string]any)["code"])

	refresh := f.do(t, http.MethodPost, "/rpc/refresh_token", "", map[string]string{"refresh_token": data["refresh_token"].(string)})
	require.Equal(t, http.StatusUnauthorized, refresh.status)
}

func TestDevices(t *testing.T) {
	t.Run("range with exact count", func(t *testing.T) {
		f := setupTestFixture(t, fakebackend.WithDevices(45))
		token := f.login(t)["access_token"].(string)

		res := f.do(t, http.MethodGet, "/devices", token, nil, "Range-Unit", "items", "Range", "10-19", "Prefer", "count=exact")
		require.Equal(t, http.StatusPartialContent, res.status)
		require.Equal(t, "10-19/45", res.header.Get("Content-Range"))
		require.Len(t, res.rows, 10)
		require.Equal(t, "SN0011", res.rows[0]["serial"])
	})

	t.Run("unknown total without count preference", func(t *testing.T) {
		f := setupTestFixture(t, fakebackend.WithDevices(5))
		token := f.login(t)["access_token"].(string)

		res := f.do(t, http.MethodGet, "/devices", token, nil, "Range", "0-9")
		require.Equal(t, http.StatusOK, res.status)
		require.Equal(t, "0-4/*", res.header.Get("Content-Range"))
		require.Len(t, res.rows, 5)
	})

	t.Run("offset past the end", func(t *testing.T) {
		f := setupTestFixture(t, fakebackend.WithDevices(5))
		token := f.login(t)["access_token"].(string)

		res := f.do(t, http.MethodGet, "/devices", token, nil, "Range", "10-19")
		require.Equal(t, http.StatusRequestedRangeNotSatisfiable, res.status)
		require.Equal(t, "PGRST103", res.body["code"])
	})

	t.Run("duplicate serial is a unique violation", func(t *testing.T) {
		f := setupTestFixture(t, fakebackend.WithDevices(1))
		token := f.login(t)["access_token"].(string)

		created := f.do(t, http.MethodPost, "/devices", token, map[string]string{"serial": "SN9999"})
		require.Equal(t, http.StatusCreated, created.status)
		require.Len(t, created.rows, 1)
		require.EqualValues(t, 1, created.rows[0]["holding_id"])

		dup := f.do(t, http.MethodPost, "/devices", token, map[string]string{"serial": "SN0001"})
		require.Equal(t, http.StatusConflict, dup.status)
		require.Equal(t, "23505", dup.body["code"])
		require.Equal(t, "Key (serial)=(SN0001) already exists.", dup.body["details"])
	})
}

func TestFailNext(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.FailNext(fakebackend.RouteLogin, http.StatusServiceUnavailable, `{"code":"PGRST000","message":"down","details":null,"hint":null}`)

	res := f.do(t, http.MethodPost, "/rpc/login", "", map[string]string{"username": testUsername, "password": testPassword})
	require.Equal(t, http.StatusServiceUnavailable, res.status)
	require.Equal(t, "PGRST000", res.body["code"])

	f.login(t)
	require.Equal(t, 2, f.backend.Calls(fakebackend.RouteLogin))
}

func TestUnknownRoute(t *testing.T) {
	f := setupTestFixture(t)

	res := f.do(t, http.MethodPost, "/rpc/nope", "", map[string]any{})
	require.Equal(t, http.StatusNotFound, res.status)
	require.Equal(t, "PGRST202", res.body["code"])
}
