package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/jrsteele09/go-admin-client/apierror"
	"github.com/jrsteele09/go-admin-client/authrpc"
	"github.com/jrsteele09/go-admin-client/internal/fakebackend"
	"github.com/jrsteele09/go-admin-client/session"
	"github.com/jrsteele09/go-admin-client/token"
	"github.com/jrsteele09/go-admin-client/token/memstore"
	"github.com/jrsteele09/go-admin-client/token/refresh"
	"github.com/jrsteele09/go-admin-client/transport"
	"github.com/stretchr/testify/require"
)

type backendFixture struct {
	backend    *fakebackend.Server
	tokens     *token.Store
	client     *transport.Client
	api        *authrpc.API
	navigator  *recordingNavigator
	controller *session.Controller
}

func setupBackendFixture(t *testing.T) *backendFixture {
	t.Helper()
	f := &backendFixture{
		backend:   fakebackend.New(fakebackend.WithDevices(3)),
		tokens:    token.NewStore(memstore.New()),
		navigator: &recordingNavigator{},
	}
	holdingID := int64(5)
	require.NoError(t, f.backend.AddUser(fakebackend.User{
		ID:           12,
		Username:     "admin",
		RoleCode:     "admin",
		HoldingID:    &holdingID,
		Capabilities: []string{"devices.read"},
	}, "secret"))
	server := httptest.NewServer(f.backend)
	t.Cleanup(server.Close)

	f.client = transport.New(server.URL, f.tokens)
	f.api = authrpc.New(f.client, "session-test")
	c, err := session.NewController(session.Deps{
		API:       f.api,
		Tokens:    f.tokens,
		Validator: refresh.NewScheduler(f.tokens, f.api.TokenRefresher()),
		Navigator: f.navigator,
		Transport: f.client,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	f.controller = c
	return f
}

func TestControllerWithBackend(t *testing.T) {
	t.Run("login stores the returned pair", func(t *testing.T) {
		f := setupBackendFixture(t)

		_, err := f.controller.Login(context.Background(), "admin", "secret")
		require.NoError(t, err)
		f.controller.Wait()

		require.NotEmpty(t, f.tokens.AccessToken())
		snap := f.controller.Snapshot()
		require.True(t, snap.IsAuthenticated)
		require.False(t, snap.User.Provisional)
		require.True(t, snap.User.HasCapability("devices.read"))
	})

	t.Run("in-band session expiry redirects once", func(t *testing.T) {
		f := setupBackendFixture(t)
		_, err := f.controller.Login(context.Background(), "admin", "secret")
		require.NoError(t, err)
		f.controller.Wait()

		expired := `{"ok":false,"code":"auth.session_expired","message":"Session expired"}`
		f.backend.FailNext(fakebackend.RouteMe, http.StatusOK, expired)
		f.backend.FailNext(fakebackend.RouteMe, http.StatusOK, expired)

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = f.api.Me(context.Background())
			}()
		}
		wg.Wait()

		for _, err := range errs {
			require.True(t, apierror.HasCode(err, "auth.session_expired"))
		}
		require.Equal(t, 1, f.navigator.count())
		require.Equal(t, session.StateUnauthenticated, f.controller.State())
		require.Empty(t, f.tokens.AccessToken())
	})

	t.Run("identity failure during login keeps the provisional session", func(t *testing.T) {
		f := setupBackendFixture(t)
		f.backend.FailNext(fakebackend.RouteMe, http.StatusUnauthorized,
			`{"code":"PGRST303","message":"JWT expired","details":null,"hint":null}`)

		_, err := f.controller.Login(context.Background(), "admin", "secret")
		require.NoError(t, err)
		f.controller.Wait()

		require.Zero(t, f.navigator.count())
		snap := f.controller.Snapshot()
		require.True(t, snap.IsAuthenticated)
		require.True(t, snap.User.Provisional)
		require.Equal(t, 1, f.backend.Calls(fakebackend.RouteMe))
	})

	t.Run("duplicate key is not an auth error", func(t *testing.T) {
		f := setupBackendFixture(t)
		_, err := f.controller.Login(context.Background(), "admin", "secret")
		require.NoError(t, err)

		_, err = transport.Post[[]map[string]any](context.Background(), f.client, "/devices", map[string]string{"serial": "SN0001"})
		apiErr, ok := apierror.As(err)
		require.True(t, ok)
		require.Equal(t, "23505", apiErr.Code())
		require.Equal(t, "Duplicate Entry", apiErr.Title())
		require.Equal(t, apierror.KindNativeDatabase, apiErr.Kind())
		require.False(t, apiErr.IsAuthError())
		require.Zero(t, f.navigator.count())
	})

	t.Run("bootstrap restores a session from stored tokens", func(t *testing.T) {
		f := setupBackendFixture(t)
		_, err := f.controller.Login(context.Background(), "admin", "secret")
		require.NoError(t, err)
		f.controller.Wait()

		next, err := session.NewController(session.Deps{
			API:       f.api,
			Tokens:    f.tokens,
			Validator: refresh.NewScheduler(f.tokens, f.api.TokenRefresher()),
			Navigator: f.navigator,
		})
		require.NoError(t, err)
		t.Cleanup(next.Close)

		require.Equal(t, session.StateAuthenticated, next.Bootstrap(context.Background()))
		require.Equal(t, authrpc.ID("12"), next.Snapshot().User.UserID)
	})
}
