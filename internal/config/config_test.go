package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-admin-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("empty path", func(t *testing.T) {
		values, err := config.LoadFile("")
		require.NoError(t, err)
		require.Equal(t, config.FileValues{}, *values)
	})

	t.Run("missing file", func(t *testing.T) {
		values, err := config.LoadFile(filepath.Join(tmpDir, "missing.yaml"))
		require.NoError(t, err)
		require.Equal(t, config.FileValues{}, *values)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(tmpDir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("api_url: [unterminated"), 0o600))
		_, err := config.LoadFile(path)
		require.Error(t, err)
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(tmpDir, "admin.yaml")
		content := `
api_url: https://api.example.com/
rpc_prefix: rpc/
token_storage: redis
refresh_lead_window: 90s
redis:
  addr: cache:6379
  db: 2
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		values, err := config.LoadFile(path)
		require.NoError(t, err)
		require.Equal(t, "https://api.example.com/", values.APIURL)
		require.Equal(t, 90*time.Second, values.RefreshLeadWindow)
		require.Equal(t, "cache:6379", values.Redis.Addr)
		require.Equal(t, 2, values.Redis.DB)
	})
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: https://api.example.com/\nrpc_prefix: rpc/\nuser_agent: from-file\n"), 0o600))

	t.Setenv("ADMIN_USER_AGENT", "from-env")

	c, err := config.NewFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com", c.GetAPIURL())
	require.Equal(t, "/rpc", c.GetRPCPrefix())
	require.Equal(t, "from-env", c.GetUserAgent())
	require.Equal(t, time.Minute, c.GetRefreshLeadWindow())
}

func TestDefaults(t *testing.T) {
	t.Setenv("ADMIN_TOKEN_STORAGE", "")
	t.Setenv("ADMIN_API_URL", "")

	c := config.New()
	require.Equal(t, "http://localhost:3000", c.GetAPIURL())
	require.Equal(t, config.StorageFile, c.GetTokenStorage())
	require.Equal(t, 30*time.Second, c.GetRefreshCheckInterval())
}

func TestFakeBackendAddr(t *testing.T) {
	t.Setenv("ADMIN_FAKE_ADDR", "")
	require.Equal(t, ":3000", config.New().GetFakeBackendAddr())

	t.Setenv("ADMIN_FAKE_ADDR", "127.0.0.1:8080")
	require.Equal(t, "127.0.0.1:8080", config.New().GetFakeBackendAddr())
}
