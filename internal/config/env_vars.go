package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	appNameVar       = "APP_NAME"
	apiURLVar        = "ADMIN_API_URL"
	rpcPrefixVar     = "ADMIN_RPC_PREFIX"
	userAgentVar     = "ADMIN_USER_AGENT"
	loginURLVar      = "ADMIN_LOGIN_URL"
	tokenStorageVar  = "ADMIN_TOKEN_STORAGE"
	tokenDirVar      = "ADMIN_TOKEN_DIR"
	redisAddrVar     = "ADMIN_REDIS_ADDR"
	redisPasswordVar = "ADMIN_REDIS_PASSWORD"
	redisDBVar       = "ADMIN_REDIS_DB"
	logLevelVar      = "LOG_LEVEL"
	fakeAddrVar      = "ADMIN_FAKE_ADDR"
)

// Token storage backends
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

type EnvVars struct {
	file *FileValues
}

var _ ClientConfig = EnvVars{}
var _ StorageConfig = EnvVars{}
var _ LogConfig = EnvVars{}
var _ FakeBackendConfig = EnvVars{}

func (e EnvVars) values() FileValues {
	if e.file == nil {
		return FileValues{}
	}
	return *e.file
}

func (e EnvVars) GetAppName() string {
	return lookup(appNameVar, e.values().AppName, "Admin Client")
}

// GetAPIURL returns the PostgREST base URL without a trailing slash
func (e EnvVars) GetAPIURL() string {
	return strings.TrimRight(lookup(apiURLVar, e.values().APIURL, "http://localhost:3000"), "/")
}

func (e EnvVars) GetRPCPrefix() string {
	prefix := lookup(rpcPrefixVar, e.values().RPCPrefix, "/rpc")
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimRight(prefix, "/")
}

func (e EnvVars) GetUserAgent() string {
	return lookup(userAgentVar, e.values().UserAgent, "go-admin-client")
}

func (e EnvVars) GetLoginURL() string {
	return lookup(loginURLVar, e.values().LoginURL, "/login")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (e EnvVars) GetTokenStorage() string {
	return strings.ToLower(lookup(tokenStorageVar, e.values().TokenStorage, StorageFile))
}

func (e EnvVars) GetTokenDir() string {
	def := "./.admin-client"
	if dir, err := os.UserConfigDir(); err == nil {
		def = dir + "/admin-client"
	}
	return lookup(tokenDirVar, e.values().TokenDir, def)
}

func (e EnvVars) GetRedisAddr() string {
	return lookup(redisAddrVar, e.values().Redis.Addr, "localhost:6379")
}

func (e EnvVars) GetRedisPassword() string {
	return lookup(redisPasswordVar, e.values().Redis.Password, "")
}

func (e EnvVars) GetRedisDB() int {
	if v := os.Getenv(redisDBVar); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			return db
		}
	}
	return e.values().Redis.DB
}

func (e EnvVars) GetLogLevel() string {
	return lookup(logLevelVar, e.values().LogLevel, "info")
}

// GetFakeBackendAddr is the listen address of cmd/fakebackend
func (e EnvVars) GetFakeBackendAddr() string {
	return lookup(fakeAddrVar, e.values().FakeBackendAddr, ":3000")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// lookup prefers the environment, then the config file, then the default
func lookup(envVar, fileValue, defaultValue string) string {
	if fileValue != "" {
		defaultValue = fileValue
	}
	return GetEnv(envVar, defaultValue)
}
