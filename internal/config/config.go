package config

import "time"

type Config interface {
	ClientConfig
	StorageConfig
	TokenConfig
	LogConfig
	FakeBackendConfig
}

type ClientConfig interface {
	GetAppName() string
	GetAPIURL() string
	GetRPCPrefix() string
	GetUserAgent() string
	GetLoginURL() string
	GetEnv() string
}

type StorageConfig interface {
	GetTokenStorage() string
	GetTokenDir() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type LogConfig interface {
	GetLogLevel() string
}

type FakeBackendConfig interface {
	GetFakeBackendAddr() string
}

type mainConfig struct {
	EnvVars
	Token
}

// New returns a config backed by environment variables and defaults only.
func New() Config {
	return mainConfig{}
}

// NewFromFile overlays a YAML file between the defaults and the environment.
// A missing file is not an error.
func NewFromFile(path string) (Config, error) {
	values, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return mainConfig{
		EnvVars: EnvVars{file: values},
		Token:   Token{file: values},
	}, nil
}

var _ Config = mainConfig{}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
