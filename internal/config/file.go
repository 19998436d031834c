package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileValues is the YAML shape of the optional config file
type FileValues struct {
	AppName              string        `yaml:"app_name"`
	APIURL               string        `yaml:"api_url"`
	RPCPrefix            string        `yaml:"rpc_prefix"`
	UserAgent            string        `yaml:"user_agent"`
	LoginURL             string        `yaml:"login_url"`
	TokenStorage         string        `yaml:"token_storage"`
	TokenDir             string        `yaml:"token_dir"`
	LogLevel             string        `yaml:"log_level"`
	FakeBackendAddr      string        `yaml:"fake_backend_addr"`
	RefreshLeadWindow    time.Duration `yaml:"refresh_lead_window"`
	RefreshCheckInterval time.Duration `yaml:"refresh_check_interval"`
	Redis                struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

// LoadFile reads the YAML config file at path. An empty path or a missing file
// yields empty values and no error.
func LoadFile(path string) (*FileValues, error) {
	values := &FileValues{}
	if path == "" {
		return values, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[config.LoadFile] read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, values); err != nil {
		return nil, fmt.Errorf("[config.LoadFile] parse %s: %w", path, err)
	}
	return values, nil
}
