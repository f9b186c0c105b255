// Package config loads server configuration from an optional YAML file,
// layered under command-line flags. Grounded on cmd/warren/apply.go's use
// of gopkg.in/yaml.v3 for manifest parsing, adapted here to a single
// top-level settings document instead of a list of resources.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dirbookd/server/internal/types"
)

// Config holds every server tunable: the listen port, the data directory
// (server_resources/ by default), the bounded reader count K, the auth
// rate-limit delay F, the lockout threshold T, the per-coordinator
// writer-acquire deadline D, and the global shutdown deadline M.
type Config struct {
	Port    int    `yaml:"port"`
	BindIP  string `yaml:"bind_ip"`
	DataDir string `yaml:"data_dir"`

	MaxReaders        int `yaml:"max_readers"`
	AuthRateLimitSecs int `yaml:"auth_rate_limit_secs"`
	MaxLoginAttempts  int `yaml:"max_login_attempts"`

	WriterAcquireDeadlineSecs int `yaml:"writer_acquire_deadline_secs"`
	ShutdownDeadlineSecs      int `yaml:"shutdown_deadline_secs"`

	ReadTimeoutSecs  int `yaml:"read_timeout_secs"`
	WriteTimeoutSecs int `yaml:"write_timeout_secs"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration built from internal/types' named
// constants.
func Default() Config {
	return Config{
		Port:                      types.DefaultServerPort,
		BindIP:                    "0.0.0.0",
		DataDir:                   "server_resources",
		MaxReaders:                types.MaxReaders,
		AuthRateLimitSecs:         types.AuthRateLimitSecs,
		MaxLoginAttempts:          types.MaxLoginAttempts,
		WriterAcquireDeadlineSecs: types.WriterAcquireDeadlineSecs,
		ShutdownDeadlineSecs:      types.ShutdownDeadlineSecs,
		ReadTimeoutSecs:           types.ReadTimeoutSecs,
		WriteTimeoutSecs:          types.WriteTimeoutSecs,
		MetricsAddr:               "127.0.0.1:9090",
	}
}

// Load starts from Default and overlays any fields present in the YAML
// file at path. A missing file is not an error: it just means defaults
// apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
