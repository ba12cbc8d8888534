// Package config loads minidb's runtime configuration: an optional
// YAML file overlaid onto built-in defaults, producing the knobs the
// server, the engine, and its transaction manager are constructed from.
// No CLI flag overrides individual fields.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is minidb's full runtime configuration.
type Config struct {
	// Listen is the TCP address the command server binds, e.g. ":4541".
	Listen string `yaml:"listen"`

	// MetricsListen is the debug HTTP listener address for /metrics, or
	// "" to disable it.
	MetricsListen string `yaml:"metrics_listen"`

	// DataDir is the working directory under which Database/<db>/... is
	// created and resolved.
	DataDir string `yaml:"data_dir"`

	// WorkerPoolSize is the number of worker goroutines servicing
	// accepted connections.
	WorkerPoolSize int `yaml:"worker_pool_size"`

	// MaxConnections is the hard cap on concurrently open connections.
	MaxConnections int `yaml:"max_connections"`

	// ConnectionTimeoutSeconds is the idle interval after which the
	// monitor task closes a connection and rolls back its transaction.
	ConnectionTimeoutSeconds int `yaml:"connection_timeout_seconds"`

	// TransactionCapacity is the fixed size of the transaction slot table.
	TransactionCapacity int `yaml:"transaction_capacity"`

	// ACLEnforced gates permission checks; when false every operation
	// is permitted.
	ACLEnforced bool `yaml:"acl_enforced"`

	// LogLevel and LogJSON configure internal/logging.
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Listen:                   ":4541",
		MetricsListen:            ":9541",
		DataDir:                  ".",
		WorkerPoolSize:           8,
		MaxConnections:           64,
		ConnectionTimeoutSeconds: 300,
		TransactionCapacity:      64,
		ACLEnforced:              true,
		LogLevel:                 "info",
		LogJSON:                  false,
	}
}

// Load reads path as YAML and overlays it onto Default(). A missing
// path is not an error: it returns Default() unchanged, so minidb runs
// with sane defaults out of the box.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
