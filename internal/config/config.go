// Package config provides TOML configuration file support for abyssrpcd,
// layered under command-line flags: CLI flags override the config file,
// which overrides built-in defaults.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the complete abyssrpcd configuration, corresponding to a TOML
// file of the form:
//
//	[network]
//	rpc_listen = "0.0.0.0:8080"
//	dashboard_listen = "0.0.0.0:8081"
//
//	[auth]
//	user = "admin"
//	password = "changeme"
type Config struct {
	Network NetworkConfig `toml:"network"`
	Auth    AuthConfig    `toml:"auth"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
	Process ProcessConfig `toml:"process"`
}

// NetworkConfig contains the two listen addresses abyssrpcd binds: the
// Abyss RPC endpoint and the plain net/http status dashboard.
type NetworkConfig struct {
	RPCListen       string `toml:"rpc_listen"`
	DashboardListen string `toml:"dashboard_listen"`
}

// AuthConfig contains HTTP Basic Auth settings guarding the status
// dashboard listener. The RPC listener does not check credentials. An
// empty User disables authentication.
type AuthConfig struct {
	User           string `toml:"user"`
	Password       string `toml:"password"`
	PasswordFormat string `toml:"password_format"`
}

// StorageConfig contains file paths for persistent state.
type StorageConfig struct {
	AuditDB string `toml:"audit_db"`
	PidFile string `toml:"pidfile"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Syslog string `toml:"syslog"`
	Debug  bool   `toml:"debug"`
}

// ProcessConfig contains process control settings.
type ProcessConfig struct {
	Daemon bool `toml:"daemon"`
}

// Load reads and parses a TOML configuration file.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// MergeString returns cliValue if it differs from defaultValue (i.e. was
// explicitly set), otherwise cfgValue if non-empty, otherwise cliValue
// (which at that point equals defaultValue).
func MergeString(cfgValue, cliValue, defaultValue string) string {
	if cliValue != defaultValue {
		return cliValue
	}
	if cfgValue != "" {
		return cfgValue
	}
	return cliValue
}

// MergeBool gives priority to a true CLI flag, then the config file value.
func MergeBool(cfgValue, cliValue bool) bool {
	if cliValue {
		return true
	}
	return cfgValue
}
