// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "HEAPSCOPE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the root of the configuration file.
type Config struct {
	Environment Environment `yaml:"environment"`

	// Server configures the demo server ("heapscope demo").
	Server ServerConfig `yaml:"server"`

	// Monitor configures "heapscope monitor" and "heapscope control".
	Monitor MonitorConfig `yaml:"monitor"`

	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds an environment section. The sections stay as YAML
// nodes so that decoding one onto the base config sets only the keys
// it names, booleans included.
type Overrides struct {
	Server  yaml.Node `yaml:"server,omitempty"`
	Monitor yaml.Node `yaml:"monitor,omitempty"`
}

// ServerConfig configures the server side of the monitor protocol.
type ServerConfig struct {
	// Listen is the TCP address monitors connect to.
	Listen string `yaml:"listen"`

	// Name identifies the program to monitors.
	Name string `yaml:"name"`

	GeneralInfo string `yaml:"general_info"`

	// MaxMessageLength bounds every message. Zero means the transport
	// default.
	MaxMessageLength int `yaml:"max_message_length"`

	CollectStats bool `yaml:"collect_stats"`

	PollInterval time.Duration `yaml:"poll_interval"`

	// FailurePolicy is "connection" or "process".
	FailurePolicy string `yaml:"failure_policy"`

	// Compression lists the codecs a monitor may select.
	Compression []string `yaml:"compression"`
}

// MonitorConfig configures the client side.
type MonitorConfig struct {
	// Address is the server's TCP address.
	Address string `yaml:"address"`

	PauseAtStart bool `yaml:"pause_at_start"`

	// Compression is the codec requested in the handshake.
	Compression string `yaml:"compression"`

	MaxMessageLength int `yaml:"max_message_length"`

	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ControlSocket is the Unix socket path of the control server.
	// Empty disables it.
	ControlSocket string `yaml:"control_socket"`

	// FiltersFile is a JSONC filter preset applied after connecting.
	FiltersFile string `yaml:"filters_file"`

	// MaxEvents, when positive, makes the monitor request shutdown
	// after that many events.
	MaxEvents int `yaml:"max_events"`
}

var (
	compressionNames = []string{"none", "lz4", "zstd"}
	failurePolicies  = []string{"connection", "process"}
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Listen:        "127.0.0.1:3000",
			Name:          "heapscope demo",
			PollInterval:  10 * time.Millisecond,
			FailurePolicy: "connection",
			Compression:   []string{"none", "lz4", "zstd"},
		},
		Monitor: MonitorConfig{
			Address:       "127.0.0.1:3000",
			Compression:   "none",
			DialTimeout:   10 * time.Second,
			ControlSocket: "${XDG_RUNTIME_DIR:-/tmp}/heapscope.sock",
		},
	}
}

// Load loads configuration from the file named by HEAPSCOPE_CONFIG.
// It fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your heapscope.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path on top of Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

// Resolve loads path if non-empty, else the file named by
// HEAPSCOPE_CONFIG if set, else returns Default with variables
// expanded.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv(EnvironmentVariable) != "" {
		return Load()
	}
	cfg := Default()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() error {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production fails the whole process on a broken monitor
		// connection unless the file says otherwise.
		if overrides == nil {
			c.Server.FailurePolicy = "process"
		}
	}
	if overrides == nil {
		return nil
	}

	if !overrides.Server.IsZero() {
		if err := overrides.Server.Decode(&c.Server); err != nil {
			return fmt.Errorf("%s.server: %w", c.Environment, err)
		}
	}
	if !overrides.Monitor.IsZero() {
		if err := overrides.Monitor.Decode(&c.Monitor); err != nil {
			return fmt.Errorf("%s.monitor: %w", c.Environment, err)
		}
	}
	return nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":            os.Getenv("HOME"),
		"XDG_RUNTIME_DIR": os.Getenv("XDG_RUNTIME_DIR"),
	}
	c.Monitor.ControlSocket = expandVars(c.Monitor.ControlSocket, vars)
	c.Monitor.FiltersFile = expandVars(c.Monitor.FiltersFile, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if c.Server.Name == "" {
		errs = append(errs, errors.New("server.name is required"))
	}
	if c.Server.MaxMessageLength < 0 {
		errs = append(errs, fmt.Errorf("server.max_message_length %d is negative", c.Server.MaxMessageLength))
	}
	if c.Server.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("server.poll_interval %s must be positive", c.Server.PollInterval))
	}
	if !slices.Contains(failurePolicies, c.Server.FailurePolicy) {
		errs = append(errs, fmt.Errorf("server.failure_policy must be one of: %v", failurePolicies))
	}
	for _, name := range c.Server.Compression {
		if !slices.Contains(compressionNames, name) {
			errs = append(errs, fmt.Errorf("server.compression entry %q must be one of: %v", name, compressionNames))
		}
	}

	if c.Monitor.Address == "" {
		errs = append(errs, errors.New("monitor.address is required"))
	}
	if !slices.Contains(compressionNames, c.Monitor.Compression) {
		errs = append(errs, fmt.Errorf("monitor.compression must be one of: %v", compressionNames))
	}
	if c.Monitor.MaxMessageLength < 0 {
		errs = append(errs, fmt.Errorf("monitor.max_message_length %d is negative", c.Monitor.MaxMessageLength))
	}
	if c.Monitor.DialTimeout <= 0 {
		errs = append(errs, fmt.Errorf("monitor.dial_timeout %s must be positive", c.Monitor.DialTimeout))
	}
	if c.Monitor.MaxEvents < 0 {
		errs = append(errs, fmt.Errorf("monitor.max_events %d is negative", c.Monitor.MaxEvents))
	}

	return errors.Join(errs...)
}
