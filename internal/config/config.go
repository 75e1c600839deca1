// Package config loads client configuration from YAML, .env and TASKFLOW_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const (
	defaultBaseURL        = "https://taskflowbackend-omega.vercel.app/api"
	defaultTimeout        = 10 * time.Second
	defaultPushPort       = 4000
	defaultPushPath       = "/ws"
	defaultDriver         = DriverNhooyr
	defaultSearchDebounce = 350 * time.Millisecond
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"

	envPrefix = "TASKFLOW_"
)

// Transport drivers.
const (
	DriverNhooyr = "nhooyr"
	DriverGobwas = "gobwas"
)

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.BytesUnmarshaler.
func (d *Duration) UnmarshalYAML(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"'`)
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.BytesMarshaler.
func (d Duration) MarshalYAML() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	API       APIConfig       `yaml:"api"`
	Push      PushConfig      `yaml:"push"`
	Transport TransportConfig `yaml:"transport"`
	Search    SearchConfig    `yaml:"search"`
	Log       LogConfig       `yaml:"log"`
	Session   SessionConfig   `yaml:"session"`
}

type APIConfig struct {
	BaseURL   string          `yaml:"base_url"`
	Timeout   Duration        `yaml:"timeout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig paces outgoing requests. Zero RPS disables pacing.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type PushConfig struct {
	// Origin is the page origin the socket address is derived from. When
	// empty the origin of api.base_url is used.
	Origin    string `yaml:"origin"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Reconnect bool   `yaml:"reconnect"`
}

type TransportConfig struct {
	Driver string `yaml:"driver"`
}

type SearchConfig struct {
	Debounce Duration `yaml:"debounce"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SessionConfig struct {
	Path string `yaml:"path"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// DefaultPath returns the config file location under the user config dir.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "taskflow", "config.yaml")
}

// Load reads .env from the working directory when present, then the YAML file
// at path, then TASKFLOW_* overrides. An empty path falls back to DefaultPath
// and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{}
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		fileCfg, err := LoadFile(path)
		switch {
		case err == nil:
			cfg = fileCfg
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile parses a YAML config file without applying defaults.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultBaseURL
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = Duration(defaultTimeout)
	}
	if c.API.RateLimit.RPS > 0 && c.API.RateLimit.Burst <= 0 {
		c.API.RateLimit.Burst = 1
	}
	if c.Push.Port == 0 {
		c.Push.Port = defaultPushPort
	}
	if c.Push.Path == "" {
		c.Push.Path = defaultPushPath
	}
	if c.Transport.Driver == "" {
		c.Transport.Driver = defaultDriver
	}
	if c.Search.Debounce <= 0 {
		c.Search.Debounce = Duration(defaultSearchDebounce)
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
	if c.Session.Path == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			c.Session.Path = filepath.Join(dir, "taskflow", "session.yaml")
		}
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(envPrefix + key)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("API_BASE_URL"); ok {
		c.API.BaseURL = v
	}
	if v, ok := get("API_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sAPI_TIMEOUT: %w", envPrefix, err)
		}
		c.API.Timeout = Duration(d)
	}
	if v, ok := get("PUSH_ORIGIN"); ok {
		c.Push.Origin = v
	}
	if v, ok := get("PUSH_PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPUSH_PORT: %w", envPrefix, err)
		}
		c.Push.Port = p
	}
	if v, ok := get("PUSH_RECONNECT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sPUSH_RECONNECT: %w", envPrefix, err)
		}
		c.Push.Reconnect = b
	}
	if v, ok := get("TRANSPORT_DRIVER"); ok {
		c.Transport.Driver = v
	}
	if v, ok := get("SEARCH_DEBOUNCE"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sSEARCH_DEBOUNCE: %w", envPrefix, err)
		}
		c.Search.Debounce = Duration(d)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	if v, ok := get("SESSION_PATH"); ok {
		c.Session.Path = v
	}
	return nil
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.Push.Port <= 0 || c.Push.Port > 65535 {
		return fmt.Errorf("push.port out of range: %d", c.Push.Port)
	}
	if !strings.HasPrefix(c.Push.Path, "/") {
		return fmt.Errorf("push.path must start with '/', got %q", c.Push.Path)
	}
	switch c.Transport.Driver {
	case DriverNhooyr, DriverGobwas:
	default:
		return fmt.Errorf("unknown transport.driver %q", c.Transport.Driver)
	}
	if c.API.RateLimit.RPS < 0 {
		return fmt.Errorf("api.rate_limit.rps must not be negative")
	}
	return nil
}

// PushOrigin returns the origin the socket address is derived from.
func (c *Config) PushOrigin() string {
	if c.Push.Origin != "" {
		return c.Push.Origin
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
