// Package config provides application settings loaded from an optional YAML
// file and environment variables.
//
// Settings are created via New() which handles:
// - YAML file parsing (missing file is not an error)
// - Environment variable parsing with validation
// - Default value application
//
// Precedence is defaults, then the file, then the environment. Command-line
// flags are applied on top by the caller.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by New.
const (
	EnvAPIURL      = "FISTOP_API_URL"
	EnvDBPath      = "FISTOP_DB_PATH"
	EnvDBDriver    = "FISTOP_DB_DRIVER"
	EnvTimeoutSecs = "FISTOP_TIMEOUT_SECS"
	EnvLogLevel    = "FISTOP_LOG_LEVEL"
	EnvConfig      = "FISTOP_CONFIG"
)

// Defaults.
const (
	DefaultAPIURL      = "http://127.0.0.1:80"
	DefaultDBPath      = ".fistop/fistop.db"
	DefaultDBDriver    = "sqlite3"
	DefaultTimeoutSecs = 30
	DefaultLogLevel    = "warn"
	DefaultConfigPath  = "fistop.yaml"
)

// supportedDrivers mirrors the database/sql driver names registered by storage.
var supportedDrivers = map[string]bool{
	"sqlite3": true,
	"sqlite":  true,
}

// Settings holds all application configuration.
type Settings struct {
	API     APIConfig
	Storage StorageConfig
	Log     LogConfig

	// ConfigPath is the YAML file that was consulted, whether or not it existed.
	ConfigPath string
}

// APIConfig holds remote API configuration.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
	// Endpoints maps a request type to the path segment it is served under.
	Endpoints map[string]string
}

// StorageConfig holds persistent tier configuration.
type StorageConfig struct {
	Path   string
	Driver string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
}

// fileConfig is the on-disk YAML shape.
type fileConfig struct {
	APIURL      string            `yaml:"api_url"`
	DBPath      string            `yaml:"db_path"`
	DBDriver    string            `yaml:"db_driver"`
	TimeoutSecs int               `yaml:"timeout_secs"`
	LogLevel    string            `yaml:"log_level"`
	Endpoints   map[string]string `yaml:"endpoints"`
}

// New loads settings from the file named by FISTOP_CONFIG (default
// fistop.yaml) and the environment.
func New() (Settings, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		path = DefaultConfigPath
	}
	return Load(path)
}

// MustNew creates settings.
// Panics if the file or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Load reads settings from the YAML file at path, then applies environment
// overrides. A missing file yields defaults.
func Load(path string) (Settings, error) {
	s := defaultSettings()
	s.ConfigPath = path

	fc, err := readFile(path)
	if err != nil {
		return Settings{}, err
	}
	applyFile(&s, fc)

	if err := applyEnv(&s); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks values that would otherwise fail later and less clearly.
func (s Settings) Validate() error {
	if !supportedDrivers[s.Storage.Driver] {
		return fmt.Errorf("unknown database driver: %q (supported: sqlite3, sqlite)", s.Storage.Driver)
	}
	if s.Storage.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if s.API.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", s.API.Timeout)
	}
	return nil
}

func defaultSettings() Settings {
	return Settings{
		API: APIConfig{
			BaseURL:   DefaultAPIURL,
			Timeout:   DefaultTimeoutSecs * time.Second,
			Endpoints: map[string]string{},
		},
		Storage: StorageConfig{
			Path:   DefaultDBPath,
			Driver: DefaultDBDriver,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return fc, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if fc.TimeoutSecs < 0 {
		return fc, fmt.Errorf("invalid timeout_secs in %s: %d", path, fc.TimeoutSecs)
	}
	return fc, nil
}

func applyFile(s *Settings, fc fileConfig) {
	if fc.APIURL != "" {
		s.API.BaseURL = fc.APIURL
	}
	if fc.DBPath != "" {
		s.Storage.Path = fc.DBPath
	}
	if fc.DBDriver != "" {
		s.Storage.Driver = strings.ToLower(fc.DBDriver)
	}
	if fc.TimeoutSecs > 0 {
		s.API.Timeout = time.Duration(fc.TimeoutSecs) * time.Second
	}
	if fc.LogLevel != "" {
		s.Log.Level = fc.LogLevel
	}
	for k, v := range fc.Endpoints {
		s.API.Endpoints[strings.ToLower(k)] = v
	}
}

func applyEnv(s *Settings) error {
	if v := os.Getenv(EnvAPIURL); v != "" {
		s.API.BaseURL = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		s.Storage.Path = v
	}
	if v := os.Getenv(EnvDBDriver); v != "" {
		s.Storage.Driver = strings.ToLower(v)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		s.Log.Level = v
	}

	secs, err := getEnvInt(EnvTimeoutSecs, int(s.API.Timeout/time.Second))
	if err != nil {
		return err
	}
	s.API.Timeout = time.Duration(secs) * time.Second
	return nil
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}
