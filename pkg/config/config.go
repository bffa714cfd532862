package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for xdumper
type Config struct {
	// Store settings (SQLite post database)
	Store StoreConfig `yaml:"store" json:"store"`

	// Backend selection and transport settings
	Backend BackendConfig `yaml:"backend" json:"backend"`

	// Browser backend settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Rate limiting for backend calls
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry policy for failed page fetches
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// StoreConfig holds post storage configuration
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// BackendConfig selects and configures the fetch backend
type BackendConfig struct {
	// Kind is "api" (cookie-authenticated client) or "browser"
	Kind      string        `yaml:"kind" json:"kind"`
	Proxy     string        `yaml:"proxy" json:"proxy"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	// Account is the stored account name whose cookies the api backend uses
	Account string `yaml:"account" json:"account"`
}

// BrowserConfig holds browser backend configuration
type BrowserConfig struct {
	ProfileDir string `yaml:"profile_dir" json:"profile_dir"`
	Headless   bool   `yaml:"headless" json:"headless"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// RetryConfig holds retry configuration for backend fetches
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".xdumper")

	return &Config{
		Store: StoreConfig{
			Path: filepath.Join(dataDir, "posts.db"),
		},
		Backend: BackendConfig{
			Kind:      "api",
			Timeout:   30 * time.Second,
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		},
		Browser: BrowserConfig{
			ProfileDir: filepath.Join(dataDir, "chrome-profile"),
			Headless:   true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from XDUMPER_* environment variables
func (c *Config) LoadFromEnv() error {
	if path := os.Getenv("XDUMPER_STORE"); path != "" {
		c.Store.Path = path
	}
	if kind := os.Getenv("XDUMPER_BACKEND"); kind != "" {
		c.Backend.Kind = kind
	}
	if proxy := os.Getenv("XDUMPER_PROXY"); proxy != "" {
		c.Backend.Proxy = proxy
	}
	if account := os.Getenv("XDUMPER_ACCOUNT"); account != "" {
		c.Backend.Account = account
	}
	if userAgent := os.Getenv("XDUMPER_USER_AGENT"); userAgent != "" {
		c.Backend.UserAgent = userAgent
	}
	if profile := os.Getenv("XDUMPER_CHROME_PROFILE"); profile != "" {
		c.Browser.ProfileDir = profile
	}
	if headless := os.Getenv("XDUMPER_HEADLESS"); headless != "" {
		c.Browser.Headless = strings.ToLower(headless) == "true"
	}
	if rpm := os.Getenv("XDUMPER_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if attempts := os.Getenv("XDUMPER_MAX_RETRIES"); attempts != "" {
		if val, err := strconv.Atoi(attempts); err == nil && val >= 0 {
			c.Retry.MaxAttempts = val
		}
	}
	if logLevel := os.Getenv("XDUMPER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".xdumper.yaml",
		".xdumper.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "xdumper", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "xdumper", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".xdumper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Path == "" {
		errs = append(errs, errors.New("store path is required"))
	}

	switch c.Backend.Kind {
	case "api", "browser":
	default:
		errs = append(errs, fmt.Errorf("unknown backend kind: %q", c.Backend.Kind))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend timeout must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("max retry attempts cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if path, ok := flags["store"].(string); ok && path != "" {
		c.Store.Path = path
	}
	if kind, ok := flags["backend"].(string); ok && kind != "" {
		c.Backend.Kind = kind
	}
	if proxy, ok := flags["proxy"].(string); ok && proxy != "" {
		c.Backend.Proxy = proxy
	}
	if account, ok := flags["account"].(string); ok && account != "" {
		c.Backend.Account = account
	}
	if rpm, ok := flags["rate-limit"].(int); ok && rpm > 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".xdumper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
