package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chew-z/vision-dispatch/internal/models"
	"github.com/chew-z/vision-dispatch/internal/vision"
	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned by Validate when no credential is configured
var ErrMissingAPIKey = errors.New("API key is not configured")

// Config holds the application configuration
type Config struct {
	APIKey         string           `mapstructure:"api_key"`
	BaseURL        string           `mapstructure:"base_url"`
	Host           string           `mapstructure:"host"`
	Port           int              `mapstructure:"port"`
	Debug          bool             `mapstructure:"debug"`
	Verbose        bool             `mapstructure:"verbose"` // Enable terminal output (default: quiet, logs to file only)
	MaxAttempts    int              `mapstructure:"max_attempts"`
	RetryDelay     time.Duration    `mapstructure:"retry_delay"`
	AttemptTimeout time.Duration    `mapstructure:"attempt_timeout"`
	RequestTimeout time.Duration    `mapstructure:"request_timeout"`
	MaxConcurrency int              `mapstructure:"max_concurrency"`
	MaxQueryLength int              `mapstructure:"max_query_length"`
	MaxUploadBytes int64            `mapstructure:"max_upload_bytes"`
	MaxImagePixels int64            `mapstructure:"max_image_pixels"`
	AllowedOrigins []string         `mapstructure:"allowed_origins"`
	Backends       []models.Backend `mapstructure:"backends"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		APIKey:         "",
		BaseURL:        "https://api.groq.com/openai/v1",
		Host:           "127.0.0.1",
		Port:           8000,
		MaxAttempts:    3,
		RetryDelay:     5 * time.Second,
		AttemptTimeout: 60 * time.Second,
		RequestTimeout: 3 * time.Minute,
		MaxUploadBytes: 20 << 20,
		MaxImagePixels: vision.DefaultMaxPixels,
	}
}

// Load loads configuration with precedence: ENV vars > config file > defaults
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return LoadFrom(configDir)
}

// LoadFrom is Load with an explicit config directory
func LoadFrom(configDir string) (*Config, error) {
	v := viper.New()

	// Set defaults
	defaultCfg := DefaultConfig()
	v.SetDefault("api_key", defaultCfg.APIKey)
	v.SetDefault("base_url", defaultCfg.BaseURL)
	v.SetDefault("host", defaultCfg.Host)
	v.SetDefault("port", defaultCfg.Port)
	v.SetDefault("debug", defaultCfg.Debug)
	v.SetDefault("verbose", defaultCfg.Verbose)
	v.SetDefault("max_attempts", defaultCfg.MaxAttempts)
	v.SetDefault("retry_delay", defaultCfg.RetryDelay)
	v.SetDefault("attempt_timeout", defaultCfg.AttemptTimeout)
	v.SetDefault("request_timeout", defaultCfg.RequestTimeout)
	v.SetDefault("max_concurrency", defaultCfg.MaxConcurrency)
	v.SetDefault("max_query_length", defaultCfg.MaxQueryLength)
	v.SetDefault("max_upload_bytes", defaultCfg.MaxUploadBytes)
	v.SetDefault("max_image_pixels", defaultCfg.MaxImagePixels)
	v.SetDefault("allowed_origins", []string{})

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("VISION")
	v.AutomaticEnv()

	_ = v.BindEnv("api_key", "VISION_API_KEY")
	_ = v.BindEnv("base_url", "VISION_BASE_URL")
	_ = v.BindEnv("host", "VISION_HOST")
	_ = v.BindEnv("port", "VISION_PORT")
	_ = v.BindEnv("debug", "VISION_DEBUG")
	_ = v.BindEnv("max_attempts", "VISION_MAX_ATTEMPTS")
	_ = v.BindEnv("retry_delay", "VISION_RETRY_DELAY")
	_ = v.BindEnv("attempt_timeout", "VISION_ATTEMPT_TIMEOUT")
	_ = v.BindEnv("request_timeout", "VISION_REQUEST_TIMEOUT")
	_ = v.BindEnv("max_concurrency", "VISION_MAX_CONCURRENCY")
	_ = v.BindEnv("max_query_length", "VISION_MAX_QUERY_LENGTH")
	_ = v.BindEnv("max_upload_bytes", "VISION_MAX_UPLOAD_BYTES")
	_ = v.BindEnv("max_image_pixels", "VISION_MAX_IMAGE_PIXELS")
	_ = v.BindEnv("allowed_origins", "VISION_ALLOWED_ORIGINS")

	// Try to read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if apiKey := getAPIKeyFromEnv(); apiKey != "" {
		cfg.APIKey = apiKey
	}

	if len(cfg.Backends) == 0 {
		cfg.Backends = models.DefaultBackends()
	}

	return &cfg, nil
}

// Validate checks the invariants the dispatcher relies on
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative, got %s", c.RetryDelay)
	}
	if c.MaxImagePixels < 0 {
		return fmt.Errorf("max_image_pixels must not be negative, got %d", c.MaxImagePixels)
	}
	if len(c.Backends) == 0 {
		return errors.New("no backends configured")
	}

	seen := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if b.Key == "" {
			return fmt.Errorf("backend %d has an empty key", i)
		}
		if b.Model == "" {
			return fmt.Errorf("backend %s has an empty model", b.Key)
		}
		if seen[b.Key] {
			return fmt.Errorf("duplicate backend key: %s", b.Key)
		}
		seen[b.Key] = true
	}
	return nil
}

// ResolvedBackends returns the backends with endpoints and token limits filled in
func (c *Config) ResolvedBackends() []models.Backend {
	out := make([]models.Backend, 0, len(c.Backends))
	for _, b := range c.Backends {
		out = append(out, models.Resolve(b, c.BaseURL))
	}
	return out
}

// Save saves the configuration to file
func Save(cfg *Config) error {
	configDir, err := getConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}
	return SaveTo(configDir, cfg)
}

// SaveTo is Save with an explicit config directory
func SaveTo(configDir string, cfg *Config) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(configDir)

	v.Set("api_key", cfg.APIKey)
	v.Set("base_url", cfg.BaseURL)
	v.Set("host", cfg.Host)
	v.Set("port", cfg.Port)
	v.Set("debug", cfg.Debug)
	v.Set("max_attempts", cfg.MaxAttempts)
	v.Set("retry_delay", cfg.RetryDelay.String())
	v.Set("attempt_timeout", cfg.AttemptTimeout.String())
	v.Set("request_timeout", cfg.RequestTimeout.String())
	v.Set("max_concurrency", cfg.MaxConcurrency)
	v.Set("max_query_length", cfg.MaxQueryLength)
	v.Set("max_upload_bytes", cfg.MaxUploadBytes)
	v.Set("max_image_pixels", cfg.MaxImagePixels)
	if len(cfg.AllowedOrigins) > 0 {
		v.Set("allowed_origins", cfg.AllowedOrigins)
	}
	if len(cfg.Backends) > 0 {
		v.Set("backends", cfg.Backends)
	}

	configPath := filepath.Join(configDir, "config.json")
	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path (XDG-compliant)
func getConfigDir() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "vision-dispatch"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "vision-dispatch"), nil
}

// getAPIKeyFromEnv checks multiple environment variable names for API key
func getAPIKeyFromEnv() string {
	envVars := []string{
		"VISION_API_KEY",
		"GROQ_API_KEY",
	}

	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			return value
		}
	}

	return ""
}
