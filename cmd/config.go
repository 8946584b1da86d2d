package cmd

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/chew-z/vision-dispatch/internal/config"
	"github.com/spf13/cobra"
)

var configKeys = []string{
	"api_key",
	"base_url",
	"host",
	"port",
	"max_attempts",
	"retry_delay",
	"attempt_timeout",
	"request_timeout",
	"max_concurrency",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage configuration settings for vision-dispatch.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a configuration value. Supported keys:
- api_key: Your Groq API key
- base_url: OpenAI-compatible base URL (default: https://api.groq.com/openai/v1)
- host: Host to bind server to (default: 127.0.0.1)
- port: Port to listen on (default: 8000)
- max_attempts: Attempts per backend on transient errors (default: 3)
- retry_delay: Pause between attempts, e.g. 5s
- attempt_timeout: Timeout of a single attempt, e.g. 60s
- request_timeout: Overall deadline for one upload, e.g. 3m
- max_concurrency: Backends queried at once, 0 for all`,
	Args: cobra.ExactArgs(2),
	Run:  runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Long: `Get a configuration value. Supported keys:
- ` + strings.Join(configKeys, "\n- ") + `

The API key is always masked.`,
	Args: cobra.ExactArgs(1),
	Run:  runConfigGet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
}

func runConfigSet(cmd *cobra.Command, args []string) {
	key, value := args[0], args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := setConfigValue(cfg, key, value); err != nil {
		log.Fatal(err)
	}

	if err := config.Save(cfg); err != nil {
		log.Fatalf("Failed to save configuration: %v", err)
	}

	fmt.Printf("Configuration updated: %s = %s\n", key, maskIfAPIKey(key, value))
}

func runConfigGet(cmd *cobra.Command, args []string) {
	key := args[0]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	value, err := getConfigValue(cfg, key)
	if err != nil {
		log.Fatal(err)
	}

	if value == "" {
		fmt.Printf("%s is not set\n", key)
	} else {
		fmt.Printf("%s = %s\n", key, value)
	}
}

// setConfigValue parses value for key and stores it in cfg
func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "api_key":
		cfg.APIKey = value
	case "base_url":
		cfg.BaseURL = value
	case "host":
		cfg.Host = value
	case "port":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("invalid port value: %s. Must be an integer between 1 and 65535", value)
		}
		cfg.Port = n
	case "max_attempts":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid max_attempts value: %s. Must be a positive integer", value)
		}
		cfg.MaxAttempts = n
	case "max_concurrency":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid max_concurrency value: %s. Must be zero or a positive integer", value)
		}
		cfg.MaxConcurrency = n
	case "retry_delay", "attempt_timeout", "request_timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid %s value: %s. Must be a duration such as 5s", key, value)
		}
		switch key {
		case "retry_delay":
			cfg.RetryDelay = d
		case "attempt_timeout":
			cfg.AttemptTimeout = d
		default:
			cfg.RequestTimeout = d
		}
	default:
		return invalidKeyError(key)
	}
	return nil
}

// getConfigValue renders the value of key, masking the API key
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch key {
	case "api_key":
		return maskIfAPIKey(key, cfg.APIKey), nil
	case "base_url":
		return cfg.BaseURL, nil
	case "host":
		return cfg.Host, nil
	case "port":
		return intOrEmpty(cfg.Port), nil
	case "max_attempts":
		return intOrEmpty(cfg.MaxAttempts), nil
	case "max_concurrency":
		return strconv.Itoa(cfg.MaxConcurrency), nil
	case "retry_delay":
		return cfg.RetryDelay.String(), nil
	case "attempt_timeout":
		return cfg.AttemptTimeout.String(), nil
	case "request_timeout":
		return cfg.RequestTimeout.String(), nil
	default:
		return "", invalidKeyError(key)
	}
}

func invalidKeyError(key string) error {
	return fmt.Errorf("invalid key: %s. Valid keys are: %s", key, strings.Join(configKeys, ", "))
}

func intOrEmpty(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func maskIfAPIKey(key, value string) string {
	if key == "api_key" && value != "" {
		return "********"
	}
	return value
}
