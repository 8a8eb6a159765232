package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when the selected provider has no API key configured.
var ErrNoAPIKey = errors.New("no API key configured")

// envVar returns the environment variable that carries the provider's key.
// Bedrock uses the AWS credential chain and has none.
func envVar(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	default:
		return ""
	}
}

func configured(cfg *Config, provider string) string {
	if cfg == nil {
		return ""
	}
	var raw string
	switch provider {
	case ProviderAnthropic:
		raw = cfg.Anthropic.APIKey
	case ProviderGoogle:
		raw = cfg.Google.APIKey
	}
	key := os.ExpandEnv(raw)
	if strings.HasPrefix(key, "${") {
		return ""
	}
	return key
}

// GetAPIKey returns the API key for a provider.
// It checks in order: environment variable, config file.
func GetAPIKey(cfg *Config, provider string) (string, error) {
	if name := envVar(provider); name != "" {
		if key := os.Getenv(name); key != "" {
			return key, nil
		}
	}
	if key := configured(cfg, provider); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w for provider %s", ErrNoAPIKey, provider)
}

// ValidateAPIKey performs basic format validation on a provider's API key.
// It does not contact the provider.
func ValidateAPIKey(provider, key string) error {
	if key == "" {
		return ErrNoAPIKey
	}
	switch provider {
	case ProviderAnthropic:
		if !strings.HasPrefix(key, "sk-ant-") {
			return errors.New("invalid API key format: expected 'sk-ant-' prefix")
		}
	case ProviderGoogle:
		if !strings.HasPrefix(key, "AIza") {
			return errors.New("invalid API key format: expected 'AIza' prefix")
		}
	}
	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}
	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// GetAPIKeySource returns where the provider's API key was sourced from.
func GetAPIKeySource(cfg *Config, provider string) KeySource {
	if name := envVar(provider); name != "" && os.Getenv(name) != "" {
		return KeySourceEnv
	}
	if configured(cfg, provider) != "" {
		return KeySourceConfig
	}
	return KeySourceNone
}
