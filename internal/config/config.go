// Package config handles configuration loading and management for tod.
// It supports XDG config paths, project-level overrides, .env files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/erentorlak/todv2/internal/api"
)

// Providers accepted by llm.provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderGoogle    = "google"
	ProviderNone      = "none"
)

// Config holds all configuration for tod.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Google    GoogleConfig    `mapstructure:"google"`
	AWS       AWSConfig       `mapstructure:"aws"`
	Dialog    DialogConfig    `mapstructure:"dialog"`
	Store     StoreConfig     `mapstructure:"store"`
	Server    ServerConfig    `mapstructure:"server"`
}

// LLMConfig selects the language-model backend.
type LLMConfig struct {
	Provider string                `mapstructure:"provider"`
	Model    string                `mapstructure:"model"`
	Roles    map[string]RoleConfig `mapstructure:"roles"`
}

// RoleConfig holds sampling settings for one capability role.
type RoleConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// GoogleConfig holds Gemini API settings.
type GoogleConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// AWSConfig holds Bedrock settings.
type AWSConfig struct {
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

// DialogConfig holds engine settings.
type DialogConfig struct {
	MaxRetries          int    `mapstructure:"max_retries"`
	MaxParallel         int    `mapstructure:"max_parallel"`
	StrictCatalog       bool   `mapstructure:"strict_catalog"`
	CatalogPath         string `mapstructure:"catalog_path"`
	WatchCatalog        bool   `mapstructure:"watch_catalog"`
	ClassifierCacheSize int    `mapstructure:"classifier_cache_size"`
}

// StoreConfig holds session persistence settings.
type StoreConfig struct {
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// APIRoles converts the configured role settings into backend settings,
// filling unset roles from the built-in defaults.
func (c LLMConfig) APIRoles() map[api.Role]api.RoleSettings {
	roles := api.DefaultRoles()
	for name, rc := range c.Roles {
		r := api.Role(name)
		s := roles[r]
		if rc.Temperature != 0 {
			s.Temperature = rc.Temperature
		}
		if rc.MaxTokens != 0 {
			s.MaxTokens = rc.MaxTokens
		}
		roles[r] = s
	}
	return roles
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, GOOGLE_API_KEY, MODEL_NAME, TOD_*)
// 2. Project config (.tod.yaml in current directory or parent)
// 3. User config (~/.config/tod/config.yaml)
// 4. Built-in defaults
//
// A .env file in the working directory is loaded first; it never overrides
// variables already set in the environment.
func Load() (*Config, error) {
	loadDotEnv(".env")

	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	return decode(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("google.api_key", "GOOGLE_API_KEY")
	v.BindEnv("llm.model", "MODEL_NAME")
	v.BindEnv("aws.region", "AWS_REGION")
	v.BindEnv("aws.profile", "AWS_PROFILE")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Google.APIKey = expandEnv(cfg.Google.APIKey)
	cfg.Store.Path = expandEnv(cfg.Store.Path)
	cfg.Dialog.CatalogPath = expandEnv(cfg.Dialog.CatalogPath)
	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderBedrock, ProviderGoogle, ProviderNone:
	default:
		return fmt.Errorf("llm.provider: unknown provider %q (want anthropic, bedrock, google or none)", c.LLM.Provider)
	}
	if c.Dialog.MaxRetries < 1 {
		return fmt.Errorf("dialog.max_retries must be at least 1, got %d", c.Dialog.MaxRetries)
	}
	if c.Store.Retention < 0 {
		return fmt.Errorf("store.retention must not be negative")
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// loadDotEnv loads a .env file if one exists.
func loadDotEnv(path string) {
	if !fileExists(path) {
		return
	}
	if err := godotenv.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "warning: reading %s: %v\n", path, err)
	}
}

// Get returns the effective value of one key.
func Get(key string) (any, error) {
	loadDotEnv(".env")
	v := newViper()
	if path := GetUserConfigPath(); fileExists(path) {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}
	if !v.IsSet(key) {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	return v.Get(key), nil
}

// Set writes one key to the user config file.
func Set(key, value string) error {
	if !isKnownKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)
	if fileExists(configPath) {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading %s: %w", configPath, err)
		}
	}
	v.Set(key, value)
	return v.WriteConfigAs(configPath)
}

// Keys lists every configurable key.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}

func isKnownKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", ProviderAnthropic)
	v.SetDefault("llm.model", "")
	for role, s := range api.DefaultRoles() {
		v.SetDefault("llm.roles."+string(role)+".temperature", s.Temperature)
		v.SetDefault("llm.roles."+string(role)+".max_tokens", s.MaxTokens)
	}

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("google.api_key", "")
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")

	v.SetDefault("dialog.max_retries", 5)
	v.SetDefault("dialog.max_parallel", 0)
	v.SetDefault("dialog.strict_catalog", false)
	v.SetDefault("dialog.catalog_path", "")
	v.SetDefault("dialog.watch_catalog", true)
	v.SetDefault("dialog.classifier_cache_size", 256)

	v.SetDefault("store.path", "")
	v.SetDefault("store.retention", "0s")

	v.SetDefault("server.addr", ":8080")
}

// getUserConfigDir returns the XDG config directory for tod.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tod")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "tod")
	}
	return filepath.Join(home, ".config", "tod")
}

// defaultStorePath mirrors state.DefaultPath without importing the store.
func defaultStorePath() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "tod", "sessions.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "sessions.db")
	}
	return filepath.Join(home, ".local", "share", "tod", "sessions.db")
}

// findProjectConfig searches for .tod.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".tod.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	roles := make(map[string]RoleConfig)
	for role, s := range api.DefaultRoles() {
		roles[string(role)] = RoleConfig{Temperature: s.Temperature, MaxTokens: s.MaxTokens}
	}
	return &Config{
		LLM: LLMConfig{Provider: ProviderAnthropic, Roles: roles},
		Dialog: DialogConfig{
			MaxRetries:          5,
			WatchCatalog:        true,
			ClassifierCacheSize: 256,
		},
		Store: StoreConfig{
			Path:      defaultStorePath(),
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}
