package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// Transport constants
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// EnvPrefix is the prefix of every environment variable read by LoadSettings.
const EnvPrefix = "REPOGREP_MCP"

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// SearchSettings configuration for repository search
type SearchSettings struct {
	RootDir        string        `mapstructure:"root_dir"`
	ContextLines   int           `mapstructure:"context_lines"`
	MaxParallel    int           `mapstructure:"max_parallel"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	DefaultCount   int           `mapstructure:"default_count"`
	MaxCount       int           `mapstructure:"max_count"`
	MaxBlobSize    int64         `mapstructure:"max_blob_size"`
}

// MetricsSettings configuration for the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool `mapstructure:"enabled"`
}

// Settings application settings
type Settings struct {
	Transport string          `mapstructure:"transport"`
	Host      string          `mapstructure:"host"`
	Port      int             `mapstructure:"port"`
	Auth      AuthSettings    `mapstructure:"auth"`
	Search    SearchSettings  `mapstructure:"search"`
	Metrics   MetricsSettings `mapstructure:"metrics"`
}

// flagBindings maps config keys to CLI flag names.
var flagBindings = map[string]string{
	"transport":              "transport",
	"host":                   "host",
	"port":                   "port",
	"auth.type":              "auth-type",
	"auth.basic.username":    "auth-basic-username",
	"auth.basic.password":    "auth-basic-password",
	"auth.api_keys":          "auth-api-keys",
	"search.root_dir":        "root-dir",
	"search.context_lines":   "context-lines",
	"search.max_parallel":    "max-parallel",
	"search.command_timeout": "command-timeout",
	"search.default_count":   "default-count",
	"search.max_count":       "max-count",
	"search.max_blob_size":   "max-blob-size",
	"metrics.enabled":        "metrics-enabled",
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", TransportStdio)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("auth.type", AuthTypeNone)

	// Search defaults
	v.SetDefault("search.root_dir", ".")
	v.SetDefault("search.context_lines", 3)
	v.SetDefault("search.max_parallel", 4)
	v.SetDefault("search.command_timeout", 30*time.Second)
	v.SetDefault("search.default_count", 20)
	v.SetDefault("search.max_count", 200)
	v.SetDefault("search.max_blob_size", int64(256*1024)) // 256KB

	v.SetDefault("metrics.enabled", false)

	// Environment variables, e.g. search.root_dir -> REPOGREP_MCP_SEARCH_ROOT_DIR
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key := range flagBindings {
		_ = v.BindEnv(key, EnvVarName(key))
	}

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		for key, name := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Handle explicit parsing of API keys if provided via env var as comma-separated string
	apiKeysEnv := os.Getenv(EnvVarName("auth.api_keys"))
	if apiKeysEnv != "" {
		if len(settings.Auth.APIKeys) == 0 || (len(settings.Auth.APIKeys) == 1 && strings.Contains(settings.Auth.APIKeys[0], ",")) {
			settings.Auth.APIKeys = strings.Split(apiKeysEnv, ",")
		}
	}

	// Trim spaces from API keys
	for i := range settings.Auth.APIKeys {
		settings.Auth.APIKeys[i] = strings.TrimSpace(settings.Auth.APIKeys[i])
	}
	settings.Auth.APIKeys = filterEmptyStrings(settings.Auth.APIKeys)

	settings.Search.RootDir = expandHomeDir(settings.Search.RootDir)
	if abs, err := filepath.Abs(settings.Search.RootDir); err == nil {
		settings.Search.RootDir = abs
	}

	return &settings, nil
}

// EnvVarName returns the environment variable bound to a config key.
func EnvVarName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// filterEmptyStrings removes empty strings from a slice
func filterEmptyStrings(s []string) []string {
	var result []string
	for _, str := range s {
		if str != "" {
			result = append(result, str)
		}
	}
	return result
}

// ValidateSettings checks for conflicting configurations.
// Returns an error if the settings contain mutually exclusive or incomplete auth config,
// or search limits that cannot work.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case TransportStdio, TransportSSE:
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	if err := validateAuthSettings(&s.Auth); err != nil {
		return err
	}

	return validateSearchSettings(&s.Search)
}

func validateAuthSettings(a *AuthSettings) error {
	hasBasicCreds := a.Basic.Username != "" || a.Basic.Password != ""
	hasAPIKeys := len(a.APIKeys) > 0

	switch a.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if a.Basic.Username == "" || a.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + a.Type)
	}
	return nil
}

// validateSearchSettings validates the search configuration
func validateSearchSettings(s *SearchSettings) error {
	if s.RootDir == "" {
		return errors.New("root-dir cannot be empty")
	}
	info, err := os.Stat(s.RootDir)
	if err != nil {
		return fmt.Errorf("root-dir is not accessible: %w", err)
	}
	if !info.IsDir() {
		return errors.New("root-dir must be a directory: " + s.RootDir)
	}

	if s.ContextLines < 0 {
		return errors.New("context-lines cannot be negative")
	}

	if s.MaxParallel <= 0 {
		return errors.New("max-parallel must be positive")
	}

	if s.CommandTimeout <= 0 {
		return errors.New("command-timeout must be positive")
	}

	if s.DefaultCount <= 0 {
		return errors.New("default-count must be positive")
	}

	if s.MaxCount < s.DefaultCount {
		return errors.New("max-count must be at least default-count")
	}

	if s.MaxBlobSize <= 0 {
		return errors.New("max-blob-size must be positive")
	}

	return nil
}
