// Package config provides centralized configuration management for the
// trial bot. Values are layered in priority order: compiled defaults,
// the user config file (discovered via app identity), then environment
// variables prefixed with the app identity env prefix.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/lostmyalias/skyspoofer-trial-bot/internal/appid"
)

var (
	// appConfig holds the current application configuration
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// Load assembles the typed configuration from the current viper state
// (defaults, config file, bound flags) plus environment variable overrides.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	// Get app identity if not already loaded
	if appIdentity == nil {
		identity, err := appid.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load app identity: %w", err)
		}
		appIdentity = identity
	}

	// Base layer is whatever viper has already accumulated: defaults set by
	// the cmd layer, the config file if one was found, and bound flags.
	merged := viper.AllSettings()

	// Environment variable overrides sit above the file layer
	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	mergeSettings(merged, envOverrides)

	// Runtime overrides (tests, admin tooling) win over everything
	for _, overrides := range runtimeOverrides {
		mergeSettings(merged, overrides)
	}

	// Unmarshal into typed config struct
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	// Store the loaded config
	setConfig(cfg)

	return cfg, nil
}

// Validate checks the fields the serve command cannot run without. CLI
// subcommands that only touch the store skip this.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Discord.ClientID) == "" {
		missing = append(missing, "discord.client_id")
	}
	if strings.TrimSpace(c.Discord.ClientSecret) == "" {
		missing = append(missing, "discord.client_secret")
	}
	if strings.TrimSpace(c.Discord.BotToken) == "" {
		missing = append(missing, "discord.bot_token")
	}
	if strings.TrimSpace(c.Discord.RedirectURI) == "" {
		missing = append(missing, "discord.redirect_uri")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// mergeSettings deep-merges src into dst. Map values merge recursively;
// everything else overwrites.
func mergeSettings(dst, src map[string]any) {
	for key, value := range src {
		if srcMap, ok := value.(map[string]any); ok {
			if dstMap, ok := dst[key].(map[string]any); ok {
				mergeSettings(dstMap, srcMap)
				continue
			}
		}
		dst[key] = value
	}
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	if appIdentity == nil {
		return []EnvVarSpec{}
	}

	prefix := appIdentity.EnvPrefix
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		// Logging config (REQUIRED per Workhorse Standard)
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},
		{Name: prefix + "REDIS_ADDR", Path: []string{"store", "redis", "addr"}, Type: EnvString},
		{Name: prefix + "REDIS_PASSWORD", Path: []string{"store", "redis", "password"}, Type: EnvString},
		{Name: prefix + "REDIS_DB", Path: []string{"store", "redis", "db"}, Type: EnvInt},

		// Discord application credentials
		{Name: prefix + "DISCORD_CLIENT_ID", Path: []string{"discord", "client_id"}, Type: EnvString},
		{Name: prefix + "DISCORD_CLIENT_SECRET", Path: []string{"discord", "client_secret"}, Type: EnvString},
		{Name: prefix + "DISCORD_BOT_TOKEN", Path: []string{"discord", "bot_token"}, Type: EnvString},
		{Name: prefix + "DISCORD_REDIRECT_URI", Path: []string{"discord", "redirect_uri"}, Type: EnvString},
		{Name: prefix + "DISCORD_API_BASE", Path: []string{"discord", "api_base"}, Type: EnvString},
		{Name: prefix + "DISCORD_TIMEOUT", Path: []string{"discord", "timeout"}, Type: EnvString},
		{Name: prefix + "DISCORD_MESSAGE_TEMPLATE", Path: []string{"discord", "message_template"}, Type: EnvString},

		// Linking policy
		{Name: prefix + "REDIRECT_URL", Path: []string{"linking", "redirect_url"}, Type: EnvString},
		{Name: prefix + "CALL_TIMEOUT", Path: []string{"linking", "call_timeout"}, Type: EnvString},

		// Rate limit policy
		{Name: prefix + "RATE_LIMIT", Path: []string{"rate_limit", "limit"}, Type: EnvInt},
		{Name: prefix + "RATE_WINDOW", Path: []string{"rate_limit", "window"}, Type: EnvString},
		{Name: prefix + "RATE_MAX_ADDRESSES", Path: []string{"rate_limit", "max_addresses"}, Type: EnvInt},

		// Staff notifications
		{Name: prefix + "WEBHOOK_URL", Path: []string{"notify", "webhook_url"}, Type: EnvString},
		{Name: prefix + "WEBHOOK_TIMEOUT", Path: []string{"notify", "timeout"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},

		// Debug config
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
		{Name: prefix + "DEBUG_PPROF_ENABLED", Path: []string{"debug", "pprof_enabled"}, Type: EnvBool},
	}
}

// appNamesForPaths returns the config name and binary name from app identity,
// falling back to "trialbot" if not set.
func appNamesForPaths() (configName string, binaryName string) {
	configName = "trialbot"
	binaryName = "trialbot"
	if appIdentity == nil {
		return configName, binaryName
	}

	if strings.TrimSpace(appIdentity.ConfigName) != "" {
		configName = appIdentity.ConfigName
	}
	if strings.TrimSpace(appIdentity.BinaryName) != "" {
		binaryName = appIdentity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppDataDir(configName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}
