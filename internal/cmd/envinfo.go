package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/config"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display comprehensive environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()

		observability.CLILogger.Info("=== Trial Bot Environment Information ===")
		observability.CLILogger.Info("")

		// Application Info
		identity := GetAppIdentity()
		observability.CLILogger.Info("Application:")
		observability.CLILogger.Info("  Name:       " + identity.BinaryName)
		observability.CLILogger.Info("  Version:    " + versionInfo.Version)
		observability.CLILogger.Info("  Commit:     " + versionInfo.Commit)
		observability.CLILogger.Info("  Built:      " + versionInfo.BuildDate)
		observability.CLILogger.Info("")

		// SSOT Info
		observability.CLILogger.Info("SSOT:")
		observability.CLILogger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		observability.CLILogger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		observability.CLILogger.Info("")

		// Runtime Info
		observability.CLILogger.Info("Runtime:")
		observability.CLILogger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		observability.CLILogger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		observability.CLILogger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		observability.CLILogger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		observability.CLILogger.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
			return
		}

		// Configuration
		observability.CLILogger.Info("Configuration:")
		observability.CLILogger.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		observability.CLILogger.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		observability.CLILogger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		observability.CLILogger.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		observability.CLILogger.Info("  Store Driver:   "+cfg.Store.Driver, zap.String("store_driver", cfg.Store.Driver))
		switch {
		case strings.TrimSpace(cfg.Store.URL) != "":
			observability.CLILogger.Info("  Store URL:      "+cfg.Store.URL, zap.String("store_url", cfg.Store.URL))
		case cfg.Store.Driver == "redis":
			observability.CLILogger.Info("  Redis Addr:     "+cfg.Store.Redis.Addr, zap.String("redis_addr", cfg.Store.Redis.Addr))
		default:
			observability.CLILogger.Info("  Store Path:     "+cfg.Store.Path, zap.String("store_path", cfg.Store.Path))
		}
		observability.CLILogger.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		observability.CLILogger.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		observability.CLILogger.Info("")

		// Linking policy
		observability.CLILogger.Info("Linking:")
		observability.CLILogger.Info("  Redirect URL:   "+cfg.Linking.RedirectURL, zap.String("redirect_url", cfg.Linking.RedirectURL))
		observability.CLILogger.Info("  Call Timeout:   " + cfg.Linking.CallTimeout.String())
		observability.CLILogger.Info(fmt.Sprintf("  Rate Limit:     %d per %s", cfg.RateLimit.Limit, cfg.RateLimit.Window))
		observability.CLILogger.Info("")

		// Discord credential presence (never the values)
		observability.CLILogger.Info("Discord:")
		observability.CLILogger.Info("  Client ID:      " + setOrNot(cfg.Discord.ClientID))
		observability.CLILogger.Info("  Client Secret:  " + setOrNot(cfg.Discord.ClientSecret))
		observability.CLILogger.Info("  Bot Token:      " + setOrNot(cfg.Discord.BotToken))
		observability.CLILogger.Info("  Redirect URI:   " + cfg.Discord.RedirectURI)
		observability.CLILogger.Info("  Staff Webhook:  " + setOrNot(cfg.Notify.WebhookURL))
		observability.CLILogger.Info("")

		observability.CLILogger.Info("=== End Environment Information ===")
	},
}

func setOrNot(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(not set)"
	}
	return "(set)"
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
