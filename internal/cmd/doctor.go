package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/config"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/linking"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the system and suggest fixes for common issues.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		identity := GetAppIdentity()
		bannerName := "doctor"
		if identity != nil && identity.BinaryName != "" {
			bannerName = identity.BinaryName + " doctor"
		}
		observability.CLILogger.Info("=== " + bannerName + " ===")
		observability.CLILogger.Info("")
		observability.CLILogger.Info("Running diagnostic checks...")
		observability.CLILogger.Info("")

		allChecks := true
		totalChecks := 8

		// Check 1: Go version
		goVersion := runtime.Version()
		if goVersion >= "go1.23" {
			observability.CLILogger.Info(fmt.Sprintf("[1/%d] Checking Go version... ✅ %s", totalChecks, goVersion), zap.String("go_version", goVersion))
		} else {
			observability.CLILogger.Warn(fmt.Sprintf("[1/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", totalChecks, goVersion), zap.String("go_version", goVersion))
			allChecks = false
		}

		// Check 2: Crucible access
		version := crucible.GetVersion()
		if version.Crucible != "" {
			observability.CLILogger.Info(fmt.Sprintf("[2/%d] Checking Crucible access... ✅ v%s", totalChecks, version.Crucible), zap.String("crucible_version", version.Crucible))
		} else {
			observability.CLILogger.Error(fmt.Sprintf("[2/%d] Checking Crucible access... ❌ Cannot access Crucible", totalChecks))
			allChecks = false
		}

		// Check 3: Gofulmen access
		if version.Gofulmen != "" {
			observability.CLILogger.Info(fmt.Sprintf("[3/%d] Checking Gofulmen access... ✅ v%s", totalChecks, version.Gofulmen), zap.String("gofulmen_version", version.Gofulmen))
		} else {
			observability.CLILogger.Error(fmt.Sprintf("[3/%d] Checking Gofulmen access... ❌ Cannot access Gofulmen", totalChecks))
			allChecks = false
		}

		// Check 4: Config directory
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			observability.CLILogger.Error(fmt.Sprintf("[4/%d] Checking config directory... ❌ Cannot resolve config directory", totalChecks))
			allChecks = false
		} else {
			configDir := filepath.Dir(configPath)
			observability.CLILogger.Info(fmt.Sprintf("[4/%d] Checking config directory... ✅ %s", totalChecks, configDir), zap.String("config_dir", configDir))
		}

		// Check 5: Environment
		observability.CLILogger.Info(fmt.Sprintf("[5/%d] Checking environment... ✅ %s/%s", totalChecks, runtime.GOOS, runtime.GOARCH),
			zap.String("os", runtime.GOOS),
			zap.String("arch", runtime.GOARCH))

		// Check 6: Store
		cfg, cfgErr := config.Load(ctx)
		if cfgErr != nil {
			observability.CLILogger.Warn(fmt.Sprintf("[6/%d] Checking store... ⚠️  config not loaded", totalChecks), zap.Error(cfgErr))
			allChecks = false
		} else if cfg.Store.URL != "" || cfg.Store.Driver == "redis" {
			kv, openErr := openStore(ctx)
			if openErr != nil {
				observability.CLILogger.Warn(fmt.Sprintf("[6/%d] Checking store... ⚠️  cannot open (%v)", totalChecks, openErr), zap.Error(openErr))
				allChecks = false
			} else {
				pingErr := kv.Ping(ctx)
				_ = kv.Close()
				if pingErr != nil {
					observability.CLILogger.Warn(fmt.Sprintf("[6/%d] Checking store... ⚠️  unreachable (%v)", totalChecks, pingErr), zap.Error(pingErr))
					allChecks = false
				} else {
					observability.CLILogger.Info(fmt.Sprintf("[6/%d] Checking store... ✅ %s (remote)", totalChecks, cfg.Store.Driver),
						zap.String("store_driver", cfg.Store.Driver))
				}
			}
		} else {
			dbPath := cfg.Store.Path
			if dbPath == "" {
				dbPath = config.DefaultStorePath()
			}
			// Resolve to absolute path for clarity
			absPath, _ := filepath.Abs(dbPath)
			if info, statErr := os.Stat(absPath); statErr == nil {
				observability.CLILogger.Info(fmt.Sprintf("[6/%d] Checking store... ✅ %s (%d bytes)", totalChecks, absPath, info.Size()),
					zap.String("store_path", absPath),
					zap.Int64("store_size", info.Size()))
			} else if os.IsNotExist(statErr) {
				observability.CLILogger.Warn(fmt.Sprintf("[6/%d] Checking store... ⚠️  %s (not created yet)", totalChecks, absPath),
					zap.String("store_path", absPath))
			} else {
				observability.CLILogger.Warn(fmt.Sprintf("[6/%d] Checking store... ⚠️  %s (error: %v)", totalChecks, absPath, statErr),
					zap.String("store_path", absPath),
					zap.Error(statErr))
				allChecks = false
			}
		}

		// Check 7: Discord credentials
		if cfgErr == nil {
			if validationErr := cfg.Validate(); validationErr != nil {
				observability.CLILogger.Warn(fmt.Sprintf("[7/%d] Checking Discord credentials... ⚠️  %v", totalChecks, validationErr))
				observability.CLILogger.Info("       The serve command requires client id, client secret, bot token, and redirect URI.")
				allChecks = false
			} else {
				observability.CLILogger.Info(fmt.Sprintf("[7/%d] Checking Discord credentials... ✅ configured", totalChecks))
			}
		} else {
			observability.CLILogger.Warn(fmt.Sprintf("[7/%d] Checking Discord credentials... ⚠️  skipped (config not loaded)", totalChecks))
		}

		// Check 8: Key pool
		if cfgErr == nil {
			kv, openErr := openStore(ctx)
			if openErr != nil {
				observability.CLILogger.Warn(fmt.Sprintf("[8/%d] Checking key pool... ⚠️  cannot open store", totalChecks), zap.Error(openErr))
				allChecks = false
			} else {
				keys, scanErr := kv.Scan(ctx, linking.PrefixKey)
				_ = kv.Close()
				switch {
				case scanErr != nil:
					observability.CLILogger.Warn(fmt.Sprintf("[8/%d] Checking key pool... ⚠️  cannot read pool", totalChecks), zap.Error(scanErr))
					allChecks = false
				case len(keys) == 0:
					observability.CLILogger.Warn(fmt.Sprintf("[8/%d] Checking key pool... ⚠️  empty (add keys with 'keys add')", totalChecks))
				default:
					observability.CLILogger.Info(fmt.Sprintf("[8/%d] Checking key pool... ✅ %d key(s) available", totalChecks, len(keys)),
						zap.Int("pool_size", len(keys)))
				}
			}
		} else {
			observability.CLILogger.Warn(fmt.Sprintf("[8/%d] Checking key pool... ⚠️  skipped (config not loaded)", totalChecks))
		}

		observability.CLILogger.Info("")
		if allChecks {
			appName := "trialbot"
			if identity != nil && identity.BinaryName != "" {
				appName = identity.BinaryName
			}
			observability.CLILogger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", appName))
		} else {
			observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		observability.CLILogger.Info("")
		observability.CLILogger.Info("=== End Diagnostics ===")
	},
}

var doctorInitForce bool

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		contents := strings.Join([]string{
			"server:",
			"  host: localhost",
			"  port: 8080",
			"",
			"store:",
			"  driver: libsql",
			"",
			"discord:",
			"  client_id: \"\"",
			"  client_secret: \"\"",
			"  bot_token: \"\"",
			"  redirect_uri: \"\"",
			"",
			"linking:",
			"  redirect_url: https://skyspoofer.com",
			"",
			"rate_limit:",
			"  limit: 5",
			"  window: 1m",
			"",
			"notify:",
			"  webhook_url: \"\"",
			"",
		}, "\n")

		if err := os.WriteFile(configPath, []byte(contents), 0600); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "Overwrite an existing config file")
}
