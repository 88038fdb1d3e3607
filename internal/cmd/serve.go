package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lostmyalias/skyspoofer-trial-bot/internal/config"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/discord"
	errwrap "github.com/lostmyalias/skyspoofer-trial-bot/internal/errors"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/linking"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/metrics"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/notify"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/observability"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/ratelimit"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/server"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/server/handlers"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/store"
)

var (
	serverPort int
	serverHost string
)

// storeHealthChecker verifies the key-value store is reachable
type storeHealthChecker struct {
	kv store.KV
}

func (s storeHealthChecker) CheckHealth(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	case i.configName == "":
		return errwrap.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the OAuth callback server",
	Long: `Start the HTTP server handling the Discord OAuth callback.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (placeholder - restart recommended)

The server will cleanly shut down the HTTP server, close the store, and
flush logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get app identity for telemetry namespace
		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		// Initialize server logger with namespace
		logLevel := viper.GetString("logging.level")
		observability.InitServerLogger(identity.BinaryName, logLevel, namespace)

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			observability.ServerLogger.Error("Failed to load configuration", zap.Error(err))
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "config load failed")
		}
		if err := cfg.Validate(); err != nil {
			observability.ServerLogger.Error("Invalid configuration", zap.Error(err))
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "config validation failed")
		}

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = 9090
		}

		// Initialize metrics with namespace
		if err := observability.InitMetrics(identity.BinaryName, metricsPort, namespace); err != nil {
			observability.ServerLogger.Error("Failed to initialize metrics",
				zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
		}

		host := cfg.Server.Host
		if serverHost != "" {
			host = serverHost
		}
		port := cfg.Server.Port
		if serverPort != 0 {
			port = serverPort
		}

		observability.ServerLogger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", host),
			zap.Int("port", port),
			zap.String("store_driver", cfg.Store.Driver),
			zap.Int("metrics_port", metricsPort))

		// Open the shared key-value store
		kv, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			observability.ServerLogger.Error("Failed to open store", zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "store open failed")
		}

		// Assemble the linking pipeline
		limiter := ratelimit.New(cfg.RateLimit)

		identityClient, err := discord.New(cfg.Discord)
		if err != nil {
			_ = kv.Close()
			observability.ServerLogger.Error("Failed to build Discord client", zap.Error(err))
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "discord client setup failed")
		}

		notifier := notify.NewWebhook(cfg.Notify)

		service := linking.NewService(kv, limiter, identityClient, identityClient, notifier, cfg.Linking)
		callback := handlers.NewCallbackHandler(service)

		// Initialize health manager
		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("store", storeHealthChecker{kv: kv})
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		hm.RegisterChecker("app_identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})

		// Create server
		srv := server.New(host, port, callback)

		// Set app identity for handlers
		handlers.SetAppIdentity(identity)

		// Get shutdown timeout from config
		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Periodic gauge refresh for the key pool and limiter
		gaugeCtx, cancelGauges := context.WithCancel(cmd.Context())
		go refreshGauges(gaugeCtx, kv, limiter)

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		// Handler 2: Close the store
		signals.OnShutdown(func(ctx context.Context) error {
			cancelGauges()
			observability.ServerLogger.Info("Closing store...")
			if err := kv.Close(); err != nil {
				observability.ServerLogger.Warn("Store close returned error", zap.Error(err))
			}
			return nil
		})

		// Handler 3: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			// Attempt to reload configuration
			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					observability.ServerLogger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				observability.ServerLogger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			observability.ServerLogger.Info("Configuration reloaded successfully",
				zap.String("file", viper.ConfigFileUsed()))

			// TODO: Propagate rate limit and redirect changes without restart
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		// Start server in background goroutine
		errChan := make(chan error, 1)
		go func() {
			observability.ServerLogger.Info("Starting HTTP server...",
				zap.String("host", host),
				zap.Int("port", port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		// Start signal listener in background
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		// Wait for error or shutdown completion
		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

// refreshGauges periodically samples the key pool size and tracked limiter
// addresses. Scanning the pool is cheap at trial-pool scale.
func refreshGauges(ctx context.Context, kv store.KV, limiter *ratelimit.Limiter) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			keys, err := kv.Scan(ctx, linking.PrefixKey)
			if err == nil {
				metrics.SetKeyPoolSize(int64(len(keys)))
			}
			metrics.SetRateLimitAddresses(int64(limiter.Tracked()))
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (overrides config)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "server port (overrides config)")
}
