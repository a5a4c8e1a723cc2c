package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"botrelay/internal/ai"
	"botrelay/internal/audit"
	"botrelay/internal/config"
	"botrelay/internal/domain"
	"botrelay/internal/identity"
	"botrelay/internal/platform"
	"botrelay/internal/relay"
	"botrelay/internal/server"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "botrelay",
		Short:   "botrelay: multi-tenant chat bot relay",
		Long:    "botrelay accepts Telegram and Bale webhook updates for many schools and relays them to the AI backend.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.botrelay/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook relay server",
		Long:  "Starts the webhook endpoints for all enabled platforms. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := identity.Open(identity.StoreConfig{
		DBPath:   cfg.Store.DBPath,
		TokenTTL: time.Duration(cfg.Store.CredentialCacheSeconds) * time.Second,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("identity store: %w", err)
	}
	defer store.Close()

	auditor := audit.New(store.DB(), logger)

	dispatcher := ai.New(ai.Config{
		CloudBase:   cfg.AI.CloudBase,
		LocalBase:   cfg.AI.LocalBase,
		APIKey:      cfg.AI.APIKey,
		IdleTimeout: time.Duration(cfg.AI.IdleTimeoutSeconds) * time.Second,
		Logger:      logger,
	})
	if err := dispatcher.Healthy(ctx); err != nil {
		logger.Warn("ai backend unhealthy at startup", "err", err)
	} else {
		logger.Info("ai backend healthy", "base", cfg.AI.CloudBase)
	}

	var adapters []domain.PlatformAdapter
	if cfg.Platforms.Telegram.Enabled {
		adapters = append(adapters, platform.NewTelegram(platform.TelegramConfig{
			APIBase: cfg.Platforms.Telegram.APIBase,
			Logger:  logger,
		}))
		logger.Info("platform enabled", "platform", domain.PlatformTelegram)
	}
	if cfg.Platforms.Bale.Enabled {
		adapters = append(adapters, platform.NewBale(platform.BaleConfig{
			APIBase: cfg.Platforms.Bale.APIBase,
			Logger:  logger,
		}))
		logger.Info("platform enabled", "platform", domain.PlatformBale)
	}

	// Updates outlive their webhook calls; this context is their lifetime.
	// Cancelled only after the drain window below so shutdown cuts any
	// remaining AI streams loose instead of abandoning them.
	relayCtx, relayCancel := context.WithCancel(context.Background())
	defer relayCancel()

	orch := relay.New(relay.Config{
		BaseContext:    relayCtx,
		Adapters:       adapters,
		Resolver:       store,
		Credentials:    store,
		Dispatcher:     dispatcher,
		Auditor:        auditor,
		Logger:         logger,
		MaxConcurrent:  cfg.Relay.MaxConcurrentUpdates,
		FlushThreshold: cfg.Relay.FlushThreshold,
		Fallback:       cfg.Relay.FallbackMessage,
	})

	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		Logger:          logger,
	}, orch, dispatcher)

	logger.Info("relay started. Press Ctrl+C to stop.", "version", version)

	err = srv.Run(ctx)

	// Let in-flight updates finish before the store closes; past the drain
	// window, cancel their context so streams close and partial output
	// stands as final.
	done := make(chan struct{})
	go func() {
		orch.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("drain window elapsed, cancelling in-flight updates")
		relayCancel()
		<-done
		logger.Info("shutdown complete")
	}

	return err
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show relay status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			store, err := identity.Open(identity.StoreConfig{
				DBPath: cfg.Store.DBPath,
				Logger: logger,
			})
			if err != nil {
				logger.Info("store", "healthy", false, "err", err)
			} else {
				defer store.Close()
				logger.Info("store", "path", cfg.Store.DBPath, "healthy", store.DB().PingContext(ctx) == nil)
			}

			dispatcher := ai.New(ai.Config{
				CloudBase: cfg.AI.CloudBase,
				LocalBase: cfg.AI.LocalBase,
				APIKey:    cfg.AI.APIKey,
				Logger:    logger,
			})
			if err := dispatcher.Healthy(ctx); err != nil {
				logger.Info("ai backend", "healthy", false, "err", err)
			} else {
				logger.Info("ai backend", "base", cfg.AI.CloudBase, "healthy", true)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. server.port)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. server.port 9000)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

// setupLogger rebuilds the process logger from config: level plus an
// optional log file next to stderr.
func setupLogger(cfg *config.Config) {
	var level slog.Level
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			w = io.MultiWriter(os.Stderr, f)
		}
	}

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
