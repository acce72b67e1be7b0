// Package main is the entry point for the item server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/localbackend/internal/config"
	"github.com/vyrodovalexey/localbackend/internal/model"
	"github.com/vyrodovalexey/localbackend/internal/prefs"
	"github.com/vyrodovalexey/localbackend/internal/store"
	"github.com/vyrodovalexey/localbackend/internal/supervisor"
)

// flagOptions holds command line overrides.
type flagOptions struct {
	port       int
	configFile string
	envFile    string
	logLevel   string
	storage    string
}

func main() {
	if err := newRootCmd(&flagOptions{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the localbackend command, binding its flags to opts.
func newRootCmd(opts *flagOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "localbackend",
		Short: "Local CRUD item server",
		Long: `localbackend serves a small JSON CRUD API for items over HTTP.

Items are persisted as one JSON document in a namespaced key-value store
backed by memory, a file, sqlite, postgres, mysql or redis.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			logger, err := initLogger(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.port, "port", "p", config.DefaultServerPort, "HTTP port to listen on")
	flags.StringVar(&opts.configFile, "config", "", "YAML configuration file (or set "+config.EnvConfigFile+")")
	flags.StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default: .env when present)")
	flags.StringVar(&opts.logLevel, "log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")
	flags.StringVar(&opts.storage, "storage", config.DefaultStorageBackend,
		"storage backend: memory, file, sqlite, postgres, mysql, redis")

	return cmd
}

// loadConfig loads configuration and applies flags the user set explicitly.
func loadConfig(cmd *cobra.Command, opts *flagOptions) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(config.Options{
		ConfigFile: opts.configFile,
		EnvFile:    opts.envFile,
	})
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.ServerPort = opts.port
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("storage") {
		cfg.StorageBackend = opts.storage
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating flags: %w", err)
	}

	return cfg, nil
}

// runServer opens storage, starts the supervisor and blocks until ctx is
// cancelled or the server fails.
func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("configuration loaded",
		zap.String("address", cfg.Address()),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.String("storage_backend", cfg.StorageBackend),
		zap.String("storage_namespace", cfg.StorageNamespace),
		zap.Float64("rate_limit", cfg.RateLimit),
	)

	p, err := prefs.Open(ctx, cfg.PrefsOptions(), logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}()

	itemStore := store.NewPrefsStore(p, cfg.ItemsKey, logger)

	if cfg.SeedSampleItems {
		seeded, err := itemStore.Seed(ctx, model.SampleItems())
		if err != nil {
			return fmt.Errorf("seeding sample items: %w", err)
		}
		logger.Info("sample items checked", zap.Bool("seeded", seeded))
	}

	sup := supervisor.New(cfg, logger, itemStore)
	updates, unsubscribe := sup.Subscribe()
	defer unsubscribe()

	url, err := sup.Start(ctx, cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	logger.Info("serving items", zap.String("url", url))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logStatusChanges(logger, updates)
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-sup.Done():
			return fmt.Errorf("server failed: %w", err)
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()

		err := sup.Stop(shutdownCtx)
		// Ends the status logger once the final event is delivered.
		sup.Close()
		return err
	})

	return g.Wait()
}

// logStatusChanges logs every status event until the subscription closes.
func logStatusChanges(logger *zap.Logger, updates <-chan model.Status) {
	for status := range updates {
		logger.Info("server status changed",
			zap.Bool("running", status.Running),
			zap.String("url", status.URLString()),
		)
	}
}

// initLogger initializes a zap logger at the given log level.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}
