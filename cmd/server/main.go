package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/inkconnect/inkconnect-server/internal/app"
	"github.com/inkconnect/inkconnect-server/internal/config"
	"github.com/inkconnect/inkconnect-server/internal/log"
)

func main() {
	overrides := config.Default()

	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (optional)")
	flag.StringVar(&overrides.Addr, "addr", overrides.Addr, "HTTP listen address")
	flag.StringVar(&overrides.DatabasePath, "db", overrides.DatabasePath, "path to sqlite database file")
	flag.DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", overrides.ReadHeaderTimeout, "HTTP read header timeout")
	flag.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", overrides.ShutdownTimeout, "graceful shutdown timeout")
	flag.StringVar(&overrides.LogLevel, "log-level", overrides.LogLevel, "log level (debug, info, warn, error)")
	flag.Parse()

	bootLogger := log.New("info")

	cfg, resolvedPath, err := config.Load(bootLogger, configPath)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	// flags explicitly set on the command line win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = overrides.Addr
		case "db":
			cfg.DatabasePath = overrides.DatabasePath
		case "read-header-timeout":
			cfg.ReadHeaderTimeout = overrides.ReadHeaderTimeout
		case "shutdown-timeout":
			cfg.ShutdownTimeout = overrides.ShutdownTimeout
		case "log-level":
			cfg.LogLevel = overrides.LogLevel
		}
	})

	logger := log.New(cfg.LogLevel)
	logger.Info().Str("config", resolvedPath).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting inkconnect server")
	if err := application.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("server stopped")
}
