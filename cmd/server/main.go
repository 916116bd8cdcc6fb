package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/mcoot/mclink/internal/api"
	"github.com/mcoot/mclink/internal/config"
	"github.com/mcoot/mclink/internal/events"
	"github.com/mcoot/mclink/internal/factory"
	"github.com/mcoot/mclink/internal/guildconfig"
	redisstorage "github.com/mcoot/mclink/internal/storage/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Flags override the environment
	pflag.StringVar(&cfg.GuildConfigPath, "config", cfg.GuildConfigPath, "Guild configuration file (env: MCLINK_GUILD_CONFIG)")
	pflag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP listen port (env: MCLINK_PORT)")
	pflag.Parse()

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	guilds, err := guildconfig.Load(cfg.GuildConfigPath)
	if err != nil {
		logger.Error("failed to load guild configuration",
			slog.String("path", cfg.GuildConfigPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Build factory config
	factoryCfg := factory.Config{
		Guilds:            guilds,
		Logger:            logger,
		StorageType:       cfg.StorageType,
		AuditLogPath:      cfg.AuditLogPath,
		DiscordToken:      cfg.DiscordToken,
		DiscordAPIURL:     cfg.DiscordAPIURL,
		MembershipTimeout: cfg.MembershipTimeout,
	}
	if cfg.StorageType == factory.StorageTypeRedis {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		redisCfg.MaxSyncLogs = cfg.RedisLogCap
		factoryCfg.RedisConfig = &redisCfg
	}

	app, err := factory.New(factoryCfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = app.Close() }()

	// Membership events from the chat bot
	if cfg.NATSURL != "" {
		sub, err := events.Subscribe(cfg.NATSURL, cfg.NATSSubject, app.Membership, logger)
		if err != nil {
			logger.Error("failed to subscribe to membership events", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer func() { _ = sub.Close() }()
		logger.Info("subscribed to membership events", slog.String("subject", cfg.NATSSubject))
	}

	// Create server
	serverConfig := api.DefaultServerConfig()
	serverConfig.Port = cfg.Port
	server := api.NewServer(app.Router(logger), serverConfig, logger)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.Int("guilds", len(guilds.Guilds)),
		slog.String("storage", factoryCfg.StorageType),
	)

	// Wait for shutdown or error
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}
