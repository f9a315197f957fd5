package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/do/v2"

	configloader "github.com/denlab/denmusic/external/config"
	discordimpl "github.com/denlab/denmusic/external/discord"
	healthimpl "github.com/denlab/denmusic/external/health"
	notifyimpl "github.com/denlab/denmusic/external/notify"
	playerimpl "github.com/denlab/denmusic/external/player"
	repositoryimpl "github.com/denlab/denmusic/external/repository"
	resolverimpl "github.com/denlab/denmusic/external/resolver"
	"github.com/denlab/denmusic/internal/command"
	"github.com/denlab/denmusic/internal/config"
	"github.com/denlab/denmusic/internal/coord"
	"github.com/denlab/denmusic/internal/fleet"
)

const (
	fleetStartTimeout   = 90 * time.Second
	httpShutdownTimeout = 10 * time.Second
)

func main() {
	_ = godotenv.Load()

	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "agents", len(cfg.DiscordTokens))

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching fleet")
	run(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	resolverimpl.RegisterDI(injector)
	notifyimpl.RegisterDI(injector)
	coord.RegisterDI(injector)
	playerimpl.RegisterDI(injector)
	command.RegisterDI(injector)
	discordimpl.RegisterDI(injector)
	fleet.RegisterDI(injector)
	healthimpl.RegisterDI(injector)

	return injector
}

func run(cfg *config.Config, injector do.Injector) {
	coordinator, err := do.Invoke[*coord.Coordinator](injector)
	if err != nil {
		slog.Error("failed to resolve coordinator", "error", err)
		os.Exit(1)
	}
	monitor, err := do.Invoke[*coord.Monitor](injector)
	if err != nil {
		slog.Error("failed to resolve monitor", "error", err)
		os.Exit(1)
	}
	dispatcher, err := do.Invoke[*coord.Dispatcher](injector)
	if err != nil {
		slog.Error("failed to resolve dispatcher", "error", err)
		os.Exit(1)
	}
	botFleet, err := do.Invoke[*fleet.Fleet](injector)
	if err != nil {
		slog.Error("failed to resolve fleet", "error", err)
		os.Exit(1)
	}
	httpServer, err := do.Invoke[*healthimpl.Server](injector)
	if err != nil {
		slog.Error("failed to resolve health server", "error", err)
		os.Exit(1)
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go coordinator.Run(runCtx, dispatcher.Subscribe())
	go monitor.Run(runCtx, dispatcher.Subscribe())

	startCtx, cancelStart := context.WithTimeout(runCtx, fleetStartTimeout)
	err = botFleet.Start(startCtx)
	cancelStart()
	if err != nil {
		slog.Error("fleet start failed", "error", err)
		os.Exit(1)
	}
	defer botFleet.Close()

	go func() {
		slog.Info("startup: http server listening", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil {
			slog.Error("http server stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	dispatcher.Close()
}
