package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/drover/internal/actions"
	"github.com/fentz26/drover/internal/api"
	"github.com/fentz26/drover/internal/config"
	"github.com/fentz26/drover/internal/device"
	"github.com/fentz26/drover/internal/engine"
	"github.com/fentz26/drover/internal/jobs"
	"github.com/fentz26/drover/internal/notify"
	"github.com/fentz26/drover/internal/orchestrator"
	"github.com/fentz26/drover/internal/screen"
	"github.com/fentz26/drover/internal/store"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the Drover daemon",
	Long:  `Starts the orchestrator poll loop and the status API.`,
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting drover daemon")

	s, err := store.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer s.Close()

	var broadcaster notify.Broadcaster = notify.Nop{}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Warn("telegram broadcaster unavailable", "error", err)
		} else {
			broadcaster = tg
			logger.Info("telegram broadcaster enabled")
		}
	}

	classifier := screen.NewMarkerClassifier(cfg.AppPackage)
	provider := device.NewStaticProvider()

	registry := actions.NewRegistry()
	registry.Register(actions.NewEngage(classifier, logger))

	scheduler := jobs.New(s, logger)
	eng := engine.New(engine.Deps{
		Store:      s,
		Jobs:       scheduler,
		Registry:   registry,
		Classifier: classifier,
		Provider:   provider,
		Notifier:   broadcaster,
		Logger:     logger,
		AppPackage: cfg.AppPackage,
	})

	orch := orchestrator.New(s, eng, provider, orchestrator.Config{
		PollInterval: cfg.PollInterval,
		StopGrace:    cfg.StopGrace,
		IdleDelay:    cfg.IdleDelay,
	}, logger)

	server := api.New(cfg.ListenAddr, api.Deps{
		Store:        s,
		Orchestrator: orch,
		Logger:       logger,
	})

	orch.Start()
	defer orch.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("status API failed", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status API shutdown", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
