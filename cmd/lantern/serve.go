package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bowerhall/lantern/internal/alerts"
	"github.com/bowerhall/lantern/internal/backup"
	"github.com/bowerhall/lantern/internal/config"
	"github.com/bowerhall/lantern/internal/conversation"
	"github.com/bowerhall/lantern/internal/llm"
	"github.com/bowerhall/lantern/internal/logger"
	"github.com/bowerhall/lantern/internal/relay"
	"github.com/bowerhall/lantern/internal/server"
	"github.com/bowerhall/lantern/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	store, err := openStore(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		logger.Fatal("failed to open store", "error", err)
	}
	defer store.Close()

	backend, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Fatal("failed to create llm", "error", err)
	}

	alerter := newAlerter(cfg.Alerts)

	var opts []relay.Option
	if persona := config.LoadPersona(cfg.PersonaPath); persona != "" {
		opts = append(opts, relay.WithPersona(persona))
		logger.Info("persona loaded", "path", cfg.PersonaPath)
	}
	if alerter.Enabled() {
		opts = append(opts, relay.WithAlerter(alerter))
	}

	r := relay.New(cfg.Token, store, backend, opts...)

	srv := server.New(server.Config{
		ListenAddr: cfg.ListenAddr,
		Route:      cfg.Route,
	}, r, store)

	client, stopBackups := startBackups(cfg, store, alerter)
	defer stopBackups()

	if client != nil {
		srv.AddCheck("storage", client)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	logger.Info("lantern started",
		"llm", cfg.LLM.Provider,
		"store", cfg.Store.Backend,
		"db", cfg.Store.Path,
		"senders", len(store.Senders()),
		"alerts", alerter.Enabled(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", "error", err)
			return err
		}
	}

	logger.Info("shutting down")
	if err := srv.Shutdown(shutdownTimeout); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}

	return nil
}

func newAlerter(cfg config.AlertsConfig) *alerts.Alerter {
	var sinks []alerts.Sink

	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		sink, err := alerts.NewTelegramSink(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			logger.Error("failed to create telegram alert sink", "error", err)
		} else {
			sinks = append(sinks, sink)
			logger.Info("telegram alerts enabled", "chatID", cfg.TelegramChatID)
		}
	}

	if cfg.DiscordWebhook != "" {
		sink, err := alerts.NewDiscordSink(cfg.DiscordWebhook)
		if err != nil {
			logger.Error("failed to create discord alert sink", "error", err)
		} else {
			sinks = append(sinks, sink)
			logger.Info("discord alerts enabled")
		}
	}

	return alerts.New(cfg.Cooldown, sinks...)
}

func newStorageClient(cfg config.StorageConfig) (*storage.Client, error) {
	client, err := storage.NewClient(storage.Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Init(ctx); err != nil {
		return nil, err
	}

	return client, nil
}

// startBackups schedules snapshot uploads when object storage is configured.
// The client is nil when storage is off; the stop function is always safe to call.
func startBackups(cfg *config.Config, store *conversation.Store, alerter *alerts.Alerter) (*storage.Client, func()) {
	noop := func() {}

	if !cfg.Storage.Enabled {
		return nil, noop
	}

	client, err := newStorageClient(cfg.Storage)
	if err != nil {
		logger.Error("storage unavailable, backups disabled", "error", err)
		return nil, noop
	}

	runner := backup.New(store, client, cfg.Backup.Keep, alerter)

	stop, err := runner.Start(cfg.Backup.Schedule)
	if err != nil {
		logger.Error("backups disabled", "error", err)
		return client, noop
	}

	logger.Info("storage enabled", "endpoint", cfg.Storage.Endpoint, "bucket", client.Bucket())
	return client, stop
}
