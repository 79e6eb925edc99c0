package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/payperwork/payperwork/internal/bus"
	"github.com/payperwork/payperwork/internal/config"
	"github.com/payperwork/payperwork/internal/manus"
	"github.com/payperwork/payperwork/internal/notify"
	"github.com/payperwork/payperwork/internal/poller"
	"github.com/payperwork/payperwork/internal/relay"
	"github.com/payperwork/payperwork/internal/server"
	"github.com/payperwork/payperwork/internal/slides"
	"github.com/payperwork/payperwork/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func loadSettings() (*config.Store, error) {
	if configPath != "" {
		return config.NewStoreAt(configPath)
	}
	return config.NewStore()
}

func runServe() error {
	settingsStore, err := loadSettings()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	settings := settingsStore.Get()
	if settings.Server.AuthSecret == "" {
		return fmt.Errorf("server.auth_secret is not set (or PAYPERWORK_AUTH_SECRET)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	st, err := store.Open(settings.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	hub := relay.NewHub(settings.Server.AuthSecret)
	go hub.Run(ctx)

	taskClient := manus.NewClient(settings.Manus.BaseURL, settings.Manus.APIKey)

	notifier, err := notify.NewTelegram(settings.Notify.TelegramToken, settings.Notify.TelegramChatID)
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}

	var eventBus bus.Bus
	switch settings.Bus.Mode {
	case "nats":
		eventBus, err = bus.ConnectNATS(settings.Bus.NatsURL)
		if err != nil {
			return fmt.Errorf("init bus: %w", err)
		}
	default:
		eventBus = bus.NewInproc(64)
	}
	defer eventBus.Close()

	webhookURL := settings.Server.PublicURL + "/api/slides/manus-webhook"
	svc := slides.NewService(st, taskClient, hub, notifier, eventBus, webhookURL)

	watcher := poller.New(taskClient, svc)
	defer watcher.Close()

	srv := &http.Server{
		Addr:              settings.Server.Addr,
		Handler:           server.New(st, svc, hub, watcher, settings.Server.AuthSecret, settings.Manus.WebhookSecret).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s (webhook %s)", settings.Server.Addr, webhookURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		settingsStore, err := loadSettings()
		if err != nil {
			return err
		}
		settings := settingsStore.Get()

		st, err := store.Open(settings.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}
		log.Printf("Schema applied to %s", settings.Store.Path)
		return nil
	},
}
