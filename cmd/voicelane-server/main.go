package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/voicelane/voicelane"
	"github.com/voicelane/voicelane/httpapi"
	"github.com/voicelane/voicelane/meetbot"
	"github.com/voicelane/voicelane/metrics"
	"github.com/voicelane/voicelane/store"
)

func main() {
	cfg, err := httpapi.LoadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := voicelane.NewLoggerFromEnv()
	m := metrics.New(cfg.MetricsNamespace)

	ctx := context.Background()
	var agents store.AgentStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("agent store init failed: %v", err)
		}
		agents = pg
		logger.Info("agent_store_ready", map[string]any{"backend": "postgres"})
	} else {
		agents = store.NewMemoryStore()
		logger.Info("agent_store_ready", map[string]any{"backend": "memory"})
	}
	defer agents.Close()

	broker := &voicelane.Broker{
		Endpoint: cfg.CredentialEndpoint,
		Secret:   cfg.ProviderSecret,
		Model:    cfg.Model,
		Logger:   logger,
	}
	dispatcher := voicelane.NewDispatcher(logger)

	var botClient *meetbot.Client
	if cfg.BotPlatformURL != "" {
		botClient = meetbot.NewClient(cfg.BotPlatformURL, logger)
	}

	api := httpapi.New(cfg, agents, broker, dispatcher, botClient, m, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
