// The gateway binary serves the chat-completion router and the
// deep-research endpoint behind one HTTP listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lumenchat/request-gateway/internal/config"
	"github.com/lumenchat/request-gateway/internal/gateway"
	"github.com/lumenchat/request-gateway/internal/identity"
	"github.com/lumenchat/request-gateway/internal/monitoring"
	"github.com/lumenchat/request-gateway/internal/providers"
	"github.com/lumenchat/request-gateway/internal/quota"
	"github.com/lumenchat/request-gateway/internal/search"
	"github.com/lumenchat/request-gateway/internal/utils"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Credentials referenced as ${VAR} in the config file can come from a
	// local .env during development. Missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config '%s': %v\n", *configPath, err)
		os.Exit(1)
	}

	setupLogging(cfg.Monitoring.LogLevel)

	registry, err := providers.NewRegistry(cfg.Providers)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid provider configuration")
	}

	ledger, err := quota.Open(cfg.Research.AccountsPath, cfg.Research.DefaultLimit)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Research.AccountsPath).Msg("failed to open account store")
	}
	defer func() { _ = ledger.Close() }()

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:     cfg.Monitoring.Enabled,
		LogPath:     cfg.Monitoring.LogPath,
		LogToStdout: cfg.Monitoring.LogToStdout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() { _ = tracker.Close() }()

	gw := gateway.New(cfg, gateway.Deps{
		Registry: registry,
		Ledger:   ledger,
		Identity: identity.NewClient(cfg.Identity.BaseURL, cfg.Identity.Timeout),
		Searcher: search.NewClient(cfg.Research.SearchURL, cfg.Research.SearchAPIKey,
			cfg.Research.MaxResults, cfg.Research.Timeout),
		Tracker: tracker,
	})

	tracker.RecordInit(initEvent(cfg))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      gw.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Strs("models", registry.Models()).
			Msg("gateway listening")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown did not complete cleanly")
	}
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// initEvent captures the effective configuration, with credentials masked.
func initEvent(cfg *config.Config) *monitoring.InitEvent {
	event := &monitoring.InitEvent{
		Timestamp:            time.Now(),
		Event:                "gateway_init",
		ServerPort:           cfg.Server.Port,
		ServerReadTimeoutMs:  cfg.Server.ReadTimeout.Milliseconds(),
		ServerWriteTimeoutMs: cfg.Server.WriteTimeout.Milliseconds(),
		ResearchLimit:        cfg.Research.DefaultLimit,
		RateLimitEnabled:     cfg.RateLimit.Enabled,
		TelemetryPath:        cfg.Monitoring.LogPath,
	}
	for name, p := range cfg.Providers {
		event.Providers = append(event.Providers, monitoring.InitProvider{
			Name:      name,
			Endpoint:  p.BaseURL,
			Models:    p.Models,
			HasAPIKey: p.APIKey != "",
			MaskedKey: utils.MaskKey(p.APIKey),
		})
	}
	return event
}
