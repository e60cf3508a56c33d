package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/seanblong/codenav/internal/auth"
	"github.com/seanblong/codenav/internal/config"
	"github.com/seanblong/codenav/internal/navigator"
	"github.com/seanblong/codenav/internal/server"
	"github.com/spf13/pflag"
)

const queryTimeout = 30 * time.Second

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Create flagset for configuration
	fs := pflag.NewFlagSet("codenav-api", pflag.ExitOnError)
	repo := fs.String("repo", "", "Repository to ingest at startup (local path or git URL)")

	// Load configuration
	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	// Set up logging
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	zlog.Logger = logger
	logger.Info().
		Str("provider", cfg.Provider).
		Str("index_backend", cfg.IndexBackend).
		Str("log_level", cfg.LogLevel).
		Bool("auth_enabled", cfg.Auth.Enabled).
		Msg("starting codenav api")

	authn, err := auth.New(auth.Config{
		JwtSecret: []byte(cfg.Auth.JwtSecret),
		Issuer:    cfg.Auth.Issuer,
		TTL:       cfg.Auth.TokenTTL,
		Enabled:   cfg.Auth.Enabled,
	})
	if err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}
	if authn.Enabled() {
		logger.Info().Msg("authentication is ENABLED for /ingest")
	} else {
		logger.Warn().Msg("authentication is DISABLED - running in open mode")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nav, err := navigator.FromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create navigator: %v", err)
	}
	defer func() {
		if err := nav.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close navigator")
		}
	}()

	if *repo != "" {
		res, err := nav.Ingest(ctx, *repo)
		if err != nil {
			log.Fatalf("Failed to ingest %s: %v", *repo, err)
		}
		logger.Info().Str("epoch", res.Epoch).Int("files", res.IngestedFiles).Int("chunks", res.Chunks).Msg("startup ingestion complete")
	}

	srv := server.New(nav, authn, server.Options{
		DefaultTopK:  cfg.TopK,
		CORSOrigin:   cfg.CORSOrigin,
		QueryTimeout: queryTimeout,
	})

	s := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("api server stopped")
		os.Exit(1)
	}
}
