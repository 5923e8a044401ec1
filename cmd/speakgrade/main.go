package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pelagos-labs/speakgrade/internal/api"
	"github.com/pelagos-labs/speakgrade/internal/archive"
	"github.com/pelagos-labs/speakgrade/internal/auth"
	"github.com/pelagos-labs/speakgrade/internal/config"
	"github.com/pelagos-labs/speakgrade/internal/database"
	"github.com/pelagos-labs/speakgrade/internal/evaluation"
	"github.com/pelagos-labs/speakgrade/internal/report"
	"github.com/pelagos-labs/speakgrade/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("speakgrade starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}

	// Providers
	stt := transcribe.NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsModelID, cfg.TranscribeTimeout)
	model := report.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicMaxTokens, cfg.GenerateTimeout)
	gen := report.NewGenerator(model, log.With().Str("component", "report").Logger())

	// Recording archive (optional)
	var recordings api.RecordingStore
	var archiver *archive.Archiver
	if cfg.Archive.Enabled() {
		archLog := log.With().Str("component", "archive").Logger()
		archStore, services, err := archive.New(cfg.Archive, archLog)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize recording archive")
		}
		recordings = archStore

		archiver = archive.NewArchiver(archStore, 64, archLog)
		archiver.Start(2)
		defer archiver.Stop()

		for _, svc := range services {
			svc.Start()
			defer svc.Stop()
		}
		log.Info().Str("backend", archStore.Type()).Msg("recording archive enabled")
	}

	// Orchestration
	store := evaluation.NewPgStore(db)
	var arch evaluation.Archiver
	if archiver != nil {
		arch = archiver
	}
	orch := evaluation.NewOrchestrator(stt, gen, store, arch, log.With().Str("component", "evaluation").Logger())

	// Auth
	verifier := auth.NewOIDCVerifier(auth.OIDCConfig{
		ConfigURL: cfg.OIDCConfigURL,
		Audience:  cfg.OIDCAudience,
		Issuer:    cfg.OIDCIssuer,
		ClientID:  cfg.OIDCClientID,
		TenantID:  cfg.OIDCTenantID,
	}, db, log.With().Str("component", "auth").Logger())

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	evals := api.NewEvaluationsHandler(orch, store, recordings, cfg.MaxUploadBytes(), httpLog)
	srv := api.NewServer(cfg, db, verifier, evals, version, startTime, httpLog)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("speakgrade stopped")
}
