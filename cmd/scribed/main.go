package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/scribehost/scribed/internal/admin"
	"github.com/scribehost/scribed/internal/api"
	"github.com/scribehost/scribed/internal/config"
	"github.com/scribehost/scribed/internal/coordinator"
	"github.com/scribehost/scribed/internal/httpserver"
	"github.com/scribehost/scribed/internal/metrics"
	"github.com/scribehost/scribed/internal/model"
	"github.com/scribehost/scribed/internal/transcribe"
)

var version = "dev"

func main() {
	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.IntVar(&overrides.Port, "port", 0, "listen port (overrides SCRIBED_PORT)")
	flag.StringVar(&overrides.ModelsDir, "models-dir", "", "models directory (overrides SCRIBED_MODELS_DIR)")
	flag.StringVar(&overrides.Model, "model", "", "initial model (overrides SCRIBED_MODEL)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("scribed starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !transcribe.CheckFFmpeg() {
		log.Warn().Msg("ffmpeg not in PATH, only wav uploads will transcribe")
	}

	// Model store
	models, err := model.New(cfg.ModelsDir, cfg.Model, newLoader(log), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open model store")
	}
	defer models.Close()

	// Engine
	var provider transcribe.Provider
	if cfg.WhisperBin != "" {
		provider = transcribe.NewWhisperCPP(cfg.WhisperBin, cfg.WhisperThreads)
	} else {
		provider = transcribe.NewRemote(cfg.WhisperURL)
	}
	log.Info().Str("provider", provider.Name()).Msg("transcription engine ready")

	replacer, err := transcribe.NewReplacer(cfg.ReplacementsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load word replacements")
	}
	enhancer := transcribe.NewEnhancer(cfg.EnhanceURL, cfg.EnhanceModel, cfg.EnhanceAPIKey)

	coord := coordinator.New(models, provider, replacer, enhancer, log)

	// Transcription server
	handlers := api.New(coord, models, version, log)
	router := httpserver.NewRouter(log)
	handlers.Register(router)

	srv := httpserver.New(httpserver.Config{
		Port:               cfg.Port,
		BindAll:            cfg.BindAll,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		IdleTimeout:        cfg.IdleTimeout,
		LargeUploadTimeout: cfg.LargeUploadTimeout,
		HeartbeatInterval:  cfg.HeartbeatInterval,
		ProcessingCeiling:  cfg.ProcessingCeiling,
	}, router, log)
	handlers.BindServer(srv)

	// Admin sidecar
	adminSrv := admin.NewServer(cfg.AdminAddr, metrics.NewCollector(serverStats{srv, coord}, models), log)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start() }()
	go func() { errCh <- adminSrv.Start() }()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("admin shutdown error")
	}

	log.Info().Msg("scribed stopped")
}

// serverStats joins the listener and the pipeline for the metrics collector.
type serverStats struct {
	srv   *httpserver.Server
	coord *coordinator.Coordinator
}

func (s serverStats) RequestsServed() int64        { return s.coord.RequestsServed() }
func (s serverStats) AverageProcessingMs() float64 { return s.coord.AverageProcessingMs() }
func (s serverStats) ActiveConnections() int       { return s.srv.ActiveConnections() }

// newLoader verifies a checkpoint is readable and faults its header in. The
// whisper.cpp process maps the file itself on each run; loading here is the
// readability check the API's modelLoaded flag reflects.
func newLoader(log zerolog.Logger) model.Loader {
	return model.LoaderFunc(func(ctx context.Context, m model.Info) error {
		f, err := os.Open(m.Path)
		if err != nil {
			metrics.ModelLoadsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("open checkpoint: %w", err)
		}
		defer f.Close()

		header := make([]byte, 8)
		if _, err := io.ReadFull(f, header); err != nil {
			metrics.ModelLoadsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("read checkpoint header: %w", err)
		}
		metrics.ModelLoadsTotal.WithLabelValues("success").Inc()
		log.Info().Str("model", m.ID).Msg("model checkpoint verified")
		return nil
	})
}
