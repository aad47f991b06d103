package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mixid/mixid-engine/internal/api"
	"github.com/mixid/mixid-engine/internal/config"
	"github.com/mixid/mixid-engine/internal/fetch"
	"github.com/mixid/mixid-engine/internal/identify"
	"github.com/mixid/mixid-engine/internal/media"
	"github.com/mixid/mixid-engine/internal/metrics"
	"github.com/mixid/mixid-engine/internal/progress"
	"github.com/mixid/mixid-engine/internal/recognize"
	"github.com/mixid/mixid-engine/internal/watch"
	"github.com/mixid/mixid-engine/internal/workspace"
)

var version = "dev"

func main() {
	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.WorkDir, "work-dir", "", "scratch directory for jobs (overrides WORK_DIR)")
	flag.StringVar(&overrides.WatchDir, "watch-dir", "", "drop directory to identify recordings from (overrides WATCH_DIR)")
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
	log.Info().Str("version", version).Str("recognizer", cfg.Recognizer).Msg("mixid-engine starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Per-job scratch directories
	workspaces, err := workspace.NewManager(cfg.WorkDir, log.With().Str("component", "workspace").Logger())
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.WorkDir).Msg("failed to prepare work directory")
	}

	// External tools
	fetcher := fetch.NewDownloader(cfg.YTDLPPath, cfg.FetchTimeout, log)
	splitter := media.NewSplitter(cfg.FFmpegPath, cfg.FFprobePath, cfg.SplitTimeout, log)
	if !splitter.Available() {
		log.Warn().Str("path", cfg.FFmpegPath).Msg("ffmpeg not found, identification jobs will fail")
	}
	if !fetcher.Available() {
		log.Warn().Str("path", cfg.YTDLPPath).Msg("yt-dlp not found, URL jobs will fail")
	}

	// Recognition provider
	recognizer := buildRecognizer(cfg)
	if !cfg.RecognizerConfigured() {
		log.Warn().Str("recognizer", cfg.Recognizer).Msg("recognition credentials missing, identify requests will be rejected")
	}

	// Progress events
	bus := progress.NewBus(256)

	// Identification service
	svc := identify.NewService(identify.Options{
		Fetcher:     fetcher,
		Segmenter:   splitter,
		Recognizer:  recognizer,
		Workspaces:  workspaces,
		Window:      cfg.SegmentLength,
		MaxSegments: cfg.MaxSegments,
		PublishEvent: func(eventType, jobID string, payload map[string]any) {
			bus.Publish(eventType, jobID, payload)
		},
		Log: log.With().Str("component", "identify").Logger(),
	})

	// Live-state gauges
	prometheus.MustRegister(metrics.NewCollector(engineStats{svc: svc, bus: bus}))

	// Drop folder watcher
	var watcherStatus api.WatcherStatus
	if cfg.WatchDir != "" {
		watcher := watch.New(svc, cfg.WatchDir, cfg.WatchExts, log)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.WatchDir).Msg("failed to start drop folder watcher")
		}
		defer watcher.Stop()
		watcherStatus = watcher
	}

	// HTTP server
	srv := api.NewServer(api.Options{
		Config:   cfg,
		Runner:   svc,
		Bus:      bus,
		Jobs:     svc,
		Sweeper:  workspaces,
		Splitter: splitter,
		Fetcher:  fetcher,
		Watcher:  watcherStatus,
		Version:  version,
		Log:      log.With().Str("component", "http").Logger(),
	})

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

	log.Info().Msg("mixid-engine stopped")
}

func buildRecognizer(cfg *config.Config) recognize.Provider {
	switch cfg.Recognizer {
	case config.RecognizerACR:
		return recognize.NewACRClient(cfg.ACRHost, cfg.ACRAccessKey, cfg.ACRAccessSecret, cfg.RecognitionTimeout)
	default:
		return recognize.NewAuddClient(cfg.AuddAPIURL, cfg.AuddAPIToken, cfg.RecognitionTimeout)
	}
}

// engineStats feeds the live-state gauges from the running components.
type engineStats struct {
	svc *identify.Service
	bus *progress.Bus
}

func (s engineStats) ActiveJobCount() int     { return s.svc.ActiveJobCount() }
func (s engineStats) SSESubscriberCount() int { return s.bus.SubscriberCount() }
