package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mixid/mixid-engine/internal/config"
	"github.com/mixid/mixid-engine/internal/fetch"
	"github.com/mixid/mixid-engine/internal/identify"
	"github.com/mixid/mixid-engine/internal/media"
	"github.com/mixid/mixid-engine/internal/recognize"
	"github.com/mixid/mixid-engine/internal/workspace"
)

// setcheck identifies a single recording from the command line, without
// running the HTTP server. Useful for trying out credentials and window
// sizes before deploying.
func main() {
	var (
		envFile     = flag.String("env-file", "", "path to .env file")
		asJSON      = flag.Bool("json", false, "print the tracklist as JSON")
		window      = flag.Duration("window", 0, "segment length (overrides SEGMENT_LENGTH)")
		maxSegments = flag.Int("max-segments", -1, "classification cap, 0 for unlimited (overrides MAX_SEGMENTS)")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: setcheck [flags] <url-or-file>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	source := flag.Arg(0)

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)

	cfg, err := config.Load(config.Overrides{EnvFile: *envFile})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *window > 0 {
		cfg.SegmentLength = *window
	}
	if *maxSegments >= 0 {
		cfg.MaxSegments = *maxSegments
	}
	if !cfg.RecognizerConfigured() {
		log.Fatal().Str("recognizer", cfg.Recognizer).Msg("recognition credentials missing; set AUDD_API_TOKEN or ACR_* in the environment")
	}

	workspaces, err := workspace.NewManager(cfg.WorkDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare work directory")
	}

	splitter := media.NewSplitter(cfg.FFmpegPath, cfg.FFprobePath, cfg.SplitTimeout, log)
	if !splitter.Available() {
		log.Fatal().Str("path", cfg.FFmpegPath).Msg("ffmpeg and ffprobe are required")
	}

	svc := identify.NewService(identify.Options{
		Fetcher:     fetch.NewDownloader(cfg.YTDLPPath, cfg.FetchTimeout, log),
		Segmenter:   splitter,
		Recognizer:  buildRecognizer(cfg),
		Workspaces:  workspaces,
		Window:      cfg.SegmentLength,
		MaxSegments: cfg.MaxSegments,
		PublishEvent: func(eventType, jobID string, payload map[string]any) {
			if eventType != "segment_result" {
				return
			}
			if payload["outcome"] == "matched" {
				fmt.Fprintf(os.Stderr, "  %s  %v – %v\n", payload["time"], payload["artist"], payload["title"])
			} else if *verbose {
				fmt.Fprintf(os.Stderr, "  %s  (%v)\n", payload["time"], payload["outcome"])
			}
		},
		Log: log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	var entries []identify.TrackEntry
	if isURL(source) {
		fmt.Fprintf(os.Stderr, "── Identifying %s ──\n", source)
		entries, err = svc.IdentifyURL(ctx, "setcheck", source)
	} else {
		if _, statErr := os.Stat(source); statErr != nil {
			log.Fatal().Err(statErr).Str("path", source).Msg("source is neither a URL nor a readable file")
		}
		fmt.Fprintf(os.Stderr, "── Identifying %s ──\n", source)
		entries, err = svc.IdentifyFile(ctx, "setcheck", source)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("identification failed")
	}
	fmt.Fprintf(os.Stderr, "── Done in %s ──\n\n", time.Since(start).Round(time.Second))

	if *asJSON {
		out, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(out))
		return
	}

	for _, e := range entries {
		if e.Link != "" {
			fmt.Printf("%s  %s  %s\n", e.Time, e.Title, e.Link)
		} else {
			fmt.Printf("%s  %s\n", e.Time, e.Title)
		}
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func buildRecognizer(cfg *config.Config) recognize.Provider {
	switch cfg.Recognizer {
	case config.RecognizerACR:
		return recognize.NewACRClient(cfg.ACRHost, cfg.ACRAccessKey, cfg.ACRAccessSecret, cfg.RecognitionTimeout)
	default:
		return recognize.NewAuddClient(cfg.AuddAPIURL, cfg.AuddAPIToken, cfg.RecognitionTimeout)
	}
}
