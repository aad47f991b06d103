package identify

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mixid/mixid-engine/internal/metrics"
	"github.com/mixid/mixid-engine/internal/recognize"
)

// Fetcher downloads the recording at a remote locator into destDir and
// returns the path of the downloaded file.
type Fetcher interface {
	Fetch(ctx context.Context, url, destDir string) (string, error)
}

// Segmenter splits a source recording into ordered fixed-length segment
// files under destDir.
type Segmenter interface {
	Split(ctx context.Context, sourcePath, destDir string, window time.Duration) ([]Segment, error)
}

// Workspaces hands out per-job scratch directories. The returned release
// func removes the directory and everything in it.
type Workspaces interface {
	Acquire(id string) (dir string, release func(), err error)
}

// EventPublishFunc is a callback for publishing SSE events.
type EventPublishFunc func(eventType, jobID string, payload map[string]any)

// Options configures the identification service.
type Options struct {
	Fetcher      Fetcher
	Segmenter    Segmenter
	Recognizer   recognize.Provider
	Workspaces   Workspaces
	Window       time.Duration // segment length, > 0
	MaxSegments  int           // classification cap, 0 = unlimited
	PublishEvent EventPublishFunc
	Log          zerolog.Logger
}

// Stats reports identification job counts.
type Stats struct {
	Active    int   `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Service runs identification jobs: fetch (for remote sources), split into
// windows, classify each window against the recognition provider, reduce
// into a tracklist. Jobs are independent; any number may run in parallel.
type Service struct {
	opts Options

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewService creates an identification service.
func NewService(opts Options) *Service {
	return &Service{opts: opts}
}

// IdentifyURL fetches the recording at url into a per-job workspace and
// runs the pipeline on it. Fatal failures are returned as *StageError.
func (s *Service) IdentifyURL(ctx context.Context, jobID, url string) ([]TrackEntry, error) {
	s.active.Add(1)
	defer s.active.Add(-1)

	log := s.opts.Log.With().Str("job_id", jobID).Logger()
	s.publish("job_started", jobID, map[string]any{"source": url})

	dir, release, err := s.opts.Workspaces.Acquire(jobID)
	if err != nil {
		return nil, s.fail(log, jobID, StageWorkspace, err)
	}
	defer release()

	start := time.Now()
	sourcePath, err := s.opts.Fetcher.Fetch(ctx, url, dir)
	if err != nil {
		return nil, s.fail(log, jobID, StageFetch, err)
	}
	log.Debug().Str("source", sourcePath).Dur("elapsed", time.Since(start)).Msg("source fetched")

	return s.run(ctx, log, jobID, dir, sourcePath)
}

// IdentifyFile runs the pipeline on a local recording. Used by the watch
// folder and the setcheck CLI.
func (s *Service) IdentifyFile(ctx context.Context, jobID, path string) ([]TrackEntry, error) {
	s.active.Add(1)
	defer s.active.Add(-1)

	log := s.opts.Log.With().Str("job_id", jobID).Logger()
	s.publish("job_started", jobID, map[string]any{"source": path})

	dir, release, err := s.opts.Workspaces.Acquire(jobID)
	if err != nil {
		return nil, s.fail(log, jobID, StageWorkspace, err)
	}
	defer release()

	return s.run(ctx, log, jobID, dir, path)
}

// ActiveJobCount reports in-flight identification jobs.
func (s *Service) ActiveJobCount() int { return int(s.active.Load()) }

// Stats returns job counters for health reporting.
func (s *Service) Stats() Stats {
	return Stats{
		Active:    int(s.active.Load()),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
	}
}

func (s *Service) run(ctx context.Context, log zerolog.Logger, jobID, workDir, sourcePath string) ([]TrackEntry, error) {
	start := time.Now()

	segments, err := s.opts.Segmenter.Split(ctx, sourcePath, workDir, s.opts.Window)
	if err != nil {
		return nil, s.fail(log, jobID, StageSplit, err)
	}

	if s.opts.MaxSegments > 0 && len(segments) > s.opts.MaxSegments {
		log.Debug().Int("segments", len(segments)).Int("cap", s.opts.MaxSegments).Msg("segment cap applied")
		segments = segments[:s.opts.MaxSegments]
	}

	log.Info().Int("segments", len(segments)).Dur("window", s.opts.Window).Msg("classifying segments")

	outcomes := make([]Outcome, 0, len(segments))
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			metrics.IdentificationsTotal.WithLabelValues("canceled").Inc()
			s.publish("job_failed", jobID, map[string]any{"error": "canceled"})
			return nil, fmt.Errorf("identification canceled: %w", err)
		}

		outcome := s.classify(ctx, seg)
		outcomes = append(outcomes, outcome)
		os.Remove(seg.Path)

		metrics.SegmentsClassifiedTotal.WithLabelValues(outcome.Kind.String()).Inc()
		payload := map[string]any{
			"index":   seg.Index,
			"time":    FormatTimestamp(seg.Index, s.opts.Window),
			"outcome": outcome.Kind.String(),
		}
		if outcome.Kind == Matched {
			payload["artist"] = outcome.Artist
			payload["title"] = outcome.Title
		}
		s.publish("segment_result", jobID, payload)

		log.Debug().
			Int("index", seg.Index).
			Str("outcome", outcome.Kind.String()).
			Msg("segment classified")
	}

	entries := Reduce(outcomes, s.opts.Window)

	s.completed.Add(1)
	metrics.IdentificationsTotal.WithLabelValues("completed").Inc()
	s.publish("job_completed", jobID, map[string]any{
		"tracks":      len(entries),
		"segments":    len(segments),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	log.Info().
		Int("segments", len(segments)).
		Int("tracks", len(entries)).
		Dur("elapsed", time.Since(start)).
		Msg("identification complete")

	return entries, nil
}

// classify maps one segment to its outcome. A transport or service error
// degrades to a recorded call failure; a match missing artist or title is
// treated as no match rather than surfaced partially.
func (s *Service) classify(ctx context.Context, seg Segment) Outcome {
	start := time.Now()
	match, err := s.opts.Recognizer.Recognize(ctx, seg.Path)
	metrics.RecognitionCallDuration.WithLabelValues(s.opts.Recognizer.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		return FailedOutcome(seg.Index, err.Error())
	}
	if match == nil {
		return UnmatchedOutcome(seg.Index)
	}

	artist := strings.TrimSpace(match.Artist)
	title := strings.TrimSpace(match.Title)
	if artist == "" || title == "" {
		return UnmatchedOutcome(seg.Index)
	}
	return MatchedOutcome(seg.Index, artist, title, match.Link)
}

func (s *Service) fail(log zerolog.Logger, jobID string, stage Stage, err error) error {
	serr := &StageError{Stage: stage, Err: err}
	s.failed.Add(1)
	metrics.IdentificationsTotal.WithLabelValues("failed").Inc()
	s.publish("job_failed", jobID, map[string]any{"stage": string(stage), "error": serr.Error()})
	log.Warn().Err(err).Str("stage", string(stage)).Msg("identification failed")
	return serr
}

func (s *Service) publish(eventType, jobID string, payload map[string]any) {
	if s.opts.PublishEvent == nil {
		return
	}
	s.opts.PublishEvent(eventType, jobID, payload)
}
