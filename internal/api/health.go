package api

import (
	"net/http"
	"time"

	"github.com/mixid/mixid-engine/internal/identify"
)

// ToolChecker reports whether an external tool was found on PATH.
type ToolChecker interface {
	Available() bool
}

// WatcherStatus reports the state of the watch-folder ingester.
type WatcherStatus interface {
	Running() bool
	Dir() string
}

// JobStats reports identification job counters.
type JobStats interface {
	Stats() identify.Stats
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Recognizer    string            `json:"recognizer"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	Jobs          *identify.Stats   `json:"jobs,omitempty"`
	WatchDir      string            `json:"watch_dir,omitempty"`
}

type HealthOptions struct {
	Splitter        ToolChecker
	Fetcher         ToolChecker
	Recognizer      string // selected provider name
	RecognizerReady bool
	Watcher         WatcherStatus // nil when no watch dir is configured
	Jobs            JobStats
	Version         string
}

type HealthHandler struct {
	opts      HealthOptions
	startTime time.Time
}

func NewHealthHandler(opts HealthOptions) *HealthHandler {
	return &HealthHandler{opts: opts, startTime: time.Now()}
}

// ServeHTTP reports service health. ffmpeg is required for every job, so
// its absence is unhealthy (503). A missing yt-dlp or unconfigured
// recognizer degrades the service but local-file jobs can still run.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	degrade := func() {
		if status == "healthy" {
			status = "degraded"
		}
	}

	if h.opts.Splitter != nil && h.opts.Splitter.Available() {
		checks["ffmpeg"] = "ok"
	} else {
		checks["ffmpeg"] = "missing"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	if h.opts.Fetcher != nil && h.opts.Fetcher.Available() {
		checks["yt-dlp"] = "ok"
	} else {
		checks["yt-dlp"] = "missing"
		degrade()
	}

	if h.opts.RecognizerReady {
		checks["recognizer"] = "ok"
	} else {
		checks["recognizer"] = "not_configured"
		degrade()
	}

	if h.opts.Watcher == nil {
		checks["watcher"] = "not_configured"
	} else if h.opts.Watcher.Running() {
		checks["watcher"] = "ok"
	} else {
		checks["watcher"] = "stopped"
		degrade()
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.opts.Version,
		Recognizer:    h.opts.Recognizer,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.opts.Jobs != nil {
		stats := h.opts.Jobs.Stats()
		resp.Jobs = &stats
	}
	if h.opts.Watcher != nil {
		resp.WatchDir = h.opts.Watcher.Dir()
	}

	WriteJSON(w, httpStatus, resp)
}
