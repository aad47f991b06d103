package watch

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mixid/mixid-engine/internal/identify"
)

// Identifier runs an identification job on a local recording.
type Identifier interface {
	IdentifyFile(ctx context.Context, jobID, path string) ([]identify.TrackEntry, error)
}

const defaultDebounce = 2 * time.Second

// Watcher monitors a drop directory for new recordings and identifies each
// one, writing the tracklist to a sidecar file next to the recording. This
// gives a no-API path for identifying sets: drop the file, read the
// .tracklist.json that appears.
type Watcher struct {
	svc      Identifier
	dir      string
	exts     map[string]bool
	debounce time.Duration
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc

	// Debounce: coalesce rapid Create+Write events while the file is
	// still being copied in.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesProcessed atomic.Int64
	filesSkipped   atomic.Int64
	running        atomic.Bool
}

func New(svc Identifier, dir string, exts []string, log zerolog.Logger) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		svc:            svc,
		dir:            dir,
		exts:           normalizeExts(exts),
		debounce:       defaultDebounce,
		log:            log.With().Str("component", "watcher").Logger(),
		ctx:            ctx,
		cancel:         cancel,
		debounceTimers: make(map[string]*time.Timer),
	}
}

// Start initializes the fsnotify watcher over the drop directory and its
// subdirectories, then scans for recordings that arrived while the service
// was down.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsw

	dirCount := 0
	err = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil
		}
		if d.IsDir() {
			if addErr := fsw.Add(path); addErr != nil {
				w.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	w.running.Store(true)
	w.log.Info().Int("directories", dirCount).Str("watch_dir", w.dir).Msg("drop folder watcher started")

	go w.watchLoop()
	go w.backfill()

	return nil
}

// Stop closes the fsnotify watcher and cancels in-flight jobs.
func (w *Watcher) Stop() {
	w.running.Store(false)
	w.cancel()
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.log.Info().
		Int64("files_processed", w.filesProcessed.Load()).
		Int64("files_skipped", w.filesSkipped.Load()).
		Msg("drop folder watcher stopped")
}

// Running reports whether the watcher is active, for the health endpoint.
func (w *Watcher) Running() bool { return w.running.Load() }

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New directory: watch it too, so recordings dropped into
			// fresh subdirectories are picked up.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.watcher.Add(event.Name); err != nil {
					w.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					w.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !w.wantsFile(event.Name) {
				continue
			}
			w.scheduleProcess(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess debounces processing so a recording still being copied
// in is not split mid-write. Every Write event pushes the timer back.
func (w *Watcher) scheduleProcess(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(w.debounce)
		return
	}

	w.debounceTimers[path] = time.AfterFunc(w.debounce, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.process(path)
	})
}

// backfill identifies recordings that were dropped while the service was
// not running. The sidecar check keeps restarts from re-identifying
// everything.
func (w *Watcher) backfill() {
	var pending []string
	_ = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !w.wantsFile(path) {
			return nil
		}
		if _, err := os.Stat(SidecarPath(path)); err == nil {
			return nil
		}
		pending = append(pending, path)
		return nil
	})

	if len(pending) == 0 {
		return
	}
	w.log.Info().Int("files", len(pending)).Msg("identifying recordings found at startup")

	for _, path := range pending {
		if w.ctx.Err() != nil {
			return
		}
		w.process(path)
	}
}

func (w *Watcher) process(path string) {
	sidecar := SidecarPath(path)
	if _, err := os.Stat(sidecar); err == nil {
		w.filesSkipped.Add(1)
		w.log.Debug().Str("path", path).Msg("tracklist already present")
		return
	}

	jobID := uuid.NewString()
	log := w.log.With().Str("path", path).Str("job_id", jobID).Logger()
	log.Info().Msg("identifying dropped recording")

	entries, err := w.svc.IdentifyFile(w.ctx, jobID, path)
	if err != nil {
		log.Warn().Err(err).Msg("identification failed")
		return
	}

	if err := writeSidecar(sidecar, entries); err != nil {
		log.Warn().Err(err).Msg("failed to write tracklist")
		return
	}

	w.filesProcessed.Add(1)
	log.Info().Int("tracks", len(entries)).Str("tracklist", sidecar).Msg("tracklist written")
}

// wantsFile reports whether a path looks like a finished recording: right
// extension, not hidden, not a partial download.
func (w *Watcher) wantsFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return w.exts[strings.ToLower(filepath.Ext(base))]
}

// SidecarPath returns the tracklist path for a recording:
// closing-set.mp3 becomes closing-set.tracklist.json.
func SidecarPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".tracklist.json"
}

// writeSidecar writes the tracklist atomically so readers never see a
// half-written file.
func writeSidecar(path string, entries []identify.TrackEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func normalizeExts(exts []string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		m[e] = true
	}
	return m
}
