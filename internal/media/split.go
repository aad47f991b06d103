package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mixid/mixid-engine/internal/identify"
)

// Splitter cuts a recording into fixed-length mp3 segments with ffmpeg's
// segment muxer, transcoding whatever the source format is on the way.
type Splitter struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
	log         zerolog.Logger
}

// NewSplitter creates a splitter. Paths may be bare tool names resolved
// from PATH or absolute paths. timeout bounds one whole split run; 0
// means no bound beyond the caller's context.
func NewSplitter(ffmpegPath, ffprobePath string, timeout time.Duration, log zerolog.Logger) *Splitter {
	return &Splitter{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     timeout,
		log:         log,
	}
}

// Available reports whether both ffmpeg and ffprobe resolve to executables.
func (s *Splitter) Available() bool {
	if _, err := exec.LookPath(s.ffmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath(s.ffprobePath)
	return err == nil
}

// Split probes the source, transcodes it into window-length mp3 segments
// under destDir and returns them in index order. The final segment may be
// shorter than the window; an empty trailing artifact is discarded.
func (s *Splitter) Split(ctx context.Context, sourcePath, destDir string, window time.Duration) ([]identify.Segment, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window length must be positive, got %v", window)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	duration, err := ProbeDuration(ctx, s.ffprobePath, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("probe source: %w", err)
	}

	outPattern := filepath.Join(destDir, "segment%05d.mp3")
	cmd := exec.CommandContext(ctx, s.ffmpegPath, segmentArgs(sourcePath, outPattern, window)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg segment: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	paths, err := filepath.Glob(filepath.Join(destDir, "segment*.mp3"))
	if err != nil {
		return nil, fmt.Errorf("collect segments: %w", err)
	}
	sort.Strings(paths)

	// ffmpeg can leave an empty trailing file when the source length is
	// an exact multiple of the window.
	if n := len(paths); n > 0 {
		if info, err := os.Stat(paths[n-1]); err == nil && info.Size() == 0 {
			os.Remove(paths[n-1])
			paths = paths[:n-1]
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no segments produced from %s (duration %v)", filepath.Base(sourcePath), duration)
	}

	segments := make([]identify.Segment, len(paths))
	for i, p := range paths {
		segments[i] = identify.Segment{Index: i, Start: time.Duration(i) * window, Path: p}
	}

	if want := ExpectedSegments(duration, window); len(segments) != want {
		s.log.Warn().
			Int("got", len(segments)).
			Int("want", want).
			Dur("duration", duration).
			Msg("segment count differs from probe estimate")
	}
	s.log.Debug().
		Int("segments", len(segments)).
		Dur("duration", duration).
		Dur("window", window).
		Msg("source split")

	return segments, nil
}

// segmentArgs builds the ffmpeg invocation for one split run.
func segmentArgs(sourcePath, outPattern string, window time.Duration) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-i", sourcePath,
		"-vn", "-map", "0:a",
		"-acodec", "libmp3lame", "-b:a", "128k",
		"-f", "segment",
		"-segment_time", strconv.FormatFloat(window.Seconds(), 'f', -1, 64),
		"-reset_timestamps", "1",
		outPattern,
	}
}

// ExpectedSegments returns ceil(duration/window): the number of windows a
// source of the given length partitions into.
func ExpectedSegments(duration, window time.Duration) int {
	if window <= 0 || duration <= 0 {
		return 0
	}
	n := int(duration / window)
	if duration%window != 0 {
		n++
	}
	return n
}
