package fetch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Downloader fetches remote recordings with yt-dlp. It downloads the best
// available audio stream as-is; transcoding is the splitter's job.
type Downloader struct {
	ytdlpPath string
	timeout   time.Duration
	log       zerolog.Logger
}

// NewDownloader creates a downloader. ytdlpPath may be a bare tool name
// resolved from PATH or an absolute path. timeout bounds one download; 0
// means no bound beyond the caller's context.
func NewDownloader(ytdlpPath string, timeout time.Duration, log zerolog.Logger) *Downloader {
	return &Downloader{ytdlpPath: ytdlpPath, timeout: timeout, log: log}
}

// Available reports whether yt-dlp resolves to an executable.
func (d *Downloader) Available() bool {
	_, err := exec.LookPath(d.ytdlpPath)
	return err == nil
}

// Fetch downloads the audio at url into destDir and returns the path of
// the saved file. The extension depends on what the source serves.
func (d *Downloader) Fetch(ctx context.Context, url, destDir string) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	outTemplate := filepath.Join(destDir, "source.%(ext)s")
	cmd := exec.CommandContext(ctx, d.ytdlpPath, fetchArgs(url, outTemplate)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	// yt-dlp picks the extension; find what it wrote.
	matches, err := filepath.Glob(filepath.Join(destDir, "source.*"))
	if err != nil {
		return "", fmt.Errorf("locate download: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("yt-dlp produced no output file")
	}

	d.log.Debug().
		Str("url", url).
		Str("file", filepath.Base(matches[0])).
		Dur("elapsed", time.Since(start)).
		Msg("download complete")
	return matches[0], nil
}

// fetchArgs builds the yt-dlp invocation for one download. The trailing
// "--" keeps a hostile locator from being parsed as a flag.
func fetchArgs(url, outTemplate string) []string {
	return []string{
		"--no-playlist",
		"--no-progress",
		"--quiet",
		"-f", "bestaudio/best",
		"-o", outTemplate,
		"--",
		url,
	}
}
