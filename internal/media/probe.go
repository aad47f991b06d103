package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeDuration reads the duration of an audio file via ffprobe.
func ProbeDuration(ctx context.Context, ffprobePath, audioPath string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	)
	out, err := cmd.Output()
	if err != nil {
		if detail := exitDetail(err); detail != "" {
			return 0, fmt.Errorf("ffprobe: %w: %s", err, detail)
		}
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbeDuration(string(out))
}

func parseProbeDuration(out string) (time.Duration, error) {
	s := strings.TrimSpace(out)
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("non-positive duration %v", secs)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// exitDetail pulls captured stderr out of an exec exit error.
func exitDetail(err error) string {
	var ee *exec.ExitError
	if errors.As(err, &ee) && len(ee.Stderr) > 0 {
		return strings.TrimSpace(string(ee.Stderr))
	}
	return ""
}
