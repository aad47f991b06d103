package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Manager hands out per-job scratch directories under a single root and
// reclaims them when the job releases.
type Manager struct {
	root string
	log  zerolog.Logger
}

// NewManager creates a workspace manager, making the root directory if it
// does not exist yet.
func NewManager(root string, log zerolog.Logger) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", root, err)
	}
	return &Manager{root: root, log: log}, nil
}

// Root returns the workspace root directory.
func (m *Manager) Root() string { return m.root }

// Acquire creates a scratch directory for one job. The returned release
// func removes the directory and everything in it; calling it more than
// once is safe.
func (m *Manager) Acquire(id string) (string, func(), error) {
	// The id becomes a directory name; it must stay inside the root.
	name := filepath.Base(id)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", nil, fmt.Errorf("invalid workspace id %q", id)
	}

	dir := filepath.Join(m.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := os.RemoveAll(dir); err != nil {
				m.log.Warn().Err(err).Str("dir", dir).Msg("workspace cleanup failed")
			}
		})
	}
	return dir, release, nil
}

// Sweep removes every job directory under the root, reclaiming scratch
// space left behind by an unclean shutdown. Returns the number removed.
func (m *Manager) Sweep() (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", m.root, err)
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, e.Name())); err != nil {
			m.log.Warn().Err(err).Str("dir", e.Name()).Msg("workspace sweep failed")
			continue
		}
		removed++
	}
	return removed, nil
}
