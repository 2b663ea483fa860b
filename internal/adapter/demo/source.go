// Package demo serves emergency requests from a bundled fixture or a local
// JSON file, for running the dashboard without a backend.
package demo

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/fsnotify/fsnotify"
)

//go:embed requests.json
var bundled []byte

// Source reads a JSON array of raw requests. With no path it serves the
// bundled fixture; otherwise the file is re-read on every Fetch.
type Source struct {
	path   string
	logger *slog.Logger
}

// NewSource creates a demo source. path may be empty.
func NewSource(path string, logger *slog.Logger) *Source {
	return &Source{path: path, logger: logger}
}

// Fetch returns the current demo payloads.
func (s *Source) Fetch(_ context.Context) ([]domain.RawEmergency, error) {
	data := bundled
	if s.path != "" {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("read demo data: %w", err)
		}
		data = b
	}

	var raws []domain.RawEmergency
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode demo data: %w", err)
	}
	return raws, nil
}

// Watch calls onChange whenever the demo file is written or replaced,
// until ctx is cancelled. It is a no-op for the bundled fixture.
func (s *Source) Watch(ctx context.Context, onChange func()) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace files via rename.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", s.path, err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					s.logger.Info("demo data changed", "path", s.path, "op", evt.Op.String())
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("demo watcher error", "error", err)
			}
		}
	}()
	return nil
}
