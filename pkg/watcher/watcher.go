package watcher

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Service monitors files for modification by polling their mtime.
type Service struct {
	paths []string
	mu    sync.Mutex
	seen  map[string]time.Time
}

// NewService creates a monitor for paths. The current mtimes are the baseline;
// missing files count as changed once they appear.
func NewService(paths []string) *Service {
	s := &Service{
		paths: paths,
		seen:  make(map[string]time.Time, len(paths)),
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			slog.Warn("Watcher: file does not exist yet", "path", path)
			continue
		}
		s.seen[path] = info.ModTime()
	}
	return s
}

// CheckChanged returns the paths modified since the last check.
func (s *Service) CheckChanged() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for _, path := range s.paths {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		modTime := info.ModTime()
		if last, ok := s.seen[path]; ok && !modTime.After(last) {
			continue
		}
		s.seen[path] = modTime
		changed = append(changed, path)
	}
	return changed
}

// Run polls every interval until ctx ends and calls onChange for each
// modified path.
func (s *Service) Run(ctx context.Context, interval time.Duration, onChange func(path string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, path := range s.CheckChanged() {
				slog.Info("Watcher: file changed", "path", path)
				onChange(path)
			}
		}
	}
}
