package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses bursts of editor writes into one reload signal.
const DefaultDebounce = 200 * time.Millisecond

// Loader implements ports.ChartLoader and ports.Watchable on the local filesystem.
type Loader struct {
	Logger   *slog.Logger
	Debounce time.Duration
}

// NewLoader creates a filesystem loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{Logger: logger, Debounce: DefaultDebounce}
}

// Load reads the file at location.
func (l *Loader) Load(location string) ([]byte, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("read chart: %w", err)
	}
	return data, nil
}

// Resolve joins location to the directory of base unless it is absolute.
func (l *Loader) Resolve(base, location string) string {
	if filepath.IsAbs(location) || base == "" {
		return filepath.Clean(location)
	}
	return filepath.Join(filepath.Dir(base), location)
}

// Watch signals on the returned channel whenever one of the given files is
// written, created, renamed or removed. The channel closes when ctx is done.
// Parent directories are watched so atomic-rename saves are observed.
func (l *Loader) Watch(ctx context.Context, locations ...string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	files := make(map[string]bool, len(locations))
	dirs := make(map[string]bool)
	for _, loc := range locations {
		abs, err := filepath.Abs(loc)
		if err != nil {
			_ = watcher.Close()
			return nil, err
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	out := make(chan struct{}, 1)
	go l.watchLoop(ctx, watcher, files, out)
	return out, nil
}

func (l *Loader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, files map[string]bool, out chan<- struct{}) {
	defer close(out)
	defer watcher.Close()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			abs, _ := filepath.Abs(event.Name)
			if !files[abs] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				l.Logger.Debug("chart source changed", "path", event.Name, "op", event.Op.String())
				pending = time.After(l.Debounce)
			}
		case <-pending:
			pending = nil
			select {
			case out <- struct{}{}:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.Logger.Warn("watcher error", "err", err)
		}
	}
}
