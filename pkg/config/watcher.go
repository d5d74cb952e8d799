package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/TheEntropyCollective/logtree/pkg/logging"
)

// reloadDebounce coalesces the event bursts editors produce on save.
const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the configuration file when it changes and hands every
// successfully parsed and validated revision to the callback. Only
// runtime-adjustable settings (severity floor, log level) should be taken
// from reloaded revisions; sinks are wired once at startup.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*Config)
	log      *logging.Logger
	cancel   context.CancelFunc
}

// NewWatcher watches path and calls onReload for each valid revision.
func NewWatcher(path string, log *logging.Logger, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	// watch the directory: editors replace the file on save, which drops a
	// watch registered on the file itself
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:     path,
		watcher:  fsw,
		onReload: onReload,
		log:      log.WithComponent("config-watch"),
		cancel:   cancel,
	}
	go w.eventLoop(ctx)
	return w, nil
}

func (w *Watcher) eventLoop(ctx context.Context) {
	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.log.Warn("ignoring invalid config revision", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	w.log.Info("configuration reloaded", map[string]interface{}{
		"min_severity": cfg.MinSeverity,
	})
	w.onReload(cfg)
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}
