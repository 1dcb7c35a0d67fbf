package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultWatchDebounce coalesces bursts of filesystem events (editors
// often write a file via rename-into-place, which fires Create+Remove in
// quick succession) into a single reload.
const defaultWatchDebounce = 250 * time.Millisecond

// Watcher watches the config file and the persona directory for changes
// and reloads config on write, grounded on the teacher's skills.Manager
// watch loop. It is optional: callers that never start one pay nothing.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatchFile builds a Watcher for path, watching both the config file's own
// directory and, once loaded, its persona_directory. onReload is called
// with the freshly reloaded Config after each debounced change; reload
// errors are logged and do not stop the watch.
func WatchFile(ctx context.Context, path string, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{path: path, watcher: fsw, logger: slog.Default()}

	if err := w.addWatchTargets(); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.loop(watchCtx, onReload)

	return w, nil
}

func (w *Watcher) addWatchTargets() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	cfg, err := Load(w.path)
	if err != nil {
		// The config file may not parse yet (e.g. mid-edit); still watch
		// its directory so a subsequent fix is picked up.
		return nil
	}
	if cfg.PromptSystem.Persona.PersonaDirectory != "" {
		if _, err := os.Stat(cfg.PromptSystem.Persona.PersonaDirectory); err == nil {
			_ = w.watcher.Add(cfg.PromptSystem.Persona.PersonaDirectory)
		}
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context, onReload func(*Config)) {
	defer w.wg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(defaultWatchDebounce, func() {
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("config watch: reload failed", "path", w.path, "error", err)
				return
			}
			w.logger.Info("config watch: reloaded", "path", w.path)
			if onReload != nil {
				onReload(cfg)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}

// Close stops watching and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
