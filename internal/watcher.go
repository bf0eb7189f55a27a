package internal

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	pkgconfig "github.com/starford/muninn/pkg/config"
)

// watchConfig watches the loaded configuration file and applies the log
// level from it on change, until ctx is cancelled. Other settings need
// a restart; only the level can change safely at runtime.
//
// The parent directory is watched rather than the file itself because
// most editors replace files via rename, which would drop a file-level
// watch after the first write.
func watchConfig(ctx context.Context, path string, level *slog.LevelVar, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	logger.Info("config watcher: started", slog.String("path", path))

	// reloadTimer debounces bursts of write events from editors that
	// save in several syscalls.
	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(200 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("config watcher: stopped")
			return nil

		case <-reloadCh:
			reloadLogLevel(path, level, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func reloadLogLevel(path string, level *slog.LevelVar, logger *slog.Logger) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		logger.Warn("config watcher: reload failed", slog.String("error", err.Error()))
		return
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("config watcher: invalid config ignored", slog.String("error", err.Error()))
		return
	}
	if cfg.App.LogLevel == level.Level() {
		return
	}
	old := level.Level()
	level.Set(cfg.App.LogLevel)
	logger.Info("config watcher: log level changed",
		slog.String("from", old.String()),
		slog.String("to", cfg.App.LogLevel.String()))
}
