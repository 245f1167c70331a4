package config

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	defaultDebounce    = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Watcher reloads the config file when it changes and delivers each valid,
// changed config on Updates. It watches the directory so editors that
// replace the file by rename are still seen.
type Watcher struct {
	path     string
	logger   *zap.Logger
	debounce time.Duration
	updates  chan *Config

	mu   sync.Mutex
	last Config
}

// NewWatcher creates a watcher for path. current is the config already in
// use; identical reloads are not delivered.
func NewWatcher(path string, current *Config, logger *zap.Logger) *Watcher {
	w := &Watcher{
		path:     path,
		logger:   logger,
		debounce: defaultDebounce,
		updates:  make(chan *Config, 1),
	}
	if current != nil {
		w.last = *current
	}
	return w
}

// Updates returns the channel of reloaded configs. Only the newest pending
// config is kept.
func (w *Watcher) Updates() <-chan *Config { return w.updates }

// Run watches until ctx is done, recreating the fsnotify watcher with
// backoff when it breaks.
func (w *Watcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)
	backoff := restartBackoffBase

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, w.reload)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	sleep := func() bool {
		wait := backoff
		if backoff < restartBackoffMax {
			backoff = min(backoff*2, restartBackoffMax)
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
			return true
		}
	}

	for ctx.Err() == nil {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			w.logger.Warn("config watch init failed", zap.Error(err))
			if !sleep() {
				return nil
			}
			continue
		}
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			w.logger.Warn("config watch add failed", zap.String("dir", dir), zap.Error(err))
			if !sleep() {
				return nil
			}
			continue
		}
		backoff = restartBackoffBase
		w.logger.Debug("config watcher started", zap.String("path", w.path))

		if done := w.loop(ctx, fw, file, schedule); done {
			_ = fw.Close()
			return nil
		}
		_ = fw.Close()
		w.logger.Warn("config watcher stopped, restarting", zap.String("path", w.path))
		if !sleep() {
			return nil
		}
	}
	return nil
}

// loop consumes events until ctx is done (true) or the watcher breaks (false).
func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, file string, schedule func()) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case ev, ok := <-fw.Events:
			if !ok {
				return false
			}
			if filepath.Base(ev.Name) == file && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				schedule()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return false
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("config watch overflow, forcing reload", zap.Error(err))
				schedule()
				continue
			}
			w.logger.Warn("config watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}

	w.mu.Lock()
	unchanged := *cfg == w.last
	if !unchanged {
		w.last = *cfg
	}
	w.mu.Unlock()
	if unchanged {
		w.logger.Debug("config unchanged, skipping", zap.String("path", w.path))
		return
	}

	// Replace a pending update rather than block the timer goroutine.
	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- cfg:
		w.logger.Info("config reloaded", zap.String("path", w.path))
	default:
	}
}
