// Package rulewatch reloads capability rules when their file changes.
package rulewatch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/goliatone/go-arlaunch"
)

// DefaultDebounce coalesces editor save bursts into one reload.
const DefaultDebounce = 100 * time.Millisecond

// Reloader receives freshly parsed rules. *arlaunch.Detector satisfies it.
type Reloader interface {
	SetRules(arlaunch.Rules) error
}

// Load reads the rules file, using engine when the file does not name one.
func Load(path, engine string) (arlaunch.Rules, error) {
	rules, err := arlaunch.LoadRules(path)
	if err != nil {
		return arlaunch.Rules{}, err
	}
	if strings.TrimSpace(rules.Engine) == "" {
		rules.Engine = engine
	}
	return rules, nil
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger used for reload outcomes.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithEngine sets the engine used when the rules file does not name one.
func WithEngine(engine string) Option {
	return func(w *Watcher) {
		w.engine = engine
	}
}

// WithOnReload registers a callback run after every reload attempt.
func WithOnReload(fn func(arlaunch.Rules, error)) Option {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// Watcher monitors a rules file and swaps reloaded rules into a Reloader.
// A rules file that fails to parse or compile leaves the active rules in place.
type Watcher struct {
	path     string
	target   Reloader
	engine   string
	debounce time.Duration
	logger   *zap.Logger
	onReload func(arlaunch.Rules, error)
}

// New creates a watcher for path.
func New(path string, target Reloader, opts ...Option) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("rulewatch: path must not be empty")
	}
	if target == nil {
		return nil, fmt.Errorf("rulewatch: reloader must not be nil")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("rulewatch: resolve %s: %w", path, err)
	}
	w := &Watcher{
		path:     abs,
		target:   target,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run watches until ctx is done. The parent directory is watched so that
// editors replacing the file by rename are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rulewatch: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("rulewatch: watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching rules", zap.String("path", w.path))

	var pending time.Time
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.Now()
			}

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < w.debounce {
				continue
			}
			pending = time.Time{}
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("rules watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	rules, err := Load(w.path, w.engine)
	if err == nil {
		err = w.target.SetRules(rules)
	}
	if err != nil {
		w.logger.Warn("rules reload failed, keeping active rules", zap.String("path", w.path), zap.Error(err))
	} else {
		w.logger.Info("rules reloaded", zap.String("path", w.path), zap.String("engine", rules.Engine))
	}
	if w.onReload != nil {
		w.onReload(rules, err)
	}
}
