package rulewatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/goliatone/go-arlaunch"
)

type recordingReloader struct {
	mu    sync.Mutex
	rules []arlaunch.Rules
	err   error
}

func (r *recordingReloader) SetRules(rules arlaunch.Rules) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.rules = append(r.rules, rules)
	return nil
}

type reloadResult struct {
	rules arlaunch.Rules
	err   error
}

// runUntilReload keeps rewriting the file until the watcher reports a reload,
// since the first write can land before the directory watch is registered.
func runUntilReload(t *testing.T, path, body string, target Reloader, opts ...Option) reloadResult {
	t.Helper()

	results := make(chan reloadResult, 16)
	opts = append(opts, WithDebounce(20*time.Millisecond), WithOnReload(func(rules arlaunch.Rules, err error) {
		select {
		case results <- reloadResult{rules: rules, err: err}:
		default:
		}
	}))
	w, err := New(path, target, opts...)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("run: %v", err)
		}
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write rules: %v", err)
		}
		select {
		case result := <-results:
			return result
		case <-tick.C:
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

func TestWatcherReloadsRules(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "rules.toml")
	if err := os.WriteFile(path, []byte(`quick_look = "ios_family"`), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	target := &recordingReloader{}
	result := runUntilReload(t, path, "scene_viewer = \"android\"\n", target, WithEngine(arlaunch.EngineCEL))
	if result.err != nil {
		t.Fatalf("reload: %v", result.err)
	}
	if result.rules.SceneViewer != "android" || result.rules.Engine != arlaunch.EngineCEL {
		t.Fatalf("unexpected rules %+v", result.rules)
	}

	target.mu.Lock()
	defer target.mu.Unlock()
	if len(target.rules) == 0 {
		t.Fatal("expected reloader to receive rules")
	}
}

func TestWatcherKeepsRulesOnInvalidFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	detector, err := arlaunch.NewDetector()
	if err != nil {
		t.Fatalf("detector: %v", err)
	}
	before := detector.Rules()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	result := runUntilReload(t, path, "quick_look: \"ios_family &&\"\n", detector)
	if result.err == nil {
		t.Fatal("expected compile error")
	}
	if detector.Rules() != before {
		t.Fatalf("active rules changed to %+v", detector.Rules())
	}
}

func TestWatcherReportsReloaderError(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "rules.json")
	boom := errors.New("boom")
	result := runUntilReload(t, path, `{"quick_look":"ios_family"}`, &recordingReloader{err: boom})
	if !errors.Is(result.err, boom) {
		t.Fatalf("expected reloader error, got %v", result.err)
	}
}

func TestLoadKeepsFileEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toml")
	if err := os.WriteFile(path, []byte("engine = \"expr\"\n"), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	rules, err := Load(path, arlaunch.EngineCEL)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rules.Engine != arlaunch.EngineExpr {
		t.Fatalf("file engine must win, got %q", rules.Engine)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New("", &recordingReloader{}); err == nil {
		t.Fatal("expected empty path error")
	}
	if _, err := New("rules.toml", nil); err == nil {
		t.Fatal("expected nil reloader error")
	}
}
