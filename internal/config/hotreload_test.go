package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json5")
	if err := os.WriteFile(path, []byte(`{provider: {model: "a"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	w.debounce = 20 * time.Millisecond

	got := make(chan string, 4)
	w.Subscribe(func(cfg *Config) { got <- cfg.Provider.Model })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{provider: {model: "b"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-got:
		if m != "b" {
			t.Errorf("model = %q, want b", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
}
