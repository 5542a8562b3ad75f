package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callbox.json")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	changes := make(chan Config, 4)
	w, err := NewWatcher(path, func(cfg Config) { changes <- cfg })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	cfg := Default()
	cfg.Store.Backend = "memory"
	cfg.Call.RingTimeoutSec = 30
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changes:
		if got.Store.Backend != "memory" || got.Call.RingTimeoutSec != 30 {
			t.Fatalf("reloaded config = %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never reported the edit")
	}
}

func TestWatcherSkipsInvalidEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callbox.json")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	changes := make(chan Config, 4)
	w, err := NewWatcher(path, func(cfg Config) { changes <- cfg })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte(`{"store":{"backend":"bogus"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	// The broken edit must not reach the callback.
	select {
	case got := <-changes:
		t.Fatalf("invalid config was delivered: %+v", got)
	case <-time.After(reloadSettle * 4):
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "callbox.json")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	changes := make(chan Config, 4)
	w, err := NewWatcher(path, func(cfg Config) { changes <- cfg })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changes:
		t.Fatal("edit of an unrelated file triggered a reload")
	case <-time.After(reloadSettle * 4):
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callbox.json")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(path, func(Config) {})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}
