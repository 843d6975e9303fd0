package db

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.rdb")

	d := New(path)
	d.Set("a", []byte("1"), 0)
	d.Set("b", []byte("2"), time.Minute)
	d.Set("empty", nil, 0)
	if err := d.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	d.Close()

	// fresh process load
	restored := New(path)
	t.Cleanup(restored.Close)
	if err := restored.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	value, ok := restored.Get("a")
	if !ok || !bytes.Equal(value, []byte("1")) {
		t.Errorf("expected a=1, got %s (%t)", value, ok)
	}
	value, ok = restored.Get("b")
	if !ok || !bytes.Equal(value, []byte("2")) {
		t.Errorf("expected b=2, got %s (%t)", value, ok)
	}
	if _, ok := restored.Get("empty"); !ok {
		t.Error("expected empty value to survive the round trip")
	}

	// the expiry index is re-derived from the loaded deadlines
	restored.mu.Lock()
	rowPresent := restored.expiry.Contains("b")
	restored.mu.Unlock()
	if !rowPresent {
		t.Error("expected expiry row for b after load")
	}
}

func TestSnapshotSkipsExpiredOnLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.rdb")

	d := New(path)
	d.Set("keep", []byte("v"), time.Minute)
	d.Set("gone", []byte("v"), 30*time.Millisecond)
	if err := d.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	d.Close()

	time.Sleep(60 * time.Millisecond)

	restored := New(path)
	t.Cleanup(restored.Close)
	if err := restored.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if _, ok := restored.Get("keep"); !ok {
		t.Error("expected unexpired entry to be loaded")
	}
	if _, ok := restored.Get("gone"); ok {
		t.Error("expected already-expired entry to be dropped at load")
	}
}

func TestSnapshotSkipsExpiredOnSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.rdb")

	d := New(path)
	t.Cleanup(d.Close)

	// plant an entry that expired without being reaped yet
	d.mu.Lock()
	d.entries["stale"] = Entry{Data: []byte("v"), ExpiresAt: time.Now().Add(-time.Second)}
	d.expiry.AddItem("stale", time.Now().Add(-time.Second).UnixNano())
	d.mu.Unlock()

	if err := d.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer f.Close()
	entries, err := readSnapshot(f)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if _, present := entries["stale"]; present {
		t.Error("expired entry leaked into the snapshot")
	}
}

func TestSnapshotLoadMissingFile(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "absent.rdb"))
	t.Cleanup(d.Close)

	if err := d.Load(); err != nil {
		t.Errorf("missing snapshot must not be an error, got %v", err)
	}
}

func TestSnapshotAtomicRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.rdb")

	d := New(path)
	t.Cleanup(d.Close)
	d.Set("k", []byte("v"), 0)
	if err := d.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("snapshot missing after save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary snapshot file left behind")
	}
}

func TestSnapshotRejectsForeignFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.rdb")
	if err := os.WriteFile(path, []byte("not a snapshot"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := New(path)
	t.Cleanup(d.Close)
	if err := d.Load(); err == nil {
		t.Error("expected error loading a non-snapshot file")
	}
}
