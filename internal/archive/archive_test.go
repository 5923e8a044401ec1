package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestKey(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	key := Key(42, "standup.WAV", now)

	re := regexp.MustCompile(`^42/2026-08-30/[0-9a-f-]{36}\.wav$`)
	if !re.MatchString(key) {
		t.Errorf("Key = %q, want match for %s", key, re)
	}

	if k2 := Key(42, "standup.WAV", now); k2 == key {
		t.Error("two keys for the same upload collided")
	}
}

func TestSafeExt(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a.mp3", ".mp3"},
		{"A.WAV", ".wav"},
		{"noext", ""},
		{"trailing.", ""},
		{"weird.mp3?x=1", ""},
		{"dir/trick.../...", ""},
		{"long.superduperlongext", ""},
	}
	for _, tt := range tests {
		if got := safeExt(tt.in); got != tt.want {
			t.Errorf("safeExt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContentTypeForExt(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".mp3", "audio/mpeg"},
		{".WAV", "audio/wav"},
		{".m4a", "audio/mp4"},
		{".xyz", "application/octet-stream"},
		{"", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := ContentTypeForExt(tt.ext); got != tt.want {
			t.Errorf("ContentTypeForExt(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

// ── LocalStore ───────────────────────────────────────────────────────

func TestLocalStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	ctx := context.Background()
	key := "42/2026-08-30/rec.wav"

	if s.Exists(ctx, key) {
		t.Fatal("Exists before Save")
	}
	if err := s.Save(ctx, key, []byte("RIFFdata"), "audio/wav"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !s.Exists(ctx, key) {
		t.Error("Exists false after Save")
	}

	r, err := s.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "RIFFdata" {
		t.Errorf("data = %q, want RIFFdata", data)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "42", "2026-08-30"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".recording-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestLocalStore_URLEmpty(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	url, err := s.URL(context.Background(), "k")
	if err != nil || url != "" {
		t.Errorf("URL = (%q, %v), want empty", url, err)
	}
}

// ── Archiver ─────────────────────────────────────────────────────────

func TestArchiver_SavesEnqueued(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	a := NewArchiver(store, 8, zerolog.Nop())
	a.Start(1)

	key := "7/2026-08-30/rec.mp3"
	a.Enqueue(key, "audio/mpeg", []byte("ID3data"))
	a.Stop()

	if !store.Exists(context.Background(), key) {
		t.Error("recording not saved after Stop drained the queue")
	}
}

func TestArchiver_EnqueueAfterStop(t *testing.T) {
	a := NewArchiver(NewLocalStore(t.TempDir()), 8, zerolog.Nop())
	a.Start(1)
	a.Stop()

	// Must not panic on a closed channel.
	a.Enqueue("7/2026-08-30/late.mp3", "audio/mpeg", []byte("x"))
}

func TestArchiver_ConcurrentEnqueueAndStop(t *testing.T) {
	// Enqueues racing Stop must never send on the closed channel.
	for i := 0; i < 50; i++ {
		a := NewArchiver(NewLocalStore(t.TempDir()), 4, zerolog.Nop())
		a.Start(1)

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				a.Enqueue(fmt.Sprintf("7/2026-08-30/%d.mp3", n), "audio/mpeg", []byte("x"))
			}(j)
		}
		a.Stop()
		wg.Wait()
	}
}

func TestArchiver_StopTwice(t *testing.T) {
	a := NewArchiver(NewLocalStore(t.TempDir()), 8, zerolog.Nop())
	a.Start(1)
	a.Stop()
	a.Stop()
}

// ── Pruner ───────────────────────────────────────────────────────────

func TestPruner_EvictsOldFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	ctx := context.Background()

	oldKey := "42/2026-01-01/old.wav"
	newKey := "42/2026-08-30/new.wav"
	if err := store.Save(ctx, oldKey, []byte("old"), ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, newKey, []byte("new"), ""); err != nil {
		t.Fatalf("save: %v", err)
	}

	oldPath := filepath.Join(dir, "42", "2026-01-01", "old.wav")
	past := time.Now().Add(-90 * 24 * time.Hour)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	p := NewPruner(dir, 30*24*time.Hour, 0, nil, zerolog.Nop())
	p.prune()

	if store.Exists(ctx, oldKey) {
		t.Error("expired recording survived prune")
	}
	if !store.Exists(ctx, newKey) {
		t.Error("fresh recording was pruned")
	}
	if _, err := os.Stat(filepath.Join(dir, "42", "2026-01-01")); !os.IsNotExist(err) {
		t.Error("empty date directory not removed")
	}
}

type fakeBackup struct {
	have  map[string]bool
	saves []string
	fail  bool
}

func (f *fakeBackup) Exists(_ context.Context, key string) bool { return f.have[key] }

func (f *fakeBackup) Save(_ context.Context, key string, _ []byte, _ string) error {
	if f.fail {
		return fmt.Errorf("backup unavailable")
	}
	f.saves = append(f.saves, key)
	return nil
}

func TestPruner_UploadsOnlyMissingBackups(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	ctx := context.Background()

	backedKey := "42/2026-01-01/backed.wav"
	missingKey := "42/2026-01-02/missing.wav"
	for _, k := range []string{backedKey, missingKey} {
		if err := store.Save(ctx, k, []byte("x"), ""); err != nil {
			t.Fatalf("save: %v", err)
		}
		path := filepath.Join(dir, filepath.FromSlash(k))
		past := time.Now().Add(-90 * 24 * time.Hour)
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	backup := &fakeBackup{have: map[string]bool{backedKey: true}}
	p := NewPruner(dir, 30*24*time.Hour, 0, backup, zerolog.Nop())
	p.prune()

	if store.Exists(ctx, backedKey) || store.Exists(ctx, missingKey) {
		t.Error("expired recordings survived prune")
	}
	if len(backup.saves) != 1 || backup.saves[0] != missingKey {
		t.Errorf("uploads = %v, want only %q", backup.saves, missingKey)
	}
}

func TestPruner_KeepsLocalWhenBackupFails(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	ctx := context.Background()

	key := "42/2026-01-01/rec.wav"
	if err := store.Save(ctx, key, []byte("x"), ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	path := filepath.Join(dir, filepath.FromSlash(key))
	past := time.Now().Add(-90 * 24 * time.Hour)
	os.Chtimes(path, past, past)

	p := NewPruner(dir, 30*24*time.Hour, 0, &fakeBackup{fail: true}, zerolog.Nop())
	p.prune()

	if !store.Exists(ctx, key) {
		t.Error("recording evicted although the backup upload failed")
	}
}

func TestPruner_RespectsRetentionZero(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	ctx := context.Background()

	key := "42/2026-01-01/keep.wav"
	if err := store.Save(ctx, key, []byte("keep"), ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	path := filepath.Join(dir, "42", "2026-01-01", "keep.wav")
	past := time.Now().Add(-365 * 24 * time.Hour)
	os.Chtimes(path, past, past)

	p := NewPruner(dir, 0, 0, nil, zerolog.Nop())
	p.prune()

	if !store.Exists(ctx, key) {
		t.Error("pruner with no limits deleted a recording")
	}
}

func TestPruner_EvictsBySize(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	ctx := context.Background()

	// maxBytes is set below the total so the oldest file must go.
	oldKey := "1/2026-01-01/a.wav"
	newKey := "1/2026-08-30/b.wav"
	store.Save(ctx, oldKey, make([]byte, 1024), "")
	store.Save(ctx, newKey, make([]byte, 1024), "")

	oldPath := filepath.Join(dir, "1", "2026-01-01", "a.wav")
	past := time.Now().Add(-time.Hour)
	os.Chtimes(oldPath, past, past)

	p := NewPruner(dir, 0, 1, nil, zerolog.Nop())
	p.maxBytes = 1536
	p.prune()

	if store.Exists(ctx, oldKey) {
		t.Error("oldest recording survived size-based prune")
	}
	if !store.Exists(ctx, newKey) {
		t.Error("newest recording pruned before older ones")
	}
}
