package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ytget/musicdl/internal/model"
)

type fakeSession struct {
	mu        sync.Mutex
	songs     map[string][]model.Song
	downloads int
}

func (f *fakeSession) Songs(ctx context.Context, section string) ([]model.Song, error) {
	return f.songs[section], nil
}

func (f *fakeSession) Song(ctx context.Context, section, name, album string) ([]byte, error) {
	f.mu.Lock()
	f.downloads++
	f.mu.Unlock()
	return []byte(fmt.Sprintf("audio:%s/%s/%s", section, album, name)), nil
}

func (f *fakeSession) downloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads
}

func newTestSyncer(t *testing.T) (*Syncer, *fakeSession, string) {
	t.Helper()
	session := &fakeSession{songs: map[string][]model.Song{
		"Rock": {
			{Name: "Song A", Artist: "Artist", Album: "First"},
			{Name: "Song B", Artist: "Artist", Album: "Second"},
		},
	}}
	dir := t.TempDir()
	s, err := New(session, filepath.Join(dir, "manifest.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, session, filepath.Join(dir, "out")
}

func TestSyncSection_DownloadsAll(t *testing.T) {
	s, session, dir := newTestSyncer(t)

	var seen []Progress
	if err := s.SyncSection(context.Background(), "Rock", dir, func(p Progress) {
		seen = append(seen, p)
	}); err != nil {
		t.Fatalf("SyncSection: %v", err)
	}

	if session.downloadCount() != 2 {
		t.Fatalf("expected 2 downloads, got %d", session.downloadCount())
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 progress reports, got %d", len(seen))
	}

	data, err := os.ReadFile(filepath.Join(dir, "First - Song A.mp3"))
	if err != nil {
		t.Fatalf("synced file missing: %v", err)
	}
	if string(data) != "audio:Rock/First/Song A" {
		t.Fatalf("unexpected file contents: %q", data)
	}
}

func TestSyncSection_SkipsSyncedFiles(t *testing.T) {
	s, session, dir := newTestSyncer(t)

	if err := s.SyncSection(context.Background(), "Rock", dir, nil); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	var seen []Progress
	if err := s.SyncSection(context.Background(), "Rock", dir, func(p Progress) {
		seen = append(seen, p)
	}); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	if session.downloadCount() != 2 {
		t.Fatalf("re-sync must not download again, got %d downloads", session.downloadCount())
	}
	for _, p := range seen {
		if !p.Skipped {
			t.Errorf("expected %s to be skipped", p.File)
		}
	}
}

func TestSyncSection_RedownloadsMissingFile(t *testing.T) {
	s, session, dir := newTestSyncer(t)

	if err := s.SyncSection(context.Background(), "Rock", dir, nil); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "First - Song A.mp3")); err != nil {
		t.Fatal(err)
	}

	if err := s.SyncSection(context.Background(), "Rock", dir, nil); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	if session.downloadCount() != 3 {
		t.Fatalf("expected one re-download for the deleted file, got %d total", session.downloadCount())
	}
	if _, err := os.Stat(filepath.Join(dir, "First - Song A.mp3")); err != nil {
		t.Fatalf("deleted file not restored: %v", err)
	}
}

func TestSyncSection_Cancelled(t *testing.T) {
	s, _, dir := newTestSyncer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SyncSection(ctx, "Rock", dir, nil); err == nil {
		t.Fatal("expected context error for cancelled sync")
	}
}
