package imagecache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Fetcher is the part of the HTTP client the cache pulls covers through.
type Fetcher interface {
	AlbumCover(ctx context.Context, album string) ([]byte, error)
	AlbumCoverModTime(ctx context.Context, album string) (int64, error)
}

// Slot is an observable image holder. It starts empty and is filled (and
// possibly replaced) asynchronously as the cache resolves the cover.
type Slot struct {
	mu   sync.Mutex
	data []byte
	subs map[chan struct{}]struct{}
}

func newSlot() *Slot {
	return &Slot{subs: map[chan struct{}]struct{}{}}
}

// Bytes returns the current image, or nil while still loading.
func (s *Slot) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Subscribe returns a buffered channel signalled whenever the slot changes.
func (s *Slot) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel returned by Subscribe.
func (s *Slot) Unsubscribe(ch chan struct{}) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
}

func (s *Slot) set(data []byte) {
	s.mu.Lock()
	s.data = data
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}

// Cache keeps album covers on disk under <dir>, keyed by album name, and
// hands out observable slots. Covers survive logout so a reconnect does not
// refetch every image.
type Cache struct {
	dir     string
	fetcher Fetcher

	mu         sync.Mutex
	slots      map[string]*Slot
	refreshing map[string]struct{}
}

// New creates a cache rooted at dir, creating the directory if needed.
func New(dir string, fetcher Fetcher) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{
		dir:        dir,
		fetcher:    fetcher,
		slots:      map[string]*Slot{},
		refreshing: map[string]struct{}{},
	}, nil
}

// Image returns the observable slot for an album, populating it in the
// background. A slot that already holds an image is revalidated against the
// server's cover modification date.
func (c *Cache) Image(album string) *Slot {
	c.mu.Lock()
	slot, ok := c.slots[album]
	if !ok {
		slot = newSlot()
		c.slots[album] = slot
	}
	starting := c.markRefreshingLocked(album)
	c.mu.Unlock()

	if starting {
		go c.refresh(album, slot)
	}
	return slot
}

// ForceRefresh drops the cached image for an album and refetches it.
func (c *Cache) ForceRefresh(album string) {
	c.mu.Lock()
	slot, ok := c.slots[album]
	if ok {
		slot.set(nil)
	} else {
		slot = newSlot()
		c.slots[album] = slot
	}
	starting := c.markRefreshingLocked(album)
	c.mu.Unlock()

	if starting {
		if err := os.Remove(c.path(album)); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("album", album).Msg("imagecache: remove stale cover")
		}
		go c.refresh(album, slot)
	}
}

// markRefreshingLocked records album in the in-flight set. Returns false when
// a refresh for the album is already outstanding, so concurrent requests for
// the same cover collapse into one fetch. Caller holds c.mu.
func (c *Cache) markRefreshingLocked(album string) bool {
	if _, busy := c.refreshing[album]; busy {
		return false
	}
	c.refreshing[album] = struct{}{}
	return true
}

func (c *Cache) refresh(album string, slot *Slot) {
	defer func() {
		c.mu.Lock()
		delete(c.refreshing, album)
		c.mu.Unlock()
	}()

	ctx := context.Background()
	path := c.path(album)

	if fi, err := os.Stat(path); err == nil {
		serverMillis, err := c.fetcher.AlbumCoverModTime(ctx, album)
		if err != nil {
			log.Warn().Err(err).Str("album", album).Msg("imagecache: cover date")
			return
		}
		if time.UnixMilli(serverMillis).Before(fi.ModTime()) {
			data, err := os.ReadFile(path)
			if err == nil {
				slot.set(data)
				return
			}
			log.Warn().Err(err).Str("album", album).Msg("imagecache: read cached cover")
		}
	}

	data, err := c.fetcher.AlbumCover(ctx, album)
	if err != nil {
		log.Warn().Err(err).Str("album", album).Msg("imagecache: fetch cover")
		return
	}
	if err := writeAtomic(path, data); err != nil {
		log.Warn().Err(err).Str("album", album).Msg("imagecache: persist cover")
	}
	slot.set(data)
}

func (c *Cache) path(album string) string {
	return filepath.Join(c.dir, sanitizeFileName(album)+".png")
}

// writeAtomic writes to a unique temp file and renames it into place, so a
// concurrent reader never observes a half-written cover.
func writeAtomic(path string, data []byte) error {
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
