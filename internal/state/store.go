package state

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ytget/musicdl/internal/model"
)

// Session is the part of the HTTP client the store refreshes from.
type Session interface {
	Sections(ctx context.Context) ([]string, error)
	Albums(ctx context.Context) ([]string, error)
	Songs(ctx context.Context, section string) ([]model.Song, error)
	SectionsAndSongs(ctx context.Context) (map[string][]model.Song, error)
}

// Store is the client-side cache of the server's catalog and of per-task
// statuses. One instance exists per logged-in session; it is created on login,
// passed to consumers explicitly and discarded on logout. Refresh operations
// replace whole slices; status events upsert one key at a time.
type Store struct {
	mu       sync.RWMutex
	session  Session
	sections []string
	albums   []string
	songs    map[string][]model.Song
	statuses map[model.DownloadRequest]model.TaskStatus

	subsMu sync.Mutex
	subs   map[chan struct{}]struct{}

	// onFinished runs the catalog refresh a FINISHED status triggers.
	// Replaceable so tests can observe it without real network calls.
	onFinished func()
}

// New creates a store bound to an active session. The session must not be
// nil for any refresh operation to be legal.
func New(session Session) *Store {
	s := &Store{
		session:  session,
		songs:    map[string][]model.Song{},
		statuses: map[model.DownloadRequest]model.TaskStatus{},
		subs:     map[chan struct{}]struct{}{},
	}
	s.onFinished = s.refreshAfterFinish
	return s
}

// Subscribe returns a buffered channel that receives a signal after every
// mutation. Rapid mutations coalesce into a single pending signal.
func (s *Store) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()
	return ch
}

// Unsubscribe removes a channel returned by Subscribe.
func (s *Store) Unsubscribe(ch chan struct{}) {
	s.subsMu.Lock()
	delete(s.subs, ch)
	s.subsMu.Unlock()
}

func (s *Store) publish() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) mustSession() Session {
	if s.session == nil {
		panic("state: refresh called without an active session")
	}
	return s.session
}

// Sections returns the cached section names.
func (s *Store) Sections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sections
}

// Albums returns the cached album names.
func (s *Store) Albums() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.albums
}

// Songs returns the cached songs of one section.
func (s *Store) Songs(section string) []model.Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.songs[section]
}

// Statuses returns a copy of the task status map.
func (s *Store) Statuses() map[model.DownloadRequest]model.TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.DownloadRequest]model.TaskStatus, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = v
	}
	return out
}

// Status returns the latest status for one request.
func (s *Store) Status(request model.DownloadRequest) (model.TaskStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[request]
	return status, ok
}

// RefreshSections replaces the section list.
func (s *Store) RefreshSections(ctx context.Context) error {
	sections, err := s.mustSession().Sections(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sections = sections
	s.mu.Unlock()
	s.publish()
	return nil
}

// RefreshAlbums replaces the album list.
func (s *Store) RefreshAlbums(ctx context.Context) error {
	albums, err := s.mustSession().Albums(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.albums = albums
	s.mu.Unlock()
	s.publish()
	return nil
}

// RefreshSongs replaces the song list of one section.
func (s *Store) RefreshSongs(ctx context.Context, section string) error {
	songs, err := s.mustSession().Songs(ctx, section)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.songs[section] = songs
	s.mu.Unlock()
	s.publish()
	return nil
}

// RefreshSectionsAndSongs replaces the whole section-to-songs mapping and the
// section list derived from it.
func (s *Store) RefreshSectionsAndSongs(ctx context.Context) error {
	songs, err := s.mustSession().SectionsAndSongs(ctx)
	if err != nil {
		return err
	}
	sections := make([]string, 0, len(songs))
	for section := range songs {
		sections = append(sections, section)
	}
	s.mu.Lock()
	s.songs = songs
	s.sections = sections
	s.mu.Unlock()
	s.publish()
	return nil
}

// ApplyStatus merges one status event, keyed by its request: a later event
// for the same request replaces the earlier one. A FINISHED status also
// triggers one asynchronous catalog refresh, since a completed download
// changes the server's library.
func (s *Store) ApplyStatus(status model.TaskStatus) {
	s.mu.Lock()
	s.statuses[status.Request] = status
	s.mu.Unlock()
	s.publish()

	if status.Status == model.StatusFinished {
		go s.onFinished()
	}
}

func (s *Store) refreshAfterFinish() {
	if err := s.RefreshSectionsAndSongs(context.Background()); err != nil {
		log.Warn().Err(err).Msg("state: refresh after finished download")
	}
}

// RemoveStatus drops the entry for one request, e.g. after a cancel.
func (s *Store) RemoveStatus(request model.DownloadRequest) {
	s.mu.Lock()
	delete(s.statuses, request)
	s.mu.Unlock()
	s.publish()
}

// Reset clears all cached catalog data and statuses, keeping subscribers
// registered. Called on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	s.sections = nil
	s.albums = nil
	s.songs = map[string][]model.Song{}
	s.statuses = map[model.DownloadRequest]model.TaskStatus{}
	s.mu.Unlock()
	s.publish()
}
