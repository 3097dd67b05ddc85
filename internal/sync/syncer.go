package sync

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/ytget/musicdl/internal/model"
)

// Session is the part of the HTTP client the syncer downloads through.
type Session interface {
	Songs(ctx context.Context, section string) ([]model.Song, error)
	Song(ctx context.Context, section, name, album string) ([]byte, error)
}

// Progress reports the state of one song during a section sync.
type Progress struct {
	Section string
	Index   int
	Total   int
	File    string
	Skipped bool
}

// Syncer mirrors the audio of server sections into local directories. A
// sqlite manifest records what was synced so a re-run only downloads songs
// that are new or whose local file went missing.
type Syncer struct {
	session Session
	db      *sql.DB
}

// New opens (or creates) the manifest database at manifestPath.
func New(session Session, manifestPath string) (*Syncer, error) {
	if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", manifestPath)
	if err != nil {
		return nil, err
	}
	s := &Syncer{session: session, db: db}
	if err := s.initTable(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the manifest database.
func (s *Syncer) Close() error {
	return s.db.Close()
}

func (s *Syncer) initTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS synced_songs (
		section TEXT NOT NULL,
		name TEXT NOT NULL,
		album TEXT NOT NULL,
		file TEXT NOT NULL,
		synced_at DATETIME NOT NULL,
		PRIMARY KEY (section, name, album)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *Syncer) recordSynced(section, name, album, file string) error {
	query := `INSERT OR REPLACE INTO synced_songs (section, name, album, file, synced_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, section, name, album, file, time.Now().UTC())
	return err
}

func (s *Syncer) isSynced(section, name, album string) (string, bool, error) {
	query := `SELECT file FROM synced_songs WHERE section = ? AND name = ? AND album = ?`
	var file string
	err := s.db.QueryRow(query, section, name, album).Scan(&file)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return file, true, nil
}

// SyncSection downloads every song of a section into dir as
// "<album> - <name>.mp3", skipping songs whose file is already present and
// recorded in the manifest. progress may be nil.
func (s *Syncer) SyncSection(ctx context.Context, section, dir string, progress func(Progress)) error {
	songs, err := s.session.Songs(ctx, section)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for i, song := range songs {
		if err := ctx.Err(); err != nil {
			return err
		}

		file := sanitizeFileName(fmt.Sprintf("%s - %s.mp3", song.Album, song.Name))
		path := filepath.Join(dir, file)

		if _, known, err := s.isSynced(section, song.Name, song.Album); err != nil {
			return err
		} else if known {
			if _, err := os.Stat(path); err == nil {
				report(progress, Progress{Section: section, Index: i, Total: len(songs), File: file, Skipped: true})
				continue
			}
			// manifest entry without a file: the user deleted it, re-download
		}

		log.Info().Str("section", section).Str("file", file).Msg("sync: downloading song")
		data, err := s.session.Song(ctx, section, song.Name, song.Album)
		if err != nil {
			return err
		}
		if err := writeAtomic(path, data); err != nil {
			return err
		}
		if err := s.recordSynced(section, song.Name, song.Album, file); err != nil {
			return err
		}
		report(progress, Progress{Section: section, Index: i, Total: len(songs), File: file})
	}
	return nil
}

func report(progress func(Progress), p Progress) {
	if progress != nil {
		progress(p)
	}
}

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
