package snapshot

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("jolt.snapshot")

// ErrSnapshotNotFound indicates the requested snapshot doesn't exist.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Entry describes one stored snapshot.
type Entry struct {
	ID      int64
	Thread  uuid.UUID // uuid.Nil for heap snapshots
	Label   string
	TakenAt int64
	Size    int
}

// Store archives CBOR images in a SQLite database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// OpenStore opens (creating if needed) the archive at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS thread_snapshots (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		thread   TEXT NOT NULL,
		label    TEXT NOT NULL DEFAULT '',
		taken_at INTEGER NOT NULL,
		data     BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating thread table: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS heap_snapshots (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		label    TEXT NOT NULL DEFAULT '',
		taken_at INTEGER NOT NULL,
		data     BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating heap table: %w", err)
	}

	log.Debugf("opened snapshot store %s", dbPath)
	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveThread stores a thread image and returns its entry ID.
func (s *Store) SaveThread(img *ThreadImage, label string) (int64, error) {
	data, err := MarshalThread(img)
	if err != nil {
		return 0, fmt.Errorf("encoding thread image: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"INSERT INTO thread_snapshots (thread, label, taken_at, data) VALUES (?, ?, ?, ?)",
		uuid.UUID(img.ID).String(), label, img.TakenAt, data,
	)
	if err != nil {
		return 0, fmt.Errorf("saving thread snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("saving thread snapshot: %w", err)
	}
	log.Debugf("saved thread %s snapshot %d (%d bytes)", uuid.UUID(img.ID), id, len(data))
	return id, nil
}

// LoadThread retrieves a thread image by entry ID.
func (s *Store) LoadThread(id int64) (*ThreadImage, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM thread_snapshots WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("querying thread snapshot: %w", err)
	}
	return UnmarshalThread(data)
}

// LatestThread retrieves the most recent image stored for a thread.
func (s *Store) LatestThread(thread uuid.UUID) (*ThreadImage, error) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT data FROM thread_snapshots WHERE thread = ? ORDER BY taken_at DESC, id DESC LIMIT 1",
		thread.String(),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("querying thread snapshot: %w", err)
	}
	return UnmarshalThread(data)
}

// ListThread lists the snapshots of a thread, oldest first.
func (s *Store) ListThread(thread uuid.UUID) ([]Entry, error) {
	rows, err := s.db.Query(
		"SELECT id, label, taken_at, length(data) FROM thread_snapshots WHERE thread = ? ORDER BY taken_at, id",
		thread.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing thread snapshots: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{Thread: thread}
		if err := rows.Scan(&e.ID, &e.Label, &e.TakenAt, &e.Size); err != nil {
			return nil, fmt.Errorf("scanning thread snapshot: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveHeap stores a heap image and returns its entry ID.
func (s *Store) SaveHeap(img *HeapImage, label string) (int64, error) {
	data, err := MarshalHeap(img)
	if err != nil {
		return 0, fmt.Errorf("encoding heap image: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"INSERT INTO heap_snapshots (label, taken_at, data) VALUES (?, ?, ?)",
		label, img.TakenAt, data,
	)
	if err != nil {
		return 0, fmt.Errorf("saving heap snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("saving heap snapshot: %w", err)
	}
	log.Infof("saved heap snapshot %d: %d records, %d bytes", id, len(img.Records), len(data))
	return id, nil
}

// LoadHeap retrieves a heap image by entry ID.
func (s *Store) LoadHeap(id int64) (*HeapImage, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM heap_snapshots WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("querying heap snapshot: %w", err)
	}
	return UnmarshalHeap(data)
}
