// Package node implements the storage-node fragment service of spec.md
// §4.9/§6 (C9): the fragment table, on-disk ciphertext blobs, a persistent
// Ed25519 identity, the /store /retrieve/{id} /ping /health HTTP surface,
// and the background heartbeat/integrity-sweep/free-space loops. The
// fragment table is a typed port of the teacher's internal/storage.DB
// (database/sql over modernc.org/sqlite), narrowed from nocturne's
// file/link/recovery schema to a single fragments table.
package node

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Fragment is one row of the fragment table: everything the node needs to
// serve, re-verify, and report a stored ciphertext blob.
type Fragment struct {
	FragmentID     string
	Path           string
	Size           int64
	Checksum       string
	FileHash       string
	PartitionIndex int
	RedundancyIdx  int
	StoredAt       int64
	AccessCount    int64
}

// Store wraps a SQLite connection holding the node's fragment table.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the fragment table database at path.
func OpenStore(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("node: open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("node: ping store: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("node: migrate store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS fragments (
    fragment_id     TEXT PRIMARY KEY,
    path            TEXT NOT NULL,
    size            INTEGER NOT NULL,
    checksum        TEXT NOT NULL,
    file_hash       TEXT NOT NULL,
    partition_index INTEGER NOT NULL,
    redundancy_idx  INTEGER NOT NULL,
    stored_at       INTEGER NOT NULL,
    access_count    INTEGER DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_fragments_file_hash ON fragments(file_hash);`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces a fragment row.
func (s *Store) Put(f *Fragment) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO fragments
		 (fragment_id, path, size, checksum, file_hash, partition_index, redundancy_idx, stored_at, access_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FragmentID, f.Path, f.Size, f.Checksum, f.FileHash, f.PartitionIndex, f.RedundancyIdx, f.StoredAt, f.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("node: put fragment: %w", err)
	}
	return nil
}

// Get retrieves a fragment row by ID.
func (s *Store) Get(fragmentID string) (*Fragment, error) {
	f := &Fragment{}
	err := s.db.QueryRow(
		`SELECT fragment_id, path, size, checksum, file_hash, partition_index, redundancy_idx, stored_at, access_count
		 FROM fragments WHERE fragment_id = ?`, fragmentID,
	).Scan(&f.FragmentID, &f.Path, &f.Size, &f.Checksum, &f.FileHash, &f.PartitionIndex, &f.RedundancyIdx, &f.StoredAt, &f.AccessCount)
	if err != nil {
		return nil, err // sql.ErrNoRows propagates; callers map it to a 404
	}
	return f, nil
}

// IncrementAccessCount bumps the access counter for a fragment, called on
// every successful /retrieve.
func (s *Store) IncrementAccessCount(fragmentID string) error {
	_, err := s.db.Exec(`UPDATE fragments SET access_count = access_count + 1 WHERE fragment_id = ?`, fragmentID)
	return err
}

// All returns every fragment row, used by the integrity sweep.
func (s *Store) All() ([]Fragment, error) {
	rows, err := s.db.Query(
		`SELECT fragment_id, path, size, checksum, file_hash, partition_index, redundancy_idx, stored_at, access_count FROM fragments`,
	)
	if err != nil {
		return nil, fmt.Errorf("node: list fragments: %w", err)
	}
	defer rows.Close()

	var out []Fragment
	for rows.Next() {
		var f Fragment
		if err := rows.Scan(&f.FragmentID, &f.Path, &f.Size, &f.Checksum, &f.FileHash, &f.PartitionIndex, &f.RedundancyIdx, &f.StoredAt, &f.AccessCount); err != nil {
			return nil, fmt.Errorf("node: scan fragment: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UsedSpace sums the recorded size of every stored fragment.
func (s *Store) UsedSpace() (int64, error) {
	var total sql.NullInt64
	if err := s.db.QueryRow(`SELECT SUM(size) FROM fragments`).Scan(&total); err != nil {
		return 0, fmt.Errorf("node: used space: %w", err)
	}
	return total.Int64, nil
}

// Count returns the number of stored fragments.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM fragments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("node: count fragments: %w", err)
	}
	return n, nil
}

func nowUnix() int64 { return time.Now().Unix() }
