// Package storage persists virtual disks in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

// Store is a vdisk.Persister backed by a SQLite database. The schema keeps
// the file table, each file's ordered block list, the block map with the
// linked-chain pointer, and the audit log.
type Store struct {
	db *sql.DB
}

var (
	_ vdisk.Persister   = (*Store)(nil)
	_ vdisk.AuditLoader = (*Store)(nil)
)

// Open opens (or creates) a store at path and runs schema migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
    id INTEGER PRIMARY KEY,
    filename TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    size_kb INTEGER NOT NULL,
    allocation_type TEXT NOT NULL,
    is_compressed INTEGER DEFAULT 0,
    sha256 TEXT,
    uploaded_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS file_blocks (
    file_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    block_index INTEGER NOT NULL,
    PRIMARY KEY (file_id, position),
    FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS blocks (
    block_index INTEGER PRIMARY KEY,
    file_id INTEGER,
    next_block INTEGER
);

CREATE TABLE IF NOT EXISTS logs (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    timestamp INTEGER NOT NULL,
    action TEXT NOT NULL
);
`
	_, err := s.db.Exec(schema)
	return err
}

const (
	metaTotalBlocks = "total_blocks"
	metaBlockSize   = "block_size"
	metaNextID      = "next_id"
	metaTakenAt     = "taken_at"
)

// PersistSnapshot replaces the stored disk with snap in one transaction.
func (s *Store) PersistSnapshot(snap *vdisk.Snapshot) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"file_blocks", "files", "blocks"} {
		if _, err = tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err = insertFiles(tx, snap.Files); err != nil {
		return err
	}
	if err = insertBlocks(tx, snap); err != nil {
		return err
	}

	meta := map[string]string{
		metaTotalBlocks: strconv.Itoa(snap.Geometry.TotalBlocks),
		metaBlockSize:   strconv.Itoa(snap.Geometry.BlockSize),
		metaNextID:      strconv.FormatInt(int64(snap.NextID), 10),
		metaTakenAt:     strconv.FormatInt(snap.TakenAt.UnixNano(), 10),
	}
	for key, value := range meta {
		if _, err = tx.Exec(
			`INSERT INTO meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value,
		); err != nil {
			return fmt.Errorf("write meta %s: %w", key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func insertFiles(tx *sql.Tx, files []vdisk.File) error {
	fileStmt, err := tx.Prepare(
		`INSERT INTO files (id, filename, size_bytes, size_kb, allocation_type, is_compressed, sha256, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare files: %w", err)
	}
	defer fileStmt.Close()

	blockStmt, err := tx.Prepare(
		`INSERT INTO file_blocks (file_id, position, block_index) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare file blocks: %w", err)
	}
	defer blockStmt.Close()

	for _, f := range files {
		if _, err := fileStmt.Exec(
			int64(f.ID), f.Filename, f.SizeBytes, f.SizeKB, f.AllocationType.String(),
			boolToInt(f.IsCompressed), f.SHA256, f.CreatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert file %d: %w", f.ID, err)
		}
		for pos, block := range f.Blocks {
			if _, err := blockStmt.Exec(int64(f.ID), pos, block); err != nil {
				return fmt.Errorf("insert block %d of file %d: %w", block, f.ID, err)
			}
		}
	}
	return nil
}

// insertBlocks writes the block map. next_block mirrors the chain of
// linked files so the table can be read on its own.
func insertBlocks(tx *sql.Tx, snap *vdisk.Snapshot) error {
	next := make(map[int]int)
	for _, f := range snap.Files {
		if f.AllocationType != vdisk.Linked {
			continue
		}
		for i := 0; i+1 < len(f.Blocks); i++ {
			next[f.Blocks[i]] = f.Blocks[i+1]
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO blocks (block_index, file_id, next_block) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare blocks: %w", err)
	}
	defer stmt.Close()

	for block, owner := range snap.Owners {
		var fileID, nextBlock sql.NullInt64
		if owner != vdisk.NoFile {
			fileID = sql.NullInt64{Int64: int64(owner), Valid: true}
		}
		if n, ok := next[block]; ok {
			nextBlock = sql.NullInt64{Int64: int64(n), Valid: true}
		}
		if _, err := stmt.Exec(block, fileID, nextBlock); err != nil {
			return fmt.Errorf("insert block %d: %w", block, err)
		}
	}
	return nil
}

// LoadSnapshot reads the stored disk. It returns nil, nil for a new store.
func (s *Store) LoadSnapshot() (*vdisk.Snapshot, error) {
	meta, err := s.loadMeta()
	if err != nil {
		return nil, err
	}
	if _, ok := meta[metaTotalBlocks]; !ok {
		return nil, nil
	}

	var values [4]int64
	for i, key := range []string{metaTotalBlocks, metaBlockSize, metaNextID, metaTakenAt} {
		if values[i], err = strconv.ParseInt(meta[key], 10, 64); err != nil {
			return nil, fmt.Errorf("parse meta %s: %w", key, err)
		}
	}

	snap := &vdisk.Snapshot{
		Geometry: vdisk.Geometry{TotalBlocks: int(values[0]), BlockSize: int(values[1])},
		NextID:   vdisk.FileID(values[2]),
		TakenAt:  time.Unix(0, values[3]).UTC(),
	}
	if snap.Files, err = s.loadFiles(); err != nil {
		return nil, err
	}
	if snap.Owners, err = s.loadOwners(snap.Geometry.TotalBlocks); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) loadMeta() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[key] = value
	}
	return meta, rows.Err()
}

func (s *Store) loadFiles() ([]vdisk.File, error) {
	rows, err := s.db.Query(
		`SELECT id, filename, size_bytes, size_kb, allocation_type, is_compressed, sha256, uploaded_at
		 FROM files ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []vdisk.File
	index := make(map[vdisk.FileID]int)
	for rows.Next() {
		var (
			f          vdisk.File
			allocType  string
			compressed int
			sum        sql.NullString
			uploadedAt int64
		)
		if err := rows.Scan(&f.ID, &f.Filename, &f.SizeBytes, &f.SizeKB, &allocType,
			&compressed, &sum, &uploadedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		if f.AllocationType, err = vdisk.ParseAllocationType(allocType); err != nil {
			return nil, fmt.Errorf("file %d: %w", f.ID, err)
		}
		f.IsCompressed = compressed != 0
		f.SHA256 = sum.String
		f.CreatedAt = time.Unix(0, uploadedAt).UTC()

		index[f.ID] = len(files)
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	blockRows, err := s.db.Query(`SELECT file_id, block_index FROM file_blocks ORDER BY file_id, position`)
	if err != nil {
		return nil, fmt.Errorf("list file blocks: %w", err)
	}
	defer blockRows.Close()

	for blockRows.Next() {
		var (
			id    vdisk.FileID
			block int
		)
		if err := blockRows.Scan(&id, &block); err != nil {
			return nil, fmt.Errorf("scan file block: %w", err)
		}
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("block %d lists unknown file %d: %w", block, id, vdisk.ErrInconsistent)
		}
		files[i].Blocks = append(files[i].Blocks, block)
	}
	return files, blockRows.Err()
}

func (s *Store) loadOwners(totalBlocks int) ([]vdisk.FileID, error) {
	rows, err := s.db.Query(`SELECT block_index, file_id FROM blocks ORDER BY block_index`)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	owners := make([]vdisk.FileID, totalBlocks)
	count := 0
	for rows.Next() {
		var (
			block int
			owner sql.NullInt64
		)
		if err := rows.Scan(&block, &owner); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		if block < 0 || block >= totalBlocks {
			return nil, fmt.Errorf("stored block %d outside %d block disk: %w",
				block, totalBlocks, vdisk.ErrInconsistent)
		}
		if owner.Valid {
			owners[block] = vdisk.FileID(owner.Int64)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if count != totalBlocks {
		return nil, fmt.Errorf("store holds %d of %d blocks: %w", count, totalBlocks, vdisk.ErrInconsistent)
	}
	return owners, nil
}

// AppendLog stores one audit event.
func (s *Store) AppendLog(event vdisk.AuditEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO logs (id, timestamp, action) VALUES (?, ?, ?)`,
		event.ID, event.Timestamp.UnixNano(), event.Action,
	)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// LoadLog returns every stored audit event, oldest first.
func (s *Store) LoadLog() ([]vdisk.AuditEvent, error) {
	rows, err := s.db.Query(`SELECT id, timestamp, action FROM logs ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load log: %w", err)
	}
	defer rows.Close()

	var events []vdisk.AuditEvent
	for rows.Next() {
		var (
			e  vdisk.AuditEvent
			ts int64
		)
		if err := rows.Scan(&e.ID, &ts, &e.Action); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Wipe removes every stored disk and log entry.
func (s *Store) Wipe() error {
	for _, table := range []string{"file_blocks", "files", "blocks", "logs", "meta"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("wipe %s: %w", table, err)
		}
	}
	return nil
}

// boolToInt converts a bool to an integer (0 or 1) for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
