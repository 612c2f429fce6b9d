package artifactcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Register the pure-Go SQLite driver (no CGO required).
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS builds (
	hash       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS artifacts (
	hash TEXT NOT NULL REFERENCES builds(hash) ON DELETE CASCADE,
	file TEXT NOT NULL,
	body BLOB NOT NULL,
	PRIMARY KEY (hash, file)
);`

// buildFile is one file of the build directory.
type buildFile struct {
	name string
	body []byte
}

// store persists build outputs keyed by source hash.
type store struct {
	db *sql.DB
}

func openStore(ctx context.Context, path string) (*store, error) {
	// WAL plus a generous busy timeout lets several processes share the file.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)&_pragma=foreign_keys(1)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &store{db: db}, nil
}

// lookup returns the files stored for hash and whether the build exists.
func (s *store) lookup(ctx context.Context, hash string) ([]buildFile, bool, error) {
	var created int64
	err := s.db.QueryRowContext(ctx, `SELECT created_at FROM builds WHERE hash = ?`, hash).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query build %s: %w", hash, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT file, body FROM artifacts WHERE hash = ? ORDER BY file`, hash)
	if err != nil {
		return nil, false, fmt.Errorf("query artifacts %s: %w", hash, err)
	}
	defer rows.Close()

	var files []buildFile
	for rows.Next() {
		var f buildFile
		if err := rows.Scan(&f.name, &f.body); err != nil {
			return nil, false, fmt.Errorf("scan artifact: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate artifacts: %w", err)
	}
	return files, true, nil
}

// save records files under hash in a single transaction, replacing any
// previous build with the same hash.
func (s *store) save(ctx context.Context, hash string, files []buildFile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM builds WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("delete build %s: %w", hash, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO builds (hash, created_at) VALUES (?, ?)`, hash, time.Now().Unix()); err != nil {
		return fmt.Errorf("insert build %s: %w", hash, err)
	}
	for _, f := range files {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts (hash, file, body) VALUES (?, ?, ?)`, hash, f.name, f.body); err != nil {
			return fmt.Errorf("insert artifact %s: %w", f.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit build %s: %w", hash, err)
	}
	return nil
}

func (s *store) close() error {
	return s.db.Close()
}
