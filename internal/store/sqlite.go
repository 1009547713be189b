package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Eierkopp/viddup/internal/vidtypes"
)

// SQLiteStore is the default Store implementation, backed by the
// pure-Go modernc.org/sqlite driver over database/sql.
type SQLiteStore struct {
	db *sql.DB
	// execer is either *sql.DB or *sql.Tx — set when WithTx binds this
	// Store to a single transaction.
	execer execer
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (or creates) a sqlite-backed store at dsn and applies the
// schema from SPEC_FULL.md §5.
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", vidtypes.ErrStoreFatal, dsn, err)
	}
	db.SetMaxOpenConns(1) // sqlite: single-writer, avoids SQLITE_BUSY churn

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable foreign keys: %v", vidtypes.ErrStoreFatal, err)
	}

	s := &SQLiteStore{db: db, execer: db}
	if err := s.createSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	for _, stmt := range schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: schema: %s: %v", vidtypes.ErrStoreFatal, stmt, err)
		}
	}
	return nil
}

func schemaStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS files (
			fid INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			fps REAL NOT NULL,
			duration REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS brightness (
			fid INTEGER NOT NULL REFERENCES files(fid) ON DELETE CASCADE,
			frame_index INTEGER NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (fid, frame_index)
		)`,
		`CREATE TABLE IF NOT EXISTS hashes (
			fid INTEGER NOT NULL REFERENCES files(fid) ON DELETE CASCADE,
			frame_index INTEGER NOT NULL,
			gap REAL NOT NULL,
			PRIMARY KEY (fid, frame_index)
		)`,
		`CREATE TABLE IF NOT EXISTS whitelist (
			fid_lo INTEGER NOT NULL REFERENCES files(fid) ON DELETE CASCADE,
			fid_hi INTEGER NOT NULL REFERENCES files(fid) ON DELETE CASCADE,
			PRIMARY KEY (fid_lo, fid_hi)
		)`,
		`CREATE TABLE IF NOT EXISTS import_locks (
			lock_key TEXT PRIMARY KEY,
			acquired_at INTEGER NOT NULL
		)`,
	}
}

func (s *SQLiteStore) TryLock(ctx context.Context, key string, ttl time.Duration) error {
	now := time.Now()
	var acquiredUnix int64
	err := s.execer.QueryRowContext(ctx, `SELECT acquired_at FROM import_locks WHERE lock_key = ?`, key).Scan(&acquiredUnix)
	if err == nil {
		acquired := time.Unix(acquiredUnix, 0)
		if now.Before(acquired.Add(ttl)) {
			return vidtypes.ErrAlreadyLocked
		}
		// Expired: refresh it.
		_, err = s.execer.ExecContext(ctx, `UPDATE import_locks SET acquired_at = ? WHERE lock_key = ?`, now.Unix(), key)
		if err != nil {
			return fmt.Errorf("%w: %v", vidtypes.ErrStoreTransient, err)
		}
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", vidtypes.ErrStoreTransient, err)
	}
	_, err = s.execer.ExecContext(ctx, `INSERT INTO import_locks (lock_key, acquired_at) VALUES (?, ?)`, key, now.Unix())
	if err != nil {
		return fmt.Errorf("%w: %v", vidtypes.ErrStoreTransient, err)
	}
	return nil
}

func (s *SQLiteStore) InsertFile(ctx context.Context, path string, fps, duration float64) (vidtypes.FileInfo, error) {
	res, err := s.execer.ExecContext(ctx,
		`INSERT INTO files (name, fps, duration) VALUES (?, ?, ?)`, path, fps, duration)
	if err != nil {
		return vidtypes.FileInfo{}, fmt.Errorf("%w: insert file %s: %v", vidtypes.ErrStoreTransient, path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return vidtypes.FileInfo{}, fmt.Errorf("%w: %v", vidtypes.ErrStoreTransient, err)
	}
	return vidtypes.FileInfo{Fid: uint64(id), Name: path, FPS: fps, Duration: duration}, nil
}

func (s *SQLiteStore) InsertBrightness(ctx context.Context, fid uint64, series []float32) error {
	for idx, v := range series {
		if _, err := s.execer.ExecContext(ctx,
			`INSERT INTO brightness (fid, frame_index, value) VALUES (?, ?, ?)`, fid, idx, v); err != nil {
			return fmt.Errorf("%w: insert brightness fid=%d: %v", vidtypes.ErrStoreTransient, fid, err)
		}
	}
	return nil
}

func (s *SQLiteStore) InsertHashes(ctx context.Context, fid uint64, entries []vidtypes.HashEntry) error {
	for _, e := range entries {
		if _, err := s.execer.ExecContext(ctx,
			`INSERT INTO hashes (fid, frame_index, gap) VALUES (?, ?, ?)`, fid, e.FrameIndex, e.GapSeconds); err != nil {
			return fmt.Errorf("%w: insert hash fid=%d: %v", vidtypes.ErrStoreTransient, fid, err)
		}
	}
	return nil
}

func (s *SQLiteStore) HasHashes(ctx context.Context, fid uint64) (bool, error) {
	var n int
	err := s.execer.QueryRowContext(ctx, `SELECT COUNT(1) FROM hashes WHERE fid = ?`, fid).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: %v", vidtypes.ErrStoreTransient, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetBrightness(ctx context.Context, fid uint64) ([]float32, error) {
	rows, err := s.execer.QueryContext(ctx,
		`SELECT value FROM brightness WHERE fid = ? ORDER BY frame_index ASC`, fid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vidtypes.ErrStoreTransient, err)
	}
	defer rows.Close()

	var out []float32
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%w: %v", vidtypes.ErrStoreTransient, err)
		}
		out = append(out, float32(v))
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetHashes(ctx context.Context, fid uint64, minFrame, maxFrame uint32) ([]uint32, []float32, error) {
	rows, err := s.execer.QueryContext(ctx,
		`SELECT frame_index, gap FROM hashes WHERE fid = ? AND frame_index >= ? AND frame_index < ? ORDER BY frame_index ASC`,
		fid, minFrame, maxFrame)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", vidtypes.ErrStoreTransient, err)
	}
	defer rows.Close()

	var frames []uint32
	var gaps []float32
	for rows.Next() {
		var f uint32
		var g float64
		if err := rows.Scan(&f, &g); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", vidtypes.ErrStoreTransient, err)
		}
		frames = append(frames, f)
		gaps = append(gaps, float32(g))
	}
	return frames, gaps, rows.Err()
}

func (s *SQLiteStore) GetFileInfos(ctx context.Context) ([]vidtypes.FileInfo, error) {
	rows, err := s.execer.QueryContext(ctx, `SELECT fid, name, fps, duration FROM files ORDER BY fid ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vidtypes.ErrStoreTransient, err)
	}
	defer rows.Close()

	var out []vidtypes.FileInfo
	for rows.Next() {
		var fi vidtypes.FileInfo
		if err := rows.Scan(&fi.Fid, &fi.Name, &fi.FPS, &fi.Duration); err != nil {
			return nil, fmt.Errorf("%w: %v", vidtypes.ErrStoreTransient, err)
		}
		out = append(out, fi)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateName(ctx context.Context, fid uint64, newPath string) error {
	_, err := s.execer.ExecContext(ctx, `UPDATE files SET name = ? WHERE fid = ?`, newPath, fid)
	if err != nil {
		return fmt.Errorf("%w: rename fid=%d: %v", vidtypes.ErrStoreTransient, fid, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateFileMeta(ctx context.Context, fid uint64, fps, duration float64) error {
	_, err := s.execer.ExecContext(ctx, `UPDATE files SET fps = ?, duration = ? WHERE fid = ?`, fps, duration, fid)
	if err != nil {
		return fmt.Errorf("%w: update meta fid=%d: %v", vidtypes.ErrStoreTransient, fid, err)
	}
	return nil
}

func (s *SQLiteStore) ClearBrightness(ctx context.Context, fid uint64) error {
	_, err := s.execer.ExecContext(ctx, `DELETE FROM brightness WHERE fid = ?`, fid)
	if err != nil {
		return fmt.Errorf("%w: clear brightness fid=%d: %v", vidtypes.ErrStoreTransient, fid, err)
	}
	return nil
}

func (s *SQLiteStore) ClearHashes(ctx context.Context, fid uint64) error {
	_, err := s.execer.ExecContext(ctx, `DELETE FROM hashes WHERE fid = ?`, fid)
	if err != nil {
		return fmt.Errorf("%w: clear hashes fid=%d: %v", vidtypes.ErrStoreTransient, fid, err)
	}
	return nil
}

func (s *SQLiteStore) DelFile(ctx context.Context, fid uint64) error {
	_, err := s.execer.ExecContext(ctx, `DELETE FROM files WHERE fid = ?`, fid)
	if err != nil {
		return fmt.Errorf("%w: delete fid=%d: %v", vidtypes.ErrStoreTransient, fid, err)
	}
	return nil
}

func (s *SQLiteStore) Whitelist(ctx context.Context, a, b uint64) error {
	w := vidtypes.NewWhitelist(a, b)
	_, err := s.execer.ExecContext(ctx,
		`INSERT OR IGNORE INTO whitelist (fid_lo, fid_hi) VALUES (?, ?)`, w.FidLo, w.FidHi)
	if err != nil {
		return fmt.Errorf("%w: whitelist %d,%d: %v", vidtypes.ErrStoreTransient, a, b, err)
	}
	return nil
}

func (s *SQLiteStore) IsWhitelisted(ctx context.Context, a, b uint64) (bool, error) {
	w := vidtypes.NewWhitelist(a, b)
	var n int
	err := s.execer.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM whitelist WHERE fid_lo = ? AND fid_hi = ?`, w.FidLo, w.FidHi).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: %v", vidtypes.ErrStoreTransient, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetID(ctx context.Context, path string) (uint64, bool, error) {
	var fid uint64
	err := s.execer.QueryRowContext(ctx, `SELECT fid FROM files WHERE name = ?`, path).Scan(&fid)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", vidtypes.ErrStoreTransient, err)
	}
	return fid, true, nil
}

// WithTx runs fn against a Store bound to a single transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", vidtypes.ErrStoreFatal, err)
	}
	txStore := &SQLiteStore{db: s.db, execer: tx}
	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", vidtypes.ErrStoreFatal, err)
	}
	return nil
}
