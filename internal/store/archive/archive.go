// Package archive persists fetched candles into per-product SQLite files so
// long backfills survive restarts and cache expiry. One database per
// product+granularity keeps files small and deletable.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"vela/internal/market"
)

// Manifest summarizes one product@granularity archive file.
type Manifest struct {
	ProductID   string `json:"product_id"`
	Granularity string `json:"granularity"`
	MinStart    int64  `json:"min_start"`
	MaxStart    int64  `json:"max_start"`
	Rows        int64  `json:"rows"`
	LastSyncAt  int64  `json:"last_sync_at"`
	Path        string `json:"path"`
}

type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("archive root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(productID string, g market.Granularity) (*sql.DB, string, error) {
	if productID == "" || !g.Valid() {
		return nil, "", fmt.Errorf("archive requires product and granularity")
	}
	key := strings.ToUpper(productID) + "@" + string(g)
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[key]; ok {
		return db, s.dbPath(productID, g), nil
	}
	path := s.dbPath(productID, g)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db, productID, g); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	s.dbs[key] = db
	return db, path, nil
}

func (s *Store) dbPath(productID string, g market.Granularity) string {
	dir := filepath.Join(s.root, strings.ToUpper(productID))
	return filepath.Join(dir, strings.ToLower(string(g))+".db")
}

// InsertCandles upserts candles keyed by start time and refreshes the
// manifest. Re-inserting the same bucket overwrites it.
func (s *Store) InsertCandles(ctx context.Context, productID string, g market.Granularity, candles []market.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	db, _, err := s.db(productID, g)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (start, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(start) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Start, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if err := s.refreshManifest(ctx, db); err != nil {
		return count, err
	}
	return count, nil
}

// QueryCandles returns the archived candles with start in [start, end),
// ascending. A non-positive limit falls back to 1000 rows.
func (s *Store) QueryCandles(ctx context.Context, productID string, g market.Granularity, start, end int64, limit int) ([]market.Candle, error) {
	db, _, err := s.db(productID, g)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.QueryContext(ctx, `
		SELECT start, open, high, low, close, volume
		FROM candles WHERE start >= ? AND start < ?
		ORDER BY start ASC LIMIT ?`, start, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.Start, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Manifest returns the stats row for one archive file.
func (s *Store) Manifest(ctx context.Context, productID string, g market.Granularity) (Manifest, error) {
	db, path, err := s.db(productID, g)
	if err != nil {
		return Manifest{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT product_id, granularity, min_start, max_start, rows, last_sync_at FROM manifest WHERE id=1`)
	var m Manifest
	if err := row.Scan(&m.ProductID, &m.Granularity, &m.MinStart, &m.MaxStart, &m.Rows, &m.LastSyncAt); err != nil {
		return Manifest{}, err
	}
	m.Path = path
	return m, nil
}

func (s *Store) refreshManifest(ctx context.Context, db *sql.DB) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE manifest
		SET min_start = (SELECT COALESCE(MIN(start), 0) FROM candles),
		    max_start = (SELECT COALESCE(MAX(start), 0) FROM candles),
		    rows = (SELECT COUNT(1) FROM candles),
		    last_sync_at = ?
		WHERE id = 1`, now)
	return err
}

func ensureSchema(db *sql.DB, productID string, g market.Granularity) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			start  INTEGER PRIMARY KEY,
			open   REAL NOT NULL,
			high   REAL NOT NULL,
			low    REAL NOT NULL,
			close  REAL NOT NULL,
			volume REAL NOT NULL,
			inserted_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id INTEGER PRIMARY KEY CHECK (id=1),
			product_id TEXT NOT NULL,
			granularity TEXT NOT NULL,
			min_start INTEGER,
			max_start INTEGER,
			rows INTEGER DEFAULT 0,
			last_sync_at INTEGER
		);`,
		`INSERT INTO manifest (id, product_id, granularity) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET product_id=excluded.product_id, granularity=excluded.granularity;`,
	}
	for i, stmt := range stmts {
		var err error
		if i == len(stmts)-1 {
			_, err = db.Exec(stmt, strings.ToUpper(productID), string(g))
		} else {
			_, err = db.Exec(stmt)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
