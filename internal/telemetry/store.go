package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Aman-CERP/hypersearch/internal/store"
)

// maxZeroResultRows bounds the persisted zero-result log.
const maxZeroResultRows = 100

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db    *sql.DB
	owned bool
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (or creates) the telemetry database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := store.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLiteStore wraps an existing connection and creates the schema. The
// connection is left open on Close.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := InitSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// InitSchema creates the telemetry tables if they don't exist.
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS search_type_stats (
		date TEXT NOT NULL,
		search_type TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, search_type)
	);

	CREATE TABLE IF NOT EXISTS query_counts (
		query TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_counts_count ON query_counts(count DESC);

	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS search_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// upsertCounts runs stmt once per entry inside a transaction.
func (s *SQLiteStore) upsertCounts(query string, each func(stmt *sql.Stmt) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	if err := each(stmt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SaveTypeCounts implements Store.
func (s *SQLiteStore) SaveTypeCounts(date string, counts map[string]int64) error {
	return s.upsertCounts(`
		INSERT INTO search_type_stats (date, search_type, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, search_type) DO UPDATE SET count = count + excluded.count
	`, func(stmt *sql.Stmt) error {
		for t, n := range counts {
			if _, err := stmt.Exec(date, t, n); err != nil {
				return fmt.Errorf("insert search type count: %w", err)
			}
		}
		return nil
	})
}

// TypeCounts sums search-type counts over a date range.
func (s *SQLiteStore) TypeCounts(from, to string) (map[string]int64, error) {
	rows, err := s.db.Query(`
		SELECT search_type, SUM(count)
		FROM search_type_stats
		WHERE date >= ? AND date <= ?
		GROUP BY search_type
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query search type counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// UpsertQueryCounts implements Store.
func (s *SQLiteStore) UpsertQueryCounts(counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}
	return s.upsertCounts(`
		INSERT INTO query_counts (query, count, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(query) DO UPDATE SET
			count = count + excluded.count,
			last_seen = CURRENT_TIMESTAMP
	`, func(stmt *sql.Stmt) error {
		for q, n := range counts {
			if _, err := stmt.Exec(q, n); err != nil {
				return fmt.Errorf("upsert query count: %w", err)
			}
		}
		return nil
	})
}

// TopQueries implements Store.
func (s *SQLiteStore) TopQueries(limit int) ([]Count, error) {
	rows, err := s.db.Query(`
		SELECT query, count
		FROM query_counts
		ORDER BY count DESC, query ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top queries: %w", err)
	}
	defer rows.Close()

	var out []Count
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddZeroResultQuery implements Store, keeping the newest 100 rows.
func (s *SQLiteStore) AddZeroResultQuery(query string, ts time.Time) error {
	if _, err := s.db.Exec(`INSERT INTO zero_result_queries (query, timestamp) VALUES (?, ?)`, query, ts); err != nil {
		return fmt.Errorf("insert zero-result query: %w", err)
	}
	_, err := s.db.Exec(`
		DELETE FROM zero_result_queries
		WHERE id NOT IN (
			SELECT id FROM zero_result_queries
			ORDER BY id DESC
			LIMIT ?
		)
	`, maxZeroResultRows)
	if err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return nil
}

// ZeroResultQueries implements Store.
func (s *SQLiteStore) ZeroResultQueries(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT query FROM zero_result_queries
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// SaveLatencyCounts implements Store.
func (s *SQLiteStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	return s.upsertCounts(`
		INSERT INTO search_latency_stats (date, bucket, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count
	`, func(stmt *sql.Stmt) error {
		for b, n := range counts {
			if _, err := stmt.Exec(date, string(b), n); err != nil {
				return fmt.Errorf("insert latency count: %w", err)
			}
		}
		return nil
	})
}

// LatencyCounts implements Store.
func (s *SQLiteStore) LatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	rows, err := s.db.Query(`
		SELECT bucket, SUM(count)
		FROM search_latency_stats
		WHERE date >= ? AND date <= ?
		GROUP BY bucket
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[LatencyBucket]int64)
	for rows.Next() {
		var b string
		var n int64
		if err := rows.Scan(&b, &n); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[LatencyBucket(b)] = n
	}
	return counts, rows.Err()
}

// Close closes the connection when OpenSQLiteStore created it.
func (s *SQLiteStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
