package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Persister mirrors session entries to durable storage.
type Persister interface {
	// Save stores e and trims the principal's history to capacity.
	Save(ctx context.Context, e Entry, capacity int) error

	// Load returns up to capacity entries per principal, oldest first.
	Load(ctx context.Context, capacity int) ([]Entry, error)

	Close() error
}

// SQLitePersister stores entries in the search_sessions table.
type SQLitePersister struct {
	db *sql.DB
}

// NewSQLitePersister creates the schema if needed. The caller owns db until
// Close, which closes it.
func NewSQLitePersister(db *sql.DB) (*SQLitePersister, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	schema := `
	CREATE TABLE IF NOT EXISTS search_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		principal TEXT NOT NULL,
		entry TEXT NOT NULL,
		ts INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_search_sessions_principal ON search_sessions(principal, ts);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create session schema: %w", err)
	}
	return &SQLitePersister{db: db}, nil
}

// Save implements Persister.
func (p *SQLitePersister) Save(ctx context.Context, e Entry, capacity int) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO search_sessions (principal, entry, ts) VALUES (?, ?, ?)`,
		e.Principal, string(data), e.Timestamp.UnixNano()); err != nil {
		return fmt.Errorf("insert session entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM search_sessions
		WHERE principal = ? AND id NOT IN (
			SELECT id FROM search_sessions WHERE principal = ?
			ORDER BY ts DESC, id DESC LIMIT ?
		)`, e.Principal, e.Principal, capacity); err != nil {
		return fmt.Errorf("trim session entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Load implements Persister.
func (p *SQLitePersister) Load(ctx context.Context, capacity int) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT principal, entry FROM (
			SELECT principal, entry, ts, id,
				ROW_NUMBER() OVER (PARTITION BY principal ORDER BY ts DESC, id DESC) AS rn
			FROM search_sessions
		) WHERE rn <= ?
		ORDER BY ts ASC, id ASC`, capacity)
	if err != nil {
		return nil, fmt.Errorf("query session entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var principal, data string
		if err := rows.Scan(&principal, &data); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var e Entry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		e.Principal = principal
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close implements Persister.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}

// badgerPrefix namespaces session keys: session/<escaped principal>/<ts>.
const badgerPrefix = "session/"

// BadgerPersister stores entries in Badger, one key per entry.
type BadgerPersister struct {
	db *badger.DB
}

// NewBadgerPersister wraps db. Close closes it.
func NewBadgerPersister(db *badger.DB) (*BadgerPersister, error) {
	if db == nil {
		return nil, fmt.Errorf("badger database is required")
	}
	return &BadgerPersister{db: db}, nil
}

func principalPrefix(principal string) []byte {
	return []byte(badgerPrefix + url.PathEscape(principal) + "/")
}

func entryKey(e Entry) []byte {
	// Zero-padded so lexical order is chronological. The query ID keeps
	// entries with the same timestamp apart.
	key := fmt.Sprintf("%020d-%s", e.Timestamp.UnixNano(), url.PathEscape(e.QueryID))
	return append(principalPrefix(e.Principal), []byte(key)...)
}

// Save implements Persister.
func (p *BadgerPersister) Save(_ context.Context, e Entry, capacity int) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	return p.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(entryKey(e), data); err != nil {
			return fmt.Errorf("set session entry: %w", err)
		}

		prefix := principalPrefix(e.Principal)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)

		// Reverse iteration seeks to the last key with the prefix.
		seek := append(append([]byte{}, prefix...), 0xFF)
		var stale [][]byte
		kept := 0
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			kept++
			if kept > capacity {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		it.Close()

		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return fmt.Errorf("trim session entry: %w", err)
			}
		}
		return nil
	})
}

// Load implements Persister.
func (p *BadgerPersister) Load(_ context.Context, capacity int) ([]Entry, error) {
	perPrincipal := make(map[string][]Entry)
	var order []string

	err := p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			rest := strings.TrimPrefix(string(item.Key()), badgerPrefix)
			escaped, _, ok := strings.Cut(rest, "/")
			if !ok {
				continue
			}
			principal, err := url.PathUnescape(escaped)
			if err != nil {
				continue
			}

			var e Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode entry: %w", err)
			}
			e.Principal = principal

			if _, seen := perPrincipal[principal]; !seen {
				order = append(order, principal)
			}
			perPrincipal[principal] = append(perPrincipal[principal], e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, principal := range order {
		list := perPrincipal[principal]
		if len(list) > capacity {
			list = list[len(list)-capacity:]
		}
		entries = append(entries, list...)
	}
	return entries, nil
}

// Close implements Persister.
func (p *BadgerPersister) Close() error {
	return p.db.Close()
}
