package session

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/hypersearch/internal/store"
)

// Persistence backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// OpenPersister opens the persistence backend under dataDir. The memory
// backend returns (nil, nil): history then lives only in the rings.
func OpenPersister(backend, dataDir string, logger *slog.Logger) (Persister, error) {
	switch backend {
	case BackendMemory, "":
		return nil, nil
	case BackendSQLite:
		db, err := store.OpenSQLite(filepath.Join(dataDir, "sessions.db"))
		if err != nil {
			return nil, err
		}
		p, err := NewSQLitePersister(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return p, nil
	case BackendBadger:
		db, err := store.OpenBadger(filepath.Join(dataDir, "sessions.badger"), logger)
		if err != nil {
			return nil, err
		}
		p, err := NewBadgerPersister(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", backend)
	}
}
