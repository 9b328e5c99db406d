package cmd

import (
	"os"

	"github.com/Aman-CERP/hypersearch/internal/config"
	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/store"
)

// lockDataDir takes the exclusive data-directory lock. The returned function
// releases it.
func lockDataDir(cfg *config.Config, hint string) (func(), error) {
	lock := store.NewFileLock(cfg.DataDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, errors.IOError("failed to lock data directory", err)
	}
	if !acquired {
		return nil, errors.New(errors.ErrCodeDataDirLocked,
			"data directory is in use by another hypersearch process", nil).
			WithDetail("lock", lock.Path()).
			WithSuggestion(hint)
	}
	return func() { _ = lock.Unlock() }, nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
