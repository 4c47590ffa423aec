package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/appetiteclub/apt"
)

// ResetCache deletes the terminal's local cache database. The terminal must
// not be running; it rebuilds the cache from the next bootstrap.
func ResetCache(_ context.Context, config *apt.Config, logger apt.Logger) error {
	logger.Infof("DANGER: this deletes the local cache, including any queued unsynced mutations")

	path := config.GetStringOrDef("store.path", "opentill.db")
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			logger.Info("No cache database found", "path", path)
			return nil
		}
		return fmt.Errorf("cannot delete %s: %w", path, err)
	}

	logger.Info("Cache database deleted", "path", path)
	return nil
}
