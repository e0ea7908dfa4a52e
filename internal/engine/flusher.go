package engine

import (
	"fmt"
	"os"
	"path/filepath"
)

// Flush writes the current table to the configured snapshot path. The file
// is written next to the target and renamed into place.
func (e *Engine) Flush() error {
	if e.cfg.SnapshotPath == "" || e.cfg.Writer == nil {
		return nil
	}
	docs := e.table.Snapshot()
	if len(docs) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(e.cfg.SnapshotPath), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := e.cfg.SnapshotPath + ".tmp"
	if err := e.cfg.Writer(tmp, docs); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, e.cfg.SnapshotPath); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	e.log.Info("snapshot flushed", "path", e.cfg.SnapshotPath, "documents", len(docs))
	return nil
}
