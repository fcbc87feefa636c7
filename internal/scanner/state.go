package scanner

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/memexmcp/memex/internal/config"
	memexerrors "github.com/memexmcp/memex/internal/errors"
)

// StatePath returns the scan-state file path for a given root.
func StatePath(root string) string {
	return filepath.Join(root, stateFileName)
}

// LoadState reads persisted scan state. A missing or malformed file yields
// empty state, never an error — scanning must proceed with a fresh state
// rather than fail.
func LoadState(path string) *State {
	data, err := os.ReadFile(path)
	if err != nil {
		return newState()
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		if backupPath, backupErr := config.BackupCorruptFile(path); backupErr == nil && backupPath != "" {
			slog.Warn("scan state file is malformed, backed up and resetting", slog.String("backup", backupPath))
		}
		return newState()
	}
	if s.FileHashes == nil {
		s.FileHashes = make(map[string]string)
	}
	return &s
}

// SaveState writes state as pretty JSON via write-then-rename, so a reader
// never observes a partially written file.
func SaveState(path string, state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return memexerrors.Wrap(memexerrors.KindIOError, "marshal scan state", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return memexerrors.Wrap(memexerrors.KindIOError, "write scan state", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return memexerrors.Wrap(memexerrors.KindIOError, "rename scan state into place", err)
	}
	return nil
}
