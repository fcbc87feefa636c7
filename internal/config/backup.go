package config

import (
	"fmt"
	"os"
	"time"
)

// BackupSuffix is the file extension appended to a preserved corrupt file.
const BackupSuffix = ".bak"

// BackupCorruptFile copies path to "<path>.bak.<timestamp>" so an operator
// can inspect what went wrong, then leaves the original in place for the
// caller to overwrite or remove. Returns the backup path, or "" if path
// does not exist.
func BackupCorruptFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s for backup: %w", path, err)
	}

	backupPath := fmt.Sprintf("%s%s.%s", path, BackupSuffix, time.Now().UTC().Format("20060102-150405"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup %s: %w", backupPath, err)
	}
	return backupPath, nil
}
