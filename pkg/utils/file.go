package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveDestinationDir validates the directory received files are written to
func ResolveDestinationDir(destPath string) (string, error) {
	if destPath == "" {
		destPath = "."
	}

	if info, err := os.Stat(destPath); err == nil {
		if info.IsDir() {
			return destPath, nil
		}
		return "", fmt.Errorf("destination path '%s' exists but is not a directory", destPath)
	} else if os.IsNotExist(err) {
		// Parent must exist, the directory itself is created on write
		dir := filepath.Dir(destPath)
		if info, dirErr := os.Stat(dir); dirErr == nil && info.IsDir() {
			return destPath, nil
		}
		return "", fmt.Errorf("parent directory does not exist: %s", dir)
	} else {
		return "", fmt.Errorf("cannot access destination path: %w", err)
	}
}

// FormatFileSize renders a byte count using binary units
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
