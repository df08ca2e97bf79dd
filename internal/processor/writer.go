package processor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"wormhole/pkg/types"
)

const fallbackFilename = "wormhole-received"

var ErrDestinationExists = errors.New("destination file already exists")

// SafeFilename reduces a peer supplied name to a plain file name that cannot
// escape the destination directory
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "" || name == "." || name == ".." || name == "/" {
		return fallbackFilename
	}
	return name
}

// CheckDestination returns where a file called name would be written and
// fails with ErrDestinationExists when that would replace an existing file
func (f *FileService) CheckDestination(destDir, name string, overwrite bool) (string, error) {
	destPath := filepath.Join(destDir, SafeFilename(name))
	if overwrite {
		return destPath, nil
	}
	if _, err := os.Stat(destPath); err == nil {
		return "", fmt.Errorf("%w: %s", ErrDestinationExists, destPath)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("cannot access destination: %w", err)
	}
	return destPath, nil
}

// WriteResult stores a received file in destDir and returns its path. The data
// lands in a temporary file first and is renamed into place when complete.
func (f *FileService) WriteResult(destDir string, result *types.TransferResult, overwrite bool) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create destination directory: %w", err)
	}

	destPath, err := f.CheckDestination(destDir, result.Filename, overwrite)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(destDir, ".wormhole-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(result.Data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}

	f.log.WithFields(logrus.Fields{
		"path": destPath,
		"size": result.Filesize,
		"mime": result.MimeType,
	}).Info("File saved")
	return destPath, nil
}
