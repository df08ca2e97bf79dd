package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"wormhole/internal/logging"
	"wormhole/pkg/types"
	"wormhole/pkg/utils"
)

// FileService handles disk access on both ends of a transfer
type FileService struct {
	log logrus.FieldLogger
}

// NewFileService creates a new file service
func NewFileService(log logrus.FieldLogger) *FileService {
	return &FileService{log: logging.OrDefault(log)}
}

// OpenFileSource opens path as a Source using a quiet FileService
func OpenFileSource(path string, chunkSize int, checksum bool) (Source, error) {
	return NewFileService(logging.Discard()).OpenSource(path, chunkSize, checksum)
}

// OpenSource opens a file for chunked reading. Every failure, including a
// directory path, is reported as ErrUnreadableSource before anything is sent.
func (f *FileService) OpenSource(path string, chunkSize int, checksum bool) (Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}

	meta, err := f.createMetadata(file, path, checksum)
	if err != nil {
		file.Close()
		return nil, err
	}

	f.log.WithFields(logrus.Fields{
		"file": meta.Filename,
		"size": utils.FormatFileSize(meta.Filesize),
		"mime": meta.MimeType,
	}).Debug("File prepared for reading")

	return newChunkSource(meta, file, file, chunkSize), nil
}

func (f *FileService) createMetadata(file *os.File, path string, checksum bool) (types.TransferMetadata, error) {
	stat, err := file.Stat()
	if err != nil {
		return types.TransferMetadata{}, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	if stat.IsDir() {
		return types.TransferMetadata{}, fmt.Errorf("%w: %s is a directory", ErrUnreadableSource, path)
	}

	meta := types.TransferMetadata{
		Filename: filepath.Base(path),
		Filesize: stat.Size(),
		Kind:     types.KindFile,
		MimeType: defaultMimeType,
	}

	if mt, err := mimetype.DetectReader(file); err == nil {
		meta.MimeType = mt.String()
	}

	if checksum {
		hash := sha256.New()
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return meta, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
		}
		if _, err := io.CopyN(hash, file, meta.Filesize); err != nil {
			return meta, fmt.Errorf("%w: failed to read file for checksum: %v", ErrUnreadableSource, err)
		}
		meta.Checksum = hex.EncodeToString(hash.Sum(nil))
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return meta, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	return meta, nil
}
