package processor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"

	"wormhole/pkg/types"
)

// CompressionLZ4 is the codec name announced in metadata
const CompressionLZ4 = "lz4"

// ErrChunkTooLarge means a chunk decoded to more bytes than allowed
var ErrChunkTooLarge = errors.New("decompressed chunk too large")

// Payloads below this size are sent as is
const minCompressSize = 1024

var skipExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".zip": true, ".rar": true, ".7z": true, ".gz": true, ".xz": true, ".zst": true,
	".mp3": true, ".flac": true, ".aac": true, ".ogg": true,
	".apk": true, ".iso": true,
}

var skipMimePrefixes = []string{
	"image/", "video/", "audio/",
	"application/zip", "application/gzip", "application/x-7z-compressed",
	"application/x-rar-compressed", "application/x-xz", "application/zstd",
}

// ShouldCompress reports whether lz4 is likely to shrink the payload
func ShouldCompress(meta types.TransferMetadata) bool {
	if meta.Filesize < minCompressSize {
		return false
	}
	if skipExtensions[strings.ToLower(filepath.Ext(meta.Filename))] {
		return false
	}
	for _, prefix := range skipMimePrefixes {
		if strings.HasPrefix(meta.MimeType, prefix) {
			return false
		}
	}
	return true
}

// CompressChunk encodes one chunk as a self-contained lz4 frame
func CompressChunk(chunk []byte) ([]byte, error) {
	var compressed bytes.Buffer
	writer := lz4.NewWriter(&compressed)
	if _, err := writer.Write(chunk); err != nil {
		return nil, fmt.Errorf("compression failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("compression failed: %w", err)
	}
	return compressed.Bytes(), nil
}

// DecompressChunk reverses CompressChunk. limit caps the decoded size.
func DecompressChunk(data []byte, limit int64) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(data))

	var decompressed bytes.Buffer
	n, err := io.Copy(&decompressed, io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	if n > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrChunkTooLarge, limit)
	}
	return decompressed.Bytes(), nil
}
