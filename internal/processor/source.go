package processor

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"

	"wormhole/pkg/types"
)

// DefaultChunkSize is used when a caller passes a non-positive chunk size
const DefaultChunkSize = 64 * 1024

const (
	textMimeType    = "text/plain; charset=utf-8"
	defaultMimeType = "application/octet-stream"
)

var (
	// ErrUnreadableSource means the payload could not be opened or read to its announced size
	ErrUnreadableSource = errors.New("unreadable source")
)

// Source yields a payload as an ordered sequence of bounded chunks. It is read
// once from start to end and cannot be rewound.
type Source interface {
	Metadata() types.TransferMetadata
	TotalSize() int64
	// NextChunk returns the next chunk of at most the configured size, or io.EOF
	// once every byte has been returned.
	NextChunk(ctx context.Context) ([]byte, error)
	Close() error
}

// chunkSource reads exactly meta.Filesize bytes from reader
type chunkSource struct {
	meta      types.TransferMetadata
	reader    io.Reader
	closer    io.Closer
	chunkSize int
	remaining int64
}

func newChunkSource(meta types.TransferMetadata, r io.Reader, closer io.Closer, chunkSize int) *chunkSource {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &chunkSource{
		meta:      meta,
		reader:    r,
		closer:    closer,
		chunkSize: chunkSize,
		remaining: meta.Filesize,
	}
}

func (s *chunkSource) Metadata() types.TransferMetadata {
	return s.meta
}

func (s *chunkSource) TotalSize() int64 {
	return s.meta.Filesize
}

func (s *chunkSource) NextChunk(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.remaining <= 0 {
		return nil, io.EOF
	}

	n := int(min(int64(s.chunkSize), s.remaining))
	chunk := make([]byte, n)
	if _, err := io.ReadFull(s.reader, chunk); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %s ended %d bytes early", ErrUnreadableSource, s.describe(), s.remaining)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}

	s.remaining -= int64(n)
	return chunk, nil
}

func (s *chunkSource) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

func (s *chunkSource) describe() string {
	if s.meta.Kind == types.KindText {
		return "text"
	}
	return fmt.Sprintf("%q", s.meta.Filename)
}

// NewMemorySource serves data from memory under the given file name
func NewMemorySource(name string, data []byte, chunkSize int) Source {
	meta := types.TransferMetadata{
		Filename: name,
		Filesize: int64(len(data)),
		Kind:     types.KindFile,
		MimeType: mimetype.Detect(data).String(),
		Checksum: Checksum(data),
	}
	return newChunkSource(meta, bytes.NewReader(data), nil, chunkSize)
}

// NewTextSource serves a short text message
func NewTextSource(text string, chunkSize int) Source {
	data := []byte(text)
	meta := types.TransferMetadata{
		Filesize: int64(len(data)),
		Kind:     types.KindText,
		MimeType: textMimeType,
		Checksum: Checksum(data),
	}
	return newChunkSource(meta, bytes.NewReader(data), nil, chunkSize)
}

// NewStreamSource serves size bytes from r. No checksum is announced since the
// stream can only be read once. r is closed with the source when it is an io.Closer.
func NewStreamSource(name string, r io.Reader, size int64, chunkSize int) (Source, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrUnreadableSource, size)
	}

	buffered := bufio.NewReaderSize(r, 3072)
	head, err := buffered.Peek(3072)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}

	meta := types.TransferMetadata{
		Filename: name,
		Filesize: size,
		Kind:     types.KindFile,
		MimeType: mimetype.Detect(head).String(),
	}

	closer, _ := r.(io.Closer)
	return newChunkSource(meta, buffered, closer, chunkSize), nil
}

// Checksum returns the hex SHA-256 digest of data
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum compares data against an announced checksum. An empty
// announcement always verifies.
func VerifyChecksum(data []byte, expected string) bool {
	if expected == "" {
		return true
	}
	return Checksum(data) == expected
}
