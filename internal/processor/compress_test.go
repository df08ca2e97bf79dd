package processor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wormhole/pkg/types"
)

func TestCompressChunk(t *testing.T) {
	chunk := bytes.Repeat([]byte("a very compressible line\n"), 2000)

	compressed, err := CompressChunk(chunk)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(chunk))

	restored, err := DecompressChunk(compressed, int64(len(chunk)))
	require.NoError(t, err)
	assert.Equal(t, chunk, restored)
}

func TestDecompressChunkLimit(t *testing.T) {
	compressed, err := CompressChunk(make([]byte, 4096))
	require.NoError(t, err)

	_, err = DecompressChunk(compressed, 1024)
	assert.ErrorIs(t, err, ErrChunkTooLarge)

	restored, err := DecompressChunk(compressed, 4096)
	require.NoError(t, err)
	assert.Len(t, restored, 4096)

	_, err = DecompressChunk([]byte("not lz4"), 1024)
	assert.Error(t, err)
}

func TestShouldCompress(t *testing.T) {
	tests := []struct {
		name string
		meta types.TransferMetadata
		want bool
	}{
		{"text file", types.TransferMetadata{Filename: "main.go", Filesize: 8192, MimeType: "text/plain; charset=utf-8"}, true},
		{"tiny file", types.TransferMetadata{Filename: "a.txt", Filesize: 100, MimeType: "text/plain"}, false},
		{"zip by extension", types.TransferMetadata{Filename: "bundle.ZIP", Filesize: 8192, MimeType: "application/octet-stream"}, false},
		{"jpeg by mime", types.TransferMetadata{Filename: "photo", Filesize: 8192, MimeType: "image/jpeg"}, false},
		{"gzip by mime", types.TransferMetadata{Filename: "data", Filesize: 8192, MimeType: "application/gzip"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldCompress(tt.meta))
		})
	}
}
