package transfer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wormhole/internal/config"
	"wormhole/internal/logging"
	"wormhole/internal/processor"
	"wormhole/internal/wormhole"
	"wormhole/pkg/types"
)

func fileMeta(data []byte) types.TransferMetadata {
	return types.TransferMetadata{
		Filename: "blob.bin",
		Filesize: int64(len(data)),
		Kind:     types.KindFile,
		Checksum: processor.Checksum(data),
	}
}

func TestReceiveAssemblesChunks(t *testing.T) {
	connector := newScriptedConnector()
	orch := New(testConfig(t), connector, logging.Discard())

	data := make([]byte, 150*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}

	progress := &progressLog{}
	h := orch.StartReceive(context.Background(), testCode, progress.sink)

	peer := connector.peer(t)
	peer.sendMetadata(t, fileMeta(data))
	for off := 0; off < len(data); off += 64 * 1024 {
		end := min(off+64*1024, len(data))
		peer.send(t, Message{Type: MSG_FILE_DATA, Payload: data[off:end]})
	}
	peer.send(t, Message{Type: MSG_EOF})
	peer.expect(t, MSG_TRANSFER_COMPLETE)
	require.NoError(t, peer.ch.Close())

	result, err := h.Wait()
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, data, result.Data)
	assert.Equal(t, "blob.bin", result.Filename)
	assert.Equal(t, int64(153600), result.Filesize)
	assert.Equal(t, types.KindFile, result.Kind)
	assert.Equal(t, StateCompleted, h.State())
	assert.Equal(t, []int64{65536, 131072, 153600}, progress.transferred())
	assert.Equal(t, int32(1), connector.closes.Load())
}

func TestReceiveZeroBytes(t *testing.T) {
	connector := newScriptedConnector()
	orch := New(testConfig(t), connector, logging.Discard())

	h := orch.StartReceive(context.Background(), testCode, nil)

	peer := connector.peer(t)
	peer.sendMetadata(t, fileMeta(nil))
	peer.send(t, Message{Type: MSG_EOF})
	peer.expect(t, MSG_TRANSFER_COMPLETE)

	result, err := h.Wait()
	require.NoError(t, err)
	require.NotNil(t, result.Data)
	assert.Empty(t, result.Data)
	assert.Zero(t, result.Filesize)
}

func TestReceiveDecompresses(t *testing.T) {
	connector := newScriptedConnector()
	orch := New(testConfig(t), connector, logging.Discard())

	data := bytes.Repeat([]byte("abcdefgh"), 20000)
	meta := fileMeta(data)
	meta.Compression = processor.CompressionLZ4

	h := orch.StartReceive(context.Background(), testCode, nil)

	peer := connector.peer(t)
	peer.sendMetadata(t, meta)
	for off := 0; off < len(data); off += 64 * 1024 {
		compressed, err := processor.CompressChunk(data[off:min(off+64*1024, len(data))])
		require.NoError(t, err)
		peer.send(t, Message{Type: MSG_FILE_DATA, Payload: compressed})
	}
	peer.send(t, Message{Type: MSG_EOF})
	peer.expect(t, MSG_TRANSFER_COMPLETE)

	result, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, data, result.Data)
}

func TestReceiveSizeMismatch(t *testing.T) {
	tests := []struct {
		name     string
		announce int64
		chunks   [][]byte
	}{
		{"short", 100, [][]byte{make([]byte, 50)}},
		{"overflow", 10, [][]byte{make([]byte, 8), make([]byte, 8)}},
		{"overflow in first chunk", 0, [][]byte{{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connector := newScriptedConnector()
			orch := New(testConfig(t), connector, logging.Discard())

			h := orch.StartReceive(context.Background(), testCode, nil)

			peer := connector.peer(t)
			peer.sendMetadata(t, types.TransferMetadata{Filename: "x", Filesize: tt.announce})
			// the receiver may hang up as soon as it sees the overflow
			for _, c := range tt.chunks {
				peer.trySend(Message{Type: MSG_FILE_DATA, Payload: c})
			}
			peer.trySend(Message{Type: MSG_EOF})

			errMsg := peer.expect(t, MSG_ERROR)
			assert.Contains(t, errMsg.Error, string(ReasonSizeMismatch))

			result, err := h.Wait()
			assert.Nil(t, result)
			assert.Equal(t, ReasonSizeMismatch, ReasonOf(err))
			assert.ErrorIs(t, err, ErrSizeMismatch)
			assert.Equal(t, StateAborted, h.State())
		})
	}
}

func TestReceiveCompressedOverflow(t *testing.T) {
	connector := newScriptedConnector()
	orch := New(testConfig(t), connector, logging.Discard())

	h := orch.StartReceive(context.Background(), testCode, nil)

	peer := connector.peer(t)
	peer.sendMetadata(t, types.TransferMetadata{Filename: "x", Filesize: 1000, Compression: processor.CompressionLZ4})
	compressed, err := processor.CompressChunk(make([]byte, 64*1024))
	require.NoError(t, err)
	peer.trySend(Message{Type: MSG_FILE_DATA, Payload: compressed})

	errMsg := peer.expect(t, MSG_ERROR)
	assert.Contains(t, errMsg.Error, string(ReasonSizeMismatch))

	result, err := h.Wait()
	assert.Nil(t, result)
	assert.Equal(t, ReasonSizeMismatch, ReasonOf(err))
}

func TestReceiveRejectedByAcceptor(t *testing.T) {
	connector := newScriptedConnector()
	orch := New(testConfig(t), connector, logging.Discard())

	errNotWanted := errors.New("not wanted")
	var seen types.TransferMetadata
	accept := func(meta types.TransferMetadata) error {
		seen = meta
		return errNotWanted
	}

	progress := &progressLog{}
	h := orch.StartReceive(context.Background(), testCode, progress.sink, WithAccept(accept))

	data := []byte("payload")
	peer := connector.peer(t)
	peer.sendMetadata(t, fileMeta(data))

	errMsg := peer.expect(t, MSG_ERROR)
	assert.Contains(t, errMsg.Error, string(ReasonRejected))
	assert.Contains(t, errMsg.Error, "not wanted")

	result, err := h.Wait()
	assert.Nil(t, result)
	require.Equal(t, ReasonRejected, ReasonOf(err))
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorIs(t, err, errNotWanted)
	assert.Equal(t, StateAwaitingMetadata, err.(*AbortError).State)
	assert.Equal(t, "blob.bin", seen.Filename)
	assert.Empty(t, progress.all())
}

func TestReceiveAcceptedByAcceptor(t *testing.T) {
	connector := newScriptedConnector()
	orch := New(testConfig(t), connector, logging.Discard())

	calls := 0
	accept := func(types.TransferMetadata) error {
		calls++
		return nil
	}
	h := orch.StartReceive(context.Background(), testCode, nil, WithAccept(accept))

	data := []byte("payload")
	peer := connector.peer(t)
	peer.sendMetadata(t, fileMeta(data))
	peer.send(t, Message{Type: MSG_FILE_DATA, Payload: data})
	peer.send(t, Message{Type: MSG_EOF})
	peer.expect(t, MSG_TRANSFER_COMPLETE)

	result, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, data, result.Data)
	assert.Equal(t, 1, calls)
}

func TestReceiveChecksumMismatch(t *testing.T) {
	connector := newScriptedConnector()
	orch := New(testConfig(t), connector, logging.Discard())

	h := orch.StartReceive(context.Background(), testCode, nil)

	peer := connector.peer(t)
	meta := fileMeta([]byte("expected"))
	peer.sendMetadata(t, meta)
	peer.send(t, Message{Type: MSG_FILE_DATA, Payload: []byte("tampered")})
	peer.send(t, Message{Type: MSG_EOF})
	peer.expect(t, MSG_ERROR)

	result, err := h.Wait()
	assert.Nil(t, result)
	assert.Equal(t, ReasonChecksumMismatch, ReasonOf(err))
}

func TestReceiveMetadataTimeout(t *testing.T) {
	timeouts := config.DefaultTimeouts()
	timeouts.Metadata = 100 * time.Millisecond

	connector := newScriptedConnector()
	orch := New(testConfig(t, config.WithTimeouts(timeouts)), connector, logging.Discard())

	h := orch.StartReceive(context.Background(), testCode, nil)
	connector.peer(t)

	result, err := h.Wait()
	assert.Nil(t, result)
	assert.Equal(t, ReasonTimeout, ReasonOf(err))

	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, StateAwaitingMetadata, abort.State)
	assert.Equal(t, int32(1), connector.closes.Load())
}

func TestReceiveStall(t *testing.T) {
	timeouts := config.DefaultTimeouts()
	timeouts.Stall = 100 * time.Millisecond

	connector := newScriptedConnector()
	orch := New(testConfig(t, config.WithTimeouts(timeouts)), connector, logging.Discard())

	h := orch.StartReceive(context.Background(), testCode, nil)

	peer := connector.peer(t)
	peer.sendMetadata(t, types.TransferMetadata{Filename: "x", Filesize: 10})
	peer.send(t, Message{Type: MSG_FILE_DATA, Payload: make([]byte, 5)})

	_, err := h.Wait()
	assert.Equal(t, ReasonTimeout, ReasonOf(err))
}

func TestReceivePeerGone(t *testing.T) {
	connector := newScriptedConnector()
	orch := New(testConfig(t), connector, logging.Discard())

	h := orch.StartReceive(context.Background(), testCode, nil)
	require.NoError(t, connector.peer(t).ch.Close())

	result, err := h.Wait()
	assert.Nil(t, result)
	assert.Equal(t, ReasonPeerGone, ReasonOf(err))
	assert.ErrorIs(t, err, wormhole.ErrPeerClosed)
}

func TestReceiveUnexpectedMessages(t *testing.T) {
	tests := []struct {
		name  string
		first Message
		want  Reason
	}{
		{"data before metadata", Message{Type: MSG_FILE_DATA, Payload: []byte{1}}, ReasonProtocolError},
		{"sender error", Message{Type: MSG_ERROR, Error: "UnreadableSource: gone"}, ReasonRemoteError},
		{"garbage metadata", Message{Type: MSG_METADATA, Payload: []byte("{")}, ReasonProtocolError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connector := newScriptedConnector()
			orch := New(testConfig(t), connector, logging.Discard())

			h := orch.StartReceive(context.Background(), testCode, nil)
			connector.peer(t).send(t, tt.first)

			result, err := h.Wait()
			assert.Nil(t, result)
			assert.Equal(t, tt.want, ReasonOf(err))
		})
	}
}

func TestReceiveRejectsInvalidMetadata(t *testing.T) {
	tests := []struct {
		name string
		meta types.TransferMetadata
	}{
		{"negative size", types.TransferMetadata{Filename: "x", Filesize: -1}},
		{"unknown codec", types.TransferMetadata{Filename: "x", Filesize: 1, Compression: "zstd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connector := newScriptedConnector()
			orch := New(testConfig(t), connector, logging.Discard())

			h := orch.StartReceive(context.Background(), testCode, nil)
			connector.peer(t).sendMetadata(t, tt.meta)

			_, err := h.Wait()
			assert.Equal(t, ReasonProtocolError, ReasonOf(err))
			assert.ErrorIs(t, err, ErrProtocol)
		})
	}
}

func TestReceiveRemoteErrorDuringStreaming(t *testing.T) {
	connector := newScriptedConnector()
	orch := New(testConfig(t), connector, logging.Discard())

	h := orch.StartReceive(context.Background(), testCode, nil)

	peer := connector.peer(t)
	peer.sendMetadata(t, types.TransferMetadata{Filename: "x", Filesize: 10})
	peer.send(t, Message{Type: MSG_FILE_DATA, Payload: make([]byte, 4)})
	peer.send(t, Message{Type: MSG_ERROR, Error: "UnreadableSource: disk went away"})

	result, err := h.Wait()
	assert.Nil(t, result)
	assert.Equal(t, ReasonRemoteError, ReasonOf(err))
	assert.ErrorIs(t, err, ErrRemote)
}

func TestReceiveCancel(t *testing.T) {
	connector := newScriptedConnector()
	orch := New(testConfig(t), connector, logging.Discard())

	h := orch.StartReceive(context.Background(), testCode, nil)

	peer := connector.peer(t)
	peer.sendMetadata(t, types.TransferMetadata{Filename: "x", Filesize: 10})
	peer.send(t, Message{Type: MSG_FILE_DATA, Payload: make([]byte, 4)})

	require.Eventually(t, func() bool {
		return h.State() == StateStreamingData
	}, 2*time.Second, 5*time.Millisecond)

	h.Cancel()
	h.Cancel()
	waitResolved(t, h.Done())

	result, err := h.Wait()
	assert.Nil(t, result)
	assert.Equal(t, ReasonCancelled, ReasonOf(err))
	assert.Equal(t, StateAborted, h.State())
	assert.Equal(t, int32(1), connector.closes.Load())
}

func TestReceiveParentContextCancelled(t *testing.T) {
	connector := newScriptedConnector()
	orch := New(testConfig(t), connector, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	h := orch.StartReceive(ctx, testCode, nil)
	connector.peer(t)
	cancel()

	_, err := h.Wait()
	assert.Equal(t, ReasonCancelled, ReasonOf(err))
}

func TestReceiveUnknownCode(t *testing.T) {
	cfg := testConfig(t)
	manager := wormhole.NewManager(cfg, wormhole.NewMemoryTransport(), logging.Discard())
	orch := New(cfg, manager, logging.Discard())

	result, err := orch.StartReceive(context.Background(), "5-hamlet-tunnel", nil).Wait()
	assert.Nil(t, result)
	assert.Equal(t, ReasonCodeMismatch, ReasonOf(err))
	assert.ErrorIs(t, err, wormhole.ErrCodeMismatch)
}
