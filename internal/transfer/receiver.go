package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"wormhole/internal/processor"
	"wormhole/internal/wormhole"
	"wormhole/pkg/types"
	"wormhole/pkg/utils"
)

// Upper bound for the receive buffer allocated up front; larger payloads grow
// as data arrives
const maxPrealloc = 64 << 20

type receiveRun struct {
	*run
	code   wormhole.Code
	accept AcceptFunc
}

func (r *receiveRun) execute(ctx context.Context) (*types.TransferResult, error) {
	defer r.progress.Close()

	r.transition(StateConnecting)
	conn, err := r.connector.ConnectAsReceiver(ctx, r.code)
	if err != nil {
		return nil, r.abort(classify(ctx, err, ReasonConnectionError), err)
	}
	r.conn = conn
	defer r.closeConn()

	meta, err := r.awaitMetadata(ctx)
	if err != nil {
		return nil, err
	}

	data, err := r.streamData(ctx, meta)
	if err != nil {
		return nil, err
	}

	if err := r.finalize(ctx, meta, data); err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, r.abort(ReasonCancelled, ctx.Err())
	}
	r.transition(StateCompleted)
	r.log.WithFields(logrus.Fields{
		"bytes": len(data),
		"kind":  meta.Kind,
	}).Info("Transfer completed")

	return &types.TransferResult{
		Data:     data,
		Filename: meta.Filename,
		Filesize: meta.Filesize,
		Kind:     meta.Kind,
		MimeType: meta.MimeType,
	}, nil
}

func (r *receiveRun) awaitMetadata(ctx context.Context) (types.TransferMetadata, error) {
	r.transition(StateAwaitingMetadata)

	msg, err := r.receive(ctx, r.config.Timeouts().Metadata)
	if err != nil {
		return types.TransferMetadata{}, r.abort(classify(ctx, err, ReasonPeerGone), fmt.Errorf("failed to receive metadata: %w", err))
	}
	if msg.Type != MSG_METADATA {
		return types.TransferMetadata{}, r.abort(reasonForUnexpected(msg), unexpected(msg, r.state))
	}

	meta, err := utils.DecodeJSON[types.TransferMetadata](msg.Payload)
	if err != nil {
		return meta, r.abort(ReasonProtocolError, fmt.Errorf("%w: %v", ErrProtocol, err))
	}
	if meta.Filesize < 0 {
		return meta, r.abort(ReasonProtocolError, fmt.Errorf("%w: negative filesize %d", ErrProtocol, meta.Filesize))
	}
	if meta.Compression != "" && meta.Compression != processor.CompressionLZ4 {
		return meta, r.abort(ReasonProtocolError, fmt.Errorf("%w: unsupported compression %q", ErrProtocol, meta.Compression))
	}
	if meta.Kind == "" {
		meta.Kind = types.KindFile
	}

	if r.accept != nil {
		if err := r.accept(meta); err != nil {
			err = fmt.Errorf("%w: %w", ErrRejected, err)
			r.notifyPeer(ctx, ReasonRejected, err)
			return meta, r.abort(ReasonRejected, err)
		}
	}

	r.log.WithFields(logrus.Fields{
		"file": meta.Filename,
		"size": utils.FormatFileSize(meta.Filesize),
		"kind": meta.Kind,
	}).Info("Incoming transfer announced")
	return meta, nil
}

func (r *receiveRun) streamData(ctx context.Context, meta types.TransferMetadata) ([]byte, error) {
	r.transition(StateStreamingData)

	var buf bytes.Buffer
	buf.Grow(int(min(meta.Filesize, maxPrealloc)))

	var received int64
	for {
		msg, err := r.receive(ctx, r.config.Timeouts().Stall)
		if err != nil {
			return nil, r.abort(classify(ctx, err, ReasonTransportError), fmt.Errorf("failed to receive data at offset %d: %w", received, err))
		}

		switch msg.Type {
		case MSG_FILE_DATA:
			// Chunk size is the sender's choice, only the announced total bounds it
			remaining := meta.Filesize - received
			chunk := msg.Payload
			if meta.Compression == processor.CompressionLZ4 {
				chunk, err = processor.DecompressChunk(msg.Payload, remaining)
				if err != nil && !errors.Is(err, processor.ErrChunkTooLarge) {
					return nil, r.abort(ReasonProtocolError, fmt.Errorf("%w: %v", ErrProtocol, err))
				}
			}

			if err != nil || int64(len(chunk)) > remaining {
				err := fmt.Errorf("%w: more than %d bytes received", ErrSizeMismatch, meta.Filesize)
				r.notifyPeer(ctx, ReasonSizeMismatch, err)
				return nil, r.abort(ReasonSizeMismatch, err)
			}

			buf.Write(chunk)
			received += int64(len(chunk))
			r.progress.Report(types.ProgressEvent{
				BytesTransferred: received,
				TotalBytes:       meta.Filesize,
			})

		case MSG_EOF:
			data := buf.Bytes()
			if data == nil {
				data = []byte{}
			}
			return data, nil

		default:
			return nil, r.abort(reasonForUnexpected(msg), unexpected(msg, r.state))
		}
	}
}

// finalize verifies the payload and acknowledges it. Nothing received is
// handed out unless both checks pass.
func (r *receiveRun) finalize(ctx context.Context, meta types.TransferMetadata, data []byte) error {
	r.transition(StateFinalizing)

	if int64(len(data)) != meta.Filesize {
		err := fmt.Errorf("%w: got %d bytes, expected %d", ErrSizeMismatch, len(data), meta.Filesize)
		r.notifyPeer(ctx, ReasonSizeMismatch, err)
		return r.abort(ReasonSizeMismatch, err)
	}
	if !processor.VerifyChecksum(data, meta.Checksum) {
		r.notifyPeer(ctx, ReasonChecksumMismatch, ErrChecksumMismatch)
		return r.abort(ReasonChecksumMismatch, ErrChecksumMismatch)
	}

	if err := r.send(ctx, Message{Type: MSG_TRANSFER_COMPLETE}); err != nil {
		if ctx.Err() != nil {
			return r.abort(ReasonCancelled, ctx.Err())
		}
		// The payload is verified, a lost acknowledgement only affects the sender
		r.log.WithError(err).Warn("Failed to acknowledge transfer")
		return nil
	}

	r.linger(ctx)
	return nil
}

// linger gives the acknowledgement time to drain by waiting for the sender to
// hang up first, bounded by the close timeout
func (r *receiveRun) linger(ctx context.Context) {
	lctx, cancel := context.WithTimeout(ctx, r.config.Timeouts().Close)
	defer cancel()

	if _, err := r.conn.ReceiveFrame(lctx); err == nil {
		r.log.Debug("Ignoring frame received after completion")
	}
}
