package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"wormhole/internal/processor"
	"wormhole/internal/wormhole"
	"wormhole/pkg/types"
	"wormhole/pkg/utils"
)

var errNoSource = errors.New("no source to send")

type sendRun struct {
	*run
	h   *SendHandle
	src processor.Source
}

func (s *sendRun) execute(ctx context.Context) (SendOutcome, error) {
	defer s.progress.Close()

	if s.src == nil {
		return SendOutcome{}, s.abort(ReasonUnreadableSource, fmt.Errorf("%w: %w", processor.ErrUnreadableSource, errNoSource))
	}
	defer s.src.Close()

	s.transition(StateConnecting)
	conn, err := s.connector.ConnectAsSender(ctx, s.publishCode)
	if err != nil {
		return SendOutcome{}, s.abort(classify(ctx, err, ReasonConnectionError), err)
	}
	s.conn = conn
	defer s.closeConn()

	meta, err := s.sendMetadata(ctx)
	if err != nil {
		return SendOutcome{}, err
	}

	sent, err := s.streamData(ctx, meta)
	if err != nil {
		return SendOutcome{}, err
	}

	if err := s.finalize(ctx); err != nil {
		return SendOutcome{}, err
	}

	if ctx.Err() != nil {
		return SendOutcome{}, s.abort(ReasonCancelled, ctx.Err())
	}
	s.transition(StateCompleted)
	s.log.WithFields(logrus.Fields{
		"bytes": sent,
		"kind":  meta.Kind,
	}).Info("Transfer completed")

	return SendOutcome{
		Code:      conn.Code(),
		BytesSent: sent,
		Metadata:  meta,
	}, nil
}

func (s *sendRun) publishCode(code wormhole.Code) {
	select {
	case s.h.code <- code:
	default:
	}
}

func (s *sendRun) sendMetadata(ctx context.Context) (types.TransferMetadata, error) {
	s.transition(StateSendingMetadata)

	meta := s.src.Metadata()
	if !s.config.Transfer().Checksum {
		meta.Checksum = ""
	}
	if s.config.Transfer().Compress && processor.ShouldCompress(meta) {
		meta.Compression = processor.CompressionLZ4
	}

	payload, err := utils.EncodeJSON(meta)
	if err != nil {
		return meta, s.abort(ReasonProtocolError, err)
	}
	if err := s.send(ctx, Message{Type: MSG_METADATA, Payload: payload}); err != nil {
		return meta, s.abort(classify(ctx, err, ReasonPeerGone), fmt.Errorf("failed to send metadata: %w", err))
	}

	s.log.WithFields(logrus.Fields{
		"file":        meta.Filename,
		"size":        meta.Filesize,
		"compression": meta.Compression,
	}).Debug("Metadata sent")
	return meta, nil
}

func (s *sendRun) streamData(ctx context.Context, meta types.TransferMetadata) (int64, error) {
	s.transition(StateStreamingData)

	var sent int64
	for {
		chunk, err := s.src.NextChunk(ctx)
		if err == io.EOF {
			return sent, nil
		}
		if err != nil {
			reason := classify(ctx, err, ReasonUnreadableSource)
			if reason != ReasonCancelled {
				s.notifyPeer(ctx, reason, err)
			}
			return sent, s.abort(reason, err)
		}

		payload := chunk
		if meta.Compression == processor.CompressionLZ4 {
			if payload, err = processor.CompressChunk(chunk); err != nil {
				return sent, s.abort(ReasonTransportError, err)
			}
		}

		if err := s.send(ctx, Message{Type: MSG_FILE_DATA, Payload: payload}); err != nil {
			if remote := s.peerError(ctx, err); remote != nil {
				return sent, s.abort(ReasonRemoteError, remote)
			}
			return sent, s.abort(classify(ctx, err, ReasonTransportError), fmt.Errorf("failed to send chunk at offset %d: %w", sent, err))
		}

		sent += int64(len(chunk))
		s.progress.Report(types.ProgressEvent{
			BytesTransferred: sent,
			TotalBytes:       meta.Filesize,
		})
	}
}

// peerError looks for the ERROR frame a receiver sends before hanging up, so
// a rejected transfer is not reported as a lost peer
func (s *sendRun) peerError(ctx context.Context, sendErr error) error {
	if ctx.Err() != nil || !errors.Is(sendErr, wormhole.ErrPeerClosed) {
		return nil
	}
	for {
		msg, err := s.receive(ctx, s.config.Timeouts().Close)
		if err != nil {
			return nil
		}
		if msg.Type == MSG_ERROR {
			return unexpected(msg, s.state)
		}
	}
}

// finalize signals the end of the stream and waits for the receiver to
// confirm it verified the payload
func (s *sendRun) finalize(ctx context.Context) error {
	s.transition(StateFinalizing)

	if err := s.send(ctx, Message{Type: MSG_EOF}); err != nil {
		if remote := s.peerError(ctx, err); remote != nil {
			return s.abort(ReasonRemoteError, remote)
		}
		return s.abort(classify(ctx, err, ReasonTransportError), fmt.Errorf("failed to send end of stream: %w", err))
	}

	msg, err := s.receive(ctx, s.config.Timeouts().Ack)
	if err != nil {
		return s.abort(classify(ctx, err, ReasonPeerGone), fmt.Errorf("no acknowledgement from receiver: %w", err))
	}
	if msg.Type != MSG_TRANSFER_COMPLETE {
		return s.abort(reasonForUnexpected(msg), unexpected(msg, s.state))
	}
	return nil
}
