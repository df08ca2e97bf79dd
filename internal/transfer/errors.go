package transfer

import (
	"context"
	"errors"
	"fmt"

	"wormhole/internal/config"
	"wormhole/internal/processor"
	"wormhole/internal/wormhole"
)

// Reason classifies why a transfer was aborted
type Reason string

const (
	ReasonCancelled        Reason = "Cancelled"
	ReasonConnectionError  Reason = "ConnectionError"
	ReasonCodeMismatch     Reason = "CodeMismatch"
	ReasonTimeout          Reason = "Timeout"
	ReasonPeerGone         Reason = "PeerGone"
	ReasonTransportError   Reason = "TransportError"
	ReasonSizeMismatch     Reason = "SizeMismatch"
	ReasonChecksumMismatch Reason = "ChecksumMismatch"
	ReasonUnreadableSource Reason = "UnreadableSource"
	ReasonRemoteError      Reason = "RemoteError"
	ReasonProtocolError    Reason = "ProtocolError"
	ReasonInvalidConfig    Reason = "InvalidConfig"
	ReasonRejected         Reason = "Rejected"
)

var (
	ErrSizeMismatch     = errors.New("received size does not match announced size")
	ErrChecksumMismatch = errors.New("received data does not match announced checksum")
	ErrRemote           = errors.New("peer reported an error")
	ErrProtocol         = errors.New("unexpected message")
	ErrRejected         = errors.New("transfer rejected by receiver")

	errStepTimeout = errors.New("step timed out")
)

// AbortError is the terminal error of an aborted transfer
type AbortError struct {
	Reason Reason
	State  State // state the transfer was in when it aborted
	Err    error
}

func (e *AbortError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transfer aborted (%s) during %s", e.Reason, e.State)
	}
	return fmt.Sprintf("transfer aborted (%s) during %s: %v", e.Reason, e.State, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the abort reason from err, or "" when err is not an abort
func ReasonOf(err error) Reason {
	var abort *AbortError
	if errors.As(err, &abort) {
		return abort.Reason
	}
	return ""
}

// classify picks the abort reason for a failed suspension point. Local
// cancellation and well known collaborator errors take precedence over the
// step's fallback.
func classify(ctx context.Context, err error, fallback Reason) Reason {
	var connErr *wormhole.ConnectionError

	switch {
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		return ReasonCancelled
	case ctx.Err() != nil:
		return ReasonTimeout
	case errors.Is(err, wormhole.ErrCodeMismatch):
		return ReasonCodeMismatch
	case errors.Is(err, wormhole.ErrTimeout), errors.Is(err, errStepTimeout):
		return ReasonTimeout
	case errors.As(err, &connErr):
		return ReasonConnectionError
	case errors.Is(err, wormhole.ErrPeerClosed):
		return ReasonPeerGone
	case errors.Is(err, ErrProtocol):
		return ReasonProtocolError
	case errors.Is(err, processor.ErrUnreadableSource):
		return ReasonUnreadableSource
	case errors.Is(err, config.ErrInvalidConfig):
		return ReasonInvalidConfig
	default:
		return fallback
	}
}
