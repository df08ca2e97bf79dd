package wormhole

import (
	"errors"
	"fmt"
)

var (
	// ErrCodeMismatch means the peers did not agree on the code: the nameplate
	// is unknown or the key exchange failed.
	ErrCodeMismatch = errors.New("wormhole code mismatch")
	// ErrTimeout means the peer did not show up within the handshake timeout
	ErrTimeout = errors.New("timed out waiting for peer")
	// ErrPeerClosed is returned by frame operations once the remote side is gone
	ErrPeerClosed = errors.New("peer closed the connection")
	// ErrConnectionClosed is returned when the local side already closed
	ErrConnectionClosed = errors.New("use of closed connection")
	// ErrNameplateNotFound is returned by a Transport for unknown nameplates
	ErrNameplateNotFound = errors.New("nameplate not found")
)

// ConnectionError reports a failure to establish a connection
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connection failed: %s", e.Reason)
	}
	return fmt.Sprintf("connection failed: %s: %v", e.Reason, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
