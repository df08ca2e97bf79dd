package wormhole

import (
	"context"
)

// Role is the side a peer plays in a transfer
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleReceiver:
		return "receiver"
	default:
		return "unknown"
	}
}

// Channel is an ordered, reliable, message-oriented link between two peers
type Channel interface {
	SendFrame(ctx context.Context, frame []byte) error
	ReceiveFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// Transport performs rendezvous on the mailbox and brings up the transit link.
// It knows nothing about keys: the Manager runs the key exchange on top.
type Transport interface {
	// Allocate reserves a nameplate and mints a code with codeLength words
	Allocate(ctx context.Context, codeLength int) (Code, error)
	// Connect blocks until the link for code is up. A receiver asking for an
	// unknown nameplate gets ErrNameplateNotFound.
	Connect(ctx context.Context, code Code, role Role) (Channel, error)
	// Release frees the mailbox state held for code
	Release(ctx context.Context, code Code) error
}
