package wormhole

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"wormhole/internal/logging"
)

// Connection is an established, encrypted link bound to one wormhole code.
// It is owned by exactly one transfer and must be closed by it.
type Connection interface {
	Code() Code
	SendFrame(ctx context.Context, frame []byte) error
	ReceiveFrame(ctx context.Context) ([]byte, error)
	// Close releases the link. It is bounded by the close timeout and calling
	// it again is a no-op.
	Close() error
}

type connection struct {
	code         Code
	channel      Channel
	closeTimeout time.Duration
	log          logrus.FieldLogger

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewConnection wraps an established channel into a Connection
func NewConnection(code Code, channel Channel, closeTimeout time.Duration, log logrus.FieldLogger) Connection {
	return &connection{
		code:         code,
		channel:      channel,
		closeTimeout: closeTimeout,
		log:          logging.OrDefault(log),
		closed:       make(chan struct{}),
	}
}

func (c *connection) Code() Code {
	return c.code
}

func (c *connection) SendFrame(ctx context.Context, frame []byte) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}
	return c.channel.SendFrame(ctx, frame)
}

func (c *connection) ReceiveFrame(ctx context.Context) ([]byte, error) {
	if c.isClosed() {
		return nil, ErrConnectionClosed
	}
	return c.channel.ReceiveFrame(ctx)
}

func (c *connection) Close() error {
	first := false
	c.closeOnce.Do(func() {
		first = true
		close(c.closed)

		done := make(chan error, 1)
		go func() {
			done <- c.channel.Close()
		}()

		select {
		case err := <-done:
			c.closeErr = err
		case <-time.After(c.closeTimeout):
			c.log.WithFields(logrus.Fields{
				"nameplate": c.code.Nameplate(),
				"timeout":   c.closeTimeout,
			}).Warn("Close did not finish in time, abandoning link")
		}
	})

	if first {
		return c.closeErr
	}
	return nil
}

func (c *connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
