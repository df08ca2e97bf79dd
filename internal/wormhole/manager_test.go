package wormhole

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wormhole/internal/config"
	"wormhole/internal/logging"
)

func testConfig(t *testing.T, handshake time.Duration) *config.Config {
	t.Helper()

	timeouts := config.DefaultTimeouts()
	timeouts.Handshake = handshake
	timeouts.Close = 200 * time.Millisecond

	cfg, err := config.New("wormhole.test/app", "https://mailbox.test", "stun:stun.test:3478", 2,
		config.WithTimeouts(timeouts))
	require.NoError(t, err)
	return cfg
}

type connectResult struct {
	conn Connection
	err  error
}

func TestManagerConnect(t *testing.T) {
	transport := NewMemoryTransport()
	mgr := NewManager(testConfig(t, 5*time.Second), transport, logging.Discard())
	ctx := context.Background()

	codeCh := make(chan Code, 1)
	senderCh := make(chan connectResult, 1)
	go func() {
		conn, err := mgr.ConnectAsSender(ctx, func(c Code) { codeCh <- c })
		senderCh <- connectResult{conn, err}
	}()

	code := <-codeCh
	assert.Len(t, code.Words(), 2)

	receiver, err := mgr.ConnectAsReceiver(ctx, code)
	require.NoError(t, err)
	sender := <-senderCh
	require.NoError(t, sender.err)

	assert.Equal(t, code, sender.conn.Code())
	assert.Equal(t, code, receiver.Code())
	assert.Zero(t, transport.Nameplates(), "nameplate must be released once connected")

	require.NoError(t, sender.conn.SendFrame(ctx, []byte("ping")))
	frame, err := receiver.ReceiveFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), frame)

	require.NoError(t, mgr.Close(sender.conn))
	_, err = receiver.ReceiveFrame(ctx)
	assert.ErrorIs(t, err, ErrPeerClosed)
	require.NoError(t, mgr.Close(receiver))
}

func TestManagerUnknownCode(t *testing.T) {
	mgr := NewManager(testConfig(t, 5*time.Second), NewMemoryTransport(), logging.Discard())

	start := time.Now()
	conn, err := mgr.ConnectAsReceiver(context.Background(), Code("404-apple-banjo"))

	assert.ErrorIs(t, err, ErrCodeMismatch)
	assert.ErrorIs(t, err, ErrNameplateNotFound)
	assert.Nil(t, conn)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestManagerWrongWords(t *testing.T) {
	transport := NewMemoryTransport()
	mgr := NewManager(testConfig(t, 5*time.Second), transport, logging.Discard())
	ctx := context.Background()

	codeCh := make(chan Code, 1)
	senderCh := make(chan connectResult, 1)
	go func() {
		conn, err := mgr.ConnectAsSender(ctx, func(c Code) { codeCh <- c })
		senderCh <- connectResult{conn, err}
	}()

	code := <-codeCh
	wrong, err := ParseCode(code.Nameplate() + "-zulu-zulu-zulu")
	require.NoError(t, err)

	conn, err := mgr.ConnectAsReceiver(ctx, wrong)
	assert.ErrorIs(t, err, ErrCodeMismatch)
	assert.Nil(t, conn)

	sender := <-senderCh
	assert.ErrorIs(t, sender.err, ErrCodeMismatch)
	assert.Nil(t, sender.conn)
	assert.Zero(t, transport.Nameplates())
}

func TestManagerReceiverTimeout(t *testing.T) {
	transport := NewMemoryTransport()
	mgr := NewManager(testConfig(t, 150*time.Millisecond), transport, logging.Discard())

	// Allocated but the sender never shows up on the link
	code, err := transport.Allocate(context.Background(), 2)
	require.NoError(t, err)

	conn, err := mgr.ConnectAsReceiver(context.Background(), code)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Nil(t, conn)
}

func TestManagerSenderCancelled(t *testing.T) {
	transport := NewMemoryTransport()
	mgr := NewManager(testConfig(t, 5*time.Second), transport, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	conn, err := mgr.ConnectAsSender(ctx, func(Code) { cancel() })

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Nil(t, conn)
	assert.Zero(t, transport.Nameplates())
}

type stuckChannel struct {
	Channel
	release chan struct{}
}

func (s *stuckChannel) Close() error {
	<-s.release
	return nil
}

func TestConnectionCloseIsBoundedAndIdempotent(t *testing.T) {
	stuck := &stuckChannel{release: make(chan struct{})}
	defer close(stuck.release)

	conn := NewConnection("1-solo", stuck, 50*time.Millisecond, logging.Discard())

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, conn.Close())
		assert.NoError(t, conn.Close())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not respect its timeout")
	}

	assert.ErrorIs(t, conn.SendFrame(context.Background(), []byte("late")), ErrConnectionClosed)
	_, err := conn.ReceiveFrame(context.Background())
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestConnectionCloseReturnsFirstError(t *testing.T) {
	a, _ := NewPipe()
	failing := &failingClose{Channel: a, err: errors.New("boom")}
	conn := NewConnection("1-solo", failing, time.Second, logging.Discard())

	assert.EqualError(t, conn.Close(), "boom")
	assert.NoError(t, conn.Close())
	assert.Equal(t, 1, failing.calls)
}

type failingClose struct {
	Channel
	err   error
	calls int
}

func (f *failingClose) Close() error {
	f.calls++
	return f.err
}
