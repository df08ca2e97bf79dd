package transfer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wormhole/internal/config"
	"wormhole/internal/logging"
	"wormhole/internal/wormhole"
	"wormhole/pkg/types"
	"wormhole/pkg/utils"
)

const testCode = wormhole.Code("7-hamlet-tunnel")

func testConfig(t *testing.T, opts ...config.Option) *config.Config {
	t.Helper()

	timeouts := config.TimeoutConfig{
		Handshake: 5 * time.Second,
		Metadata:  2 * time.Second,
		Stall:     2 * time.Second,
		Ack:       2 * time.Second,
		Close:     200 * time.Millisecond,
	}
	opts = append([]config.Option{config.WithTimeouts(timeouts)}, opts...)

	cfg, err := config.New("wormhole.test/app", "https://mailbox.test", "stun:stun.test:3478", 2, opts...)
	require.NoError(t, err)
	return cfg
}

// countingChannel records how often the transport link was closed
type countingChannel struct {
	wormhole.Channel
	closes *atomic.Int32
}

func (c *countingChannel) Close() error {
	c.closes.Add(1)
	return c.Channel.Close()
}

// scriptedConnector connects the orchestrator to a peer driven by the test
type scriptedConnector struct {
	err    error
	peers  chan *scriptedPeer
	closes atomic.Int32
}

func newScriptedConnector() *scriptedConnector {
	return &scriptedConnector{peers: make(chan *scriptedPeer, 1)}
}

func (s *scriptedConnector) connect(onCode func(wormhole.Code)) (wormhole.Connection, error) {
	if onCode != nil {
		onCode(testCode)
	}
	if s.err != nil {
		return nil, s.err
	}

	local, remote := wormhole.NewPipe()
	s.peers <- &scriptedPeer{ch: remote}
	link := &countingChannel{Channel: local, closes: &s.closes}
	return wormhole.NewConnection(testCode, link, time.Second, logging.Discard()), nil
}

func (s *scriptedConnector) ConnectAsSender(_ context.Context, onCode func(wormhole.Code)) (wormhole.Connection, error) {
	return s.connect(onCode)
}

func (s *scriptedConnector) ConnectAsReceiver(_ context.Context, _ wormhole.Code) (wormhole.Connection, error) {
	return s.connect(nil)
}

func (s *scriptedConnector) peer(t *testing.T) *scriptedPeer {
	t.Helper()
	select {
	case p := <-s.peers:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator never connected")
		return nil
	}
}

// scriptedPeer speaks the message protocol from the test side
type scriptedPeer struct {
	ch wormhole.Channel
}

func (p *scriptedPeer) send(t *testing.T, msg Message) {
	t.Helper()
	data, err := SerializeMessage(msg)
	require.NoError(t, err)
	require.NoError(t, p.ch.SendFrame(context.Background(), data))
}

func (p *scriptedPeer) trySend(msg Message) {
	if data, err := SerializeMessage(msg); err == nil {
		_ = p.ch.SendFrame(context.Background(), data)
	}
}

func (p *scriptedPeer) sendMetadata(t *testing.T, meta types.TransferMetadata) {
	t.Helper()
	payload, err := utils.EncodeJSON(meta)
	require.NoError(t, err)
	p.send(t, Message{Type: MSG_METADATA, Payload: payload})
}

func (p *scriptedPeer) next(t *testing.T) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	frame, err := p.ch.ReceiveFrame(ctx)
	require.NoError(t, err)
	msg, err := DeserializeMessage(frame)
	require.NoError(t, err)
	return msg
}

func (p *scriptedPeer) expect(t *testing.T, want MessageType) Message {
	t.Helper()
	msg := p.next(t)
	require.Equal(t, want, msg.Type, "unexpected message: %+v", msg)
	return msg
}

// progressLog is a thread safe sink
type progressLog struct {
	mu     sync.Mutex
	events []types.ProgressEvent
}

func (p *progressLog) sink(ev types.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *progressLog) transferred() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int64, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.BytesTransferred)
	}
	return out
}

func (p *progressLog) all() []types.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.ProgressEvent(nil), p.events...)
}

func waitResolved(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("transfer did not resolve")
	}
}
