package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"wormhole/internal/config"
	"wormhole/internal/wormhole"
)

const (
	channelLabel       = "wormhole"
	incomingBuffer     = 256
	flowControlTimeout = 30 * time.Second
)

// Channel is a wormhole.Channel on an ordered WebRTC data channel. Incoming
// messages are queued in order; once the queue is full the SCTP read loop
// blocks, which throttles the remote sender.
type Channel struct {
	config      config.WebRTCConfig
	log         logrus.FieldLogger
	peerConn    *webrtc.PeerConnection

	mu          sync.Mutex
	dataChannel *webrtc.DataChannel

	readyCh         chan struct{}
	readyOnce       sync.Once
	bufferControlCh chan struct{}
	incomingMsgCh   chan []byte

	// remoteClosed is closed when the peer hangs up or the connection fails
	remoteClosed chan struct{}
	remoteOnce   sync.Once
	remoteErr    error

	closed       chan struct{}
	shutdownOnce sync.Once
	closeErr     error
}

func newChannel(cfg config.WebRTCConfig, peerConn *webrtc.PeerConnection, log logrus.FieldLogger) *Channel {
	return &Channel{
		config:          cfg,
		log:             log,
		peerConn:        peerConn,
		readyCh:         make(chan struct{}),
		bufferControlCh: make(chan struct{}, 1),
		incomingMsgCh:   make(chan []byte, incomingBuffer),
		remoteClosed:    make(chan struct{}),
		closed:          make(chan struct{}),
	}
}

// createDataChannel opens the data channel from the offering side
func (c *Channel) createDataChannel() error {
	ordered := true
	dataChannel, err := c.peerConn.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}

	c.setupDataChannelHandlers(dataChannel)
	return nil
}

// acceptDataChannel waits for the offering side to open the data channel
func (c *Channel) acceptDataChannel() {
	c.peerConn.OnDataChannel(func(dataChannel *webrtc.DataChannel) {
		if dataChannel.Label() != channelLabel {
			c.log.WithField("label", dataChannel.Label()).Warn("Ignoring unexpected data channel")
			return
		}
		c.setupDataChannelHandlers(dataChannel)
	})
}

func (c *Channel) setupDataChannelHandlers(dataChannel *webrtc.DataChannel) {
	c.mu.Lock()
	c.dataChannel = dataChannel
	c.mu.Unlock()

	dataChannel.OnOpen(func() {
		c.log.WithField("label", dataChannel.Label()).Debug("Data channel opened")
		c.readyOnce.Do(func() { close(c.readyCh) })
	})

	dataChannel.OnClose(func() {
		c.markRemoteClosed(wormhole.ErrPeerClosed)
	})

	dataChannel.OnError(func(err error) {
		c.log.WithError(err).Debug("Data channel error")
		c.markRemoteClosed(fmt.Errorf("%w: %v", wormhole.ErrPeerClosed, err))
	})

	dataChannel.OnMessage(func(msg webrtc.DataChannelMessage) {
		frame := make([]byte, len(msg.Data))
		copy(frame, msg.Data)

		select {
		case c.incomingMsgCh <- frame:
		case <-c.closed:
		}
	})

	dataChannel.SetBufferedAmountLowThreshold(c.config.BufferedAmountLowThreshold)
	dataChannel.OnBufferedAmountLow(func() {
		select {
		case c.bufferControlCh <- struct{}{}:
		default:
		}
	})
}

func (c *Channel) channel() *webrtc.DataChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataChannel
}

// onConnectionFailure is registered with the PeerService
func (c *Channel) onConnectionFailure(err *ConnectionFailureError) {
	c.markRemoteClosed(fmt.Errorf("%w: %v", wormhole.ErrPeerClosed, err))
}

func (c *Channel) markRemoteClosed(err error) {
	c.remoteOnce.Do(func() {
		c.remoteErr = err
		close(c.remoteClosed)
	})
}

// waitForReady waits for the data channel to open
func (c *Channel) waitForReady(ctx context.Context) error {
	select {
	case <-c.readyCh:
		return nil
	case <-c.remoteClosed:
		return c.remoteErr
	case <-ctx.Done():
		return fmt.Errorf("cancelled while waiting for channel ready: %w", ctx.Err())
	}
}

func (c *Channel) SendFrame(ctx context.Context, frame []byte) error {
	select {
	case <-c.closed:
		return wormhole.ErrConnectionClosed
	case <-c.remoteClosed:
		return c.remoteErr
	default:
	}

	if err := c.handleFlowControl(ctx); err != nil {
		return err
	}

	if err := c.channel().Send(frame); err != nil {
		select {
		case <-c.remoteClosed:
			return c.remoteErr
		default:
		}
		return fmt.Errorf("failed to send data: %w", err)
	}
	return nil
}

// handleFlowControl blocks while the send buffer is above the configured maximum
func (c *Channel) handleFlowControl(ctx context.Context) error {
	for c.channel().BufferedAmount() > c.config.MaxBufferedAmount {
		select {
		case <-c.bufferControlCh:
		case <-c.remoteClosed:
			return c.remoteErr
		case <-c.closed:
			return wormhole.ErrConnectionClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(flowControlTimeout):
			return errors.New("flow control timeout - WebRTC channel may be dead")
		}
	}
	return nil
}

func (c *Channel) ReceiveFrame(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.incomingMsgCh:
		return frame, nil
	default:
	}

	select {
	case frame := <-c.incomingMsgCh:
		return frame, nil
	case <-c.remoteClosed:
		// Messages that arrived before the close are still delivered
		select {
		case frame := <-c.incomingMsgCh:
			return frame, nil
		default:
			return nil, c.remoteErr
		}
	case <-c.closed:
		return nil, wormhole.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the data channel and the peer connection. Only the first call
// does any work.
func (c *Channel) Close() error {
	c.shutdownOnce.Do(func() {
		close(c.closed)

		if dc := c.channel(); dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen {
			if err := dc.GracefulClose(); err != nil {
				c.log.WithError(err).Debug("Error during graceful close")
			}
		}
		c.closeErr = c.peerConn.Close()
	})
	return c.closeErr
}
