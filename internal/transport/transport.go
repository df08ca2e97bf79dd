package transport

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"wormhole/internal/config"
	"wormhole/internal/logging"
	"wormhole/internal/signalling"
	"wormhole/internal/wormhole"
)

// WebRTCTransport rendezvous over a signalling mailbox and carries frames on a
// WebRTC data channel
type WebRTCTransport struct {
	config     *config.Config
	signalling *signalling.SignalingService
	peers      *PeerService
	log        logrus.FieldLogger
}

func NewWebRTCTransport(cfg *config.Config, sig *signalling.SignalingService, peers *PeerService, log logrus.FieldLogger) *WebRTCTransport {
	return &WebRTCTransport{
		config:     cfg,
		signalling: sig,
		peers:      peers,
		log:        logging.OrDefault(log),
	}
}

// NewDefaultWebRTCTransport uses the Firebase mailbox and the configured relay
func NewDefaultWebRTCTransport(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*WebRTCTransport, error) {
	sig, err := signalling.NewDefaultSignalingService(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return NewWebRTCTransport(cfg, sig, NewPeerService(cfg, log), log), nil
}

func (t *WebRTCTransport) Allocate(ctx context.Context, codeLength int) (wormhole.Code, error) {
	nameplate, err := t.signalling.ClaimNameplate(ctx)
	if err != nil {
		return "", err
	}

	code, err := wormhole.GenerateCode(nameplate, codeLength)
	if err != nil {
		if clearErr := t.signalling.ClearSession(ctx, nameplate); clearErr != nil {
			t.log.WithError(clearErr).Warn("Failed to release nameplate")
		}
		return "", err
	}
	return code, nil
}

// Connect runs the offer/answer exchange for code and waits for the data
// channel to open. The sender offers, the receiver answers.
func (t *WebRTCTransport) Connect(ctx context.Context, code wormhole.Code, role wormhole.Role) (wormhole.Channel, error) {
	pc, err := t.peers.CreatePeerConnection()
	if err != nil {
		return nil, err
	}

	log := t.log.WithFields(logrus.Fields{
		"nameplate": code.Nameplate(),
		"role":      role,
	})
	ch := newChannel(t.config.WebRTC(), pc, log)
	t.peers.SetupConnectionStateHandler(pc, role.String(), ch.onConnectionFailure)

	if role == wormhole.RoleSender {
		if err = ch.createDataChannel(); err == nil {
			err = t.signalling.StartSenderSignallingProcess(ctx, pc, code.Nameplate())
		}
	} else {
		ch.acceptDataChannel()
		err = t.signalling.StartReceiverSignallingProcess(ctx, pc, code.Nameplate())
	}
	if err == nil {
		err = ch.waitForReady(ctx)
	}
	if err != nil {
		if closeErr := ch.Close(); closeErr != nil {
			log.WithError(closeErr).Debug("Failed to close peer connection")
		}
		return nil, fmt.Errorf("failed to connect as %s: %w", role, err)
	}

	log.Debug("Transit link established")
	return ch, nil
}

func (t *WebRTCTransport) Release(ctx context.Context, code wormhole.Code) error {
	return t.signalling.ClearSession(ctx, code.Nameplate())
}
