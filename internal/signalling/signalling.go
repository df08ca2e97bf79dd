package signalling

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"wormhole/internal/config"
	"wormhole/internal/logging"
	"wormhole/pkg/utils"
)

// SignalingServer defines the mailbox operations peers rendezvous on. Every
// session is keyed by its nameplate.
type SignalingServer interface {
	// ClaimNameplate reserves a free nameplate for a new session
	ClaimNameplate(ctx context.Context) (nameplate string, err error)
	PutOffer(ctx context.Context, nameplate, offer string) error
	// WaitForOffer returns wormhole.ErrNameplateNotFound for unknown nameplates
	WaitForOffer(ctx context.Context, nameplate string) (offer string, err error)
	// UpdateAnswer fails when another receiver already answered
	UpdateAnswer(ctx context.Context, nameplate, answer string) error
	WaitForAnswer(ctx context.Context, nameplate string) (answer string, err error)
	DeleteSession(ctx context.Context, nameplate string) error
}

// SDPHandler defines the interface for WebRTC SDP operations
type SDPHandler interface {
	CreateOffer(peerConn *webrtc.PeerConnection) (*webrtc.SessionDescription, error)
	CreateAnswer(peerConn *webrtc.PeerConnection) (*webrtc.SessionDescription, error)
	WaitForICEGathering(ctx context.Context, peerConn *webrtc.PeerConnection) (*webrtc.SessionDescription, error)
}

// SignalingService runs the offer/answer exchange over a SignalingServer
type SignalingService struct {
	server SignalingServer
	sdp    SDPHandler
	log    logrus.FieldLogger
}

func NewSignalingService(server SignalingServer, sdp SDPHandler, log logrus.FieldLogger) *SignalingService {
	return &SignalingService{
		server: server,
		sdp:    sdp,
		log:    logging.OrDefault(log),
	}
}

// NewDefaultSignalingService uses the Firebase mailbox at cfg.MailboxURL()
func NewDefaultSignalingService(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*SignalingService, error) {
	server, err := NewFirebaseClient(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase client: %w", err)
	}

	return NewSignalingService(server, &WebRTCHandler{}, log), nil
}

func (s *SignalingService) ClaimNameplate(ctx context.Context) (string, error) {
	return s.server.ClaimNameplate(ctx)
}

// StartSenderSignallingProcess publishes an offer under nameplate and applies
// the answer of whichever receiver claims it
func (s *SignalingService) StartSenderSignallingProcess(ctx context.Context, peerConn *webrtc.PeerConnection, nameplate string) error {
	if _, err := s.sdp.CreateOffer(peerConn); err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}

	finalOffer, err := s.sdp.WaitForICEGathering(ctx, peerConn)
	if err != nil {
		return fmt.Errorf("failed to wait for ICE gathering: %w", err)
	}

	encodedOffer, err := utils.Encode(*finalOffer)
	if err != nil {
		return fmt.Errorf("failed to encode offer SDP: %w", err)
	}

	if err := s.server.PutOffer(ctx, nameplate, encodedOffer); err != nil {
		return fmt.Errorf("failed to publish offer: %w", err)
	}
	s.log.WithField("nameplate", nameplate).Debug("Offer published, waiting for answer")

	answer, err := s.server.WaitForAnswer(ctx, nameplate)
	if err != nil {
		return fmt.Errorf("failed to wait for answer: %w", err)
	}

	answerSD, err := utils.Decode[webrtc.SessionDescription](answer)
	if err != nil {
		return fmt.Errorf("failed to decode answer SDP: %w", err)
	}

	if err := peerConn.SetRemoteDescription(answerSD); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

// StartReceiverSignallingProcess answers the offer published under nameplate
func (s *SignalingService) StartReceiverSignallingProcess(ctx context.Context, peerConn *webrtc.PeerConnection, nameplate string) error {
	encodedOffer, err := s.server.WaitForOffer(ctx, nameplate)
	if err != nil {
		return fmt.Errorf("failed to get offer for nameplate %s: %w", nameplate, err)
	}

	offerSD, err := utils.Decode[webrtc.SessionDescription](encodedOffer)
	if err != nil {
		return fmt.Errorf("failed to decode offer SDP: %w", err)
	}

	if err := peerConn.SetRemoteDescription(offerSD); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	if _, err := s.sdp.CreateAnswer(peerConn); err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}

	finalAnswer, err := s.sdp.WaitForICEGathering(ctx, peerConn)
	if err != nil {
		return fmt.Errorf("failed to wait for ICE gathering: %w", err)
	}

	encodedAnswer, err := utils.Encode(*finalAnswer)
	if err != nil {
		return fmt.Errorf("failed to encode answer SDP: %w", err)
	}

	if err := s.server.UpdateAnswer(ctx, nameplate, encodedAnswer); err != nil {
		return fmt.Errorf("failed to upload answer: %w", err)
	}
	s.log.WithField("nameplate", nameplate).Debug("Answer published")
	return nil
}

// ClearSession deletes the session held under nameplate
func (s *SignalingService) ClearSession(ctx context.Context, nameplate string) error {
	return s.server.DeleteSession(ctx, nameplate)
}
