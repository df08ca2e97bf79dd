package signalling

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// WebRTCHandler implements SDPHandler for vanilla ICE: descriptions are only
// exchanged once gathering is complete
type WebRTCHandler struct{}

// CreateOffer creates and sets an SDP offer for the peer connection
func (h *WebRTCHandler) CreateOffer(peerConn *webrtc.PeerConnection) (*webrtc.SessionDescription, error) {
	offer, err := peerConn.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	if err := peerConn.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}
	return &offer, nil
}

// CreateAnswer creates and sets an SDP answer for the peer connection
func (h *WebRTCHandler) CreateAnswer(peerConn *webrtc.PeerConnection) (*webrtc.SessionDescription, error) {
	answer, err := peerConn.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}

	if err := peerConn.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}
	return &answer, nil
}

// WaitForICEGathering waits for ICE gathering to complete and returns the
// local description carrying every candidate
func (h *WebRTCHandler) WaitForICEGathering(ctx context.Context, peerConn *webrtc.PeerConnection) (*webrtc.SessionDescription, error) {
	select {
	case <-webrtc.GatheringCompletePromise(peerConn):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	desc := peerConn.LocalDescription()
	if desc == nil {
		return nil, errors.New("local description is nil after ICE gathering")
	}
	return desc, nil
}
