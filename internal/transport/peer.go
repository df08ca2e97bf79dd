package transport

import (
	"fmt"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"wormhole/internal/config"
	"wormhole/internal/logging"
)

// ConnectionFailureError reports a peer connection that failed or closed
// underneath an open channel
type ConnectionFailureError struct {
	State   webrtc.PeerConnectionState
	Role    string
	Message string
}

func (e *ConnectionFailureError) Error() string {
	return fmt.Sprintf("connection failed in %s state for %s: %s", e.State.String(), e.Role, e.Message)
}

// PeerOption customizes a PeerService
type PeerOption func(*PeerService)

// WithICEServers replaces the ICE servers derived from the relay url
func WithICEServers(servers []webrtc.ICEServer) PeerOption {
	return func(p *PeerService) { p.iceServers = servers }
}

// WithLoopbackCandidates also gathers loopback addresses, for peers on one host
func WithLoopbackCandidates() PeerOption {
	return func(p *PeerService) { p.loopback = true }
}

// PeerService manages WebRTC peer connection lifecycle
type PeerService struct {
	iceServers []webrtc.ICEServer
	loopback   bool
	log        logrus.FieldLogger
}

// NewPeerService creates a peer service using cfg.RelayURL() as ICE server
func NewPeerService(cfg *config.Config, log logrus.FieldLogger, opts ...PeerOption) *PeerService {
	p := &PeerService{
		iceServers: []webrtc.ICEServer{{URLs: []string{cfg.RelayURL()}}},
		log:        logging.OrDefault(log),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreatePeerConnection creates a new peer connection. mDNS candidates of the
// remote side are resolved but local addresses are not obfuscated.
func (p *PeerService) CreatePeerConnection() (*webrtc.PeerConnection, error) {
	settings := webrtc.SettingEngine{}
	settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryOnly)
	settings.SetIncludeLoopbackCandidate(p.loopback)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settings))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: p.iceServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return pc, nil
}

// SetupConnectionStateHandler calls onFailure once the connection fails or closes
func (p *PeerService) SetupConnectionStateHandler(peerConn *webrtc.PeerConnection, role string, onFailure func(*ConnectionFailureError)) {
	log := p.log.WithField("role", role)
	peerConn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.WithField("state", state.String()).Debug("Peer connection state changed")

		switch state {
		case webrtc.PeerConnectionStateFailed:
			onFailure(&ConnectionFailureError{State: state, Role: role, Message: "peer connection failed"})
		case webrtc.PeerConnectionStateClosed:
			onFailure(&ConnectionFailureError{State: state, Role: role, Message: "peer connection closed"})
		}
	})
}
