package signalling

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wormhole/internal/logging"
	"wormhole/internal/wormhole"
)

func newPeerConnection(t *testing.T) *webrtc.PeerConnection {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func TestSignalingServiceExchangesDescriptions(t *testing.T) {
	if testing.Short() {
		t.Skip("gathers ICE candidates")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	service := NewSignalingService(NewMemoryServer(), &WebRTCHandler{}, logging.Discard())
	nameplate, err := service.ClaimNameplate(ctx)
	require.NoError(t, err)

	sender := newPeerConnection(t)
	_, err = sender.CreateDataChannel("wormhole", nil)
	require.NoError(t, err)
	receiver := newPeerConnection(t)

	errs := make(chan error, 1)
	go func() {
		errs <- service.StartReceiverSignallingProcess(ctx, receiver, nameplate)
	}()

	require.NoError(t, service.StartSenderSignallingProcess(ctx, sender, nameplate))
	require.NoError(t, <-errs)

	require.NotNil(t, sender.RemoteDescription())
	require.NotNil(t, receiver.RemoteDescription())
	assert.Equal(t, webrtc.SDPTypeAnswer, sender.RemoteDescription().Type)
	assert.Equal(t, webrtc.SDPTypeOffer, receiver.RemoteDescription().Type)

	require.NoError(t, service.ClearSession(ctx, nameplate))
}

func TestReceiverSignallingUnknownNameplate(t *testing.T) {
	service := NewSignalingService(NewMemoryServer(), &WebRTCHandler{}, logging.Discard())

	err := service.StartReceiverSignallingProcess(context.Background(), newPeerConnection(t), "7")
	assert.ErrorIs(t, err, wormhole.ErrNameplateNotFound)
}
