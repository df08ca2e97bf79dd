package config

import (
	"github.com/spf13/viper"
)

// Viper keys understood by Load
const (
	KeyAppID               = "app_id"
	KeyMailboxURL          = "mailbox_url"
	KeyRelayURL            = "relay_url"
	KeyCodeLength          = "code_length"
	KeyHistoryPath         = "history_path"
	KeyChunkSize           = "transfer.chunk_size"
	KeyCompress            = "transfer.compress"
	KeyChecksum            = "transfer.checksum"
	KeyHandshakeTimeout    = "timeouts.handshake"
	KeyMetadataTimeout     = "timeouts.metadata"
	KeyStallTimeout        = "timeouts.stall"
	KeyAckTimeout          = "timeouts.ack"
	KeyCloseTimeout        = "timeouts.close"
	KeyBufferedLow         = "webrtc.buffered_amount_low_threshold"
	KeyMaxBuffered         = "webrtc.max_buffered_amount"
	KeyFirebaseCredentials = "firebase.credentials_path"
)

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	t := DefaultTimeouts()
	w := DefaultWebRTC()

	v.SetDefault(KeyAppID, DefaultAppID)
	v.SetDefault(KeyRelayURL, DefaultRelayURL)
	v.SetDefault(KeyCodeLength, DefaultCodeLength)
	v.SetDefault(KeyChunkSize, DefaultChunkSize)
	v.SetDefault(KeyCompress, false)
	v.SetDefault(KeyChecksum, true)
	v.SetDefault(KeyHandshakeTimeout, t.Handshake)
	v.SetDefault(KeyMetadataTimeout, t.Metadata)
	v.SetDefault(KeyStallTimeout, t.Stall)
	v.SetDefault(KeyAckTimeout, t.Ack)
	v.SetDefault(KeyCloseTimeout, t.Close)
	v.SetDefault(KeyBufferedLow, w.BufferedAmountLowThreshold)
	v.SetDefault(KeyMaxBuffered, w.MaxBufferedAmount)
}

// Load builds a Config from flags, environment and config file values held by v
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	return New(
		v.GetString(KeyAppID),
		v.GetString(KeyMailboxURL),
		v.GetString(KeyRelayURL),
		v.GetInt(KeyCodeLength),
		WithChunkSize(v.GetInt(KeyChunkSize)),
		WithCompression(v.GetBool(KeyCompress)),
		WithChecksum(v.GetBool(KeyChecksum)),
		WithTimeouts(TimeoutConfig{
			Handshake: v.GetDuration(KeyHandshakeTimeout),
			Metadata:  v.GetDuration(KeyMetadataTimeout),
			Stall:     v.GetDuration(KeyStallTimeout),
			Ack:       v.GetDuration(KeyAckTimeout),
			Close:     v.GetDuration(KeyCloseTimeout),
		}),
		WithWebRTC(WebRTCConfig{
			BufferedAmountLowThreshold: v.GetUint64(KeyBufferedLow),
			MaxBufferedAmount:          v.GetUint64(KeyMaxBuffered),
		}),
		WithFirebaseCredentials(v.GetString(KeyFirebaseCredentials)),
		WithHistoryPath(v.GetString(KeyHistoryPath)),
	)
}
