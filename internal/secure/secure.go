package secure

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/flynn/noise"
	"github.com/schollz/pake/v3"
	"golang.org/x/crypto/hkdf"
)

const (
	frameHandshake   byte = 0x01
	frameReject      byte = 0x02
	frameData        byte = 0x03
	frameDataMore    byte = 0x04
	frameKeyExchange byte = 0x05

	// MaxSegmentSize is the largest plaintext sealed into one transit message.
	// Noise caps messages at 65535 bytes and data channels prefer less.
	MaxSegmentSize = 60 * 1024

	prologue  = "wormhole-transit-v1"
	pakeCurve = "siec"
)

var (
	// ErrKeyMismatch means the peers derived different keys from their codes
	ErrKeyMismatch = errors.New("key confirmation failed")
	// ErrMalformedFrame means a frame could not be parsed or authenticated
	ErrMalformedFrame = errors.New("malformed secure frame")
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// FrameConn is the unencrypted link the session runs over
type FrameConn interface {
	SendFrame(ctx context.Context, frame []byte) error
	ReceiveFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// Password binds a wormhole code to the application so codes are not
// portable between applications
func Password(code, appID string) []byte {
	return []byte(appID + "/" + code)
}

// Handshake agrees on a session key with the peer over conn. A PAKE exchange
// turns the shared password into a strong key, which then seeds a Noise
// NNpsk0 handshake for key confirmation and the transport ciphers. The
// initiator speaks first. Both sides fail with ErrKeyMismatch when their
// passwords differ; the responder tells the initiator so it does not wait for
// a reply that never comes.
func Handshake(ctx context.Context, conn FrameConn, password []byte, initiator bool) (*Session, error) {
	sessionKey, err := exchangeKeys(ctx, conn, password, initiator)
	if err != nil {
		return nil, err
	}
	psk, err := transitKey(sessionKey)
	if err != nil {
		return nil, err
	}

	hs, err := newHandshakeState(psk, initiator)
	if err != nil {
		return nil, err
	}
	if initiator {
		return initiate(ctx, conn, hs)
	}
	return respond(ctx, conn, hs)
}

// exchangeKeys runs the two PAKE messages. Nothing sent here lets an observer
// test guesses of the password offline.
func exchangeKeys(ctx context.Context, conn FrameConn, password []byte, initiator bool) ([]byte, error) {
	role := 1
	if initiator {
		role = 0
	}
	p, err := pake.InitCurve(password, role, pakeCurve)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key exchange: %w", err)
	}

	if initiator {
		if err := conn.SendFrame(ctx, append([]byte{frameKeyExchange}, p.Bytes()...)); err != nil {
			return nil, fmt.Errorf("failed to send key exchange message: %w", err)
		}
	}

	msg, err := conn.ReceiveFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to receive key exchange message: %w", err)
	}
	if len(msg) == 0 || msg[0] != frameKeyExchange {
		return nil, fmt.Errorf("%w: expected key exchange frame", ErrMalformedFrame)
	}
	if err := p.Update(msg[1:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if !initiator {
		if err := conn.SendFrame(ctx, append([]byte{frameKeyExchange}, p.Bytes()...)); err != nil {
			return nil, fmt.Errorf("failed to send key exchange message: %w", err)
		}
	}

	key, err := p.SessionKey()
	if err != nil {
		return nil, fmt.Errorf("failed to complete key exchange: %w", err)
	}
	return key, nil
}

// transitKey expands the PAKE session key into the Noise pre-shared key
func transitKey(sessionKey []byte) ([]byte, error) {
	psk := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, sessionKey, nil, []byte(prologue)), psk); err != nil {
		return nil, fmt.Errorf("failed to derive transit key: %w", err)
	}
	return psk, nil
}

func newHandshakeState(psk []byte, initiator bool) (*noise.HandshakeState, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:           cipherSuite,
		Random:                rand.Reader,
		Pattern:               noise.HandshakeNN,
		Initiator:             initiator,
		Prologue:              []byte(prologue),
		PresharedKey:          psk,
		PresharedKeyPlacement: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}
	return hs, nil
}

func initiate(ctx context.Context, conn FrameConn, hs *noise.HandshakeState) (*Session, error) {
	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to write handshake message: %w", err)
	}
	if err := conn.SendFrame(ctx, append([]byte{frameHandshake}, msg...)); err != nil {
		return nil, fmt.Errorf("failed to send handshake message: %w", err)
	}

	reply, err := conn.ReceiveFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to receive handshake reply: %w", err)
	}
	if len(reply) == 0 {
		return nil, ErrMalformedFrame
	}

	switch reply[0] {
	case frameReject:
		return nil, ErrKeyMismatch
	case frameHandshake:
	default:
		return nil, fmt.Errorf("%w: unexpected frame kind 0x%02x during handshake", ErrMalformedFrame, reply[0])
	}

	_, toResponder, toInitiator, err := hs.ReadMessage(nil, reply[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMismatch, err)
	}
	return newSession(conn, toResponder, toInitiator), nil
}

func respond(ctx context.Context, conn FrameConn, hs *noise.HandshakeState) (*Session, error) {
	first, err := conn.ReceiveFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to receive handshake message: %w", err)
	}
	if len(first) == 0 || first[0] != frameHandshake {
		return nil, fmt.Errorf("%w: expected handshake frame", ErrMalformedFrame)
	}

	if _, _, _, err := hs.ReadMessage(nil, first[1:]); err != nil {
		// Best effort, the initiator falls back to its own timeout
		_ = conn.SendFrame(ctx, []byte{frameReject})
		return nil, fmt.Errorf("%w: %v", ErrKeyMismatch, err)
	}

	msg, toResponder, toInitiator, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to write handshake reply: %w", err)
	}
	if err := conn.SendFrame(ctx, append([]byte{frameHandshake}, msg...)); err != nil {
		return nil, fmt.Errorf("failed to send handshake reply: %w", err)
	}
	return newSession(conn, toInitiator, toResponder), nil
}

// Session encrypts frames after a successful handshake. Frames larger than
// MaxSegmentSize are split and reassembled transparently.
type Session struct {
	conn FrameConn

	sendMu sync.Mutex
	send   *noise.CipherState

	recvMu  sync.Mutex
	recv    *noise.CipherState
	partial []byte
}

func newSession(conn FrameConn, send, recv *noise.CipherState) *Session {
	return &Session{conn: conn, send: send, recv: recv}
}

func (s *Session) SendFrame(ctx context.Context, frame []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	for {
		n := min(len(frame), MaxSegmentSize)
		kind := frameData
		if n < len(frame) {
			kind = frameDataMore
		}

		out := make([]byte, 1, 1+n+16)
		out[0] = kind
		out, err := s.send.Encrypt(out, []byte{kind}, frame[:n])
		if err != nil {
			return fmt.Errorf("failed to seal frame: %w", err)
		}
		if err := s.conn.SendFrame(ctx, out); err != nil {
			return err
		}

		frame = frame[n:]
		if kind == frameData {
			return nil
		}
	}
}

func (s *Session) ReceiveFrame(ctx context.Context) ([]byte, error) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	for {
		raw, err := s.conn.ReceiveFrame(ctx)
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 || (raw[0] != frameData && raw[0] != frameDataMore) {
			return nil, fmt.Errorf("%w: unexpected frame", ErrMalformedFrame)
		}

		plain, err := s.recv.Decrypt(nil, raw[:1], raw[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		s.partial = append(s.partial, plain...)

		if raw[0] == frameData {
			frame := s.partial
			s.partial = nil
			if frame == nil {
				frame = []byte{}
			}
			return frame, nil
		}
	}
}

func (s *Session) Close() error {
	return s.conn.Close()
}
