package wormhole

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"wormhole/internal/config"
	"wormhole/internal/logging"
	"wormhole/internal/secure"
)

// Manager turns a configuration into established connections. It runs the
// key exchange on top of whatever link the Transport provides.
type Manager struct {
	config    *config.Config
	transport Transport
	log       logrus.FieldLogger
}

// NewManager creates a connection manager backed by transport
func NewManager(cfg *config.Config, transport Transport, log logrus.FieldLogger) *Manager {
	return &Manager{
		config:    cfg,
		transport: transport,
		log:       logging.OrDefault(log),
	}
}

// ConnectAsSender allocates a code, hands it to onCode as soon as it exists
// and waits for a receiver holding the same code.
func (m *Manager) ConnectAsSender(ctx context.Context, onCode func(Code)) (Connection, error) {
	hctx, cancel := context.WithTimeout(ctx, m.config.Timeouts().Handshake)
	defer cancel()

	code, err := m.transport.Allocate(hctx, m.config.CodeLength())
	if err != nil {
		return nil, m.classify(ctx, hctx, "allocate code", err)
	}

	log := m.log.WithFields(logrus.Fields{
		"role":      RoleSender,
		"nameplate": code.Nameplate(),
	})
	log.Info("Wormhole code allocated")

	if onCode != nil {
		onCode(code)
	}

	conn, err := m.establish(ctx, hctx, code, RoleSender, log)

	// The nameplate is single use, success or not
	m.release(ctx, code, log)

	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ConnectAsReceiver redeems code and waits for the key exchange with the sender
func (m *Manager) ConnectAsReceiver(ctx context.Context, code Code) (Connection, error) {
	hctx, cancel := context.WithTimeout(ctx, m.config.Timeouts().Handshake)
	defer cancel()

	log := m.log.WithFields(logrus.Fields{
		"role":      RoleReceiver,
		"nameplate": code.Nameplate(),
	})
	return m.establish(ctx, hctx, code, RoleReceiver, log)
}

// Close closes conn. It is safe to call more than once.
func (m *Manager) Close(conn Connection) error {
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (m *Manager) establish(ctx, hctx context.Context, code Code, role Role, log logrus.FieldLogger) (Connection, error) {
	log.Debug("Waiting for peer")
	raw, err := m.transport.Connect(hctx, code, role)
	if err != nil {
		return nil, m.classify(ctx, hctx, "connect", err)
	}

	log.Debug("Transit established, running key exchange")
	password := secure.Password(code.String(), m.config.AppID())
	session, err := secure.Handshake(hctx, raw, password, role == RoleReceiver)
	if err != nil {
		if cerr := raw.Close(); cerr != nil {
			log.WithError(cerr).Debug("Failed to close transit after key exchange failure")
		}
		return nil, m.classify(ctx, hctx, "key exchange", err)
	}

	log.Info("Secure connection established")
	return NewConnection(code, session, m.config.Timeouts().Close, log), nil
}

func (m *Manager) release(ctx context.Context, code Code, log logrus.FieldLogger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.Timeouts().Close)
	defer cancel()

	if err := m.transport.Release(rctx, code); err != nil {
		log.WithError(err).Warn("Failed to release nameplate")
	}
}

// classify maps a collaborator failure onto the manager's error taxonomy.
// Caller cancellation wins over everything else.
func (m *Manager) classify(ctx, hctx context.Context, step string, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%s: %w", step, ctx.Err())
	case errors.Is(err, ErrNameplateNotFound), errors.Is(err, secure.ErrKeyMismatch):
		return fmt.Errorf("%w: %s: %w", ErrCodeMismatch, step, err)
	case hctx.Err() != nil, errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s after %s", ErrTimeout, step, m.config.Timeouts().Handshake)
	default:
		return &ConnectionError{Reason: step, Err: err}
	}
}
