package signalling

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"wormhole/internal/wormhole"
)

// MemoryServer is an in-process SignalingServer
type MemoryServer struct {
	mu       sync.Mutex
	sessions map[string]*Session
	changed  chan struct{}
}

func NewMemoryServer() *MemoryServer {
	return &MemoryServer{
		sessions: make(map[string]*Session),
		changed:  make(chan struct{}),
	}
}

// notify wakes every waiter, called with mu held
func (m *MemoryServer) notify() {
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *MemoryServer) ClaimNameplate(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 1
	for m.sessions[strconv.Itoa(n)] != nil {
		n++
	}
	nameplate := strconv.Itoa(n)
	m.sessions[nameplate] = &Session{Nameplate: nameplate}
	return nameplate, nil
}

func (m *MemoryServer) PutOffer(_ context.Context, nameplate, offer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := m.sessions[nameplate]
	if session == nil {
		return fmt.Errorf("nameplate %s: %w", nameplate, wormhole.ErrNameplateNotFound)
	}
	session.Offer = offer
	m.notify()
	return nil
}

func (m *MemoryServer) WaitForOffer(ctx context.Context, nameplate string) (string, error) {
	return m.wait(ctx, nameplate, func(s *Session) string { return s.Offer })
}

func (m *MemoryServer) UpdateAnswer(_ context.Context, nameplate, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := m.sessions[nameplate]
	if session == nil {
		return fmt.Errorf("nameplate %s: %w", nameplate, wormhole.ErrNameplateNotFound)
	}
	if session.Answer != "" {
		return errAlreadyClaimed
	}
	session.Answer = answer
	m.notify()
	return nil
}

func (m *MemoryServer) WaitForAnswer(ctx context.Context, nameplate string) (string, error) {
	return m.wait(ctx, nameplate, func(s *Session) string { return s.Answer })
}

func (m *MemoryServer) DeleteSession(_ context.Context, nameplate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, nameplate)
	m.notify()
	return nil
}

// Sessions reports how many sessions are stored
func (m *MemoryServer) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemoryServer) wait(ctx context.Context, nameplate string, field func(*Session) string) (string, error) {
	for {
		m.mu.Lock()
		session := m.sessions[nameplate]
		if session == nil {
			m.mu.Unlock()
			return "", fmt.Errorf("nameplate %s: %w", nameplate, wormhole.ErrNameplateNotFound)
		}
		if value := field(session); value != "" {
			m.mu.Unlock()
			return value, nil
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
