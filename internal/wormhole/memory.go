package wormhole

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

const pipeBuffer = 128

// MemoryTransport pairs peers inside one process. Nameplates are handed out
// lowest-free-first the way a mailbox server does.
type MemoryTransport struct {
	mu    sync.Mutex
	slots map[string]*memorySlot
}

type memorySlot struct {
	claimed bool
	joined  chan Channel
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		slots: make(map[string]*memorySlot),
	}
}

func (t *MemoryTransport) Allocate(ctx context.Context, codeLength int) (Code, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n := 1
	for {
		if _, taken := t.slots[strconv.Itoa(n)]; !taken {
			break
		}
		n++
	}
	nameplate := strconv.Itoa(n)

	code, err := GenerateCode(nameplate, codeLength)
	if err != nil {
		return "", err
	}
	t.slots[nameplate] = &memorySlot{joined: make(chan Channel, 1)}
	return code, nil
}

func (t *MemoryTransport) Connect(ctx context.Context, code Code, role Role) (Channel, error) {
	t.mu.Lock()
	slot, ok := t.slots[code.Nameplate()]
	if !ok || (role == RoleReceiver && slot.claimed) {
		t.mu.Unlock()
		return nil, fmt.Errorf("nameplate %s: %w", code.Nameplate(), ErrNameplateNotFound)
	}
	if role == RoleReceiver {
		slot.claimed = true
	}
	t.mu.Unlock()

	if role == RoleReceiver {
		local, remote := NewPipe()
		slot.joined <- remote
		return local, nil
	}

	select {
	case ch := <-slot.joined:
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *MemoryTransport) Release(_ context.Context, code Code) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots, code.Nameplate())
	return nil
}

// Nameplates reports how many nameplates are currently held
func (t *MemoryTransport) Nameplates() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// pipeEnd is one side of an in-memory frame link
type pipeEnd struct {
	in         <-chan []byte
	out        chan<- []byte
	closed     chan struct{}
	peerClosed <-chan struct{}
	closeOnce  sync.Once
}

// NewPipe returns two connected Channels
func NewPipe() (Channel, Channel) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	aClosed := make(chan struct{})
	bClosed := make(chan struct{})

	a := &pipeEnd{in: ba, out: ab, closed: aClosed, peerClosed: bClosed}
	b := &pipeEnd{in: ab, out: ba, closed: bClosed, peerClosed: aClosed}
	return a, b
}

func (p *pipeEnd) SendFrame(ctx context.Context, frame []byte) error {
	select {
	case <-p.closed:
		return ErrConnectionClosed
	case <-p.peerClosed:
		return ErrPeerClosed
	default:
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case p.out <- buf:
		return nil
	case <-p.peerClosed:
		return ErrPeerClosed
	case <-p.closed:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) ReceiveFrame(ctx context.Context) ([]byte, error) {
	// Frames queued before the peer closed are still delivered
	select {
	case frame := <-p.in:
		return frame, nil
	default:
	}

	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.peerClosed:
		select {
		case frame := <-p.in:
			return frame, nil
		default:
			return nil, ErrPeerClosed
		}
	case <-p.closed:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	return nil
}
