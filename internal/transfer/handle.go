package transfer

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"wormhole/internal/wormhole"
	"wormhole/pkg/types"
)

// Handle tracks one running transfer and resolves exactly once
type Handle[T any] struct {
	id     uuid.UUID
	cancel context.CancelFunc
	state  atomic.Int32
	done   chan struct{}

	result T
	err    error
}

func newHandle[T any](cancel context.CancelFunc) *Handle[T] {
	return &Handle[T]{
		id:     uuid.New(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID identifies the transfer in logs and history
func (h *Handle[T]) ID() uuid.UUID {
	return h.id
}

// State returns the current lifecycle state
func (h *Handle[T]) State() State {
	return State(h.state.Load())
}

// Cancel asks the transfer to stop. It is observed at the next suspension
// point and the handle then resolves with a Cancelled abort.
func (h *Handle[T]) Cancel() {
	h.cancel()
}

// Done is closed once the transfer reached Completed or Aborted
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the transfer finishes
func (h *Handle[T]) Wait() (T, error) {
	<-h.done
	return h.result, h.err
}

func (h *Handle[T]) setState(s State) {
	h.state.Store(int32(s))
}

func (h *Handle[T]) resolve(result T, err error) {
	h.result = result
	h.err = err
	close(h.done)
}

// SendOutcome summarizes a completed send
type SendOutcome struct {
	Code      wormhole.Code
	BytesSent int64
	Metadata  types.TransferMetadata
}

// SendHandle is returned by StartSend. The wormhole code is published on Code
// as soon as it has been allocated, long before the receiver connects.
type SendHandle struct {
	*Handle[SendOutcome]
	code chan wormhole.Code
}

// Code delivers the allocated code once. It is never written to if the
// transfer aborts before a code exists.
func (h *SendHandle) Code() <-chan wormhole.Code {
	return h.code
}

// ReceiveHandle is returned by StartReceive
type ReceiveHandle = Handle[*types.TransferResult]
