package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wormhole/internal/config"
	"wormhole/internal/logging"
	"wormhole/internal/processor"
	"wormhole/internal/reporter"
	"wormhole/internal/wormhole"
	"wormhole/pkg/types"
)

// Connector establishes connections, normally a *wormhole.Manager
type Connector interface {
	ConnectAsSender(ctx context.Context, onCode func(wormhole.Code)) (wormhole.Connection, error)
	ConnectAsReceiver(ctx context.Context, code wormhole.Code) (wormhole.Connection, error)
}

// Orchestrator runs send and receive state machines. Each Start call runs in
// its own goroutine; the orchestrator itself holds only immutable state and
// can be shared.
type Orchestrator struct {
	config    *config.Config
	connector Connector
	log       logrus.FieldLogger
}

// New creates an orchestrator
func New(cfg *config.Config, connector Connector, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		config:    cfg,
		connector: connector,
		log:       logging.OrDefault(log),
	}
}

// StartSend begins sending src. The source is owned by the transfer from now
// on and is closed when it finishes.
func (o *Orchestrator) StartSend(ctx context.Context, src processor.Source, sink reporter.Sink) *SendHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &SendHandle{
		Handle: newHandle[SendOutcome](cancel),
		code:   make(chan wormhole.Code, 1),
	}

	run := &sendRun{
		run: o.newRun(h.Handle.setState, h.ID().String(), wormhole.RoleSender, sink),
		h:   h,
		src: src,
	}

	go func() {
		outcome, err := run.execute(ctx)
		cancel()
		h.resolve(outcome, err)
	}()
	return h
}

// AcceptFunc decides whether an announced payload is wanted. A non-nil error
// rejects the transfer before any data is read.
type AcceptFunc func(meta types.TransferMetadata) error

// ReceiveOption adjusts a single receive
type ReceiveOption func(*receiveRun)

// WithAccept installs a check run once the metadata has arrived
func WithAccept(accept AcceptFunc) ReceiveOption {
	return func(r *receiveRun) { r.accept = accept }
}

// StartReceive begins receiving the payload offered under code
func (o *Orchestrator) StartReceive(ctx context.Context, code wormhole.Code, sink reporter.Sink, opts ...ReceiveOption) *ReceiveHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := newHandle[*types.TransferResult](cancel)

	run := &receiveRun{
		run:  o.newRun(h.setState, h.ID().String(), wormhole.RoleReceiver, sink),
		code: code,
	}
	for _, opt := range opts {
		opt(run)
	}

	go func() {
		result, err := run.execute(ctx)
		cancel()
		h.resolve(result, err)
	}()
	return h
}

func (o *Orchestrator) newRun(setState func(State), id string, role wormhole.Role, sink reporter.Sink) *run {
	log := o.log.WithFields(logrus.Fields{
		"transfer": id,
		"role":     role,
	})
	return &run{
		config:    o.config,
		connector: o.connector,
		log:       log,
		progress:  reporter.NewProgressReporter(sink, log),
		setState:  setState,
	}
}

// run holds what both directions share
type run struct {
	config    *config.Config
	connector Connector
	log       logrus.FieldLogger
	progress  *reporter.ProgressReporter
	setState  func(State)

	state State
	conn  wormhole.Connection
}

func (r *run) transition(s State) {
	r.log.WithFields(logrus.Fields{
		"from": r.state,
		"to":   s,
	}).Debug("State changed")
	r.state = s
	r.setState(s)
}

func (r *run) abort(reason Reason, err error) error {
	abortErr := &AbortError{Reason: reason, State: r.state, Err: err}
	r.log.WithFields(logrus.Fields{
		"reason": reason,
		"state":  r.state,
	}).WithError(err).Warn("Transfer aborted")
	r.transition(StateAborted)
	return abortErr
}

// closeConn closes the connection once the run is over
func (r *run) closeConn() {
	if r.conn == nil {
		return
	}
	if err := r.conn.Close(); err != nil {
		r.log.WithError(err).Debug("Failed to close connection")
	}
}

func (r *run) send(ctx context.Context, msg Message) error {
	data, err := SerializeMessage(msg)
	if err != nil {
		return err
	}
	return r.conn.SendFrame(ctx, data)
}

// receive waits at most d for the next message
func (r *run) receive(ctx context.Context, d time.Duration) (Message, error) {
	sctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	frame, err := r.conn.ReceiveFrame(sctx)
	if err != nil {
		if ctx.Err() == nil && sctx.Err() != nil {
			return Message{}, fmt.Errorf("%w: no message within %s", errStepTimeout, d)
		}
		return Message{}, err
	}

	msg, err := DeserializeMessage(frame)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return msg, nil
}

// notifyPeer tells the other side why we are giving up. Failures are only logged.
func (r *run) notifyPeer(ctx context.Context, reason Reason, detail error) {
	if r.conn == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.Timeouts().Close)
	defer cancel()

	msg := Message{Type: MSG_ERROR, Error: fmt.Sprintf("%s: %v", reason, detail)}
	if err := r.send(nctx, msg); err != nil {
		r.log.WithError(err).Debug("Failed to notify peer")
	}
}

// unexpected builds the error for a message that is not valid in the current state
func unexpected(msg Message, state State) error {
	if msg.Type == MSG_ERROR {
		return fmt.Errorf("%w: %s", ErrRemote, msg.Error)
	}
	return fmt.Errorf("%w: %s during %s", ErrProtocol, msg.Type, state)
}

func reasonForUnexpected(msg Message) Reason {
	if msg.Type == MSG_ERROR {
		return ReasonRemoteError
	}
	return ReasonProtocolError
}
