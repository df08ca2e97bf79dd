package reporter

import (
	"sync"

	"github.com/sirupsen/logrus"

	"wormhole/internal/logging"
	"wormhole/pkg/types"
)

// Sink receives progress events. It runs on the reporter's goroutine, never on
// the transfer's, so a slow sink cannot stall a transfer.
type Sink func(types.ProgressEvent)

// ProgressReporter delivers events to a sink in order without ever blocking
// the caller. Events queue up while the sink is busy.
type ProgressReporter struct {
	sink Sink
	log  logrus.FieldLogger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []types.ProgressEvent
	closing bool
	done    chan struct{}
	once    sync.Once
}

// NewProgressReporter starts a reporter for sink. A nil sink discards events.
func NewProgressReporter(sink Sink, log logrus.FieldLogger) *ProgressReporter {
	r := &ProgressReporter{
		sink: sink,
		log:  logging.OrDefault(log),
		done: make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)

	go r.run()
	return r
}

// Report queues ev for delivery and returns immediately
func (r *ProgressReporter) Report(ev types.ProgressEvent) {
	if r.sink == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return
	}
	r.queue = append(r.queue, ev)
	r.cond.Signal()
}

// Close delivers every queued event and stops the reporter. Events reported
// after Close are dropped.
func (r *ProgressReporter) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closing = true
		r.cond.Signal()
		r.mu.Unlock()
	})
	<-r.done
}

func (r *ProgressReporter) run() {
	defer close(r.done)

	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closing {
			r.cond.Wait()
		}
		if len(r.queue) == 0 && r.closing {
			r.mu.Unlock()
			return
		}
		batch := r.queue
		r.queue = nil
		r.mu.Unlock()

		for _, ev := range batch {
			r.deliver(ev)
		}
	}
}

func (r *ProgressReporter) deliver(ev types.ProgressEvent) {
	defer func() {
		if p := recover(); p != nil {
			r.log.WithFields(logrus.Fields{
				"panic":       p,
				"transferred": ev.BytesTransferred,
				"total":       ev.TotalBytes,
			}).Error("Progress sink panicked")
		}
	}()
	r.sink(ev)
}

// Multi fans events out to every non-nil sink
func Multi(sinks ...Sink) Sink {
	return func(ev types.ProgressEvent) {
		for _, s := range sinks {
			if s != nil {
				s(ev)
			}
		}
	}
}

// LogSink logs progress every time another tenth of the payload is done
func LogSink(log logrus.FieldLogger) Sink {
	log = logging.OrDefault(log)
	lastDecile := -1

	return func(ev types.ProgressEvent) {
		decile := int(ev.Fraction() * 10)
		if decile == lastDecile {
			return
		}
		lastDecile = decile

		log.WithFields(logrus.Fields{
			"transferred": ev.BytesTransferred,
			"total":       ev.TotalBytes,
			"percent":     decile * 10,
		}).Info("Transfer progress")
	}
}
