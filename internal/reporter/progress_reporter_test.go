package reporter

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wormhole/internal/logging"
	"wormhole/pkg/types"
)

type recorder struct {
	mu     sync.Mutex
	events []types.ProgressEvent
}

func (r *recorder) sink(ev types.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []types.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.ProgressEvent(nil), r.events...)
}

func TestReporterDeliversInOrder(t *testing.T) {
	rec := &recorder{}
	r := NewProgressReporter(rec.sink, logging.Discard())

	for i := int64(1); i <= 100; i++ {
		r.Report(types.ProgressEvent{BytesTransferred: i, TotalBytes: 100})
	}
	r.Close()

	events := rec.snapshot()
	require.Len(t, events, 100)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.BytesTransferred)
	}
}

func TestReporterNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	slow := func(types.ProgressEvent) { <-release }

	r := NewProgressReporter(slow, logging.Discard())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 1000 {
			r.Report(types.ProgressEvent{BytesTransferred: int64(i), TotalBytes: 1000})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Report blocked on a slow sink")
	}

	close(release)
	r.Close()
}

func TestReporterSwallowsPanics(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(false, &buf)

	calls := 0
	sink := func(ev types.ProgressEvent) {
		calls++
		if ev.BytesTransferred == 1 {
			panic("sink exploded")
		}
	}

	r := NewProgressReporter(sink, log)
	r.Report(types.ProgressEvent{BytesTransferred: 1, TotalBytes: 2})
	r.Report(types.ProgressEvent{BytesTransferred: 2, TotalBytes: 2})
	r.Close()

	assert.Equal(t, 2, calls)
	assert.Contains(t, buf.String(), "Progress sink panicked")
	assert.Contains(t, buf.String(), "sink exploded")
}

func TestReporterCloseIsIdempotent(t *testing.T) {
	rec := &recorder{}
	r := NewProgressReporter(rec.sink, logging.Discard())
	r.Close()
	r.Close()

	r.Report(types.ProgressEvent{BytesTransferred: 1, TotalBytes: 1})
	assert.Empty(t, rec.snapshot())
}

func TestNilSink(t *testing.T) {
	r := NewProgressReporter(nil, logging.Discard())
	r.Report(types.ProgressEvent{BytesTransferred: 1, TotalBytes: 1})
	r.Close()
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	sink := Multi(a.sink, nil, b.sink)

	sink(types.ProgressEvent{BytesTransferred: 5, TotalBytes: 10})
	assert.Len(t, a.snapshot(), 1)
	assert.Len(t, b.snapshot(), 1)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.Out = &buf
	log.SetFormatter(&logrus.JSONFormatter{})

	sink := LogSink(log)
	for i := int64(0); i <= 100; i++ {
		sink(types.ProgressEvent{BytesTransferred: i, TotalBytes: 100})
	}

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	assert.Equal(t, 11, lines)
}
