package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"wormhole/pkg/types"
	"wormhole/pkg/utils"
)

// ProgressUI renders progress events of a single transfer as a progress bar.
// The bar is created on the first event since a receiver only learns the
// total size from the sender.
type ProgressUI struct {
	out       io.Writer
	operation string

	mu        sync.Mutex
	bar       *progressbar.ProgressBar
	startTime time.Time
	last      types.ProgressEvent
}

// NewProgressUI creates a progress display writing to out
func NewProgressUI(out io.Writer, operation string) *ProgressUI {
	return &ProgressUI{
		out:       out,
		operation: operation,
	}
}

func (p *ProgressUI) initProgressBar(total int64) {
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(fmt.Sprintf("%s...", p.operation)),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(false),
	)
}

// Update is a reporter sink
func (p *ProgressUI) Update(ev types.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		p.initProgressBar(ev.TotalBytes)
		p.startTime = time.Now()
	}
	p.last = ev

	_ = p.bar.Set64(ev.BytesTransferred)
	p.bar.Describe(fmt.Sprintf("%s (%s/%s, %.1f MB/s)",
		p.operation,
		utils.FormatFileSize(ev.BytesTransferred),
		utils.FormatFileSize(ev.TotalBytes),
		p.throughput()))
}

// Finish completes the bar if one was started
func (p *ProgressUI) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	fmt.Fprintln(p.out)
}

// Last returns the most recent event
func (p *ProgressUI) Last() types.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// throughput in MB/s since the first event, called with mu held
func (p *ProgressUI) throughput() float64 {
	elapsed := time.Since(p.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.last.BytesTransferred) / elapsed / (1024 * 1024)
}
