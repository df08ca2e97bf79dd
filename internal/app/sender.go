package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wormhole/internal/config"
	"wormhole/internal/history"
	"wormhole/internal/logging"
	"wormhole/internal/processor"
	"wormhole/internal/transfer"
	"wormhole/internal/ui"
	"wormhole/internal/wormhole"
	"wormhole/pkg/types"
	"wormhole/pkg/utils"
)

// SenderOptions configures the sender application behavior. Exactly one of
// FilePath and Text must be set.
type SenderOptions struct {
	FilePath string
	Text     string
}

// SenderApp implements sender application logic
type SenderApp struct {
	config       *config.Config
	orchestrator *transfer.Orchestrator
	files        SourceOpener
	ui           ui.InteractiveUI
	history      HistoryRecorder
	log          logrus.FieldLogger
}

// NewSenderApp creates a new sender application. history may be nil.
func NewSenderApp(
	cfg *config.Config,
	orchestrator *transfer.Orchestrator,
	files SourceOpener,
	console ui.InteractiveUI,
	history HistoryRecorder,
	log logrus.FieldLogger,
) *SenderApp {
	return &SenderApp{
		config:       cfg,
		orchestrator: orchestrator,
		files:        files,
		ui:           console,
		history:      history,
		log:          logging.OrDefault(log),
	}
}

// Run sends one file or text message and blocks until the transfer ends
func (s *SenderApp) Run(ctx context.Context, opts *SenderOptions) (transfer.SendOutcome, error) {
	src, err := s.openSource(opts)
	if err != nil {
		return transfer.SendOutcome{}, err
	}

	meta := src.Metadata()
	if meta.Kind == types.KindText {
		s.ui.ShowMessage(fmt.Sprintf("Sending text message (%s)", utils.FormatFileSize(meta.Filesize)))
	} else {
		s.ui.ShowMessage(fmt.Sprintf("Sending %s file named '%s'", utils.FormatFileSize(meta.Filesize), meta.Filename))
	}

	started := time.Now()
	progress := s.ui.NewProgress("Sending")
	h := s.orchestrator.StartSend(ctx, src, progress.Update)

	var code wormhole.Code
	select {
	case code = <-h.Code():
		s.ui.ShowCode(code)
	case <-h.Done():
	}

	outcome, err := h.Wait()
	progress.Finish()
	if err == nil {
		code = outcome.Code
	}
	record(s.history, s.log, history.DirectionSent, code, meta, started, err)
	if err != nil {
		return outcome, fmt.Errorf("failed to send: %w", err)
	}

	s.ui.ShowTransferSummary(ui.Summary{
		Operation: "sent",
		Name:      meta.Filename,
		Bytes:     outcome.BytesSent,
		Elapsed:   time.Since(started),
	})
	return outcome, nil
}

// openSource fails before any network activity when the payload is unusable
func (s *SenderApp) openSource(opts *SenderOptions) (processor.Source, error) {
	transferCfg := s.config.Transfer()

	switch {
	case opts.FilePath != "" && opts.Text != "":
		return nil, errors.New("either a file or a text message can be sent, not both")
	case opts.Text != "":
		return processor.NewTextSource(opts.Text, transferCfg.ChunkSize), nil
	case opts.FilePath != "":
		src, err := s.files.OpenSource(opts.FilePath, transferCfg.ChunkSize, transferCfg.Checksum)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", opts.FilePath, err)
		}
		return src, nil
	default:
		return nil, errors.New("file path or text is required")
	}
}
