package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wormhole/internal/config"
	"wormhole/internal/history"
	"wormhole/internal/logging"
	"wormhole/internal/transfer"
	"wormhole/internal/ui"
	"wormhole/internal/wormhole"
	"wormhole/pkg/types"
	"wormhole/pkg/utils"
)

// ReceiverOptions configures the receiver application behavior
type ReceiverOptions struct {
	Code      string // prompted for when empty
	DestPath  string // destination directory, current directory when empty
	Overwrite bool
}

// ReceiverApp implements receiver application logic
type ReceiverApp struct {
	config       *config.Config
	orchestrator *transfer.Orchestrator
	files        ResultWriter
	ui           ui.InteractiveUI
	history      HistoryRecorder
	log          logrus.FieldLogger
}

// NewReceiverApp creates a new receiver application. history may be nil.
func NewReceiverApp(
	cfg *config.Config,
	orchestrator *transfer.Orchestrator,
	files ResultWriter,
	console ui.InteractiveUI,
	history HistoryRecorder,
	log logrus.FieldLogger,
) *ReceiverApp {
	return &ReceiverApp{
		config:       cfg,
		orchestrator: orchestrator,
		files:        files,
		ui:           console,
		history:      history,
		log:          logging.OrDefault(log),
	}
}

// Run receives one payload. Files are written to the destination directory,
// text is printed.
func (r *ReceiverApp) Run(ctx context.Context, opts *ReceiverOptions) (*types.TransferResult, error) {
	destDir, err := utils.ResolveDestinationDir(opts.DestPath)
	if err != nil {
		return nil, err
	}

	code, err := r.code(ctx, opts.Code)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	progress := r.ui.NewProgress("Receiving")
	// Refuse before the sender is told the transfer succeeded
	accept := func(meta types.TransferMetadata) error {
		if meta.Kind == types.KindText {
			return nil
		}
		_, err := r.files.CheckDestination(destDir, meta.Filename, opts.Overwrite)
		return err
	}

	result, err := r.orchestrator.StartReceive(ctx, code, progress.Update, transfer.WithAccept(accept)).Wait()
	progress.Finish()
	if err != nil {
		record(r.history, r.log, history.DirectionReceived, code, types.TransferMetadata{}, started, err)
		return nil, fmt.Errorf("failed to receive: %w", err)
	}

	meta := types.TransferMetadata{
		Filename: result.Filename,
		Filesize: result.Filesize,
		Kind:     result.Kind,
	}

	var path string
	if result.Kind == types.KindText {
		r.ui.ShowText(result.Text())
	} else {
		path, err = r.files.WriteResult(destDir, result, opts.Overwrite)
		if err != nil {
			record(r.history, r.log, history.DirectionReceived, code, meta, started, err)
			return nil, fmt.Errorf("failed to save received file: %w", err)
		}
	}
	record(r.history, r.log, history.DirectionReceived, code, meta, started, nil)

	r.ui.ShowTransferSummary(ui.Summary{
		Operation: "received",
		Name:      result.Filename,
		Bytes:     result.Filesize,
		Elapsed:   time.Since(started),
		Path:      path,
	})
	return result, nil
}

func (r *ReceiverApp) code(ctx context.Context, input string) (wormhole.Code, error) {
	if input == "" {
		return r.ui.InputCode(ctx)
	}
	return wormhole.ParseCode(input)
}
