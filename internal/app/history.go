package app

import (
	"time"

	"github.com/sirupsen/logrus"

	"wormhole/internal/history"
	"wormhole/internal/transfer"
	"wormhole/internal/wormhole"
	"wormhole/pkg/types"
)

// record adds a history entry when a recorder is configured. Failures are
// logged, never returned: the transfer itself already finished.
func record(recorder HistoryRecorder, log logrus.FieldLogger, dir history.Direction, code wormhole.Code,
	meta types.TransferMetadata, started time.Time, err error) {
	if recorder == nil {
		return
	}

	entry := history.Entry{
		Direction: dir,
		Nameplate: code.Nameplate(),
		Filename:  meta.Filename,
		Kind:      string(meta.Kind),
		Size:      meta.Filesize,
		Outcome:   "completed",
		StartedAt: started,
	}
	if err != nil {
		entry.Outcome = "aborted"
		entry.Reason = string(transfer.ReasonOf(err))
		if entry.Reason == "" {
			entry.Reason = err.Error()
		}
	}

	if _, recErr := recorder.Record(entry); recErr != nil {
		log.WithError(recErr).Warn("Failed to record transfer history")
	}
}
