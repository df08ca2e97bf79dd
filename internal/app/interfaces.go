// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package app

import (
	"wormhole/internal/history"
	"wormhole/internal/processor"
	"wormhole/pkg/types"
)

// SourceOpener opens the file a sender offers
type SourceOpener interface {
	OpenSource(path string, chunkSize int, checksum bool) (processor.Source, error)
}

// ResultWriter stores a received file under a destination directory
type ResultWriter interface {
	CheckDestination(destDir, name string, overwrite bool) (string, error)
	WriteResult(destDir string, result *types.TransferResult, overwrite bool) (string, error)
}

// HistoryRecorder keeps a log of finished transfers
type HistoryRecorder interface {
	Record(e history.Entry) (history.Entry, error)
}
