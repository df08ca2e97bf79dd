// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package ui

import (
	"context"

	"wormhole/internal/wormhole"
)

// InteractiveUI defines the interface for user interactions
type InteractiveUI interface {
	// ShowCode displays the code the receiver has to type
	ShowCode(code wormhole.Code)

	// InputCode prompts the user for the code announced by the sender
	InputCode(ctx context.Context) (wormhole.Code, error)

	// ShowMessage displays a message to the user
	ShowMessage(message string)

	// ShowText prints a received text message
	ShowText(text string)

	// NewProgress starts a progress display for one transfer
	NewProgress(operation string) *ProgressUI

	// ShowTransferSummary displays the result of a completed transfer
	ShowTransferSummary(summary Summary)
}
