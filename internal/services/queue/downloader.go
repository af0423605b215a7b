// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package queue drives accepted releases through the download lifecycle:
// grab, transfer, import, and the failure path that blocklists and
// re-searches.
package queue

import (
	"context"

	"github.com/autobrr/fetcharr/internal/domain"
)

// TransferState is the downloader-side view of one transfer, normalized
// across client implementations.
type TransferState string

const (
	TransferDownloading TransferState = "downloading"
	TransferPaused      TransferState = "paused"
	TransferCompleted   TransferState = "completed"
	TransferFailed      TransferState = "failed"
)

// Transfer is a progress snapshot for one download.
type Transfer struct {
	State         TransferState
	Progress      float64
	SizeRemaining int64
	Message       string
}

// Downloader is the adapter a download client implementation satisfies.
// Grab returns an opaque download ID the adapter can resolve later.
type Downloader interface {
	Grab(ctx context.Context, c *domain.Candidate) (string, error)
	Transfer(ctx context.Context, downloadID string) (*Transfer, error)
	Remove(ctx context.Context, downloadID string, deleteFiles bool) error
}

// DownloaderFactory resolves the adapter for a configured client row.
type DownloaderFactory func(ctx context.Context, clientID int) (Downloader, error)
