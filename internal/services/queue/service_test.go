// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/fetcharr/internal/database"
	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/models"
	"github.com/autobrr/fetcharr/internal/services/health"
)

type fakeDownloader struct {
	grabErr   error
	transfer  *Transfer
	grabs     int
	removed   []string
	transfers int
}

func (f *fakeDownloader) Grab(context.Context, *domain.Candidate) (string, error) {
	f.grabs++
	if f.grabErr != nil {
		return "", f.grabErr
	}
	return "dl-1", nil
}

func (f *fakeDownloader) Transfer(context.Context, string) (*Transfer, error) {
	f.transfers++
	return f.transfer, nil
}

func (f *fakeDownloader) Remove(_ context.Context, id string, _ bool) error {
	f.removed = append(f.removed, id)
	return nil
}

type fixture struct {
	svc        *Service
	store      *models.QueueStore
	blocklist  *models.BlocklistStore
	history    *models.HistoryStore
	tracker    *health.Tracker
	downloader *fakeDownloader
	researches []int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		store:      models.NewQueueStore(db),
		blocklist:  models.NewBlocklistStore(db),
		history:    models.NewHistoryStore(db),
		tracker:    health.NewTracker(models.NewIntegrationStatusStore(db)),
		downloader: &fakeDownloader{},
	}
	factory := func(context.Context, int) (Downloader, error) { return f.downloader, nil }
	research := func(_ context.Context, mediaID int64, _ *int64) {
		f.researches = append(f.researches, mediaID)
	}
	f.svc = NewService(f.store, f.blocklist, f.history, f.tracker, factory, research)
	f.svc.retryDelay = time.Millisecond
	return f
}

func testCandidate() *domain.Candidate {
	return &domain.Candidate{
		Title:       "Show.S01E01.1080p.WEB-DL.H264-GRP",
		IndexerID:   2,
		Protocol:    domain.ProtocolTorrent,
		Size:        2 << 30,
		DownloadURL: "https://indexer.example/dl/1",
		QualityID:   domain.QualityWEBDL1080p,
	}
}

func TestEnqueueGrabsAndRecordsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.svc.Enqueue(ctx, 10, nil, testCandidate(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusDownloading, item.Status)
	assert.Equal(t, "dl-1", item.DownloadID)
	assert.Equal(t, 1, f.downloader.grabs)

	stored, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusDownloading, stored.Status)
	assert.Equal(t, "dl-1", stored.DownloadID)

	records, err := f.history.ListRecent(ctx, 10, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.HistoryEventGrabbed, records[0].EventType)
}

// A grab that exhausts its retries fails the item, blocklists the release,
// rests the download client, and triggers exactly one replacement search.
func TestEnqueueGrabFailure(t *testing.T) {
	f := newFixture(t)
	f.downloader.grabErr = errors.New("connection refused")
	ctx := context.Background()

	c := testCandidate()
	item, err := f.svc.Enqueue(ctx, 10, nil, c, 1)
	require.Error(t, err)
	assert.Equal(t, 3, f.downloader.grabs)

	stored, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "connection refused")

	blocked, err := f.blocklist.IsBlocked(ctx, c.Fingerprint())
	require.NoError(t, err)
	assert.True(t, blocked)

	assert.False(t, f.tracker.IsUsable(models.IntegrationKey{Kind: models.IntegrationKindDownloadClient, ID: 1}))
	// Client failures never punish the indexer.
	assert.True(t, f.tracker.IsUsable(models.IntegrationKey{Kind: models.IntegrationKindIndexer, ID: 2}))

	assert.Equal(t, []int64{10}, f.researches)

	records, err := f.history.ListRecent(ctx, 10, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.HistoryEventDownloadFailed, records[0].EventType)
}

func TestPollProgressAndCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.svc.Enqueue(ctx, 10, nil, testCandidate(), 1)
	require.NoError(t, err)

	f.downloader.transfer = &Transfer{State: TransferDownloading, Progress: 0.4, SizeRemaining: 1 << 30}
	require.NoError(t, f.svc.Poll(ctx))

	stored, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusDownloading, stored.Status)
	assert.InDelta(t, 0.4, stored.Progress, 1e-9)
	assert.Equal(t, int64(1<<30), stored.SizeRemaining)

	f.downloader.transfer = &Transfer{State: TransferCompleted, Progress: 1, SizeRemaining: 0}
	require.NoError(t, f.svc.Poll(ctx))

	stored, err = f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusCompleted, stored.Status)

	records, err := f.history.ListRecent(ctx, 10, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.HistoryEventImported, records[0].EventType)
}

// A transfer dying mid-download walks the failure path once; the second
// failure for the same target does not re-search again.
func TestPollTransferFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.svc.Enqueue(ctx, 10, nil, testCandidate(), 1)
	require.NoError(t, err)

	f.downloader.transfer = &Transfer{State: TransferFailed, Message: "torrent disappeared from client"}
	require.NoError(t, f.svc.Poll(ctx))

	stored, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, stored.Status)
	assert.Equal(t, []int64{10}, f.researches)

	// Terminal items are not polled again.
	polls := f.downloader.transfers
	require.NoError(t, f.svc.Poll(ctx))
	assert.Equal(t, polls, f.downloader.transfers)
}

// Zero-size content surfaces at import and is attributed to the indexer.
func TestImportFailureRestsIndexer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := testCandidate()
	c.Size = 0
	item, err := f.svc.Enqueue(ctx, 10, nil, c, 1)
	require.NoError(t, err)

	f.downloader.transfer = &Transfer{State: TransferCompleted, Progress: 1}
	require.NoError(t, f.svc.Poll(ctx))

	stored, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, stored.Status)

	assert.False(t, f.tracker.IsUsable(models.IntegrationKey{Kind: models.IntegrationKindIndexer, ID: 2}))
	assert.True(t, f.tracker.IsUsable(models.IntegrationKey{Kind: models.IntegrationKindDownloadClient, ID: 1}))

	records, err := f.history.ListRecent(ctx, 10, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.HistoryEventImportFailed, records[0].EventType)
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.svc.Enqueue(ctx, 10, nil, testCandidate(), 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.Pause(ctx, item.ID))
	stored, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPaused, stored.Status)

	// Pausing twice is an illegal transition.
	err = f.svc.Pause(ctx, item.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	require.NoError(t, f.svc.Resume(ctx, item.ID))
	stored, err = f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusDownloading, stored.Status)
}

func TestRemoveDeletesTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.svc.Enqueue(ctx, 10, nil, testCandidate(), 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.Remove(ctx, item.ID, true))
	assert.Equal(t, []string{"dl-1"}, f.downloader.removed)

	_, err = f.store.Get(ctx, item.ID)
	assert.ErrorIs(t, err, models.ErrQueueItemNotFound)
}
