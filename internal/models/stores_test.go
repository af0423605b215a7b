// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/fetcharr/internal/database"
	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/models"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return db
}

func TestQualityProfileValidation(t *testing.T) {
	tests := []struct {
		name      string
		profile   models.QualityProfile
		wantField string
	}{
		{
			name: "valid profile",
			profile: models.QualityProfile{
				Name:            "HD",
				CutoffQualityID: domain.QualityWEBDL1080p,
				Items: []models.ProfileItem{
					{QualityID: domain.QualityWEBDL1080p, Allowed: true},
				},
			},
		},
		{
			name: "empty name",
			profile: models.QualityProfile{
				CutoffQualityID: domain.QualityWEBDL1080p,
				Items: []models.ProfileItem{
					{QualityID: domain.QualityWEBDL1080p, Allowed: true},
				},
			},
			wantField: "name",
		},
		{
			name:      "no items",
			profile:   models.QualityProfile{Name: "empty"},
			wantField: "items",
		},
		{
			name: "unknown quality id",
			profile: models.QualityProfile{
				Name:            "bad",
				CutoffQualityID: 999,
				Items:           []models.ProfileItem{{QualityID: 999, Allowed: true}},
			},
			wantField: "items",
		},
		{
			name: "duplicate quality",
			profile: models.QualityProfile{
				Name:            "dup",
				CutoffQualityID: domain.QualityHDTV720p,
				Items: []models.ProfileItem{
					{QualityID: domain.QualityHDTV720p, Allowed: true},
					{QualityID: domain.QualityHDTV720p, Allowed: true},
				},
			},
			wantField: "items",
		},
		{
			name: "cutoff not an allowed item",
			profile: models.QualityProfile{
				Name:            "bad cutoff",
				CutoffQualityID: domain.QualityBluray2160p,
				Items: []models.ProfileItem{
					{QualityID: domain.QualityWEBDL1080p, Allowed: true},
					{QualityID: domain.QualityBluray2160p, Allowed: false},
				},
			},
			wantField: "cutoffQualityId",
		},
		{
			name: "cutoff format score below minimum",
			profile: models.QualityProfile{
				Name:              "scores",
				CutoffQualityID:   domain.QualityWEBDL1080p,
				MinFormatScore:    10,
				CutoffFormatScore: 5,
				Items: []models.ProfileItem{
					{QualityID: domain.QualityWEBDL1080p, Allowed: true},
				},
			},
			wantField: "cutoffFormatScore",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestQualityProfileRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := models.NewQualityProfileStore(db)
	ctx := context.Background()

	profile, err := store.Create(ctx, &models.QualityProfile{
		Name:              "HD-1080p",
		UpgradeAllowed:    true,
		CutoffQualityID:   domain.QualityBluray1080p,
		MinFormatScore:    0,
		CutoffFormatScore: 100,
		Items: []models.ProfileItem{
			{QualityID: domain.QualityBluray1080p, Allowed: true},
			{QualityID: domain.QualityWEBDL1080p, Allowed: true},
			{QualityID: domain.QualitySDTV, Allowed: false},
		},
		FormatScores: map[int]int{3: 25},
	})
	require.NoError(t, err)
	require.NotZero(t, profile.ID)

	got, err := store.Get(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.Name, got.Name)
	assert.Equal(t, profile.Items, got.Items)
	assert.Equal(t, map[int]int{3: 25}, got.FormatScores)
}

func TestQueueTransitionLegality(t *testing.T) {
	tests := []struct {
		from, to models.QueueStatus
		allowed  bool
	}{
		{models.QueueStatusQueued, models.QueueStatusDownloading, true},
		{models.QueueStatusQueued, models.QueueStatusFailed, true},
		{models.QueueStatusQueued, models.QueueStatusCompleted, false},
		{models.QueueStatusDownloading, models.QueueStatusPaused, true},
		{models.QueueStatusDownloading, models.QueueStatusImporting, true},
		{models.QueueStatusPaused, models.QueueStatusDownloading, true},
		{models.QueueStatusPaused, models.QueueStatusImporting, false},
		{models.QueueStatusImporting, models.QueueStatusCompleted, true},
		{models.QueueStatusCompleted, models.QueueStatusDownloading, false},
		{models.QueueStatusFailed, models.QueueStatusQueued, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, models.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestQueueTransitionGuardsAgainstRaces(t *testing.T) {
	db := openTestDB(t)
	store := models.NewQueueStore(db)
	ctx := context.Background()

	item, err := store.Create(ctx, &models.QueueItem{
		MediaID:  1,
		Snapshot: domain.Candidate{Title: "Show.S01E01.1080p.WEB.H264-GRP"},
		Status:   models.QueueStatusQueued,
		ClientID: 1,
	})
	require.NoError(t, err)

	require.NoError(t, store.Transition(ctx, item.ID, models.QueueStatusQueued, models.QueueStatusDownloading))

	// The row already left queued, so a second writer assuming the old
	// status loses.
	err = store.Transition(ctx, item.ID, models.QueueStatusQueued, models.QueueStatusDownloading)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestPendingReleaseClaimExactlyOnce(t *testing.T) {
	db := openTestDB(t)
	store := models.NewPendingReleaseStore(db)
	ctx := context.Background()

	pending, err := store.Create(ctx, &models.PendingRelease{
		MediaID:   7,
		Snapshot:  domain.Candidate{Title: "Show.S01E01.1080p.WEB.H264-GRP"},
		AddedAt:   time.Now().UTC(),
		ReleaseAt: time.Now().UTC().Add(-time.Minute),
		Reason:    "torrent delay",
	})
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := store.Claim(ctx, pending.ID)
			assert.NoError(t, err)
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	_, err = store.GetByTarget(ctx, 7, nil)
	require.ErrorIs(t, err, models.ErrPendingReleaseNotFound)
}

func TestBlocklistAddIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	store := models.NewBlocklistStore(db)
	ctx := context.Background()

	entry := &models.BlocklistEntry{
		MediaID:   3,
		IndexerID: 2,
		Protocol:  domain.ProtocolTorrent,
		Title:     "Show.S01E01.1080p.WEB.H264-GRP",
		Reason:    "download failed",
	}

	require.NoError(t, store.Add(ctx, entry))
	require.NoError(t, store.Add(ctx, entry))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	blocked, err := store.IsBlocked(ctx, domain.ReleaseFingerprint(2, domain.ProtocolTorrent, entry.Title))
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestIntegrationStatusUpsertRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := models.NewIntegrationStatusStore(db)
	ctx := context.Background()

	key := models.IntegrationKey{Kind: models.IntegrationKindIndexer, ID: 4}
	failedAt := time.Now().UTC().Truncate(time.Second)
	disabledTill := failedAt.Add(5 * time.Minute)

	require.NoError(t, store.Upsert(ctx, &models.IntegrationStatus{
		Key:                 key,
		InitialFailureAt:    &failedAt,
		MostRecentFailureAt: &failedAt,
		EscalationLevel:     1,
		DisabledTill:        &disabledTill,
		LastError:           "connection refused",
	}))

	// Second upsert with a deeper escalation overwrites in place.
	require.NoError(t, store.Upsert(ctx, &models.IntegrationStatus{
		Key:                 key,
		InitialFailureAt:    &failedAt,
		MostRecentFailureAt: &disabledTill,
		EscalationLevel:     2,
		DisabledTill:        &disabledTill,
		LastError:           "timeout",
	}))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, got.EscalationLevel)
	assert.Equal(t, "timeout", got.LastError)
	require.NotNil(t, got.InitialFailureAt)
	assert.Equal(t, failedAt, got.InitialFailureAt.UTC())

	statuses, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, key, statuses[0].Key)
}

func TestHistoryListRecentOrdersNewestFirst(t *testing.T) {
	db := openTestDB(t)
	store := models.NewHistoryStore(db)
	ctx := context.Background()

	for _, event := range []models.HistoryEventType{
		models.HistoryEventGrabbed,
		models.HistoryEventDownloadFailed,
		models.HistoryEventGrabbed,
	} {
		require.NoError(t, store.Add(ctx, &models.HistoryRecord{
			MediaID:   9,
			EventType: event,
			Title:     "Show.S01E01.1080p.WEB.H264-GRP",
		}))
	}

	records, err := store.ListRecent(ctx, 9, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.HistoryEventGrabbed, records[0].EventType)
}
