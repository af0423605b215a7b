// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/fetcharr/internal/database"
	"github.com/autobrr/fetcharr/internal/models"
)

func newTestTracker(t *testing.T) (*Tracker, *time.Time) {
	t.Helper()

	db, err := database.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(models.NewIntegrationStatusStore(db))
	tracker.now = func() time.Time { return now }
	return tracker, &now
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{failures: 0, want: 0},
		{failures: 1, want: 5 * time.Minute},
		{failures: 2, want: 10 * time.Minute},
		{failures: 3, want: 20 * time.Minute},
		{failures: 6, want: 160 * time.Minute},
		{failures: 9, want: 1280 * time.Minute},
		{failures: 10, want: 24 * time.Hour},
		{failures: 50, want: 24 * time.Hour},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.failures), "failures=%d", tt.failures)
	}
}

func TestTrackerEscalation(t *testing.T) {
	tracker, now := newTestTracker(t)
	ctx := context.Background()
	key := models.IntegrationKey{Kind: models.IntegrationKindIndexer, ID: 1}

	require.True(t, tracker.IsUsable(key))

	// First failure rests the indexer for 5 minutes.
	tracker.RecordFailure(ctx, key, errors.New("timeout"))
	assert.False(t, tracker.IsUsable(key))

	status := tracker.Status(key)
	assert.Equal(t, 1, status.EscalationLevel)
	require.NotNil(t, status.DisabledTill)
	assert.Equal(t, now.Add(5*time.Minute), *status.DisabledTill)
	require.NotNil(t, status.InitialFailureAt)
	assert.Equal(t, *now, *status.InitialFailureAt)

	// Rest period elapses; a probe is allowed and fails, doubling the rest.
	*now = now.Add(5 * time.Minute)
	require.True(t, tracker.IsUsable(key))
	tracker.RecordFailure(ctx, key, errors.New("timeout"))

	status = tracker.Status(key)
	assert.Equal(t, 2, status.EscalationLevel)
	assert.Equal(t, now.Add(10*time.Minute), *status.DisabledTill)
	// Initial failure timestamp is kept from the first incident.
	assert.Equal(t, now.Add(-5*time.Minute), *status.InitialFailureAt)

	// One success closes the breaker entirely.
	*now = now.Add(10 * time.Minute)
	tracker.RecordSuccess(ctx, key)

	assert.True(t, tracker.IsUsable(key))
	status = tracker.Status(key)
	assert.Zero(t, status.EscalationLevel)
	assert.Nil(t, status.DisabledTill)
	assert.Nil(t, status.InitialFailureAt)

	// The next failure starts from level one again.
	tracker.RecordFailure(ctx, key, errors.New("timeout"))
	status = tracker.Status(key)
	assert.Equal(t, 1, status.EscalationLevel)
	assert.Equal(t, now.Add(5*time.Minute), *status.DisabledTill)
}

func TestTrackerBackoffCapsAtOneDay(t *testing.T) {
	tracker, now := newTestTracker(t)
	ctx := context.Background()
	key := models.IntegrationKey{Kind: models.IntegrationKindDownloadClient, ID: 7}

	for i := 0; i < 15; i++ {
		tracker.RecordFailure(ctx, key, errors.New("connection refused"))
	}

	status := tracker.Status(key)
	// The level stops climbing once the backoff saturates.
	assert.Equal(t, 10, status.EscalationLevel)
	assert.Equal(t, now.Add(24*time.Hour), *status.DisabledTill)
}

func TestTrackerPersistsAcrossRestart(t *testing.T) {
	db, err := database.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := models.NewIntegrationStatusStore(db)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	key := models.IntegrationKey{Kind: models.IntegrationKindIndexer, ID: 3}

	tracker := NewTracker(store)
	tracker.now = func() time.Time { return now }
	tracker.RecordFailure(ctx, key, errors.New("http 500"))
	tracker.RecordFailure(ctx, key, errors.New("http 500"))

	// A fresh tracker over the same store sees the disabled state.
	restarted := NewTracker(store)
	restarted.now = func() time.Time { return now }
	require.NoError(t, restarted.Load(ctx))

	assert.False(t, restarted.IsUsable(key))
	status := restarted.Status(key)
	assert.Equal(t, 2, status.EscalationLevel)
	assert.Equal(t, "http 500", status.LastError)
}

func TestTrackerUnknownIntegrationIsUsable(t *testing.T) {
	tracker, _ := newTestTracker(t)
	assert.True(t, tracker.IsUsable(models.IntegrationKey{Kind: models.IntegrationKindIndexer, ID: 99}))
}
