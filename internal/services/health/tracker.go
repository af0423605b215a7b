// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package health tracks per-integration failure state and decides when a
// misbehaving indexer or download client should be rested.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/fetcharr/internal/models"
)

const (
	baseBackoff = 5 * time.Minute
	maxBackoff  = 24 * time.Hour

	// maxEscalation is the first level whose backoff hits maxBackoff
	// (5m doubled nine times exceeds 24h); levels past it are meaningless.
	maxEscalation = 10
)

// Backoff returns the rest period after the nth consecutive failure:
// 5m, 10m, 20m, ... capped at 24h.
func Backoff(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	d := baseBackoff
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// Tracker is the shared circuit breaker for all external integrations.
// State lives in memory behind per-key locks and every change is written
// through to the status store so restarts keep disabled integrations
// disabled.
type Tracker struct {
	store *models.IntegrationStatusStore

	mu    sync.Mutex
	state map[models.IntegrationKey]*models.IntegrationStatus

	// now is swapped in tests.
	now func() time.Time
}

func NewTracker(store *models.IntegrationStatusStore) *Tracker {
	return &Tracker{
		store: store,
		state: make(map[models.IntegrationKey]*models.IntegrationStatus),
		now:   time.Now,
	}
}

// SetNow overrides the tracker's clock. Test hook.
func (t *Tracker) SetNow(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Load primes the in-memory state from the store. Called once at startup.
func (t *Tracker) Load(ctx context.Context) error {
	statuses, err := t.store.List(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range statuses {
		t.state[s.Key] = s
	}
	return nil
}

func (t *Tracker) get(key models.IntegrationKey) *models.IntegrationStatus {
	s, ok := t.state[key]
	if !ok {
		s = &models.IntegrationStatus{Key: key}
		t.state[key] = s
	}
	return s
}

// RecordFailure escalates the integration one level and extends its rest
// period. A failure during the half-open probe window lands here too, so
// a still-broken integration backs off further instead of resetting.
func (t *Tracker) RecordFailure(ctx context.Context, key models.IntegrationKey, cause error) {
	now := t.now().UTC()

	t.mu.Lock()
	s := t.get(key)
	if s.InitialFailureAt == nil {
		at := now
		s.InitialFailureAt = &at
	}
	recent := now
	s.MostRecentFailureAt = &recent
	if s.EscalationLevel < maxEscalation {
		s.EscalationLevel++
	}
	till := now.Add(Backoff(s.EscalationLevel))
	s.DisabledTill = &till
	if cause != nil {
		s.LastError = cause.Error()
	}
	snapshot := *s
	t.mu.Unlock()

	log.Warn().
		Str("integration", key.String()).
		Int("escalationLevel", snapshot.EscalationLevel).
		Time("disabledTill", till).
		Err(cause).
		Msg("Integration failure recorded")

	if err := t.store.Upsert(ctx, &snapshot); err != nil {
		log.Error().Err(err).Str("integration", key.String()).Msg("Failed to persist integration status")
	}
}

// RecordSuccess clears all failure state for the integration. One good
// response closes the breaker completely.
func (t *Tracker) RecordSuccess(ctx context.Context, key models.IntegrationKey) {
	t.mu.Lock()
	s, ok := t.state[key]
	if !ok || s.EscalationLevel == 0 && s.DisabledTill == nil {
		t.mu.Unlock()
		return
	}
	s.InitialFailureAt = nil
	s.MostRecentFailureAt = nil
	s.EscalationLevel = 0
	s.DisabledTill = nil
	s.LastError = ""
	snapshot := *s
	t.mu.Unlock()

	log.Info().Str("integration", key.String()).Msg("Integration recovered")

	if err := t.store.Upsert(ctx, &snapshot); err != nil {
		log.Error().Err(err).Str("integration", key.String()).Msg("Failed to persist integration status")
	}
}

// IsUsable reports whether the integration may be contacted. Once the
// rest period elapses the integration is usable again for a probe; the
// probe's outcome either resets or re-extends the breaker.
func (t *Tracker) IsUsable(key models.IntegrationKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.state[key]
	if !ok || s.DisabledTill == nil {
		return true
	}
	return !t.now().UTC().Before(*s.DisabledTill)
}

// Status returns a copy of the current state for the integration.
func (t *Tracker) Status(key models.IntegrationKey) models.IntegrationStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.state[key]
	if !ok {
		return models.IntegrationStatus{Key: key}
	}
	return *s
}

// Statuses returns a snapshot of every tracked integration.
func (t *Tracker) Statuses() []models.IntegrationStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.IntegrationStatus, 0, len(t.state))
	for _, s := range t.state {
		out = append(out, *s)
	}
	return out
}
