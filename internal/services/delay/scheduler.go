// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package delay

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/metrics"
	"github.com/autobrr/fetcharr/internal/models"
	"github.com/autobrr/fetcharr/internal/services/decision"
)

// PromoteFunc hands a due pending release to the queue. The row is already
// claimed when this runs; a returned error is logged, not retried, since
// the next search cycle will surface the release again.
type PromoteFunc func(ctx context.Context, pending *models.PendingRelease) error

// Scheduler owns the pending release table: it parks delayed candidates,
// supersedes parked snapshots when better releases appear, and promotes
// rows whose wait has elapsed or whose snapshot now clears a bypass
// condition under current profile state.
type Scheduler struct {
	pending         *models.PendingReleaseStore
	delayProfiles   *models.DelayProfileStore
	qualityProfiles *models.QualityProfileStore
	promote         PromoteFunc
	interval        time.Duration

	// now is swapped in tests.
	now func() time.Time
}

func NewScheduler(pending *models.PendingReleaseStore, delayProfiles *models.DelayProfileStore,
	qualityProfiles *models.QualityProfileStore, promote PromoteFunc, interval time.Duration,
) *Scheduler {
	return &Scheduler{
		pending:         pending,
		delayProfiles:   delayProfiles,
		qualityProfiles: qualityProfiles,
		promote:         promote,
		interval:        interval,
		now:             time.Now,
	}
}

// SetNow overrides the scheduler's clock. Test hook.
func (s *Scheduler) SetNow(now func() time.Time) {
	s.now = now
}

// Hold parks an accepted candidate for its delay window. If the target
// already has a pending row, the snapshot is replaced only when the new
// candidate compares better under the quality profile; the original timer
// keeps running either way, so improvements never push the grab out.
func (s *Scheduler) Hold(ctx context.Context, qualityProfile *models.QualityProfile, mediaID int64, episodeID *int64, tags []string, c *domain.Candidate, wait time.Duration, reason string) (*models.PendingRelease, error) {
	existing, err := s.pending.GetByTarget(ctx, mediaID, episodeID)
	if err != nil && !errors.Is(err, models.ErrPendingReleaseNotFound) {
		return nil, err
	}

	if existing != nil {
		if decision.Compare(qualityProfile, c, &existing.Snapshot) < 0 {
			if err := s.pending.ReplaceSnapshot(ctx, existing.ID, *c); err != nil {
				return nil, err
			}
			existing.Snapshot = *c
			log.Debug().Int64("mediaId", mediaID).Str("title", c.Title).Msg("Superseded pending release")
		}
		return existing, nil
	}

	now := s.now().UTC()
	pending := &models.PendingRelease{
		MediaID:   mediaID,
		EpisodeID: episodeID,
		ProfileID: qualityProfile.ID,
		Tags:      tags,
		Snapshot:  *c,
		AddedAt:   now,
		ReleaseAt: now.Add(wait),
		Reason:    reason,
	}
	if _, err := s.pending.Create(ctx, pending); err != nil {
		return nil, err
	}

	log.Debug().
		Int64("mediaId", mediaID).
		Str("title", c.Title).
		Time("releaseAt", pending.ReleaseAt).
		Msg("Parked release for delay")
	return pending, nil
}

// Tick promotes every pending release whose wait has elapsed, plus any row
// whose snapshot now passes the delay policy outright, so a bypass enabled
// after parking takes effect without waiting out the timer. Each row is
// claimed before promotion, so overlapping ticks hand a release to the
// queue exactly once. Returns how many rows this call promoted.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	pendings, err := s.pending.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(pendings) == 0 {
		return 0, nil
	}

	profiles, err := s.delayProfiles.List(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	promoted := 0
	for _, pending := range pendings {
		if now.Before(pending.ReleaseAt) && !s.bypassed(ctx, profiles, pending) {
			continue
		}

		won, err := s.pending.Claim(ctx, pending.ID)
		if err != nil {
			return promoted, err
		}
		if !won {
			continue
		}

		if err := s.promote(ctx, pending); err != nil {
			log.Error().Err(err).Int64("mediaId", pending.MediaID).Str("title", pending.Snapshot.Title).Msg("Failed to promote pending release")
			continue
		}
		metrics.PendingPromotionsTotal.Inc()
		promoted++
	}
	return promoted, nil
}

// bypassed re-evaluates a parked snapshot against current profile state.
// A missing quality profile keeps the row on its timer.
func (s *Scheduler) bypassed(ctx context.Context, profiles []*models.DelayProfile, pending *models.PendingRelease) bool {
	qualityProfile, err := s.qualityProfiles.Get(ctx, pending.ProfileID)
	if err != nil {
		return false
	}
	verdict := Evaluate(SelectProfile(profiles, pending.Tags), qualityProfile, &pending.Snapshot)
	return verdict.Action == ActionGrab
}

// Cancel drops the pending row for a target, if any. A direct grab calls
// this so the parked release cannot later be promoted on top of it.
func (s *Scheduler) Cancel(ctx context.Context, mediaID int64, episodeID *int64) error {
	pending, err := s.pending.GetByTarget(ctx, mediaID, episodeID)
	if errors.Is(err, models.ErrPendingReleaseNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	won, err := s.pending.Claim(ctx, pending.ID)
	if err != nil {
		return err
	}
	if won {
		log.Debug().Int64("mediaId", mediaID).Str("title", pending.Snapshot.Title).Msg("Cancelled pending release")
	}
	return nil
}

// Run ticks the scheduler until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("Pending release scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Pending release scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				log.Error().Err(err).Msg("Pending release tick failed")
			}
		}
	}
}
