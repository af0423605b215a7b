// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package acquisition runs the full pipeline for one media target: fan the
// search out, pick the best candidate, then grab it now, park it for its
// delay window, or drop it.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/fetcharr/internal/metrics"
	"github.com/autobrr/fetcharr/internal/models"
	"github.com/autobrr/fetcharr/internal/services/decision"
	"github.com/autobrr/fetcharr/internal/services/delay"
	"github.com/autobrr/fetcharr/internal/services/queue"
	"github.com/autobrr/fetcharr/internal/services/search"
)

// Target is one search request: what to look for and which profile and
// current file to judge candidates against.
type Target struct {
	MediaID   int64             `json:"mediaId"`
	EpisodeID *int64            `json:"episodeId,omitempty"`
	Term      string            `json:"term"`
	Season    int               `json:"season,omitempty"`
	Episode   int               `json:"episode,omitempty"`
	ProfileID int               `json:"profileId"`
	Tags      []string          `json:"tags,omitempty"`
	Current   *decision.Current `json:"current,omitempty"`
}

// Outcome reports what the pipeline did with a target.
type Outcome struct {
	Search   *search.Results  `json:"search"`
	Decision *decision.Result `json:"decision"`
	// Action is "grabbed", "delayed", "dropped" or "none".
	Action    string `json:"action"`
	ReleaseAt string `json:"releaseAt,omitempty"`
}

// Service wires the pipeline stages together.
type Service struct {
	searcher  *search.Service
	queue     *queue.Service
	scheduler *delay.Scheduler

	qualityProfiles *models.QualityProfileStore
	customFormats   *models.CustomFormatStore
	delayProfiles   *models.DelayProfileStore
	blocklist       *models.BlocklistStore
	clients         *models.DownloadClientStore

	// targets remembers the request per media target so a failed download
	// can re-search without the caller's involvement. lastAction holds the
	// final pipeline action of the most recent search per key, so the
	// resync ticker only revisits targets that are still unsatisfied.
	mu         sync.Mutex
	targets    map[string]Target
	lastAction map[string]string
}

func NewService(searcher *search.Service, q *queue.Service, scheduler *delay.Scheduler,
	qualityProfiles *models.QualityProfileStore, customFormats *models.CustomFormatStore,
	delayProfiles *models.DelayProfileStore, blocklist *models.BlocklistStore,
	clients *models.DownloadClientStore,
) *Service {
	return &Service{
		searcher:        searcher,
		queue:           q,
		scheduler:       scheduler,
		qualityProfiles: qualityProfiles,
		customFormats:   customFormats,
		delayProfiles:   delayProfiles,
		blocklist:       blocklist,
		clients:         clients,
		targets:         make(map[string]Target),
		lastAction:      make(map[string]string),
	}
}

func targetKey(mediaID int64, episodeID *int64) string {
	if episodeID == nil {
		return fmt.Sprintf("%d", mediaID)
	}
	return fmt.Sprintf("%d:%d", mediaID, *episodeID)
}

// Search runs the pipeline for one target.
func (s *Service) Search(ctx context.Context, target Target) (*Outcome, error) {
	profile, err := s.qualityProfiles.Get(ctx, target.ProfileID)
	if err != nil {
		return nil, err
	}

	formats, err := s.customFormats.List(ctx)
	if err != nil {
		return nil, err
	}
	matcher, err := decision.NewMatcher(formats)
	if err != nil {
		return nil, fmt.Errorf("compile custom formats: %w", err)
	}

	blocked, err := s.blocklist.Fingerprints(ctx)
	if err != nil {
		return nil, err
	}

	key := targetKey(target.MediaID, target.EpisodeID)
	s.mu.Lock()
	s.targets[key] = target
	s.mu.Unlock()

	results, err := s.searcher.Search(ctx, search.Query{
		Term:    target.Term,
		Season:  target.Season,
		Episode: target.Episode,
	})
	if err != nil {
		return nil, err
	}

	engine := decision.NewEngine(matcher)
	result := engine.Evaluate(profile, target.Current, blocked, results.Candidates)

	outcome := &Outcome{Search: results, Decision: result, Action: "none"}
	if result.Accepted == nil {
		return s.finish(key, outcome), nil
	}

	delayProfiles, err := s.delayProfiles.List(ctx)
	if err != nil {
		return nil, err
	}
	verdict := delay.Evaluate(delay.SelectProfile(delayProfiles, target.Tags), profile, result.Accepted)

	switch verdict.Action {
	case delay.ActionDrop:
		outcome.Action = "dropped"
		log.Debug().Str("title", result.Accepted.Title).Str("reason", verdict.Reason).Msg("Dropped accepted release")

	case delay.ActionDelay:
		pending, err := s.scheduler.Hold(ctx, profile, target.MediaID, target.EpisodeID, target.Tags, result.Accepted, verdict.Wait, verdict.Reason)
		if err != nil {
			return nil, err
		}
		outcome.Action = "delayed"
		outcome.ReleaseAt = pending.ReleaseAt.Format(time.RFC3339)

	case delay.ActionGrab:
		if err := s.grab(ctx, target.MediaID, target.EpisodeID, result); err != nil {
			if errors.Is(err, errNoClient) {
				return nil, err
			}
			// The queue already blocklisted the release and kicked off the
			// replacement search, which recorded the target's latest action.
			// Report the failure without overwriting that record.
			outcome.Action = "failed"
			log.Warn().Err(err).Str("title", result.Accepted.Title).Msg("Grab failed")
			metrics.SearchesTotal.WithLabelValues(outcome.Action).Inc()
			return outcome, nil
		}
		outcome.Action = "grabbed"
		// A release parked in an earlier cycle is obsolete once the grab
		// lands; left behind it would be promoted into a second grab.
		if err := s.scheduler.Cancel(ctx, target.MediaID, target.EpisodeID); err != nil {
			log.Error().Err(err).Int64("mediaId", target.MediaID).Msg("Failed to cancel pending release after grab")
		}
	}

	return s.finish(key, outcome), nil
}

// finish records the outcome for the resync loop and the searches metric.
func (s *Service) finish(key string, outcome *Outcome) *Outcome {
	s.mu.Lock()
	s.lastAction[key] = outcome.Action
	s.mu.Unlock()
	metrics.SearchesTotal.WithLabelValues(outcome.Action).Inc()
	return outcome
}

// Resync re-runs every remembered target that is still unsatisfied: the
// last search found nothing acceptable, or the grab failed and no
// replacement has succeeded since.
func (s *Service) Resync(ctx context.Context) {
	s.mu.Lock()
	targets := make([]Target, 0, len(s.targets))
	for key, target := range s.targets {
		switch s.lastAction[key] {
		case "none", "failed", "":
			targets = append(targets, target)
		}
	}
	s.mu.Unlock()

	for _, target := range targets {
		if ctx.Err() != nil {
			return
		}
		outcome, err := s.Search(ctx, target)
		if err != nil {
			log.Error().Err(err).Int64("mediaId", target.MediaID).Msg("Scheduled search failed")
			continue
		}
		log.Debug().Int64("mediaId", target.MediaID).Str("action", outcome.Action).Msg("Scheduled search finished")
	}
}

// Run re-searches unsatisfied targets on a fixed interval until the
// context is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	log.Debug().Str("interval", interval.String()).Msg("Starting acquisition resync")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Acquisition resync stopped")
			return
		case <-ticker.C:
			s.Resync(ctx)
		}
	}
}

var errNoClient = errors.New("no download client configured")

// grab enqueues the accepted candidate on the first enabled download
// client.
func (s *Service) grab(ctx context.Context, mediaID int64, episodeID *int64, result *decision.Result) error {
	clients, err := s.clients.ListEnabled(ctx)
	if err != nil {
		return err
	}
	if len(clients) == 0 {
		return errNoClient
	}

	_, err = s.queue.Enqueue(ctx, mediaID, episodeID, result.Accepted, clients[0].ID)
	return err
}

// Promote satisfies delay.PromoteFunc: a due pending release goes straight
// to the queue.
func (s *Service) Promote(ctx context.Context, pending *models.PendingRelease) error {
	clients, err := s.clients.ListEnabled(ctx)
	if err != nil {
		return err
	}
	if len(clients) == 0 {
		return errNoClient
	}

	_, err = s.queue.Enqueue(ctx, pending.MediaID, pending.EpisodeID, &pending.Snapshot, clients[0].ID)
	return err
}

// Research satisfies queue.ResearchFunc: after a failed download the target
// is searched again, now with the failed release blocklisted.
func (s *Service) Research(ctx context.Context, mediaID int64, episodeID *int64) {
	s.mu.Lock()
	target, ok := s.targets[targetKey(mediaID, episodeID)]
	s.mu.Unlock()
	if !ok {
		log.Debug().Int64("mediaId", mediaID).Msg("No remembered target for re-search")
		return
	}

	outcome, err := s.Search(ctx, target)
	if err != nil {
		log.Error().Err(err).Int64("mediaId", mediaID).Msg("Replacement search failed")
		return
	}
	log.Info().Int64("mediaId", mediaID).Str("action", outcome.Action).Msg("Replacement search finished")
}
