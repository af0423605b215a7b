// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/metrics"
	"github.com/autobrr/fetcharr/internal/models"
	"github.com/autobrr/fetcharr/internal/services/health"
)

// Searcher is the per-indexer query interface, satisfied by TorznabClient.
type Searcher interface {
	Search(ctx context.Context, indexer *models.Indexer, q Query) ([]*domain.Candidate, error)
}

// IndexerError records one indexer that failed during a fan-out.
type IndexerError struct {
	IndexerID int    `json:"indexerId"`
	Name      string `json:"name"`
	Err       string `json:"error"`
}

// Results is the aggregated outcome of fanning one query across all
// usable indexers. A slow or broken indexer never empties the result:
// whatever the others returned is kept.
type Results struct {
	Candidates []*domain.Candidate `json:"candidates"`
	Skipped    []string            `json:"skipped,omitempty"`
	Errors     []IndexerError      `json:"errors,omitempty"`
}

// Service fans a query out across enabled indexers with a bounded worker
// pool, gating each indexer through the health tracker and reporting every
// outcome back to it.
type Service struct {
	indexers *models.IndexerStore
	client   Searcher
	tracker  *health.Tracker
	workers  int
}

func NewService(indexers *models.IndexerStore, client Searcher, tracker *health.Tracker, workers int) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{indexers: indexers, client: client, tracker: tracker, workers: workers}
}

// Search queries every usable indexer concurrently. Per-indexer timeouts
// come from each indexer's configuration; an indexer blowing its timeout
// fails alone and feeds the health tracker, while the rest contribute.
func (s *Service) Search(ctx context.Context, q Query) (*Results, error) {
	indexers, err := s.indexers.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	res := &Results{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, indexer := range indexers {
		key := models.IntegrationKey{Kind: models.IntegrationKindIndexer, ID: indexer.ID}
		if !s.tracker.IsUsable(key) {
			mu.Lock()
			res.Skipped = append(res.Skipped, indexer.Name)
			mu.Unlock()
			log.Debug().Str("indexer", indexer.Name).Msg("Skipping rested indexer")
			continue
		}

		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(ctx, time.Duration(indexer.TimeoutSeconds)*time.Second)
			defer cancel()

			candidates, err := s.client.Search(reqCtx, indexer, q)
			if err != nil {
				metrics.IndexerErrorsTotal.WithLabelValues(indexer.Name).Inc()
				s.tracker.RecordFailure(ctx, key, err)
				mu.Lock()
				res.Errors = append(res.Errors, IndexerError{IndexerID: indexer.ID, Name: indexer.Name, Err: err.Error()})
				mu.Unlock()
				log.Warn().Err(err).Str("indexer", indexer.Name).Msg("Indexer search failed")
				return nil
			}

			s.tracker.RecordSuccess(ctx, key)
			mu.Lock()
			res.Candidates = append(res.Candidates, candidates...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("term", q.Term).
		Int("candidates", len(res.Candidates)).
		Int("failed", len(res.Errors)).
		Int("skipped", len(res.Skipped)).
		Msg("Search fan-out complete")

	return res, nil
}
