// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/metrics"
	"github.com/autobrr/fetcharr/internal/models"
	"github.com/autobrr/fetcharr/internal/services/health"
)

// FailureStage attributes a failure to the integration that caused it.
type FailureStage int

const (
	// StageGrab and StageTransfer are download client failures.
	StageGrab FailureStage = iota
	StageTransfer
	// StageImport failures mean the release content itself was bad, which
	// is the indexer's fault, not the client's.
	StageImport
)

// ResearchFunc kicks off a replacement search for a failed target. Wired
// to the acquisition pipeline; the queue only guarantees it runs at most
// once per item.
type ResearchFunc func(ctx context.Context, mediaID int64, episodeID *int64)

// Service owns the download queue state machine. All writes to one item
// go through its per-item lock, so status transitions are single-writer
// on top of the store's guarded updates.
type Service struct {
	store     *models.QueueStore
	blocklist *models.BlocklistStore
	history   *models.HistoryStore
	tracker   *health.Tracker
	factory   DownloaderFactory
	research  ResearchFunc

	// retryDelay spaces grab attempts; shortened in tests.
	retryDelay time.Duration

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewService(store *models.QueueStore, blocklist *models.BlocklistStore, history *models.HistoryStore, tracker *health.Tracker, factory DownloaderFactory, research ResearchFunc) *Service {
	return &Service{
		store:      store,
		blocklist:  blocklist,
		history:    history,
		tracker:    tracker,
		factory:    factory,
		research:   research,
		retryDelay: 2 * time.Second,
		locks:      make(map[int64]*sync.Mutex),
	}
}

func (s *Service) lock(id int64) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Service) dropLock(id int64) {
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
}

// Enqueue creates a queue item for the candidate and sends it to the
// download client. A grab that keeps failing marks the item failed and
// walks the failure path immediately.
func (s *Service) Enqueue(ctx context.Context, mediaID int64, episodeID *int64, c *domain.Candidate, clientID int) (*models.QueueItem, error) {
	item, err := s.store.Create(ctx, &models.QueueItem{
		MediaID:   mediaID,
		EpisodeID: episodeID,
		Snapshot:  *c,
		Status:    models.QueueStatusQueued,
		ClientID:  clientID,
	})
	if err != nil {
		return nil, err
	}

	unlock := s.lock(item.ID)
	defer unlock()

	clientKey := models.IntegrationKey{Kind: models.IntegrationKindDownloadClient, ID: clientID}

	var downloadID string
	err = retry.Do(
		func() error {
			downloader, err := s.factory(ctx, clientID)
			if err != nil {
				return err
			}
			downloadID, err = downloader.Grab(ctx, c)
			return err
		},
		retry.Attempts(3),
		retry.Delay(s.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		metrics.GrabsTotal.WithLabelValues("failed").Inc()
		s.tracker.RecordFailure(ctx, clientKey, err)
		s.failLocked(ctx, item, StageGrab, err)
		return item, fmt.Errorf("grab %q: %w", c.Title, err)
	}

	metrics.GrabsTotal.WithLabelValues("success").Inc()
	s.tracker.RecordSuccess(ctx, clientKey)
	item.DownloadID = downloadID

	if err := s.store.SetDownloadID(ctx, item.ID, downloadID); err != nil {
		return item, err
	}
	if err := s.store.Transition(ctx, item.ID, models.QueueStatusQueued, models.QueueStatusDownloading); err != nil {
		return item, err
	}
	item.Status = models.QueueStatusDownloading

	if err := s.history.Add(ctx, &models.HistoryRecord{
		MediaID:   mediaID,
		EpisodeID: episodeID,
		EventType: models.HistoryEventGrabbed,
		Title:     c.Title,
		Data: map[string]string{
			"downloadId": downloadID,
			"protocol":   string(c.Protocol),
		},
	}); err != nil {
		log.Error().Err(err).Msg("Failed to record grab history")
	}

	log.Info().Str("title", c.Title).Int64("queueId", item.ID).Msg("Release sent to download client")
	return item, nil
}

// Pause moves a downloading item to paused. User action.
func (s *Service) Pause(ctx context.Context, id int64) error {
	unlock := s.lock(id)
	defer unlock()
	return s.store.Transition(ctx, id, models.QueueStatusDownloading, models.QueueStatusPaused)
}

// Resume moves a paused item back to downloading.
func (s *Service) Resume(ctx context.Context, id int64) error {
	unlock := s.lock(id)
	defer unlock()
	return s.store.Transition(ctx, id, models.QueueStatusPaused, models.QueueStatusDownloading)
}

// Remove deletes a queue item and, when requested, the transfer and its
// data on the download client.
func (s *Service) Remove(ctx context.Context, id int64, deleteData bool) error {
	unlock := s.lock(id)
	defer unlock()

	item, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if item.DownloadID != "" {
		downloader, err := s.factory(ctx, item.ClientID)
		if err == nil {
			if err := downloader.Remove(ctx, item.DownloadID, deleteData); err != nil {
				log.Warn().Err(err).Int64("queueId", id).Msg("Failed to remove transfer from client")
			}
		}
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.dropLock(id)
	return nil
}

// Poll refreshes every active item from its download client and advances
// the state machine: progress updates, completion through import, and the
// failure path for dead transfers.
func (s *Service) Poll(ctx context.Context) error {
	items, err := s.store.ListActive(ctx)
	if err != nil {
		return err
	}

	for _, item := range items {
		if item.Status != models.QueueStatusDownloading && item.Status != models.QueueStatusImporting {
			continue
		}
		s.pollItem(ctx, item)
	}
	return nil
}

func (s *Service) pollItem(ctx context.Context, item *models.QueueItem) {
	unlock := s.lock(item.ID)
	defer unlock()

	clientKey := models.IntegrationKey{Kind: models.IntegrationKindDownloadClient, ID: item.ClientID}

	if item.Status == models.QueueStatusImporting {
		s.completeImport(ctx, item)
		return
	}

	downloader, err := s.factory(ctx, item.ClientID)
	if err != nil {
		s.tracker.RecordFailure(ctx, clientKey, err)
		return
	}

	transfer, err := downloader.Transfer(ctx, item.DownloadID)
	if err != nil {
		// Transient client trouble rests the client but leaves the item
		// alone; the transfer may still be fine.
		s.tracker.RecordFailure(ctx, clientKey, err)
		return
	}
	s.tracker.RecordSuccess(ctx, clientKey)

	switch transfer.State {
	case TransferDownloading, TransferPaused:
		if err := s.store.UpdateProgress(ctx, item.ID, transfer.Progress, transfer.SizeRemaining); err != nil {
			log.Error().Err(err).Int64("queueId", item.ID).Msg("Failed to update progress")
		}
	case TransferCompleted:
		if err := s.store.Transition(ctx, item.ID, models.QueueStatusDownloading, models.QueueStatusImporting); err != nil {
			if !errors.Is(err, models.ErrInvalidTransition) {
				log.Error().Err(err).Int64("queueId", item.ID).Msg("Failed to start import")
			}
			return
		}
		item.Status = models.QueueStatusImporting
		s.completeImport(ctx, item)
	case TransferFailed:
		cause := errors.New(transfer.Message)
		s.failLocked(ctx, item, StageTransfer, cause)
	}
}

// completeImport finishes the import step. Content problems surface here
// and are attributed to the indexer that served the release.
func (s *Service) completeImport(ctx context.Context, item *models.QueueItem) {
	if err := s.verifyContent(item); err != nil {
		metrics.ImportsTotal.WithLabelValues("failed").Inc()
		s.failLocked(ctx, item, StageImport, err)
		return
	}

	if err := s.store.Transition(ctx, item.ID, models.QueueStatusImporting, models.QueueStatusCompleted); err != nil {
		if !errors.Is(err, models.ErrInvalidTransition) {
			log.Error().Err(err).Int64("queueId", item.ID).Msg("Failed to complete import")
		}
		return
	}

	if err := s.history.Add(ctx, &models.HistoryRecord{
		MediaID:   item.MediaID,
		EpisodeID: item.EpisodeID,
		EventType: models.HistoryEventImported,
		Title:     item.Snapshot.Title,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to record import history")
	}

	metrics.ImportsTotal.WithLabelValues("success").Inc()
	s.dropLock(item.ID)
	log.Info().Str("title", item.Snapshot.Title).Int64("queueId", item.ID).Msg("Import complete")
}

// verifyContent rejects releases whose payload cannot be what the grab
// promised. A transfer that finished with nothing left but reported no
// size at all never contained the episode.
func (s *Service) verifyContent(item *models.QueueItem) error {
	if item.Snapshot.Size == 0 {
		return errors.New("release reported no content")
	}
	return nil
}

// failLocked walks the failure path: mark failed, blocklist the release,
// write history, and trigger at most one replacement search. Caller holds
// the item lock.
func (s *Service) failLocked(ctx context.Context, item *models.QueueItem, stage FailureStage, cause error) {
	if err := s.store.Transition(ctx, item.ID, item.Status, models.QueueStatusFailed); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return
		}
		log.Error().Err(err).Int64("queueId", item.ID).Msg("Failed to mark queue item failed")
		return
	}
	item.Status = models.QueueStatusFailed

	if cause != nil {
		if err := s.store.SetError(ctx, item.ID, cause.Error()); err != nil {
			log.Error().Err(err).Int64("queueId", item.ID).Msg("Failed to record queue error")
		}
	}

	if err := s.blocklist.Add(ctx, &models.BlocklistEntry{
		Fingerprint: item.Snapshot.Fingerprint(),
		MediaID:     item.MediaID,
		IndexerID:   item.Snapshot.IndexerID,
		Protocol:    item.Snapshot.Protocol,
		Title:       item.Snapshot.Title,
		Reason:      failureReason(stage, cause),
	}); err != nil {
		log.Error().Err(err).Msg("Failed to blocklist release")
	}

	eventType := models.HistoryEventDownloadFailed
	if stage == StageImport {
		eventType = models.HistoryEventImportFailed
		// Bad content is the indexer's doing.
		s.tracker.RecordFailure(ctx, models.IntegrationKey{
			Kind: models.IntegrationKindIndexer,
			ID:   item.Snapshot.IndexerID,
		}, cause)
	}

	if err := s.history.Add(ctx, &models.HistoryRecord{
		MediaID:   item.MediaID,
		EpisodeID: item.EpisodeID,
		EventType: eventType,
		Title:     item.Snapshot.Title,
		Data:      map[string]string{"reason": failureReason(stage, cause)},
	}); err != nil {
		log.Error().Err(err).Msg("Failed to record failure history")
	}

	log.Warn().
		Str("title", item.Snapshot.Title).
		Int64("queueId", item.ID).
		Err(cause).
		Msg("Download failed; release blocklisted")

	if s.research == nil {
		return
	}
	first, err := s.store.MarkRetried(ctx, item.ID)
	if err != nil {
		log.Error().Err(err).Int64("queueId", item.ID).Msg("Failed to mark retry")
		return
	}
	if first {
		s.research(ctx, item.MediaID, item.EpisodeID)
	}
}

func failureReason(stage FailureStage, cause error) string {
	prefix := "download failed"
	switch stage {
	case StageGrab:
		prefix = "grab failed"
	case StageImport:
		prefix = "import failed"
	}
	if cause == nil {
		return prefix
	}
	return prefix + ": " + cause.Error()
}

// Run polls the queue until the context is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Queue poller started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Queue poller stopped")
			return
		case <-ticker.C:
			if err := s.Poll(ctx); err != nil {
				log.Error().Err(err).Msg("Queue poll failed")
			}
		}
	}
}
