// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/autobrr/fetcharr/internal/dbinterface"
	"github.com/autobrr/fetcharr/internal/domain"
)

var (
	ErrQueueItemNotFound = errors.New("queue item not found")
	// ErrInvalidTransition is returned when a status change is not legal
	// from the item's current state.
	ErrInvalidTransition = errors.New("invalid queue status transition")
)

// QueueStatus is the lifecycle state of an in-flight download.
type QueueStatus string

const (
	QueueStatusQueued      QueueStatus = "queued"
	QueueStatusDownloading QueueStatus = "downloading"
	QueueStatusPaused      QueueStatus = "paused"
	QueueStatusImporting   QueueStatus = "importing"
	QueueStatusCompleted   QueueStatus = "completed"
	QueueStatusFailed      QueueStatus = "failed"
)

// queueTransitions defines the legal edges of the state machine.
// completed and failed are terminal.
var queueTransitions = map[QueueStatus][]QueueStatus{
	QueueStatusQueued:      {QueueStatusDownloading, QueueStatusFailed},
	QueueStatusDownloading: {QueueStatusPaused, QueueStatusImporting, QueueStatusFailed},
	QueueStatusPaused:      {QueueStatusDownloading, QueueStatusFailed},
	QueueStatusImporting:   {QueueStatusCompleted, QueueStatusFailed},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to QueueStatus) bool {
	for _, next := range queueTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status ends the item's lifecycle.
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusFailed
}

// QueueItem tracks one download from grab to completion or failure.
type QueueItem struct {
	ID            int64            `json:"id"`
	MediaID       int64            `json:"mediaId"`
	EpisodeID     *int64           `json:"episodeId,omitempty"`
	Snapshot      domain.Candidate `json:"snapshot"`
	Status        QueueStatus      `json:"status"`
	Progress      float64          `json:"progress"`
	SizeRemaining int64            `json:"sizeRemaining"`
	DownloadID    string           `json:"downloadId"`
	ClientID      int              `json:"clientId"`
	ErrorMessage  string           `json:"errorMessage,omitempty"`
	Retried       bool             `json:"retried"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

type QueueStore struct {
	db dbinterface.Querier
}

func NewQueueStore(db dbinterface.Querier) *QueueStore {
	return &QueueStore{db: db}
}

func (s *QueueStore) Create(ctx context.Context, item *QueueItem) (*QueueItem, error) {
	if item.Status == "" {
		item.Status = QueueStatusQueued
	}
	snapshot, err := json.Marshal(item.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO queue_items (media_id, episode_id, snapshot, status, download_id, client_id, size_remaining)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id, created_at, updated_at
	`, item.MediaID, nullableID(item.EpisodeID), string(snapshot), string(item.Status),
		item.DownloadID, item.ClientID, item.SizeRemaining).Scan(&item.ID, &scanTime{&item.CreatedAt}, &scanTime{&item.UpdatedAt})
	if err != nil {
		return nil, fmt.Errorf("insert queue item: %w", err)
	}
	return item, nil
}

func (s *QueueStore) Get(ctx context.Context, id int64) (*QueueItem, error) {
	row := s.db.QueryRowContext(ctx, queueSelect+" WHERE id = ?", id)
	item, err := scanQueueItem(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQueueItemNotFound
	}
	return item, err
}

const queueSelect = `
	SELECT id, media_id, episode_id, snapshot, status, progress, size_remaining,
		download_id, client_id, error_message, retried, created_at, updated_at
	FROM queue_items`

func (s *QueueStore) List(ctx context.Context) ([]*QueueItem, error) {
	return s.listWhere(ctx, queueSelect+" ORDER BY id")
}

// ListActive returns items that still need client polling.
func (s *QueueStore) ListActive(ctx context.Context) ([]*QueueItem, error) {
	return s.listWhere(ctx, queueSelect+` WHERE status IN (?, ?, ?, ?) ORDER BY id`,
		string(QueueStatusQueued), string(QueueStatusDownloading), string(QueueStatusPaused), string(QueueStatusImporting))
}

func (s *QueueStore) listWhere(ctx context.Context, query string, args ...any) ([]*QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Transition moves an item to a new status. The current status is part of
// the WHERE clause so a racing writer cannot clobber a concurrent change:
// the loser of the race sees ErrInvalidTransition and re-reads.
func (s *QueueStore) Transition(ctx context.Context, id int64, from, to QueueStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET status = ?, updated_at = datetime('now')
		WHERE id = ? AND status = ?
	`, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("transition queue item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: item %d no longer in %s", ErrInvalidTransition, id, from)
	}
	return nil
}

// UpdateProgress records client-reported progress for an in-flight item.
func (s *QueueStore) UpdateProgress(ctx context.Context, id int64, progress float64, sizeRemaining int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET progress = ?, size_remaining = ?, updated_at = datetime('now')
		WHERE id = ?
	`, progress, sizeRemaining, id)
	if err != nil {
		return fmt.Errorf("update queue progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQueueItemNotFound
	}
	return nil
}

// SetDownloadID records the client-side handle once the grab succeeds.
func (s *QueueStore) SetDownloadID(ctx context.Context, id int64, downloadID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET download_id = ?, updated_at = datetime('now') WHERE id = ?
	`, downloadID, id)
	if err != nil {
		return fmt.Errorf("set download id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQueueItemNotFound
	}
	return nil
}

// SetError stores the failure detail reported by the client or importer.
func (s *QueueStore) SetError(ctx context.Context, id int64, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET error_message = ?, updated_at = datetime('now') WHERE id = ?
	`, message, id)
	return err
}

// MarkRetried flags that the single automatic re-search for this item has
// been spent. Returns false if it was already spent.
func (s *QueueStore) MarkRetried(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET retried = 1, updated_at = datetime('now')
		WHERE id = ? AND retried = 0
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *QueueStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM queue_items WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQueueItemNotFound
	}
	return nil
}

// scanTime adapts the text timestamp columns to time.Time during Scan.
type scanTime struct {
	t *time.Time
}

func (s *scanTime) Scan(value any) error {
	switch v := value.(type) {
	case string:
		t, err := parseTime(v)
		if err != nil {
			return err
		}
		*s.t = t
		return nil
	case time.Time:
		*s.t = v
		return nil
	case nil:
		*s.t = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into time", value)
	}
}

func scanQueueItem(scan func(...any) error) (*QueueItem, error) {
	var (
		item      QueueItem
		episodeID sql.NullInt64
		snapshot  string
		status    string
	)
	if err := scan(&item.ID, &item.MediaID, &episodeID, &snapshot, &status, &item.Progress, &item.SizeRemaining,
		&item.DownloadID, &item.ClientID, &item.ErrorMessage, &item.Retried,
		&scanTime{&item.CreatedAt}, &scanTime{&item.UpdatedAt}); err != nil {
		return nil, err
	}
	if episodeID.Valid {
		item.EpisodeID = &episodeID.Int64
	}
	item.Status = QueueStatus(status)
	if err := json.Unmarshal([]byte(snapshot), &item.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &item, nil
}
