// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/autobrr/fetcharr/internal/dbinterface"
)

// HistoryEventType categorizes acquisition milestones.
type HistoryEventType string

const (
	HistoryEventGrabbed        HistoryEventType = "grabbed"
	HistoryEventImported       HistoryEventType = "imported"
	HistoryEventDownloadFailed HistoryEventType = "download_failed"
	HistoryEventImportFailed   HistoryEventType = "import_failed"
)

// HistoryRecord is the durable trace of a queue item outcome.
type HistoryRecord struct {
	ID        int64             `json:"id"`
	MediaID   int64             `json:"mediaId"`
	EpisodeID *int64            `json:"episodeId,omitempty"`
	EventType HistoryEventType  `json:"eventType"`
	Title     string            `json:"title"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

type HistoryStore struct {
	db dbinterface.Querier
}

func NewHistoryStore(db dbinterface.Querier) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) Add(ctx context.Context, record *HistoryRecord) error {
	if record.Data == nil {
		record.Data = map[string]string{}
	}
	data, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("marshal history data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO history (media_id, episode_id, event_type, title, data)
		VALUES (?, ?, ?, ?, ?)
	`, record.MediaID, nullableID(record.EpisodeID), string(record.EventType), record.Title, string(data))
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// ListRecent returns the latest records, optionally scoped to one title.
func (s *HistoryStore) ListRecent(ctx context.Context, mediaID int64, limit int) ([]*HistoryRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, media_id, episode_id, event_type, title, data, created_at
		FROM history`
	args := []any{}
	if mediaID > 0 {
		query += " WHERE media_id = ?"
		args = append(args, mediaID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*HistoryRecord
	for rows.Next() {
		var (
			record    HistoryRecord
			episodeID sql.NullInt64
			eventType string
			data      string
		)
		if err := rows.Scan(&record.ID, &record.MediaID, &episodeID, &eventType, &record.Title, &data, &scanTime{&record.CreatedAt}); err != nil {
			return nil, err
		}
		if episodeID.Valid {
			record.EpisodeID = &episodeID.Int64
		}
		record.EventType = HistoryEventType(eventType)
		if err := json.Unmarshal([]byte(data), &record.Data); err != nil {
			return nil, fmt.Errorf("unmarshal history data: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}
