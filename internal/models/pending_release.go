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

var ErrPendingReleaseNotFound = errors.New("pending release not found")

// PendingRelease is an accepted candidate held back by a delay profile.
// The row is replaced (snapshot only, never the timer) when a strictly
// better candidate for the same target shows up, and deleted when promoted.
// ProfileID and Tags carry the profile context the snapshot was judged
// under, so the scheduler can re-evaluate it against current profile state.
type PendingRelease struct {
	ID        int64            `json:"id"`
	MediaID   int64            `json:"mediaId"`
	EpisodeID *int64           `json:"episodeId,omitempty"`
	ProfileID int              `json:"profileId"`
	Tags      []string         `json:"tags,omitempty"`
	Snapshot  domain.Candidate `json:"snapshot"`
	AddedAt   time.Time        `json:"addedAt"`
	ReleaseAt time.Time        `json:"releaseAt"`
	Reason    string           `json:"reason"`
}

type PendingReleaseStore struct {
	db dbinterface.Querier
}

func NewPendingReleaseStore(db dbinterface.Querier) *PendingReleaseStore {
	return &PendingReleaseStore{db: db}
}

func (s *PendingReleaseStore) Create(ctx context.Context, pending *PendingRelease) (*PendingRelease, error) {
	snapshot, err := json.Marshal(pending.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	tags, err := json.Marshal(pending.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO pending_releases (media_id, episode_id, profile_id, tags, snapshot, added_at, release_at, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, pending.MediaID, nullableID(pending.EpisodeID), pending.ProfileID, string(tags), string(snapshot),
		formatTime(pending.AddedAt), formatTime(pending.ReleaseAt), pending.Reason).Scan(&pending.ID)
	if err != nil {
		return nil, fmt.Errorf("insert pending release: %w", err)
	}
	return pending, nil
}

// GetByTarget returns the pending entry for a media/episode pair, if any.
func (s *PendingReleaseStore) GetByTarget(ctx context.Context, mediaID int64, episodeID *int64) (*PendingRelease, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, media_id, episode_id, profile_id, tags, snapshot, added_at, release_at, reason
		FROM pending_releases
		WHERE media_id = ? AND IFNULL(episode_id, -1) = IFNULL(?, -1)
	`, mediaID, nullableID(episodeID))
	pending, err := scanPendingRelease(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPendingReleaseNotFound
	}
	return pending, err
}

// ReplaceSnapshot swaps in a better candidate without touching the timer,
// so a stream of marginal improvements cannot postpone the grab forever.
func (s *PendingReleaseStore) ReplaceSnapshot(ctx context.Context, id int64, snapshot domain.Candidate) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE pending_releases SET snapshot = ? WHERE id = ?", string(raw), id)
	if err != nil {
		return fmt.Errorf("replace pending snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPendingReleaseNotFound
	}
	return nil
}

// List returns all pending releases ordered by release time.
func (s *PendingReleaseStore) List(ctx context.Context) ([]*PendingRelease, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, media_id, episode_id, profile_id, tags, snapshot, added_at, release_at, reason
		FROM pending_releases
		ORDER BY release_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pendings []*PendingRelease
	for rows.Next() {
		pending, err := scanPendingRelease(rows.Scan)
		if err != nil {
			return nil, err
		}
		pendings = append(pendings, pending)
	}
	return pendings, rows.Err()
}

// Claim atomically removes a pending row and reports whether this caller won
// it. Concurrent scheduler ticks promoting the same row see exactly one true.
func (s *PendingReleaseStore) Claim(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pending_releases WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("claim pending release: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteByMedia drops all pending rows for a removed title.
func (s *PendingReleaseStore) DeleteByMedia(ctx context.Context, mediaID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pending_releases WHERE media_id = ?", mediaID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func scanPendingRelease(scan func(...any) error) (*PendingRelease, error) {
	var (
		pending   PendingRelease
		episodeID sql.NullInt64
		tags      string
		snapshot  string
		addedAt   string
		releaseAt string
	)
	if err := scan(&pending.ID, &pending.MediaID, &episodeID, &pending.ProfileID, &tags, &snapshot, &addedAt, &releaseAt, &pending.Reason); err != nil {
		return nil, err
	}
	if episodeID.Valid {
		pending.EpisodeID = &episodeID.Int64
	}
	if err := json.Unmarshal([]byte(tags), &pending.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(snapshot), &pending.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	var err error
	if pending.AddedAt, err = parseTime(addedAt); err != nil {
		return nil, fmt.Errorf("parse added_at: %w", err)
	}
	if pending.ReleaseAt, err = parseTime(releaseAt); err != nil {
		return nil, fmt.Errorf("parse release_at: %w", err)
	}
	return &pending, nil
}
