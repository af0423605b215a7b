// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autobrr/fetcharr/internal/dbinterface"
	"github.com/autobrr/fetcharr/internal/domain"
)

var ErrBlocklistEntryNotFound = errors.New("blocklist entry not found")

// BlocklistEntry permanently excludes a failed release fingerprint.
// Entries never expire on their own; removal is an explicit user action.
type BlocklistEntry struct {
	ID          int64           `json:"id"`
	Fingerprint string          `json:"fingerprint"`
	MediaID     int64           `json:"mediaId"`
	IndexerID   int             `json:"indexerId"`
	Protocol    domain.Protocol `json:"protocol"`
	Title       string          `json:"title"`
	Reason      string          `json:"reason"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type BlocklistStore struct {
	db dbinterface.Querier
}

func NewBlocklistStore(db dbinterface.Querier) *BlocklistStore {
	return &BlocklistStore{db: db}
}

// Add records a failed release. Re-adding the same fingerprint is a no-op,
// which keeps the failure path replayable after a crash.
func (s *BlocklistStore) Add(ctx context.Context, entry *BlocklistEntry) error {
	if entry.Fingerprint == "" {
		entry.Fingerprint = domain.ReleaseFingerprint(entry.IndexerID, entry.Protocol, entry.Title)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocklist (fingerprint, media_id, indexer_id, protocol, title, reason)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO NOTHING
	`, entry.Fingerprint, entry.MediaID, entry.IndexerID, string(entry.Protocol), entry.Title, entry.Reason)
	if err != nil {
		return fmt.Errorf("insert blocklist entry: %w", err)
	}
	return nil
}

// IsBlocked reports whether a fingerprint has been blocklisted.
func (s *BlocklistStore) IsBlocked(ctx context.Context, fingerprint string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM blocklist WHERE fingerprint = ?", fingerprint).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Fingerprints returns the full blocked set, used to filter candidates
// before any scoring work happens.
func (s *BlocklistStore) Fingerprints(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT fingerprint FROM blocklist")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		set[fp] = struct{}{}
	}
	return set, rows.Err()
}

func (s *BlocklistStore) List(ctx context.Context) ([]*BlocklistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fingerprint, media_id, indexer_id, protocol, title, reason, created_at
		FROM blocklist ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*BlocklistEntry
	for rows.Next() {
		var (
			entry    BlocklistEntry
			protocol string
		)
		if err := rows.Scan(&entry.ID, &entry.Fingerprint, &entry.MediaID, &entry.IndexerID,
			&protocol, &entry.Title, &entry.Reason, &scanTime{&entry.CreatedAt}); err != nil {
			return nil, err
		}
		entry.Protocol = domain.Protocol(protocol)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Delete is the manual removal path; there is no automatic expiry.
func (s *BlocklistStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM blocklist WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBlocklistEntryNotFound
	}
	return nil
}
