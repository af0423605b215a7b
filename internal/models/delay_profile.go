// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autobrr/fetcharr/internal/dbinterface"
)

var ErrDelayProfileNotFound = errors.New("delay profile not found")

// DelayProfile controls how long an accepted release waits before it is
// grabbed, per protocol, and which conditions skip the wait entirely.
type DelayProfile struct {
	ID                       int      `json:"id"`
	EnableUsenet             bool     `json:"enableUsenet"`
	EnableTorrent            bool     `json:"enableTorrent"`
	UsenetDelayMinutes       int      `json:"usenetDelayMinutes"`
	TorrentDelayMinutes      int      `json:"torrentDelayMinutes"`
	BypassIfHighestQuality   bool     `json:"bypassIfHighestQuality"`
	BypassIfAboveFormatScore bool     `json:"bypassIfAboveFormatScore"`
	MinimumFormatScore       int      `json:"minimumFormatScore"`
	// Tags scope the profile to titles carrying at least one of these tags.
	// An empty list makes this a fallback profile selected by Order.
	Tags  []string `json:"tags"`
	Order int      `json:"order"`
}

func (p *DelayProfile) Validate() error {
	if p.UsenetDelayMinutes < 0 || p.TorrentDelayMinutes < 0 {
		return &ValidationError{Field: "delay", Reason: "delay minutes must not be negative"}
	}
	if !p.EnableUsenet && !p.EnableTorrent {
		return &ValidationError{Field: "protocols", Reason: "at least one protocol must be enabled"}
	}
	return nil
}

type DelayProfileStore struct {
	db dbinterface.Querier
}

func NewDelayProfileStore(db dbinterface.Querier) *DelayProfileStore {
	return &DelayProfileStore{db: db}
}

func (s *DelayProfileStore) Create(ctx context.Context, profile *DelayProfile) (*DelayProfile, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	tags, err := marshalTags(profile.Tags)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO delay_profiles (enable_usenet, enable_torrent, usenet_delay_minutes, torrent_delay_minutes,
			bypass_if_highest_quality, bypass_if_above_format_score, minimum_format_score, tags, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, profile.EnableUsenet, profile.EnableTorrent, profile.UsenetDelayMinutes, profile.TorrentDelayMinutes,
		profile.BypassIfHighestQuality, profile.BypassIfAboveFormatScore, profile.MinimumFormatScore, tags, profile.Order).Scan(&profile.ID)
	if err != nil {
		return nil, fmt.Errorf("insert delay profile: %w", err)
	}
	return profile, nil
}

func (s *DelayProfileStore) Update(ctx context.Context, profile *DelayProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}

	tags, err := marshalTags(profile.Tags)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE delay_profiles
		SET enable_usenet = ?, enable_torrent = ?, usenet_delay_minutes = ?, torrent_delay_minutes = ?,
			bypass_if_highest_quality = ?, bypass_if_above_format_score = ?, minimum_format_score = ?, tags = ?, sort_order = ?
		WHERE id = ?
	`, profile.EnableUsenet, profile.EnableTorrent, profile.UsenetDelayMinutes, profile.TorrentDelayMinutes,
		profile.BypassIfHighestQuality, profile.BypassIfAboveFormatScore, profile.MinimumFormatScore, tags, profile.Order, profile.ID)
	if err != nil {
		return fmt.Errorf("update delay profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDelayProfileNotFound
	}
	return nil
}

func (s *DelayProfileStore) Get(ctx context.Context, id int) (*DelayProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, enable_usenet, enable_torrent, usenet_delay_minutes, torrent_delay_minutes,
			bypass_if_highest_quality, bypass_if_above_format_score, minimum_format_score, tags, sort_order
		FROM delay_profiles WHERE id = ?
	`, id)
	profile, err := scanDelayProfile(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDelayProfileNotFound
	}
	return profile, err
}

// List returns all delay profiles ordered by their configured order.
func (s *DelayProfileStore) List(ctx context.Context) ([]*DelayProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, enable_usenet, enable_torrent, usenet_delay_minutes, torrent_delay_minutes,
			bypass_if_highest_quality, bypass_if_above_format_score, minimum_format_score, tags, sort_order
		FROM delay_profiles ORDER BY sort_order, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*DelayProfile
	for rows.Next() {
		profile, err := scanDelayProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

func (s *DelayProfileStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM delay_profiles WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDelayProfileNotFound
	}
	return nil
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(raw), nil
}

func scanDelayProfile(scan func(...any) error) (*DelayProfile, error) {
	var (
		profile DelayProfile
		tags    string
	)
	if err := scan(&profile.ID, &profile.EnableUsenet, &profile.EnableTorrent, &profile.UsenetDelayMinutes, &profile.TorrentDelayMinutes,
		&profile.BypassIfHighestQuality, &profile.BypassIfAboveFormatScore, &profile.MinimumFormatScore, &tags, &profile.Order); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &profile.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return &profile, nil
}
