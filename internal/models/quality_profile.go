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
	"github.com/autobrr/fetcharr/internal/domain"
)

var ErrQualityProfileNotFound = errors.New("quality profile not found")

// ProfileItem is one entry in a profile's ordered quality list. Position in
// the slice defines priority: index 0 is the most wanted quality. The ladder
// weight of the quality plays no part in ranking.
type ProfileItem struct {
	QualityID int  `json:"qualityId"`
	Allowed   bool `json:"allowed"`
}

// QualityProfile is the per-title acceptance and upgrade policy.
type QualityProfile struct {
	ID                int           `json:"id"`
	Name              string        `json:"name"`
	UpgradeAllowed    bool          `json:"upgradeAllowed"`
	CutoffQualityID   int           `json:"cutoffQualityId"`
	MinFormatScore    int           `json:"minFormatScore"`
	CutoffFormatScore int           `json:"cutoffFormatScore"`
	Items             []ProfileItem `json:"items"`
	// FormatScores maps custom format ID to the score it contributes when
	// matched. Formats absent from the map score 0.
	FormatScores map[int]int `json:"formatScores"`
}

// Validate enforces the profile invariants before a row is written.
func (p *QualityProfile) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(p.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "must contain at least one quality"}
	}

	seen := make(map[int]struct{}, len(p.Items))
	cutoffEnabled := false
	anyEnabled := false
	for _, item := range p.Items {
		if _, ok := domain.QualityByID(item.QualityID); !ok {
			return &ValidationError{Field: "items", Reason: fmt.Sprintf("unknown quality id %d", item.QualityID)}
		}
		if _, dup := seen[item.QualityID]; dup {
			return &ValidationError{Field: "items", Reason: fmt.Sprintf("duplicate quality id %d", item.QualityID)}
		}
		seen[item.QualityID] = struct{}{}
		if item.Allowed {
			anyEnabled = true
			if item.QualityID == p.CutoffQualityID {
				cutoffEnabled = true
			}
		}
	}
	if !anyEnabled {
		return &ValidationError{Field: "items", Reason: "at least one quality must be allowed"}
	}
	if !cutoffEnabled {
		return &ValidationError{Field: "cutoffQualityId", Reason: fmt.Sprintf("cutoff quality %d is not an allowed profile item", p.CutoffQualityID)}
	}
	if p.CutoffFormatScore < p.MinFormatScore {
		return &ValidationError{Field: "cutoffFormatScore", Reason: "must not be below minFormatScore"}
	}
	return nil
}

type QualityProfileStore struct {
	db dbinterface.Querier
}

func NewQualityProfileStore(db dbinterface.Querier) *QualityProfileStore {
	return &QualityProfileStore{db: db}
}

func (s *QualityProfileStore) Create(ctx context.Context, profile *QualityProfile) (*QualityProfile, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	items, scores, err := marshalProfileColumns(profile)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO quality_profiles (name, upgrade_allowed, cutoff_quality_id, min_format_score, cutoff_format_score, items, format_scores)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, profile.Name, profile.UpgradeAllowed, profile.CutoffQualityID, profile.MinFormatScore, profile.CutoffFormatScore, items, scores).Scan(&profile.ID)
	if err != nil {
		return nil, fmt.Errorf("insert quality profile: %w", err)
	}
	return profile, nil
}

func (s *QualityProfileStore) Update(ctx context.Context, profile *QualityProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}

	items, scores, err := marshalProfileColumns(profile)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE quality_profiles
		SET name = ?, upgrade_allowed = ?, cutoff_quality_id = ?, min_format_score = ?, cutoff_format_score = ?, items = ?, format_scores = ?, updated_at = datetime('now')
		WHERE id = ?
	`, profile.Name, profile.UpgradeAllowed, profile.CutoffQualityID, profile.MinFormatScore, profile.CutoffFormatScore, items, scores, profile.ID)
	if err != nil {
		return fmt.Errorf("update quality profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQualityProfileNotFound
	}
	return nil
}

func (s *QualityProfileStore) Get(ctx context.Context, id int) (*QualityProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, upgrade_allowed, cutoff_quality_id, min_format_score, cutoff_format_score, items, format_scores
		FROM quality_profiles
		WHERE id = ?
	`, id)
	profile, err := scanQualityProfile(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQualityProfileNotFound
	}
	return profile, err
}

func (s *QualityProfileStore) List(ctx context.Context) ([]*QualityProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, upgrade_allowed, cutoff_quality_id, min_format_score, cutoff_format_score, items, format_scores
		FROM quality_profiles
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*QualityProfile
	for rows.Next() {
		profile, err := scanQualityProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

func (s *QualityProfileStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM quality_profiles WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQualityProfileNotFound
	}
	return nil
}

func marshalProfileColumns(profile *QualityProfile) (items string, scores string, err error) {
	itemsRaw, err := json.Marshal(profile.Items)
	if err != nil {
		return "", "", fmt.Errorf("marshal profile items: %w", err)
	}
	if profile.FormatScores == nil {
		profile.FormatScores = map[int]int{}
	}
	scoresRaw, err := json.Marshal(profile.FormatScores)
	if err != nil {
		return "", "", fmt.Errorf("marshal format scores: %w", err)
	}
	return string(itemsRaw), string(scoresRaw), nil
}

func scanQualityProfile(scan func(...any) error) (*QualityProfile, error) {
	var (
		profile   QualityProfile
		items     string
		scores    string
		upgradeOK bool
	)
	if err := scan(&profile.ID, &profile.Name, &upgradeOK, &profile.CutoffQualityID, &profile.MinFormatScore, &profile.CutoffFormatScore, &items, &scores); err != nil {
		return nil, err
	}
	profile.UpgradeAllowed = upgradeOK
	if err := json.Unmarshal([]byte(items), &profile.Items); err != nil {
		return nil, fmt.Errorf("unmarshal profile items: %w", err)
	}
	if err := json.Unmarshal([]byte(scores), &profile.FormatScores); err != nil {
		return nil, fmt.Errorf("unmarshal format scores: %w", err)
	}
	return &profile, nil
}
