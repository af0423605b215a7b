// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/models"
)

func hd1080Profile() *models.QualityProfile {
	return &models.QualityProfile{
		ID:              1,
		Name:            "HD-1080p",
		UpgradeAllowed:  true,
		CutoffQualityID: domain.QualityBluray1080p,
		Items: []models.ProfileItem{
			{QualityID: domain.QualityBluray1080p, Allowed: true},
			{QualityID: domain.QualityWEBDL1080p, Allowed: true},
			{QualityID: domain.QualityHDTV1080p, Allowed: true},
			{QualityID: domain.QualitySDTV, Allowed: false},
		},
		FormatScores: map[int]int{},
	}
}

func TestRank(t *testing.T) {
	profile := hd1080Profile()

	tests := []struct {
		name      string
		qualityID int
		wantRank  int
		wantOK    bool
	}{
		{name: "top item", qualityID: domain.QualityBluray1080p, wantRank: 0, wantOK: true},
		{name: "second item", qualityID: domain.QualityWEBDL1080p, wantRank: 1, wantOK: true},
		{name: "disabled item has no rank", qualityID: domain.QualitySDTV, wantOK: false},
		{name: "quality not in profile", qualityID: domain.QualityWEBDL2160p, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rank, ok := Rank(profile, tt.qualityID)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantRank, rank)
			}
		})
	}
}

func TestIsUpgrade(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*models.QualityProfile)
		current   *Current
		qualityID int
		score     int
		want      bool
	}{
		{
			name:      "no current file accepts any allowed quality",
			current:   nil,
			qualityID: domain.QualityHDTV1080p,
			want:      true,
		},
		{
			name:      "higher priority quality upgrades",
			current:   &Current{QualityID: domain.QualityWEBDL1080p},
			qualityID: domain.QualityBluray1080p,
			want:      true,
		},
		{
			name:      "lower priority quality never upgrades",
			current:   &Current{QualityID: domain.QualityWEBDL1080p},
			qualityID: domain.QualityHDTV1080p,
			want:      false,
		},
		{
			name:      "at cutoff nothing further upgrades on quality",
			current:   &Current{QualityID: domain.QualityBluray1080p},
			qualityID: domain.QualityBluray1080p,
			want:      false,
		},
		{
			name:      "upgrades disabled keeps current file",
			mutate:    func(p *models.QualityProfile) { p.UpgradeAllowed = false },
			current:   &Current{QualityID: domain.QualityWEBDL1080p},
			qualityID: domain.QualityBluray1080p,
			want:      false,
		},
		{
			name: "same quality with better format score upgrades",
			mutate: func(p *models.QualityProfile) {
				p.CutoffFormatScore = 100
			},
			current:   &Current{QualityID: domain.QualityBluray1080p, FormatScore: 10},
			qualityID: domain.QualityBluray1080p,
			score:     50,
			want:      true,
		},
		{
			name: "format score cutoff reached blocks score-only upgrades",
			mutate: func(p *models.QualityProfile) {
				p.CutoffFormatScore = 50
			},
			current:   &Current{QualityID: domain.QualityBluray1080p, FormatScore: 50},
			qualityID: domain.QualityBluray1080p,
			score:     90,
			want:      false,
		},
		{
			name:      "current quality no longer in profile accepts candidate",
			current:   &Current{QualityID: domain.QualityWEBDL2160p},
			qualityID: domain.QualityHDTV1080p,
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := hd1080Profile()
			if tt.mutate != nil {
				tt.mutate(profile)
			}
			got := IsUpgrade(profile, tt.current, tt.qualityID, tt.score)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAtQualityCutoff(t *testing.T) {
	profile := hd1080Profile()

	assert.True(t, AtQualityCutoff(profile, domain.QualityBluray1080p))
	assert.False(t, AtQualityCutoff(profile, domain.QualityWEBDL1080p))
	assert.False(t, AtQualityCutoff(profile, domain.QualityWEBDL2160p))
}
