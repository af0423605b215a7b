// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package delay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/models"
)

func testQualityProfile() *models.QualityProfile {
	return &models.QualityProfile{
		Name:            "HD",
		UpgradeAllowed:  true,
		CutoffQualityID: domain.QualityBluray1080p,
		Items: []models.ProfileItem{
			{QualityID: domain.QualityBluray1080p, Allowed: true},
			{QualityID: domain.QualityWEBDL1080p, Allowed: true},
		},
	}
}

func TestSelectProfile(t *testing.T) {
	fallback := &models.DelayProfile{ID: 1, EnableTorrent: true, EnableUsenet: true, Order: 10}
	anime := &models.DelayProfile{ID: 2, EnableTorrent: true, EnableUsenet: true, Tags: []string{"anime"}, Order: 5}
	animeHD := &models.DelayProfile{ID: 3, EnableTorrent: true, EnableUsenet: true, Tags: []string{"anime", "hd"}, Order: 1}
	profiles := []*models.DelayProfile{fallback, anime, animeHD}

	tests := []struct {
		name string
		tags []string
		want *models.DelayProfile
	}{
		{name: "no tags falls back to untagged", tags: nil, want: fallback},
		{name: "single overlap", tags: []string{"anime"}, want: anime},
		{name: "most overlapping tags wins", tags: []string{"anime", "hd"}, want: animeHD},
		{name: "unrelated tags fall back", tags: []string{"docu"}, want: fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectProfile(profiles, tt.tags)
			assert.Same(t, tt.want, got)
		})
	}

	t.Run("equal overlap resolved by order", func(t *testing.T) {
		a := &models.DelayProfile{ID: 1, EnableTorrent: true, Tags: []string{"x"}, Order: 2}
		b := &models.DelayProfile{ID: 2, EnableTorrent: true, Tags: []string{"x"}, Order: 1}
		assert.Same(t, b, SelectProfile([]*models.DelayProfile{a, b}, []string{"x"}))
	})

	// A profile whose scope is wider than the media's tags must not apply:
	// the title is not "hd", so the anime+hd profile stays out of the race
	// no matter how low its order is.
	t.Run("partial tag match does not apply", func(t *testing.T) {
		got := SelectProfile([]*models.DelayProfile{fallback, animeHD}, []string{"anime"})
		assert.Same(t, fallback, got)
	})

	t.Run("no applicable profile", func(t *testing.T) {
		tagged := &models.DelayProfile{ID: 1, EnableTorrent: true, Tags: []string{"anime"}}
		assert.Nil(t, SelectProfile([]*models.DelayProfile{tagged}, nil))
	})
}

func TestEvaluate(t *testing.T) {
	qp := testQualityProfile()

	profile := &models.DelayProfile{
		EnableUsenet:        true,
		EnableTorrent:       true,
		UsenetDelayMinutes:  0,
		TorrentDelayMinutes: 60,
	}

	tests := []struct {
		name       string
		mutate     func(*models.DelayProfile)
		candidate  domain.Candidate
		wantAction Action
		wantWait   time.Duration
	}{
		{
			name:       "usenet with zero delay grabs immediately",
			candidate:  domain.Candidate{Protocol: domain.ProtocolUsenet, QualityID: domain.QualityWEBDL1080p},
			wantAction: ActionGrab,
		},
		{
			name:       "torrent waits out configured delay",
			candidate:  domain.Candidate{Protocol: domain.ProtocolTorrent, QualityID: domain.QualityWEBDL1080p},
			wantAction: ActionDelay,
			wantWait:   time.Hour,
		},
		{
			name:       "disabled protocol drops release",
			mutate:     func(p *models.DelayProfile) { p.EnableTorrent = false },
			candidate:  domain.Candidate{Protocol: domain.ProtocolTorrent, QualityID: domain.QualityWEBDL1080p},
			wantAction: ActionDrop,
		},
		{
			name:       "highest quality bypass",
			mutate:     func(p *models.DelayProfile) { p.BypassIfHighestQuality = true },
			candidate:  domain.Candidate{Protocol: domain.ProtocolTorrent, QualityID: domain.QualityBluray1080p},
			wantAction: ActionGrab,
		},
		{
			name:       "highest quality bypass requires the top item",
			mutate:     func(p *models.DelayProfile) { p.BypassIfHighestQuality = true },
			candidate:  domain.Candidate{Protocol: domain.ProtocolTorrent, QualityID: domain.QualityWEBDL1080p},
			wantAction: ActionDelay,
			wantWait:   time.Hour,
		},
		{
			name: "format score bypass",
			mutate: func(p *models.DelayProfile) {
				p.BypassIfAboveFormatScore = true
				p.MinimumFormatScore = 50
			},
			candidate:  domain.Candidate{Protocol: domain.ProtocolTorrent, QualityID: domain.QualityWEBDL1080p, FormatScore: 75},
			wantAction: ActionGrab,
		},
		{
			name: "format score below bypass threshold still waits",
			mutate: func(p *models.DelayProfile) {
				p.BypassIfAboveFormatScore = true
				p.MinimumFormatScore = 50
			},
			candidate:  domain.Candidate{Protocol: domain.ProtocolTorrent, QualityID: domain.QualityWEBDL1080p, FormatScore: 25},
			wantAction: ActionDelay,
			wantWait:   time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := *profile
			if tt.mutate != nil {
				tt.mutate(&p)
			}
			verdict := Evaluate(&p, qp, &tt.candidate)
			assert.Equal(t, tt.wantAction, verdict.Action)
			assert.Equal(t, tt.wantWait, verdict.Wait)
		})
	}

	t.Run("nil profile grabs immediately", func(t *testing.T) {
		verdict := Evaluate(nil, qp, &domain.Candidate{Protocol: domain.ProtocolTorrent})
		assert.Equal(t, ActionGrab, verdict.Action)
	})
}
