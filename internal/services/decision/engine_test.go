// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/models"
)

func newTestEngine(t *testing.T, formats ...*models.CustomFormat) *Engine {
	t.Helper()
	matcher, err := NewMatcher(formats)
	require.NoError(t, err)
	return NewEngine(matcher)
}

// An episode is grabbed at WEBDL-1080p, later a Bluray-1080p release
// appears and upgrades it. Once Bluray-1080p (the cutoff) is on disk,
// further same-rank releases are ignored.
func TestEvaluateCutoffCeiling(t *testing.T) {
	engine := newTestEngine(t)
	profile := hd1080Profile()

	webdl := &domain.Candidate{Title: "Show.S01E01.1080p.WEB-DL", QualityID: domain.QualityWEBDL1080p}
	bluray := &domain.Candidate{Title: "Show.S01E01.1080p.BluRay", QualityID: domain.QualityBluray1080p}

	// Nothing on disk: both survive, Bluray ranks first.
	res := engine.Evaluate(profile, nil, nil, []*domain.Candidate{webdl, bluray})
	require.NotNil(t, res.Accepted)
	assert.Equal(t, bluray.Title, res.Accepted.Title)
	assert.Len(t, res.Ranked, 2)

	// WEBDL on disk: the Bluray release is an upgrade.
	res = engine.Evaluate(profile, &Current{QualityID: domain.QualityWEBDL1080p}, nil, []*domain.Candidate{bluray})
	require.NotNil(t, res.Accepted)
	assert.Equal(t, bluray.Title, res.Accepted.Title)

	// Cutoff reached: another Bluray is rejected.
	another := &domain.Candidate{Title: "Show.S01E01.1080p.BluRay.REPACK", QualityID: domain.QualityBluray1080p}
	res = engine.Evaluate(profile, &Current{QualityID: domain.QualityBluray1080p}, nil, []*domain.Candidate{another})
	assert.Nil(t, res.Accepted)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "not an upgrade for existing file", res.Rejected[0].Reason)
}

func TestEvaluateFiltering(t *testing.T) {
	engine := newTestEngine(t, &models.CustomFormat{
		ID:   1,
		Name: "Bad group",
		Specifications: []models.FormatSpecification{
			{Implementation: SpecReleaseGroup, Fields: map[string]any{"value": `^SCUM$`}},
		},
	})
	profile := hd1080Profile()
	profile.MinFormatScore = 0
	profile.FormatScores = map[int]int{1: -100}

	blockedRelease := &domain.Candidate{Title: "Show S01E01 1080p WEB", IndexerID: 3, Protocol: domain.ProtocolTorrent, QualityID: domain.QualityWEBDL1080p}
	blocked := map[string]struct{}{blockedRelease.Fingerprint(): {}}

	tests := []struct {
		name       string
		candidate  *domain.Candidate
		wantReason string
	}{
		{
			name:       "blocklisted fingerprint",
			candidate:  &domain.Candidate{Title: "show s01e01 1080p  WEB", IndexerID: 3, Protocol: domain.ProtocolTorrent, QualityID: domain.QualityWEBDL1080p},
			wantReason: "release is blocklisted",
		},
		{
			name:       "quality not in profile",
			candidate:  &domain.Candidate{Title: "Show.S01E01.2160p", QualityID: domain.QualityWEBDL2160p},
			wantReason: "quality not wanted by profile",
		},
		{
			name:       "disabled quality",
			candidate:  &domain.Candidate{Title: "Show.S01E01.SDTV", QualityID: domain.QualitySDTV},
			wantReason: "quality not wanted by profile",
		},
		{
			name:       "negative score below minimum",
			candidate:  &domain.Candidate{Title: "Show.S01E01.1080p.WEB-SCUM", ReleaseGroup: "SCUM", QualityID: domain.QualityWEBDL1080p},
			wantReason: "custom format score below profile minimum",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := engine.Evaluate(profile, nil, blocked, []*domain.Candidate{tt.candidate})
			assert.Nil(t, res.Accepted)
			require.Len(t, res.Rejected, 1)
			assert.Equal(t, tt.wantReason, res.Rejected[0].Reason)
		})
	}
}

func TestEvaluateRankedFallbackOrder(t *testing.T) {
	engine := newTestEngine(t)
	profile := hd1080Profile()

	now := time.Now().UTC()
	candidates := []*domain.Candidate{
		{Title: "Show.S01E01.1080p.HDTV", QualityID: domain.QualityHDTV1080p, PublishedAt: now},
		{Title: "Show.S01E01.1080p.WEB.old", QualityID: domain.QualityWEBDL1080p, PublishedAt: now.Add(-48 * time.Hour)},
		{Title: "Show.S01E01.1080p.WEB.new", QualityID: domain.QualityWEBDL1080p, PublishedAt: now},
	}

	res := engine.Evaluate(profile, nil, nil, candidates)
	require.Len(t, res.Ranked, 3)
	assert.Equal(t, "Show.S01E01.1080p.WEB.new", res.Ranked[0].Title)
	assert.Equal(t, "Show.S01E01.1080p.WEB.old", res.Ranked[1].Title)
	assert.Equal(t, "Show.S01E01.1080p.HDTV", res.Ranked[2].Title)
}
