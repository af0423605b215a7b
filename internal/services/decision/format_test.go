// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/models"
)

func TestMatcherScore(t *testing.T) {
	formats := []*models.CustomFormat{
		{
			ID:   1,
			Name: "x265",
			Specifications: []models.FormatSpecification{
				{Implementation: SpecReleaseTitle, Fields: map[string]any{"value": `x265|HEVC`}},
			},
		},
		{
			ID:   2,
			Name: "Not French",
			Specifications: []models.FormatSpecification{
				{Implementation: SpecLanguage, Negate: true, Fields: map[string]any{"value": "french"}},
			},
		},
		{
			ID:   3,
			Name: "Big remux",
			Specifications: []models.FormatSpecification{
				{Implementation: SpecReleaseTitle, Required: true, Fields: map[string]any{"value": `remux`}},
				{Implementation: SpecSize, Fields: map[string]any{"min": 20.0, "max": 60.0}},
			},
		},
	}

	matcher, err := NewMatcher(formats)
	require.NoError(t, err)

	profile := hd1080Profile()
	profile.FormatScores = map[int]int{1: 10, 2: 5, 3: 100}

	tests := []struct {
		name        string
		candidate   domain.Candidate
		wantMatched []int
		wantScore   int
	}{
		{
			name:        "title regex is case insensitive",
			candidate:   domain.Candidate{Title: "Show.S01E01.1080p.WEB.x265-GRP"},
			wantMatched: []int{1, 2},
			wantScore:   15,
		},
		{
			name:        "negated language stops matching when language present",
			candidate:   domain.Candidate{Title: "Show.S01E01.1080p", Languages: []string{"French"}},
			wantMatched: nil,
			wantScore:   0,
		},
		{
			name: "all specifications must match",
			candidate: domain.Candidate{
				Title: "Show.S01E01.1080p.Remux",
				Size:  5 << 30,
			},
			wantMatched: []int{2},
			wantScore:   5,
		},
		{
			name: "size window in gigabytes",
			candidate: domain.Candidate{
				Title: "Show.S01E01.Bluray.Remux",
				Size:  30 << 30,
			},
			wantMatched: []int{2, 3},
			wantScore:   105,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.candidate
			matched, score := matcher.Score(&c, profile)
			assert.Equal(t, tt.wantMatched, matched)
			assert.Equal(t, tt.wantScore, score)
		})
	}
}

func TestMatcherExpression(t *testing.T) {
	matcher, err := NewMatcher([]*models.CustomFormat{
		{
			ID:   7,
			Name: "Trusted torrent",
			Specifications: []models.FormatSpecification{
				{Implementation: SpecExpression, Fields: map[string]any{
					"expression": `Protocol == "torrent" && Size > 1073741824 && ReleaseGroup in ["FLUX", "NTb"]`,
				}},
			},
		},
	})
	require.NoError(t, err)

	profile := hd1080Profile()
	profile.FormatScores = map[int]int{7: 25}

	hit := &domain.Candidate{Title: "x", Protocol: domain.ProtocolTorrent, Size: 2 << 30, ReleaseGroup: "FLUX"}
	matched, score := matcher.Score(hit, profile)
	assert.Equal(t, []int{7}, matched)
	assert.Equal(t, 25, score)

	miss := &domain.Candidate{Title: "x", Protocol: domain.ProtocolUsenet, Size: 2 << 30, ReleaseGroup: "FLUX"}
	matched, score = matcher.Score(miss, profile)
	assert.Nil(t, matched)
	assert.Zero(t, score)
}

func TestMatcherUnscoredFormatContributesZero(t *testing.T) {
	matcher, err := NewMatcher([]*models.CustomFormat{
		{
			ID:   9,
			Name: "HDR",
			Specifications: []models.FormatSpecification{
				{Implementation: SpecReleaseTitle, Fields: map[string]any{"value": `\bHDR\b`}},
			},
		},
	})
	require.NoError(t, err)

	profile := hd1080Profile()

	matched, score := matcher.Score(&domain.Candidate{Title: "Show 2160p HDR WEB"}, profile)
	assert.Equal(t, []int{9}, matched)
	assert.Zero(t, score)
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		name   string
		format models.CustomFormat
		field  string
	}{
		{
			name:   "empty name",
			format: models.CustomFormat{Specifications: []models.FormatSpecification{{Implementation: SpecProtocol, Fields: map[string]any{"value": "torrent"}}}},
			field:  "name",
		},
		{
			name:   "no specifications",
			format: models.CustomFormat{Name: "empty"},
			field:  "specifications",
		},
		{
			name: "invalid regex",
			format: models.CustomFormat{Name: "bad", Specifications: []models.FormatSpecification{
				{Implementation: SpecReleaseTitle, Fields: map[string]any{"value": `[unclosed`}},
			}},
			field: "specifications[0]",
		},
		{
			name: "invalid expression",
			format: models.CustomFormat{Name: "bad", Specifications: []models.FormatSpecification{
				{Implementation: SpecExpression, Fields: map[string]any{"expression": `Size >`}},
			}},
			field: "specifications[0]",
		},
		{
			name: "unknown implementation",
			format: models.CustomFormat{Name: "bad", Specifications: []models.FormatSpecification{
				{Implementation: "does_not_exist", Fields: map[string]any{}},
			}},
			field: "specifications[0]",
		},
		{
			name: "size window inverted",
			format: models.CustomFormat{Name: "bad", Specifications: []models.FormatSpecification{
				{Implementation: SpecSize, Fields: map[string]any{"min": 10.0, "max": 2.0}},
			}},
			field: "specifications[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFormat(&tt.format)
			require.Error(t, err)

			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateFormatAccepts(t *testing.T) {
	err := ValidateFormat(&models.CustomFormat{
		Name: "good",
		Specifications: []models.FormatSpecification{
			{Implementation: SpecReleaseTitle, Fields: map[string]any{"value": `\d{3,4}p`}},
			{Implementation: SpecQuality, Fields: map[string]any{"qualityId": float64(domain.QualityWEBDL1080p)}},
			{Implementation: SpecExpression, Fields: map[string]any{"expression": `Size < 10737418240`}},
		},
	})
	assert.NoError(t, err)
}
