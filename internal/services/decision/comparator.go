// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package decision

import (
	"sort"
	"strings"

	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/models"
)

// Compare orders two candidates that already passed profile filtering.
// Negative means a is preferred. The chain is total: two candidates never
// tie, so a scan over the same input always picks the same winner.
func Compare(profile *models.QualityProfile, a, b *domain.Candidate) int {
	rankA, _ := Rank(profile, a.QualityID)
	rankB, _ := Rank(profile, b.QualityID)
	if rankA != rankB {
		return rankA - rankB
	}
	if a.FormatScore != b.FormatScore {
		return b.FormatScore - a.FormatScore
	}
	if !a.PublishedAt.Equal(b.PublishedAt) {
		if a.PublishedAt.After(b.PublishedAt) {
			return -1
		}
		return 1
	}
	if a.IndexerPriority != b.IndexerPriority {
		return a.IndexerPriority - b.IndexerPriority
	}
	return strings.Compare(a.Title, b.Title)
}

// Sort orders candidates best-first, in place.
func Sort(profile *models.QualityProfile, candidates []*domain.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return Compare(profile, candidates[i], candidates[j]) < 0
	})
}
