// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package decision evaluates release candidates against quality profiles
// and custom formats, and ranks the survivors so exactly one release is
// picked per media target.
package decision

import (
	"github.com/autobrr/fetcharr/internal/models"
)

// Allowed reports whether a quality is an enabled item of the profile.
func Allowed(profile *models.QualityProfile, qualityID int) bool {
	_, ok := Rank(profile, qualityID)
	return ok
}

// Rank returns the positional priority of a quality inside the profile's
// item list. Lower rank means more wanted; index 0 is the top preference.
// Disabled or unknown qualities have no rank and are rejected outright,
// never compared.
func Rank(profile *models.QualityProfile, qualityID int) (int, bool) {
	for i, item := range profile.Items {
		if item.QualityID == qualityID {
			if !item.Allowed {
				return 0, false
			}
			return i, true
		}
	}
	return 0, false
}

// CutoffRank returns the rank of the profile cutoff. Save-time validation
// guarantees the cutoff is an enabled item.
func CutoffRank(profile *models.QualityProfile) int {
	rank, _ := Rank(profile, profile.CutoffQualityID)
	return rank
}

// Current describes what is already on disk for the target.
type Current struct {
	QualityID   int
	FormatScore int
}

// AtQualityCutoff reports whether the current quality satisfies the cutoff.
func AtQualityCutoff(profile *models.QualityProfile, qualityID int) bool {
	rank, ok := Rank(profile, qualityID)
	if !ok {
		return false
	}
	return rank <= CutoffRank(profile)
}

// IsFormatUpgrade reports whether a custom format score improvement still
// counts. Once the current score reaches the cutoff score, further
// score-only improvements are not upgrades.
func IsFormatUpgrade(profile *models.QualityProfile, currentScore, candidateScore int) bool {
	if currentScore >= profile.CutoffFormatScore {
		return false
	}
	return candidateScore > currentScore
}

// IsUpgrade decides whether a candidate improves on the current file.
//
// With nothing on disk any allowed candidate is wanted. Otherwise upgrades
// require UpgradeAllowed, and the cutoff is a hard ceiling: once the
// current quality ranks at or above the cutoff, only candidates strictly
// above the cutoff rank (impossible by definition) or format score gains
// below the score cutoff qualify.
func IsUpgrade(profile *models.QualityProfile, current *Current, candidateQualityID, candidateScore int) bool {
	candRank, ok := Rank(profile, candidateQualityID)
	if !ok {
		return false
	}
	if current == nil {
		return true
	}

	curRank, ok := Rank(profile, current.QualityID)
	if !ok {
		// Whatever is on disk is not in the profile anymore; any allowed
		// candidate is an improvement.
		return true
	}
	if !profile.UpgradeAllowed {
		return false
	}

	cutoff := CutoffRank(profile)

	if candRank < curRank {
		if curRank <= cutoff && candRank >= cutoff {
			return false
		}
		return true
	}
	if candRank == curRank {
		return IsFormatUpgrade(profile, current.FormatScore, candidateScore)
	}
	return false
}
