// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package decision

import (
	"github.com/rs/zerolog/log"

	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/models"
)

// Rejection records why a candidate was filtered out, for the search
// response and history.
type Rejection struct {
	Candidate *domain.Candidate `json:"candidate"`
	Reason    string            `json:"reason"`
}

// Result is the outcome of evaluating one search's candidates against a
// single media target.
type Result struct {
	Accepted *domain.Candidate `json:"accepted,omitempty"`
	// Ranked holds every surviving candidate best-first, Accepted included.
	// Kept so a grab failure can fall through to the next choice.
	Ranked   []*domain.Candidate `json:"ranked,omitempty"`
	Rejected []Rejection         `json:"rejected,omitempty"`
}

// Engine filters and ranks candidates for a quality profile. Blocklisted
// fingerprints are dropped before any scoring work happens.
type Engine struct {
	matcher *Matcher
}

func NewEngine(matcher *Matcher) *Engine {
	return &Engine{matcher: matcher}
}

// Evaluate applies, in order: blocklist, profile quality membership,
// custom format scoring, minimum score, and upgrade checks against the
// current file. Survivors are ranked and the best becomes Accepted.
func (e *Engine) Evaluate(profile *models.QualityProfile, current *Current, blocked map[string]struct{}, candidates []*domain.Candidate) *Result {
	res := &Result{}

	for _, c := range candidates {
		if _, ok := blocked[c.Fingerprint()]; ok {
			res.Rejected = append(res.Rejected, Rejection{Candidate: c, Reason: "release is blocklisted"})
			continue
		}

		if _, ok := Rank(profile, c.QualityID); !ok {
			res.Rejected = append(res.Rejected, Rejection{Candidate: c, Reason: "quality not wanted by profile"})
			continue
		}

		c.MatchedFormatIDs, c.FormatScore = e.matcher.Score(c, profile)

		if c.FormatScore < profile.MinFormatScore {
			res.Rejected = append(res.Rejected, Rejection{Candidate: c, Reason: "custom format score below profile minimum"})
			continue
		}

		if !IsUpgrade(profile, current, c.QualityID, c.FormatScore) {
			res.Rejected = append(res.Rejected, Rejection{Candidate: c, Reason: "not an upgrade for existing file"})
			continue
		}

		res.Ranked = append(res.Ranked, c)
	}

	if len(res.Ranked) == 0 {
		return res
	}

	Sort(profile, res.Ranked)
	res.Accepted = res.Ranked[0]

	log.Debug().
		Str("title", res.Accepted.Title).
		Int("formatScore", res.Accepted.FormatScore).
		Int("candidates", len(candidates)).
		Int("rejected", len(res.Rejected)).
		Msg("Selected release")

	return res
}
