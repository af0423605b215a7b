// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package delay holds accepted releases back per delay profile and promotes
// them into the download queue once their wait elapses.
package delay

import (
	"time"

	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/models"
	"github.com/autobrr/fetcharr/internal/services/decision"
)

// Action is the policy outcome for one accepted candidate.
type Action int

const (
	// ActionGrab sends the release to the queue immediately.
	ActionGrab Action = iota
	// ActionDelay parks the release until the computed wait elapses.
	ActionDelay
	// ActionDrop discards the release; its protocol is disabled.
	ActionDrop
)

// Verdict carries the action and, for ActionDelay, how long to wait.
type Verdict struct {
	Action Action
	Wait   time.Duration
	Reason string
}

// SelectProfile picks the delay profile for a title. A tagged profile
// applies only when every one of its tags is on the media; among applicable
// profiles the widest tag scope wins, then the lowest order. An untagged
// profile acts as the fallback. Returns nil when no profile applies.
func SelectProfile(profiles []*models.DelayProfile, mediaTags []string) *models.DelayProfile {
	tagSet := make(map[string]struct{}, len(mediaTags))
	for _, tag := range mediaTags {
		tagSet[tag] = struct{}{}
	}

	var (
		best      *models.DelayProfile
		bestScore = -1
	)
	for _, profile := range profiles {
		matched := 0
		for _, tag := range profile.Tags {
			if _, ok := tagSet[tag]; ok {
				matched++
			}
		}
		if matched < len(profile.Tags) {
			continue
		}
		score := len(profile.Tags)
		if score > bestScore || (score == bestScore && best != nil && profile.Order < best.Order) {
			best = profile
			bestScore = score
		}
	}
	return best
}

// Evaluate applies a delay profile to an accepted candidate. A disabled
// protocol drops the release outright; bypass conditions and a zero delay
// grab it immediately; otherwise the protocol's configured delay applies.
func Evaluate(profile *models.DelayProfile, qualityProfile *models.QualityProfile, c *domain.Candidate) Verdict {
	if profile == nil {
		return Verdict{Action: ActionGrab, Reason: "no delay profile applies"}
	}

	var delayMinutes int
	switch c.Protocol {
	case domain.ProtocolUsenet:
		if !profile.EnableUsenet {
			return Verdict{Action: ActionDrop, Reason: "usenet disabled by delay profile"}
		}
		delayMinutes = profile.UsenetDelayMinutes
	case domain.ProtocolTorrent:
		if !profile.EnableTorrent {
			return Verdict{Action: ActionDrop, Reason: "torrent disabled by delay profile"}
		}
		delayMinutes = profile.TorrentDelayMinutes
	}

	if delayMinutes == 0 {
		return Verdict{Action: ActionGrab, Reason: "no delay configured for protocol"}
	}

	if profile.BypassIfHighestQuality {
		if rank, ok := decision.Rank(qualityProfile, c.QualityID); ok && rank == 0 {
			return Verdict{Action: ActionGrab, Reason: "highest quality in profile bypasses delay"}
		}
	}
	if profile.BypassIfAboveFormatScore && c.FormatScore >= profile.MinimumFormatScore {
		return Verdict{Action: ActionGrab, Reason: "format score bypasses delay"}
	}

	return Verdict{
		Action: ActionDelay,
		Wait:   time.Duration(delayMinutes) * time.Minute,
		Reason: "waiting out protocol delay",
	}
}
