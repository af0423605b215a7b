// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "strings"

// QualityLevel is a fixed entry in the quality ladder. Weight is a default
// display ordering hint only; runtime ranking always uses the position of a
// quality inside a profile's item list.
type QualityLevel struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// Stable quality IDs; never reuse one.
const (
	QualityUnknown = iota
	QualitySDTV
	QualityDVD
	QualityWEBDL480p
	QualityHDTV720p
	QualityWEBDL720p
	QualityBluray720p
	QualityHDTV1080p
	QualityWEBDL1080p
	QualityBluray1080p
	QualityHDTV2160p
	QualityWEBDL2160p
	QualityBluray2160p
)

// qualityLadder is the built-in catalog.
var qualityLadder = []QualityLevel{
	{ID: QualityUnknown, Name: "Unknown", Weight: 0},
	{ID: QualitySDTV, Name: "SDTV", Weight: 10},
	{ID: QualityDVD, Name: "DVD", Weight: 20},
	{ID: QualityWEBDL480p, Name: "WEBDL-480p", Weight: 30},
	{ID: QualityHDTV720p, Name: "HDTV-720p", Weight: 40},
	{ID: QualityWEBDL720p, Name: "WEBDL-720p", Weight: 50},
	{ID: QualityBluray720p, Name: "Bluray-720p", Weight: 60},
	{ID: QualityHDTV1080p, Name: "HDTV-1080p", Weight: 70},
	{ID: QualityWEBDL1080p, Name: "WEBDL-1080p", Weight: 80},
	{ID: QualityBluray1080p, Name: "Bluray-1080p", Weight: 90},
	{ID: QualityHDTV2160p, Name: "HDTV-2160p", Weight: 100},
	{ID: QualityWEBDL2160p, Name: "WEBDL-2160p", Weight: 110},
	{ID: QualityBluray2160p, Name: "Bluray-2160p", Weight: 120},
}

var qualityByID = func() map[int]QualityLevel {
	m := make(map[int]QualityLevel, len(qualityLadder))
	for _, q := range qualityLadder {
		m[q.ID] = q
	}
	return m
}()

var qualityByName = func() map[string]QualityLevel {
	m := make(map[string]QualityLevel, len(qualityLadder))
	for _, q := range qualityLadder {
		m[strings.ToLower(q.Name)] = q
	}
	return m
}()

// QualityLadder returns the full catalog in default weight order.
func QualityLadder() []QualityLevel {
	out := make([]QualityLevel, len(qualityLadder))
	copy(out, qualityLadder)
	return out
}

// QualityByID looks up a ladder entry.
func QualityByID(id int) (QualityLevel, bool) {
	q, ok := qualityByID[id]
	return q, ok
}

// QualityByName looks up a ladder entry case-insensitively.
func QualityByName(name string) (QualityLevel, bool) {
	q, ok := qualityByName[strings.ToLower(strings.TrimSpace(name))]
	return q, ok
}
