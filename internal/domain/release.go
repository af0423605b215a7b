// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"fmt"
	"strings"
	"time"
)

// Protocol identifies how a release is transferred.
type Protocol string

const (
	ProtocolUsenet  Protocol = "usenet"
	ProtocolTorrent Protocol = "torrent"
)

// ParseProtocol normalizes a protocol string, defaulting unknown values to torrent.
func ParseProtocol(s string) Protocol {
	if strings.EqualFold(strings.TrimSpace(s), string(ProtocolUsenet)) {
		return ProtocolUsenet
	}
	return ProtocolTorrent
}

// Candidate is a single release offered by an indexer, with parsed attributes
// and scoring derived during evaluation.
type Candidate struct {
	Title       string    `json:"title"`
	IndexerID   int       `json:"indexerId"`
	Protocol    Protocol  `json:"protocol"`
	Size        int64     `json:"size"`
	PublishedAt time.Time `json:"publishedAt"`
	DownloadURL string    `json:"downloadUrl"`
	GUID        string    `json:"guid"`

	QualityID    int      `json:"qualityId"`
	Languages    []string `json:"languages,omitempty"`
	ReleaseGroup string   `json:"releaseGroup,omitempty"`
	Season       int      `json:"season,omitempty"`
	Episode      int      `json:"episode,omitempty"`

	// Derived during evaluation.
	MatchedFormatIDs []int `json:"matchedFormatIds,omitempty"`
	FormatScore      int   `json:"formatScore"`

	// IndexerPriority is copied from the indexer row at search time;
	// lower numbers are preferred when everything else ties.
	IndexerPriority int `json:"indexerPriority"`
}

// Fingerprint identifies a release across search cycles for blocklisting.
// Title normalization keeps re-posted spacing/case variants matched.
func (c Candidate) Fingerprint() string {
	return ReleaseFingerprint(c.IndexerID, c.Protocol, c.Title)
}

// ReleaseFingerprint builds the normalized blocklist key.
func ReleaseFingerprint(indexerID int, protocol Protocol, title string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(title), " "))
	return fmt.Sprintf("%d:%s:%s", indexerID, protocol, norm)
}
