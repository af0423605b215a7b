// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package search queries indexers and turns their feeds into scored
// release candidates.
package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/models"
)

// Query describes one search request fanned out to the indexers.
type Query struct {
	Term    string
	Season  int
	Episode int
}

type torznabFeed struct {
	Channel struct {
		Items []torznabItem `xml:"item"`
	} `xml:"channel"`
}

type torznabItem struct {
	Title   string        `xml:"title"`
	GUID    string        `xml:"guid"`
	Link    string        `xml:"link"`
	Size    int64         `xml:"size"`
	PubDate string        `xml:"pubDate"`
	Attrs   []torznabAttr `xml:"attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func (i torznabItem) attr(name string) string {
	for _, a := range i.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// TorznabClient speaks the torznab API dialect all supported indexers
// expose. One client serves every indexer; per-indexer timeouts come from
// the indexer row via the request context.
type TorznabClient struct {
	http *http.Client
}

func NewTorznabClient() *TorznabClient {
	return &TorznabClient{
		http: &http.Client{
			// Hard ceiling; per-indexer timeouts are shorter.
			Timeout: 2 * time.Minute,
		},
	}
}

// Search runs one query against one indexer and returns parsed candidates.
// Candidates carry the indexer's ID and priority so later stages can rank
// and blocklist without re-resolving the indexer.
func (c *TorznabClient) Search(ctx context.Context, indexer *models.Indexer, q Query) ([]*domain.Candidate, error) {
	endpoint, err := url.Parse(indexer.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("indexer %q: parse base url: %w", indexer.Name, err)
	}
	endpoint = endpoint.JoinPath("api")

	params := url.Values{}
	params.Set("t", "search")
	params.Set("apikey", indexer.APIKey)
	params.Set("q", q.Term)
	if q.Season > 0 {
		params.Set("t", "tvsearch")
		params.Set("season", strconv.Itoa(q.Season))
		if q.Episode > 0 {
			params.Set("ep", strconv.Itoa(q.Episode))
		}
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer %q: %w", indexer.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("indexer %q: unexpected status %d", indexer.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("indexer %q: read response: %w", indexer.Name, err)
	}

	var feed torznabFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("indexer %q: decode feed: %w", indexer.Name, err)
	}

	candidates := make([]*domain.Candidate, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		if item.Title == "" || item.Link == "" {
			continue
		}

		candidate := ParseTitle(item.Title)
		candidate.IndexerID = indexer.ID
		candidate.IndexerPriority = indexer.Priority
		candidate.Protocol = indexer.Protocol
		candidate.DownloadURL = item.Link
		candidate.GUID = item.GUID
		candidate.Size = item.Size

		if sz := item.attr("size"); candidate.Size == 0 && sz != "" {
			candidate.Size, _ = strconv.ParseInt(sz, 10, 64)
		}
		if published, err := parsePubDate(item.PubDate); err == nil {
			candidate.PublishedAt = published
		}

		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func parsePubDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized pubDate %q", s)
}
