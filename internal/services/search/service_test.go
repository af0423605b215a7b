// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/fetcharr/internal/database"
	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/models"
	"github.com/autobrr/fetcharr/internal/services/health"
)

const feedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed">
  <channel>
    <item>
      <title>%s</title>
      <guid>abc-123</guid>
      <link>https://indexer.example/dl/abc-123</link>
      <size>2147483648</size>
      <pubDate>Fri, 01 Aug 2026 12:00:00 +0000</pubDate>
      <torznab:attr name="seeders" value="42"/>
    </item>
  </channel>
</rss>`

func TestTorznabClientSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api", r.URL.Path)
		assert.Equal(t, "tvsearch", r.URL.Query().Get("t"))
		assert.Equal(t, "secret", r.URL.Query().Get("apikey"))
		assert.Equal(t, "2", r.URL.Query().Get("season"))
		assert.Equal(t, "5", r.URL.Query().Get("ep"))
		fmt.Fprintf(w, feedTemplate, "The.Expanse.S02E05.1080p.WEB-DL.DD5.1.H264-NTb")
	}))
	defer srv.Close()

	indexer := &models.Indexer{
		ID:       3,
		Name:     "mock",
		BaseURL:  srv.URL,
		APIKey:   "secret",
		Protocol: domain.ProtocolTorrent,
		Priority: 10,
	}

	client := NewTorznabClient()
	candidates, err := client.Search(context.Background(), indexer, Query{Term: "The Expanse", Season: 2, Episode: 5})
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, 3, c.IndexerID)
	assert.Equal(t, 10, c.IndexerPriority)
	assert.Equal(t, domain.ProtocolTorrent, c.Protocol)
	assert.Equal(t, domain.QualityWEBDL1080p, c.QualityID)
	assert.Equal(t, int64(2147483648), c.Size)
	assert.Equal(t, "https://indexer.example/dl/abc-123", c.DownloadURL)
	assert.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), c.PublishedAt)
}

func TestTorznabClientSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewTorznabClient()
	_, err := client.Search(context.Background(), &models.Indexer{Name: "broken", BaseURL: srv.URL}, Query{Term: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}

type fakeSearcher struct {
	perIndexer map[int]func(ctx context.Context) ([]*domain.Candidate, error)
}

func (f *fakeSearcher) Search(ctx context.Context, indexer *models.Indexer, _ Query) ([]*domain.Candidate, error) {
	return f.perIndexer[indexer.ID](ctx)
}

func newFanoutFixture(t *testing.T, searcher Searcher) (*Service, *health.Tracker, *models.IndexerStore) {
	t.Helper()

	db, err := database.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	indexers := models.NewIndexerStore(db)
	tracker := health.NewTracker(models.NewIntegrationStatusStore(db))
	return NewService(indexers, searcher, tracker, 4), tracker, indexers
}

// One indexer hangs past its timeout while the others answer; the fan-out
// returns the partial results and records the failure.
func TestSearchPartialResults(t *testing.T) {
	searcher := &fakeSearcher{perIndexer: map[int]func(ctx context.Context) ([]*domain.Candidate, error){
		1: func(context.Context) ([]*domain.Candidate, error) {
			return []*domain.Candidate{{Title: "Show.S01E01.1080p.WEB-A"}}, nil
		},
		2: func(ctx context.Context) ([]*domain.Candidate, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		3: func(context.Context) ([]*domain.Candidate, error) {
			return []*domain.Candidate{{Title: "Show.S01E01.1080p.WEB-B"}}, nil
		},
	}}

	svc, tracker, indexers := newFanoutFixture(t, searcher)
	ctx := context.Background()

	for id := 1; id <= 3; id++ {
		timeout := 30
		if id == 2 {
			// Hangs until the deadline fires.
			timeout = 1
		}
		_, err := indexers.Create(ctx, &models.Indexer{
			Name:           fmt.Sprintf("indexer-%d", id),
			BaseURL:        "https://indexer.example",
			Protocol:       domain.ProtocolTorrent,
			Enabled:        true,
			TimeoutSeconds: timeout,
		})
		require.NoError(t, err)
	}

	res, err := svc.Search(ctx, Query{Term: "Show"})
	require.NoError(t, err)

	assert.Len(t, res.Candidates, 2)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "indexer-2", res.Errors[0].Name)

	// The failed indexer is now rested and skipped on the next fan-out.
	assert.False(t, tracker.IsUsable(models.IntegrationKey{Kind: models.IntegrationKindIndexer, ID: 2}))

	res, err = svc.Search(ctx, Query{Term: "Show"})
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 2)
	assert.Equal(t, []string{"indexer-2"}, res.Skipped)
	assert.Empty(t, res.Errors)
}

func TestSearchRecoversIndexer(t *testing.T) {
	searcher := &fakeSearcher{perIndexer: map[int]func(ctx context.Context) ([]*domain.Candidate, error){
		1: func(context.Context) ([]*domain.Candidate, error) {
			return []*domain.Candidate{{Title: "Show.S01E01.1080p.WEB"}}, nil
		},
	}}

	svc, tracker, indexers := newFanoutFixture(t, searcher)
	ctx := context.Background()

	created, err := indexers.Create(ctx, &models.Indexer{
		Name: "flaky", BaseURL: "https://indexer.example",
		Protocol: domain.ProtocolTorrent, Enabled: true, TimeoutSeconds: 30,
	})
	require.NoError(t, err)

	key := models.IntegrationKey{Kind: models.IntegrationKindIndexer, ID: created.ID}
	tracker.RecordFailure(ctx, key, fmt.Errorf("http 500"))
	require.False(t, tracker.IsUsable(key))

	// Move the clock past the rest period; the next fan-out probes the
	// indexer and the success closes the breaker.
	disabled := tracker.Status(key)
	require.NotNil(t, disabled.DisabledTill)
	tracker.SetNow(func() time.Time { return disabled.DisabledTill.Add(time.Second) })

	res, err := svc.Search(ctx, Query{Term: "Show"})
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 1)
	assert.True(t, tracker.IsUsable(key))
	assert.Zero(t, tracker.Status(key).EscalationLevel)
}
