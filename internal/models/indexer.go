// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/autobrr/fetcharr/internal/dbinterface"
	"github.com/autobrr/fetcharr/internal/domain"
)

var ErrIndexerNotFound = errors.New("indexer not found")

// Indexer is a configured Torznab search integration. Priority is a user
// ordering where lower numbers win comparator ties.
type Indexer struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	BaseURL        string          `json:"baseUrl"`
	APIKey         string          `json:"-"`
	Protocol       domain.Protocol `json:"protocol"`
	Priority       int             `json:"priority"`
	Enabled        bool            `json:"enabled"`
	TimeoutSeconds int             `json:"timeoutSeconds"`
}

func (i *Indexer) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if _, err := url.Parse(i.BaseURL); err != nil || !strings.Contains(i.BaseURL, "://") {
		return &ValidationError{Field: "baseUrl", Reason: "must be an absolute URL"}
	}
	return nil
}

type IndexerStore struct {
	db dbinterface.Querier
}

func NewIndexerStore(db dbinterface.Querier) *IndexerStore {
	return &IndexerStore{db: db}
}

func (s *IndexerStore) Create(ctx context.Context, indexer *Indexer) (*Indexer, error) {
	if err := indexer.Validate(); err != nil {
		return nil, err
	}
	if indexer.TimeoutSeconds <= 0 {
		indexer.TimeoutSeconds = 30
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO indexers (name, base_url, api_key, protocol, priority, enabled, timeout_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, indexer.Name, indexer.BaseURL, indexer.APIKey, string(indexer.Protocol),
		indexer.Priority, indexer.Enabled, indexer.TimeoutSeconds).Scan(&indexer.ID)
	if err != nil {
		return nil, fmt.Errorf("insert indexer: %w", err)
	}
	return indexer, nil
}

func (s *IndexerStore) Update(ctx context.Context, indexer *Indexer) error {
	if err := indexer.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE indexers
		SET name = ?, base_url = ?, api_key = ?, protocol = ?, priority = ?, enabled = ?, timeout_seconds = ?
		WHERE id = ?
	`, indexer.Name, indexer.BaseURL, indexer.APIKey, string(indexer.Protocol),
		indexer.Priority, indexer.Enabled, indexer.TimeoutSeconds, indexer.ID)
	if err != nil {
		return fmt.Errorf("update indexer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIndexerNotFound
	}
	return nil
}

func (s *IndexerStore) Get(ctx context.Context, id int) (*Indexer, error) {
	row := s.db.QueryRowContext(ctx, indexerSelect+" WHERE id = ?", id)
	indexer, err := scanIndexer(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIndexerNotFound
	}
	return indexer, err
}

const indexerSelect = `
	SELECT id, name, base_url, api_key, protocol, priority, enabled, timeout_seconds
	FROM indexers`

func (s *IndexerStore) List(ctx context.Context) ([]*Indexer, error) {
	return s.listWhere(ctx, indexerSelect+" ORDER BY priority, id")
}

func (s *IndexerStore) ListEnabled(ctx context.Context) ([]*Indexer, error) {
	return s.listWhere(ctx, indexerSelect+" WHERE enabled = 1 ORDER BY priority, id")
}

func (s *IndexerStore) listWhere(ctx context.Context, query string, args ...any) ([]*Indexer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexers []*Indexer
	for rows.Next() {
		indexer, err := scanIndexer(rows.Scan)
		if err != nil {
			return nil, err
		}
		indexers = append(indexers, indexer)
	}
	return indexers, rows.Err()
}

func (s *IndexerStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM indexers WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIndexerNotFound
	}
	return nil
}

func scanIndexer(scan func(...any) error) (*Indexer, error) {
	var (
		indexer  Indexer
		protocol string
	)
	if err := scan(&indexer.ID, &indexer.Name, &indexer.BaseURL, &indexer.APIKey, &protocol,
		&indexer.Priority, &indexer.Enabled, &indexer.TimeoutSeconds); err != nil {
		return nil, err
	}
	indexer.Protocol = domain.Protocol(protocol)
	return &indexer, nil
}
