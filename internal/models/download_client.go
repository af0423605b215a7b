// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/autobrr/fetcharr/internal/dbinterface"
)

var ErrDownloadClientNotFound = errors.New("download client not found")

// DownloadClient is a configured download execution integration.
type DownloadClient struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Implementation string `json:"implementation"`
	Host           string `json:"host"`
	Username       string `json:"username"`
	Password       string `json:"-"`
	Enabled        bool   `json:"enabled"`
}

func (c *DownloadClient) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(c.Implementation) == "" {
		return &ValidationError{Field: "implementation", Reason: "must not be empty"}
	}
	if strings.TrimSpace(c.Host) == "" {
		return &ValidationError{Field: "host", Reason: "must not be empty"}
	}
	return nil
}

type DownloadClientStore struct {
	db dbinterface.Querier
}

func NewDownloadClientStore(db dbinterface.Querier) *DownloadClientStore {
	return &DownloadClientStore{db: db}
}

func (s *DownloadClientStore) Create(ctx context.Context, client *DownloadClient) (*DownloadClient, error) {
	if err := client.Validate(); err != nil {
		return nil, err
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO download_clients (name, implementation, host, username, password, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, client.Name, client.Implementation, client.Host, client.Username, client.Password, client.Enabled).Scan(&client.ID)
	if err != nil {
		return nil, fmt.Errorf("insert download client: %w", err)
	}
	return client, nil
}

func (s *DownloadClientStore) Update(ctx context.Context, client *DownloadClient) error {
	if err := client.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE download_clients
		SET name = ?, implementation = ?, host = ?, username = ?, password = ?, enabled = ?
		WHERE id = ?
	`, client.Name, client.Implementation, client.Host, client.Username, client.Password, client.Enabled, client.ID)
	if err != nil {
		return fmt.Errorf("update download client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDownloadClientNotFound
	}
	return nil
}

const downloadClientSelect = `
	SELECT id, name, implementation, host, username, password, enabled
	FROM download_clients`

func (s *DownloadClientStore) Get(ctx context.Context, id int) (*DownloadClient, error) {
	row := s.db.QueryRowContext(ctx, downloadClientSelect+" WHERE id = ?", id)
	client, err := scanDownloadClient(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDownloadClientNotFound
	}
	return client, err
}

func (s *DownloadClientStore) List(ctx context.Context) ([]*DownloadClient, error) {
	return s.listWhere(ctx, downloadClientSelect+" ORDER BY id")
}

func (s *DownloadClientStore) ListEnabled(ctx context.Context) ([]*DownloadClient, error) {
	return s.listWhere(ctx, downloadClientSelect+" WHERE enabled = 1 ORDER BY id")
}

func (s *DownloadClientStore) listWhere(ctx context.Context, query string, args ...any) ([]*DownloadClient, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*DownloadClient
	for rows.Next() {
		client, err := scanDownloadClient(rows.Scan)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

func (s *DownloadClientStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM download_clients WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDownloadClientNotFound
	}
	return nil
}

func scanDownloadClient(scan func(...any) error) (*DownloadClient, error) {
	var client DownloadClient
	if err := scan(&client.ID, &client.Name, &client.Implementation, &client.Host,
		&client.Username, &client.Password, &client.Enabled); err != nil {
		return nil, err
	}
	return &client, nil
}
