// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/autobrr/fetcharr/internal/dbinterface"
)

var ErrIntegrationStatusNotFound = errors.New("integration status not found")

// IntegrationKind distinguishes the two classes of external integrations
// the health tracker watches.
type IntegrationKind string

const (
	IntegrationKindIndexer        IntegrationKind = "indexer"
	IntegrationKindDownloadClient IntegrationKind = "download_client"
)

// IntegrationKey identifies one integration row.
type IntegrationKey struct {
	Kind IntegrationKind
	ID   int
}

func (k IntegrationKey) String() string {
	return fmt.Sprintf("%s:%d", k.Kind, k.ID)
}

// IntegrationStatus is the circuit-breaker state record for one integration.
type IntegrationStatus struct {
	Key                 IntegrationKey `json:"key"`
	InitialFailureAt    *time.Time     `json:"initialFailureAt,omitempty"`
	MostRecentFailureAt *time.Time     `json:"mostRecentFailureAt,omitempty"`
	EscalationLevel     int            `json:"escalationLevel"`
	DisabledTill        *time.Time     `json:"disabledTill,omitempty"`
	LastError           string         `json:"lastError,omitempty"`
}

type IntegrationStatusStore struct {
	db dbinterface.Querier
}

func NewIntegrationStatusStore(db dbinterface.Querier) *IntegrationStatusStore {
	return &IntegrationStatusStore{db: db}
}

// Get returns the status row for an integration, or a zero-state record if
// none has been written yet.
func (s *IntegrationStatusStore) Get(ctx context.Context, key IntegrationKey) (*IntegrationStatus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT kind, integration_id, initial_failure_at, most_recent_failure_at, escalation_level, disabled_till, last_error
		FROM integration_status
		WHERE kind = ? AND integration_id = ?
	`, string(key.Kind), key.ID)

	status, err := scanIntegrationStatus(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return &IntegrationStatus{Key: key}, nil
	}
	return status, err
}

// Upsert writes the full status row in a single atomic statement.
func (s *IntegrationStatusStore) Upsert(ctx context.Context, status *IntegrationStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO integration_status (kind, integration_id, initial_failure_at, most_recent_failure_at, escalation_level, disabled_till, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, integration_id) DO UPDATE SET
			initial_failure_at = excluded.initial_failure_at,
			most_recent_failure_at = excluded.most_recent_failure_at,
			escalation_level = excluded.escalation_level,
			disabled_till = excluded.disabled_till,
			last_error = excluded.last_error
	`, string(status.Key.Kind), status.Key.ID,
		formatNullableTime(status.InitialFailureAt), formatNullableTime(status.MostRecentFailureAt),
		status.EscalationLevel, formatNullableTime(status.DisabledTill), status.LastError)
	if err != nil {
		return fmt.Errorf("upsert integration status: %w", err)
	}
	return nil
}

// List returns every tracked integration row.
func (s *IntegrationStatusStore) List(ctx context.Context) ([]*IntegrationStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, integration_id, initial_failure_at, most_recent_failure_at, escalation_level, disabled_till, last_error
		FROM integration_status
		ORDER BY kind, integration_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []*IntegrationStatus
	for rows.Next() {
		status, err := scanIntegrationStatus(rows.Scan)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

func scanIntegrationStatus(scan func(...any) error) (*IntegrationStatus, error) {
	var (
		status       IntegrationStatus
		kind         string
		initialAt    sql.NullString
		mostRecentAt sql.NullString
		disabledTill sql.NullString
	)
	if err := scan(&kind, &status.Key.ID, &initialAt, &mostRecentAt, &status.EscalationLevel, &disabledTill, &status.LastError); err != nil {
		return nil, err
	}
	status.Key.Kind = IntegrationKind(kind)

	var err error
	if status.InitialFailureAt, err = parseNullableTime(initialAt); err != nil {
		return nil, fmt.Errorf("parse initial_failure_at: %w", err)
	}
	if status.MostRecentFailureAt, err = parseNullableTime(mostRecentAt); err != nil {
		return nil, fmt.Errorf("parse most_recent_failure_at: %w", err)
	}
	if status.DisabledTill, err = parseNullableTime(disabledTill); err != nil {
		return nil, fmt.Errorf("parse disabled_till: %w", err)
	}
	return &status, nil
}
