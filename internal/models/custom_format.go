// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autobrr/fetcharr/internal/dbinterface"
)

var ErrCustomFormatNotFound = errors.New("custom format not found")

// FormatSpecification is a single rule inside a custom format. A format
// matches a candidate only when every specification matches, after applying
// each specification's negate flag. Required specifications are evaluated
// first so a miss short-circuits the rest.
type FormatSpecification struct {
	Implementation string         `json:"implementation"`
	Negate         bool           `json:"negate"`
	Required       bool           `json:"required"`
	Fields         map[string]any `json:"fields"`
}

// CustomFormat is a named classifier matched against candidate attributes.
// The score it contributes is profile-scoped (QualityProfile.FormatScores).
type CustomFormat struct {
	ID             int                   `json:"id"`
	Name           string                `json:"name"`
	Specifications []FormatSpecification `json:"specifications"`
}

type CustomFormatStore struct {
	db dbinterface.Querier

	// validate runs deep save-time checks (known implementations,
	// compilable expressions). Wired by the decision package.
	validate func(*CustomFormat) error
}

func NewCustomFormatStore(db dbinterface.Querier, validate func(*CustomFormat) error) *CustomFormatStore {
	return &CustomFormatStore{db: db, validate: validate}
}

func (s *CustomFormatStore) Create(ctx context.Context, format *CustomFormat) (*CustomFormat, error) {
	if err := s.check(format); err != nil {
		return nil, err
	}

	specs, err := json.Marshal(format.Specifications)
	if err != nil {
		return nil, fmt.Errorf("marshal specifications: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO custom_formats (name, specifications)
		VALUES (?, ?)
		RETURNING id
	`, format.Name, string(specs)).Scan(&format.ID)
	if err != nil {
		return nil, fmt.Errorf("insert custom format: %w", err)
	}
	return format, nil
}

func (s *CustomFormatStore) Update(ctx context.Context, format *CustomFormat) error {
	if err := s.check(format); err != nil {
		return err
	}

	specs, err := json.Marshal(format.Specifications)
	if err != nil {
		return fmt.Errorf("marshal specifications: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE custom_formats
		SET name = ?, specifications = ?, updated_at = datetime('now')
		WHERE id = ?
	`, format.Name, string(specs), format.ID)
	if err != nil {
		return fmt.Errorf("update custom format: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCustomFormatNotFound
	}
	return nil
}

func (s *CustomFormatStore) Get(ctx context.Context, id int) (*CustomFormat, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, name, specifications FROM custom_formats WHERE id = ?", id)
	format, err := scanCustomFormat(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomFormatNotFound
	}
	return format, err
}

func (s *CustomFormatStore) List(ctx context.Context) ([]*CustomFormat, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, specifications FROM custom_formats ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var formats []*CustomFormat
	for rows.Next() {
		format, err := scanCustomFormat(rows.Scan)
		if err != nil {
			return nil, err
		}
		formats = append(formats, format)
	}
	return formats, rows.Err()
}

func (s *CustomFormatStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM custom_formats WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCustomFormatNotFound
	}
	return nil
}

func (s *CustomFormatStore) check(format *CustomFormat) error {
	if format.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(format.Specifications) == 0 {
		return &ValidationError{Field: "specifications", Reason: "must contain at least one specification"}
	}
	if s.validate != nil {
		return s.validate(format)
	}
	return nil
}

func scanCustomFormat(scan func(...any) error) (*CustomFormat, error) {
	var (
		format CustomFormat
		specs  string
	)
	if err := scan(&format.ID, &format.Name, &specs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(specs), &format.Specifications); err != nil {
		return nil, fmt.Errorf("unmarshal specifications: %w", err)
	}
	return &format, nil
}
