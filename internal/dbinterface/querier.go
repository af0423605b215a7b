// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dbinterface abstracts the subset of database/sql used by the
// model stores so they can run against *sql.DB or an open transaction.
package dbinterface

import (
	"context"
	"database/sql"
)

// Querier is implemented by *sql.DB and wrappers around it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// TxQuerier is the transaction-scoped subset; *sql.Tx satisfies it.
type TxQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier   = (*sql.DB)(nil)
	_ TxQuerier = (*sql.Tx)(nil)
	_ TxQuerier = (*sql.DB)(nil)
)
