// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package buildinfo holds version metadata stamped at release build time.
package buildinfo

// Set via ldflags: -X github.com/autobrr/fetcharr/internal/buildinfo.Version=...
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)
