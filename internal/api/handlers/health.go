// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/autobrr/fetcharr/internal/services/health"
)

type HealthHandler struct {
	tracker *health.Tracker
}

func NewHealthHandler(tracker *health.Tracker) *HealthHandler {
	return &HealthHandler{tracker: tracker}
}

func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListIntegrations reports the breaker state of every indexer and download
// client that has ever failed.
func (h *HealthHandler) ListIntegrations(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.tracker.Statuses())
}
