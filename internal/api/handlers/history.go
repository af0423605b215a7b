// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/fetcharr/internal/models"
)

type HistoryHandler struct {
	store *models.HistoryStore
}

func NewHistoryHandler(store *models.HistoryStore) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// List returns the acquisition events for one title, newest first.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	mediaID, err := strconv.ParseInt(r.URL.Query().Get("mediaId"), 10, 64)
	if err != nil || mediaID <= 0 {
		RespondError(w, http.StatusBadRequest, "mediaId query parameter is required")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			RespondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.store.ListRecent(r.Context(), mediaID, limit)
	if err != nil {
		log.Error().Err(err).Int64("mediaId", mediaID).Msg("failed to list history")
		RespondError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}

	RespondJSON(w, http.StatusOK, records)
}
