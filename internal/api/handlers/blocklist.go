// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/fetcharr/internal/models"
)

type BlocklistHandler struct {
	store *models.BlocklistStore
}

func NewBlocklistHandler(store *models.BlocklistStore) *BlocklistHandler {
	return &BlocklistHandler{store: store}
}

func (h *BlocklistHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list blocklist entries")
		RespondError(w, http.StatusInternalServerError, "Failed to load blocklist")
		return
	}

	RespondJSON(w, http.StatusOK, entries)
}

// Delete unblocks a release so future searches may grab it again.
func (h *BlocklistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		RespondError(w, http.StatusBadRequest, "Invalid blocklist entry ID")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrBlocklistEntryNotFound) {
			RespondError(w, http.StatusNotFound, "Blocklist entry not found")
			return
		}
		log.Error().Err(err).Int64("id", id).Msg("failed to delete blocklist entry")
		RespondError(w, http.StatusInternalServerError, "Failed to delete blocklist entry")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
