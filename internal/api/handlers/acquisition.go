// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/fetcharr/internal/services/acquisition"
)

type AcquisitionHandler struct {
	acquisition *acquisition.Service
	timeout     time.Duration
}

// NewAcquisitionHandler caps each pipeline run at timeout; indexers keep
// their own per-query deadlines inside it.
func NewAcquisitionHandler(svc *acquisition.Service, timeout time.Duration) *AcquisitionHandler {
	return &AcquisitionHandler{acquisition: svc, timeout: timeout}
}

// Search runs the full pipeline for one target: indexer fan-out, decision
// evaluation, delay policy, then grab or hold.
func (h *AcquisitionHandler) Search(w http.ResponseWriter, r *http.Request) {
	var target acquisition.Target
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(target.Term) == "" {
		RespondError(w, http.StatusBadRequest, "Search term is required")
		return
	}
	if target.MediaID <= 0 {
		RespondError(w, http.StatusBadRequest, "Media ID is required")
		return
	}
	if target.ProfileID <= 0 {
		RespondError(w, http.StatusBadRequest, "Quality profile ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	outcome, err := h.acquisition.Search(ctx, target)
	if err != nil {
		log.Error().Err(err).Int64("mediaID", target.MediaID).Str("term", target.Term).Msg("search pipeline failed")
		RespondError(w, http.StatusInternalServerError, "Search failed")
		return
	}

	RespondJSON(w, http.StatusOK, outcome)
}
