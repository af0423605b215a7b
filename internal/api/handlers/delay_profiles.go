// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/fetcharr/internal/models"
)

type DelayProfilesHandler struct {
	store *models.DelayProfileStore
}

func NewDelayProfilesHandler(store *models.DelayProfileStore) *DelayProfilesHandler {
	return &DelayProfilesHandler{store: store}
}

func (h *DelayProfilesHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list delay profiles")
		RespondError(w, http.StatusInternalServerError, "Failed to load delay profiles")
		return
	}

	RespondJSON(w, http.StatusOK, profiles)
}

func (h *DelayProfilesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var profile models.DelayProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	profile.ID = 0

	created, err := h.store.Create(r.Context(), &profile)
	if err != nil {
		if respondIfValidation(w, err) {
			return
		}
		log.Error().Err(err).Msg("failed to create delay profile")
		RespondError(w, http.StatusInternalServerError, "Failed to create delay profile")
		return
	}

	RespondJSON(w, http.StatusCreated, created)
}

func (h *DelayProfilesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		RespondError(w, http.StatusBadRequest, "Invalid delay profile ID")
		return
	}

	var profile models.DelayProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	profile.ID = id

	if err := h.store.Update(r.Context(), &profile); err != nil {
		if respondIfValidation(w, err) {
			return
		}
		if errors.Is(err, models.ErrDelayProfileNotFound) {
			RespondError(w, http.StatusNotFound, "Delay profile not found")
			return
		}
		log.Error().Err(err).Int("id", id).Msg("failed to update delay profile")
		RespondError(w, http.StatusInternalServerError, "Failed to update delay profile")
		return
	}

	RespondJSON(w, http.StatusOK, &profile)
}

func (h *DelayProfilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		RespondError(w, http.StatusBadRequest, "Invalid delay profile ID")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrDelayProfileNotFound) {
			RespondError(w, http.StatusNotFound, "Delay profile not found")
			return
		}
		log.Error().Err(err).Int("id", id).Msg("failed to delete delay profile")
		RespondError(w, http.StatusInternalServerError, "Failed to delete delay profile")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
