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

type QualityProfilesHandler struct {
	store *models.QualityProfileStore
}

func NewQualityProfilesHandler(store *models.QualityProfileStore) *QualityProfilesHandler {
	return &QualityProfilesHandler{store: store}
}

func (h *QualityProfilesHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list quality profiles")
		RespondError(w, http.StatusInternalServerError, "Failed to load quality profiles")
		return
	}

	RespondJSON(w, http.StatusOK, profiles)
}

func (h *QualityProfilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}

	profile, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrQualityProfileNotFound) {
			RespondError(w, http.StatusNotFound, "Quality profile not found")
			return
		}
		log.Error().Err(err).Int("id", id).Msg("failed to get quality profile")
		RespondError(w, http.StatusInternalServerError, "Failed to load quality profile")
		return
	}

	RespondJSON(w, http.StatusOK, profile)
}

func (h *QualityProfilesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var profile models.QualityProfile
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
		log.Error().Err(err).Str("name", profile.Name).Msg("failed to create quality profile")
		RespondError(w, http.StatusInternalServerError, "Failed to create quality profile")
		return
	}

	RespondJSON(w, http.StatusCreated, created)
}

func (h *QualityProfilesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}

	var profile models.QualityProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	profile.ID = id

	if err := h.store.Update(r.Context(), &profile); err != nil {
		if respondIfValidation(w, err) {
			return
		}
		if errors.Is(err, models.ErrQualityProfileNotFound) {
			RespondError(w, http.StatusNotFound, "Quality profile not found")
			return
		}
		log.Error().Err(err).Int("id", id).Msg("failed to update quality profile")
		RespondError(w, http.StatusInternalServerError, "Failed to update quality profile")
		return
	}

	RespondJSON(w, http.StatusOK, &profile)
}

func (h *QualityProfilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrQualityProfileNotFound) {
			RespondError(w, http.StatusNotFound, "Quality profile not found")
			return
		}
		log.Error().Err(err).Int("id", id).Msg("failed to delete quality profile")
		RespondError(w, http.StatusInternalServerError, "Failed to delete quality profile")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func profileID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		RespondError(w, http.StatusBadRequest, "Invalid profile ID")
		return 0, false
	}
	return id, true
}

// respondIfValidation maps save-time validation failures to 400 with the
// offending field in the message.
func respondIfValidation(w http.ResponseWriter, err error) bool {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		RespondError(w, http.StatusBadRequest, verr.Error())
		return true
	}
	return false
}
