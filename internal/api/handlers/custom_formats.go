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

type CustomFormatsHandler struct {
	store *models.CustomFormatStore
}

func NewCustomFormatsHandler(store *models.CustomFormatStore) *CustomFormatsHandler {
	return &CustomFormatsHandler{store: store}
}

func (h *CustomFormatsHandler) List(w http.ResponseWriter, r *http.Request) {
	formats, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list custom formats")
		RespondError(w, http.StatusInternalServerError, "Failed to load custom formats")
		return
	}

	RespondJSON(w, http.StatusOK, formats)
}

func (h *CustomFormatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := formatID(w, r)
	if !ok {
		return
	}

	format, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrCustomFormatNotFound) {
			RespondError(w, http.StatusNotFound, "Custom format not found")
			return
		}
		log.Error().Err(err).Int("id", id).Msg("failed to get custom format")
		RespondError(w, http.StatusInternalServerError, "Failed to load custom format")
		return
	}

	RespondJSON(w, http.StatusOK, format)
}

// Create persists a custom format. The store compiles every specification
// before writing, so a bad regex or expression never reaches the matcher.
func (h *CustomFormatsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var format models.CustomFormat
	if err := json.NewDecoder(r.Body).Decode(&format); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	format.ID = 0

	created, err := h.store.Create(r.Context(), &format)
	if err != nil {
		if respondIfValidation(w, err) {
			return
		}
		log.Error().Err(err).Str("name", format.Name).Msg("failed to create custom format")
		RespondError(w, http.StatusInternalServerError, "Failed to create custom format")
		return
	}

	RespondJSON(w, http.StatusCreated, created)
}

func (h *CustomFormatsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := formatID(w, r)
	if !ok {
		return
	}

	var format models.CustomFormat
	if err := json.NewDecoder(r.Body).Decode(&format); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	format.ID = id

	if err := h.store.Update(r.Context(), &format); err != nil {
		if respondIfValidation(w, err) {
			return
		}
		if errors.Is(err, models.ErrCustomFormatNotFound) {
			RespondError(w, http.StatusNotFound, "Custom format not found")
			return
		}
		log.Error().Err(err).Int("id", id).Msg("failed to update custom format")
		RespondError(w, http.StatusInternalServerError, "Failed to update custom format")
		return
	}

	RespondJSON(w, http.StatusOK, &format)
}

func (h *CustomFormatsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := formatID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrCustomFormatNotFound) {
			RespondError(w, http.StatusNotFound, "Custom format not found")
			return
		}
		log.Error().Err(err).Int("id", id).Msg("failed to delete custom format")
		RespondError(w, http.StatusInternalServerError, "Failed to delete custom format")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func formatID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		RespondError(w, http.StatusBadRequest, "Invalid custom format ID")
		return 0, false
	}
	return id, true
}
