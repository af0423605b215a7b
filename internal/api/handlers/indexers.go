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

	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/models"
)

type IndexersHandler struct {
	store *models.IndexerStore
}

func NewIndexersHandler(store *models.IndexerStore) *IndexersHandler {
	return &IndexersHandler{store: store}
}

// IndexerPayload carries the API key on writes; the model never serializes
// it back out.
type IndexerPayload struct {
	Name           string `json:"name"`
	BaseURL        string `json:"baseUrl"`
	APIKey         string `json:"apiKey"`
	Protocol       string `json:"protocol"`
	Priority       int    `json:"priority"`
	Enabled        bool   `json:"enabled"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

func (p *IndexerPayload) toModel(id int) *models.Indexer {
	return &models.Indexer{
		ID:             id,
		Name:           p.Name,
		BaseURL:        p.BaseURL,
		APIKey:         p.APIKey,
		Protocol:       domain.ParseProtocol(p.Protocol),
		Priority:       p.Priority,
		Enabled:        p.Enabled,
		TimeoutSeconds: p.TimeoutSeconds,
	}
}

func (h *IndexersHandler) List(w http.ResponseWriter, r *http.Request) {
	indexers, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list indexers")
		RespondError(w, http.StatusInternalServerError, "Failed to load indexers")
		return
	}

	RespondJSON(w, http.StatusOK, indexers)
}

func (h *IndexersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload IndexerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	indexer, err := h.store.Create(r.Context(), payload.toModel(0))
	if err != nil {
		if respondIfValidation(w, err) {
			return
		}
		log.Error().Err(err).Str("name", payload.Name).Msg("failed to create indexer")
		RespondError(w, http.StatusInternalServerError, "Failed to create indexer")
		return
	}

	RespondJSON(w, http.StatusCreated, indexer)
}

func (h *IndexersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := indexerID(w, r)
	if !ok {
		return
	}

	var payload IndexerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	indexer := payload.toModel(id)

	// An omitted key means "keep the stored one".
	if indexer.APIKey == "" {
		existing, err := h.store.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, models.ErrIndexerNotFound) {
				RespondError(w, http.StatusNotFound, "Indexer not found")
				return
			}
			log.Error().Err(err).Int("id", id).Msg("failed to load indexer")
			RespondError(w, http.StatusInternalServerError, "Failed to update indexer")
			return
		}
		indexer.APIKey = existing.APIKey
	}

	if err := h.store.Update(r.Context(), indexer); err != nil {
		if respondIfValidation(w, err) {
			return
		}
		if errors.Is(err, models.ErrIndexerNotFound) {
			RespondError(w, http.StatusNotFound, "Indexer not found")
			return
		}
		log.Error().Err(err).Int("id", id).Msg("failed to update indexer")
		RespondError(w, http.StatusInternalServerError, "Failed to update indexer")
		return
	}

	RespondJSON(w, http.StatusOK, indexer)
}

func (h *IndexersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := indexerID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrIndexerNotFound) {
			RespondError(w, http.StatusNotFound, "Indexer not found")
			return
		}
		log.Error().Err(err).Int("id", id).Msg("failed to delete indexer")
		RespondError(w, http.StatusInternalServerError, "Failed to delete indexer")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func indexerID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		RespondError(w, http.StatusBadRequest, "Invalid indexer ID")
		return 0, false
	}
	return id, true
}
