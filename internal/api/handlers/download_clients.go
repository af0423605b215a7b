// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/fetcharr/internal/models"
	"github.com/autobrr/fetcharr/internal/services/queue"
)

type DownloadClientsHandler struct {
	store    *models.DownloadClientStore
	registry *queue.ClientRegistry
}

func NewDownloadClientsHandler(store *models.DownloadClientStore, registry *queue.ClientRegistry) *DownloadClientsHandler {
	return &DownloadClientsHandler{store: store, registry: registry}
}

type DownloadClientPayload struct {
	Name           string `json:"name"`
	Implementation string `json:"implementation"`
	Host           string `json:"host"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	Enabled        bool   `json:"enabled"`
}

func (p *DownloadClientPayload) toModel(id int) *models.DownloadClient {
	return &models.DownloadClient{
		ID:             id,
		Name:           p.Name,
		Implementation: p.Implementation,
		Host:           p.Host,
		Username:       p.Username,
		Password:       p.Password,
		Enabled:        p.Enabled,
	}
}

func (h *DownloadClientsHandler) List(w http.ResponseWriter, r *http.Request) {
	clients, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list download clients")
		RespondError(w, http.StatusInternalServerError, "Failed to load download clients")
		return
	}

	RespondJSON(w, http.StatusOK, clients)
}

func (h *DownloadClientsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload DownloadClientPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	client, err := h.store.Create(r.Context(), payload.toModel(0))
	if err != nil {
		if respondIfValidation(w, err) {
			return
		}
		log.Error().Err(err).Str("name", payload.Name).Msg("failed to create download client")
		RespondError(w, http.StatusInternalServerError, "Failed to create download client")
		return
	}

	RespondJSON(w, http.StatusCreated, client)
}

func (h *DownloadClientsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}

	var payload DownloadClientPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	client := payload.toModel(id)

	if client.Password == "" {
		existing, err := h.store.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, models.ErrDownloadClientNotFound) {
				RespondError(w, http.StatusNotFound, "Download client not found")
				return
			}
			log.Error().Err(err).Int("id", id).Msg("failed to load download client")
			RespondError(w, http.StatusInternalServerError, "Failed to update download client")
			return
		}
		client.Password = existing.Password
	}

	if err := h.store.Update(r.Context(), client); err != nil {
		if respondIfValidation(w, err) {
			return
		}
		if errors.Is(err, models.ErrDownloadClientNotFound) {
			RespondError(w, http.StatusNotFound, "Download client not found")
			return
		}
		log.Error().Err(err).Int("id", id).Msg("failed to update download client")
		RespondError(w, http.StatusInternalServerError, "Failed to update download client")
		return
	}

	// Drop the cached connection so the next grab dials with the new
	// credentials.
	h.registry.Invalidate(id)

	RespondJSON(w, http.StatusOK, client)
}

func (h *DownloadClientsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrDownloadClientNotFound) {
			RespondError(w, http.StatusNotFound, "Download client not found")
			return
		}
		log.Error().Err(err).Int("id", id).Msg("failed to delete download client")
		RespondError(w, http.StatusInternalServerError, "Failed to delete download client")
		return
	}

	h.registry.Invalidate(id)

	RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// TestConnection dials the client and reports whether a login succeeds.
func (h *DownloadClientsHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	h.registry.Invalidate(id)
	if _, err := h.registry.Resolve(ctx, id); err != nil {
		if errors.Is(err, models.ErrDownloadClientNotFound) {
			RespondError(w, http.StatusNotFound, "Download client not found")
			return
		}
		log.Error().Err(err).Int("id", id).Msg("download client connection test failed")
		RespondError(w, http.StatusServiceUnavailable, "Connection test failed")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

func clientID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		RespondError(w, http.StatusBadRequest, "Invalid download client ID")
		return 0, false
	}
	return id, true
}
