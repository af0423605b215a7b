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
	"github.com/autobrr/fetcharr/internal/services/queue"
)

type QueueHandler struct {
	store   *models.QueueStore
	pending *models.PendingReleaseStore
	queue   *queue.Service
}

func NewQueueHandler(store *models.QueueStore, pending *models.PendingReleaseStore, svc *queue.Service) *QueueHandler {
	return &QueueHandler{
		store:   store,
		pending: pending,
		queue:   svc,
	}
}

func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list queue items")
		RespondError(w, http.StatusInternalServerError, "Failed to load queue")
		return
	}

	RespondJSON(w, http.StatusOK, items)
}

// ListPending returns the releases parked by the delay scheduler.
func (h *QueueHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pendings, err := h.pending.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list pending releases")
		RespondError(w, http.StatusInternalServerError, "Failed to load pending releases")
		return
	}

	RespondJSON(w, http.StatusOK, pendings)
}

func (h *QueueHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id, ok := queueItemID(w, r)
	if !ok {
		return
	}

	if err := h.queue.Pause(r.Context(), id); err != nil {
		respondQueueError(w, id, err, "pause")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (h *QueueHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := queueItemID(w, r)
	if !ok {
		return
	}

	if err := h.queue.Resume(r.Context(), id); err != nil {
		respondQueueError(w, id, err, "resume")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "downloading"})
}

func (h *QueueHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := queueItemID(w, r)
	if !ok {
		return
	}

	deleteData := r.URL.Query().Get("deleteData") == "true"

	if err := h.queue.Remove(r.Context(), id, deleteData); err != nil {
		respondQueueError(w, id, err, "remove")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func queueItemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		RespondError(w, http.StatusBadRequest, "Invalid queue item ID")
		return 0, false
	}
	return id, true
}

func respondQueueError(w http.ResponseWriter, id int64, err error, action string) {
	switch {
	case errors.Is(err, models.ErrQueueItemNotFound):
		RespondError(w, http.StatusNotFound, "Queue item not found")
	case errors.Is(err, models.ErrInvalidTransition):
		RespondError(w, http.StatusConflict, "Queue item is not in a state that allows this action")
	default:
		log.Error().Err(err).Int64("queueId", id).Str("action", action).Msg("queue action failed")
		RespondError(w, http.StatusInternalServerError, "Queue action failed")
	}
}
