package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mkaryagin/scrim-system/queue"
	"github.com/mkaryagin/scrim-system/services"
)

type QueueHandler struct {
	requeue *services.RequeueService
}

func NewQueueHandler(requeue *services.RequeueService) *QueueHandler {
	return &QueueHandler{requeue: requeue}
}

// RequeueHandler copies a failed item's payload into a fresh pending
// row. The failed row stays terminal; the response carries the new id.
func (h *QueueHandler) RequeueHandler(w http.ResponseWriter, r *http.Request) {
	kind, err := queue.ParseKind(chi.URLParam(r, "queue"))
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	itemID, err := getIDFromURL(r, "itemID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	newID, err := h.requeue.Requeue(r.Context(), kind, itemID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{
		"queue":       kind,
		"item_id":     itemID,
		"new_item_id": newID,
	}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
