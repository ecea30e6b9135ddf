package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"AquaWallet/internal/events"
)

type EventProcessor interface {
	Handle(ctx context.Context, eventType string, body []byte) error
}

// EventHandler accepts domain events from internal services over HTTP. It
// feeds the same processor as the queue consumer.
type EventHandler struct {
	processor EventProcessor
}

func NewEventHandler(processor EventProcessor) *EventHandler {
	return &EventHandler{processor: processor}
}

func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var env events.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		sendErrorResponse(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if env.Type == "" || len(env.Payload) == 0 {
		sendErrorResponse(w, "type and payload are required", http.StatusBadRequest)
		return
	}

	if err := h.processor.Handle(r.Context(), env.Type, env.Payload); err != nil {
		WriteError(w, err)
		return
	}

	sendStatusResponse(w, http.StatusAccepted, map[string]string{"type": env.Type, "status": "processed"})
}
