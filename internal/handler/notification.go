package handler

import (
	"net/http"

	"AquaWallet/internal/auth"
	"AquaWallet/internal/model"
	"AquaWallet/internal/service"

	"github.com/go-chi/chi/v5"
)

type NotificationHandler struct {
	service service.NotificationService
}

func NewNotificationHandler(service service.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	list, err := h.service.List(r.Context(), userID, model.NotificationFilter{
		Page:       parsePage(r),
		UnreadOnly: r.URL.Query().Get("unread") == "true",
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	if list.Notifications == nil {
		list.Notifications = []model.Notification{}
	}

	sendSuccessResponse(w, list)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	sendSuccessResponse(w, map[string]int{"unreadCount": count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	n, err := h.service.MarkRead(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	sendSuccessResponse(w, n)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	count, err := h.service.MarkAllRead(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	sendSuccessResponse(w, map[string]int{"count": count})
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id, userID); err != nil {
		WriteError(w, err)
		return
	}

	sendSuccessResponse(w, map[string]string{"id": id, "status": "deleted"})
}
