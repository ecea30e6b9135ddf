package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"AquaWallet/internal/events"
	"AquaWallet/internal/model"
)

func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	sendErrorBody(w, statusCode, map[string]interface{}{
		"code":    statusCode,
		"message": message,
	})
}

func sendErrorBody(w http.ResponseWriter, statusCode int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": body,
	})
}

func sendSuccessResponse(w http.ResponseWriter, data interface{}) {
	sendStatusResponse(w, http.StatusOK, data)
}

func sendStatusResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": data,
	})
}

// WriteError maps domain errors onto the error envelope.
func WriteError(w http.ResponseWriter, err error) {
	var insufficient *model.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		sendErrorBody(w, http.StatusConflict, map[string]interface{}{
			"code":      http.StatusConflict,
			"message":   "Insufficient wallet balance",
			"required":  insufficient.Required,
			"available": insufficient.Available,
		})
	case errors.Is(err, model.ErrInsufficientBalance):
		sendErrorResponse(w, "Insufficient wallet balance", http.StatusConflict)
	case errors.Is(err, model.ErrAlreadyApplied):
		sendErrorResponse(w, "Transaction already applied", http.StatusConflict)
	case errors.Is(err, model.ErrAuthenticationFailed):
		sendErrorResponse(w, "Authentication required", http.StatusUnauthorized)
	case errors.Is(err, model.ErrForbidden):
		sendErrorResponse(w, "Not authorized to access this notification", http.StatusForbidden)
	case errors.Is(err, model.ErrWalletNotFound):
		sendErrorResponse(w, "Wallet not found", http.StatusNotFound)
	case errors.Is(err, model.ErrNotificationNotFound):
		sendErrorResponse(w, "Notification not found", http.StatusNotFound)
	case errors.Is(err, model.ErrInvalidAmount):
		sendErrorResponse(w, "Amount must be positive with at most 2 decimal places", http.StatusBadRequest)
	case errors.Is(err, model.ErrMissingUser),
		errors.Is(err, model.ErrInvalidKind),
		errors.Is(err, model.ErrInvalidDirection),
		errors.Is(err, model.ErrInvalidNotification),
		errors.Is(err, model.ErrUnknownTemplate),
		errors.Is(err, events.ErrMalformedEvent),
		errors.Is(err, events.ErrUnknownEvent):
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
	default:
		sendErrorResponse(w, "Internal server error", http.StatusInternalServerError)
	}
}

func parsePage(r *http.Request) model.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return model.Page{Page: page, Limit: limit}.Normalize()
}
