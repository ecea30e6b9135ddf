package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"AquaWallet/internal/auth"
	"AquaWallet/internal/model"
	"AquaWallet/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var minRecharge = decimal.NewFromInt(1)

// Recharger credits a top-up and runs its follow-up notifications.
type Recharger interface {
	Recharge(ctx context.Context, in service.Recharge) (*service.Receipt, error)
}

type WalletHandler struct {
	service   service.WalletService
	recharger Recharger
	logger    *zap.Logger
}

func NewWalletHandler(service service.WalletService, recharger Recharger, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{service: service, recharger: recharger, logger: logger.Named("wallet_handler")}
}

func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	wallet, err := h.service.GetOrCreateWallet(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load wallet", zap.String("user_id", userID), zap.Error(err))
		WriteError(w, err)
		return
	}

	sendSuccessResponse(w, wallet)
}

func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	items, pagination, err := h.service.ListTransactions(r.Context(), userID, parsePage(r))
	if err != nil {
		h.logger.Error("failed to list transactions", zap.String("user_id", userID), zap.Error(err))
		WriteError(w, err)
		return
	}
	if items == nil {
		items = []model.Transaction{}
	}

	sendSuccessResponse(w, map[string]interface{}{
		"transactions": items,
		"pagination":   pagination,
	})
}

type rechargeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Recharge records a cash top-up collected outside the payment gateway.
func (h *WalletHandler) Recharge(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req rechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if req.Amount.LessThan(minRecharge) {
		sendErrorResponse(w, "Minimum recharge amount is ₹1", http.StatusBadRequest)
		return
	}
	if !req.Amount.Equal(req.Amount.Round(model.AmountScale)) {
		sendErrorResponse(w, "Amount must have at most 2 decimal places", http.StatusBadRequest)
		return
	}

	receipt, err := h.recharger.Recharge(r.Context(), service.Recharge{
		UserID:      userID,
		Amount:      req.Amount,
		Description: req.Description,
		Payment:     model.PaymentDetails{Method: "cash"},
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	sendSuccessResponse(w, map[string]interface{}{
		"transaction": receipt.Entries[0],
		"balance":     receipt.Balance,
	})
}
