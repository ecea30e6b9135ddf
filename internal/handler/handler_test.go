package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"AquaWallet/internal/auth"
	"AquaWallet/internal/events"
	"AquaWallet/internal/handler"
	"AquaWallet/internal/model"
	"AquaWallet/internal/repository"
	"AquaWallet/internal/service"
)

const (
	secret      = "handler-secret"
	internalKey = "internal-key"
)

type MockEventProcessor struct {
	mock.Mock
}

func (m *MockEventProcessor) Handle(ctx context.Context, eventType string, body []byte) error {
	args := m.Called(ctx, eventType, body)
	return args.Error(0)
}

type MockWalletService struct {
	mock.Mock
	service.WalletService
}

func (m *MockWalletService) GetOrCreateWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Wallet), args.Error(1)
}

type testAPI struct {
	router    http.Handler
	wallets   service.WalletService
	notifier  service.NotificationService
	processor *MockEventProcessor
}

func newAPI(t *testing.T) *testAPI {
	wallets := service.NewWalletService(repository.NewMemoryWalletRepository(), zap.NewNop())
	return newAPIWith(t, wallets)
}

func newAPIWith(t *testing.T, wallets service.WalletService) *testAPI {
	notifier := service.NewNotificationService(repository.NewMemoryNotificationRepository(), nil, service.NotificationOptions{Workers: 1}, zap.NewNop())
	t.Cleanup(notifier.Shutdown)
	flows := service.NewPaymentFlows(wallets, notifier, service.DefaultCashbackRule(), zap.NewNop())
	processor := new(MockEventProcessor)

	router := handler.NewRouter(handler.RouterConfig{
		Wallets:        handler.NewWalletHandler(wallets, flows, zap.NewNop()),
		Notifications:  handler.NewNotificationHandler(notifier),
		Events:         handler.NewEventHandler(processor),
		Verifier:       auth.NewHMACVerifier(secret),
		InternalAPIKey: internalKey,
		AllowedOrigins: []string{"*"},
	})
	return &testAPI{router: router, wallets: wallets, notifier: notifier, processor: processor}
}

func (a *testAPI) do(t *testing.T, method, path, userID string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := auth.Sign(secret, userID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error map[string]interface{} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHealthz(t *testing.T) {
	api := newAPI(t)

	w := api.do(t, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, string(decode(t, w).Data))
}

func TestRoutes_RequireToken(t *testing.T) {
	api := newAPI(t)

	for _, path := range []string{"/api/v1/wallet", "/api/v1/wallet/transactions", "/api/v1/notifications"} {
		w := api.do(t, "GET", path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, "Authentication required", decode(t, w).Error["message"])
	}

	req := httptest.NewRequest("GET", "/api/v1/wallet", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWalletHandler_GetWalletCreatesLazily(t *testing.T) {
	api := newAPI(t)

	w := api.do(t, "GET", "/api/v1/wallet", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var wallet model.Wallet
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &wallet))
	assert.Equal(t, "user-1", wallet.UserID)
	assert.True(t, wallet.Balance.IsZero())
	assert.True(t, wallet.IsActive)
}

func TestWalletHandler_GetWalletError(t *testing.T) {
	mockService := new(MockWalletService)
	mockService.On("GetOrCreateWallet", mock.Anything, "user-1").Return(nil, errors.New("db down"))
	api := newAPIWith(t, mockService)

	w := api.do(t, "GET", "/api/v1/wallet", "user-1", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w).Error["message"])
	mockService.AssertExpectations(t)
}

func TestWalletHandler_Recharge(t *testing.T) {
	api := newAPI(t)

	testCases := []struct {
		name           string
		body           string
		expectedStatus int
		expectedMsg    string
	}{
		{"Invalid JSON", `{"amount":`, http.StatusBadRequest, "Invalid JSON format"},
		{"Below minimum", `{"amount":0.5}`, http.StatusBadRequest, "Minimum recharge amount is ₹1"},
		{"Negative", `{"amount":-10}`, http.StatusBadRequest, "Minimum recharge amount is ₹1"},
		{"Sub-paisa", `{"amount":1.001}`, http.StatusBadRequest, "Amount must have at most 2 decimal places"},
		{"Above column range", `{"amount":1000000000000}`, http.StatusBadRequest, "Amount must be positive with at most 2 decimal places"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := api.do(t, "POST", "/api/v1/wallet/recharge", "user-1", tc.body)
			assert.Equal(t, tc.expectedStatus, w.Code)
			assert.Equal(t, tc.expectedMsg, decode(t, w).Error["message"])
		})
	}

	w := api.do(t, "POST", "/api/v1/wallet/recharge", "user-1", `{"amount":250}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Transaction model.Transaction `json:"transaction"`
		Balance     decimal.Decimal   `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &body))
	assert.True(t, body.Balance.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, model.KindRecharge, body.Transaction.Kind)
	assert.Equal(t, "cash", body.Transaction.PaymentMethod)
	assert.Equal(t, "Wallet recharge via cash", body.Transaction.Description)

	list, err := api.notifier.List(context.Background(), "user-1", model.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, list.Notifications, 1)
	assert.Equal(t, model.NotificationWalletRecharged, list.Notifications[0].Type)
}

func TestWalletHandler_ListTransactionsPaginates(t *testing.T) {
	api := newAPI(t)

	for i := 0; i < 5; i++ {
		w := api.do(t, "POST", "/api/v1/wallet/recharge", "user-1", `{"amount":10}`)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := api.do(t, "GET", "/api/v1/wallet/transactions?page=2&limit=2", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Transactions []model.Transaction `json:"transactions"`
		Pagination   model.Pagination    `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &body))
	assert.Len(t, body.Transactions, 2)
	assert.Equal(t, model.Pagination{Total: 5, Page: 2, Pages: 3, Limit: 2}, body.Pagination)

	w = api.do(t, "GET", "/api/v1/wallet/transactions?page=9223372036854775807&limit=100", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &body))
	assert.Empty(t, body.Transactions)
	assert.Equal(t, model.MaxPage, body.Pagination.Page)

	w = api.do(t, "GET", "/api/v1/notifications?page=9223372036854775807", "user-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, "GET", "/api/v1/wallet/transactions", "user-2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"transactions":[]`)
}

func TestWriteError_InsufficientBalance(t *testing.T) {
	w := httptest.NewRecorder()
	handler.WriteError(w, &model.InsufficientBalanceError{Required: decimal.NewFromInt(150), Available: decimal.NewFromInt(40)})

	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w).Error
	assert.Equal(t, "Insufficient wallet balance", body["message"])
	assert.Equal(t, "150", body["required"])
	assert.Equal(t, "40", body["available"])
}

func TestWriteError_Mapping(t *testing.T) {
	testCases := []struct {
		err            error
		expectedStatus int
	}{
		{model.ErrInsufficientBalance, http.StatusConflict},
		{&model.AlreadyAppliedError{Kind: model.KindRecharge, Reference: "pay_1"}, http.StatusConflict},
		{model.ErrAuthenticationFailed, http.StatusUnauthorized},
		{model.ErrForbidden, http.StatusForbidden},
		{model.ErrNotificationNotFound, http.StatusNotFound},
		{model.ErrWalletNotFound, http.StatusNotFound},
		{model.ErrInvalidAmount, http.StatusBadRequest},
		{model.ErrMissingUser, http.StatusBadRequest},
		{events.ErrMalformedEvent, http.StatusBadRequest},
		{events.ErrUnknownEvent, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.WriteError(w, tc.err)
			assert.Equal(t, tc.expectedStatus, w.Code)
		})
	}
}

func TestNotificationHandler_Lifecycle(t *testing.T) {
	api := newAPI(t)
	ctx := context.Background()

	mine, err := api.notifier.Notify(ctx, "user-1", model.NotificationOrderConfirmed, service.TemplateData{OrderID: "o-1"})
	require.NoError(t, err)
	_, err = api.notifier.Notify(ctx, "user-1", model.NotificationOrderDelivered, service.TemplateData{OrderID: "o-1", Quantity: 2})
	require.NoError(t, err)
	theirs, err := api.notifier.Notify(ctx, "user-2", model.NotificationOrderDelivered, service.TemplateData{OrderID: "o-2", Quantity: 1})
	require.NoError(t, err)

	w := api.do(t, "GET", "/api/v1/notifications/unread-count", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unreadCount":2}`, string(decode(t, w).Data))

	w = api.do(t, "PUT", "/api/v1/notifications/"+mine.ID+"/read", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var read model.Notification
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &read))
	assert.True(t, read.IsRead)

	w = api.do(t, "GET", "/api/v1/notifications?unread=true", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list model.NotificationList
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
	assert.Len(t, list.Notifications, 1)
	assert.Equal(t, 1, list.UnreadCount)

	w = api.do(t, "PUT", "/api/v1/notifications/"+theirs.ID+"/read", "user-1", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, "DELETE", "/api/v1/notifications/"+theirs.ID, "user-1", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, "PUT", "/api/v1/notifications/missing/read", "user-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, "PUT", "/api/v1/notifications/read-all", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":1}`, string(decode(t, w).Data))

	w = api.do(t, "DELETE", "/api/v1/notifications/"+mine.ID, "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"`+mine.ID+`","status":"deleted"}`, string(decode(t, w).Data))
}

func TestEventHandler_Publish(t *testing.T) {
	api := newAPI(t)
	body := `{"type":"order.delivered","payload":{"userId":"user-1","orderId":"o-1","quantity":2}}`

	api.processor.On("Handle", mock.Anything, events.OrderDelivered, mock.Anything).Return(nil).Once()
	api.processor.On("Handle", mock.Anything, events.OrderPlaced, mock.Anything).Return(events.ErrMalformedEvent).Once()

	post := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/internal/v1/events", bytes.NewBufferString(body))
		if key != "" {
			req.Header.Set("X-Internal-API-Key", key)
		}
		w := httptest.NewRecorder()
		api.router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, post("", body).Code)
	assert.Equal(t, http.StatusUnauthorized, post("wrong", body).Code)

	w := post(internalKey, body)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"type":"order.delivered","status":"processed"}`, string(decode(t, w).Data))

	assert.Equal(t, http.StatusBadRequest, post(internalKey, `{"type":"order.placed","payload":{}}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(internalKey, `{"payload":{}}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(internalKey, `not json`).Code)

	api.processor.AssertExpectations(t)
}
