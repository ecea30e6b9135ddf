package model_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AquaWallet/internal/model"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func mutation(direction model.Direction, kind model.TransactionKind, amount string) model.Mutation {
	return model.Mutation{UserID: "user-1", Kind: kind, Direction: direction, Amount: d(amount)}
}

func TestWallet_Apply_Credit(t *testing.T) {
	w := &model.Wallet{ID: "w-1", UserID: "user-1"}
	now := time.Now().UTC()

	entry, err := w.Apply(mutation(model.Credit, model.KindRecharge, "200"), "e-1", now)
	require.NoError(t, err)

	assert.True(t, w.Balance.Equal(d("200")))
	assert.True(t, w.TotalCredited.Equal(d("200")))
	assert.True(t, w.TotalCashback.IsZero())
	require.NotNil(t, w.LastRechargeAt)
	assert.Equal(t, now, *w.LastRechargeAt)

	assert.Equal(t, "e-1", entry.ID)
	assert.Equal(t, model.StatusCompleted, entry.Status)
	assert.True(t, entry.BalanceBefore.IsZero())
	assert.True(t, entry.BalanceAfter.Equal(d("200")))
	assert.NotNil(t, entry.Metadata)
}

func TestWallet_Apply_DebitInsufficient(t *testing.T) {
	w := &model.Wallet{ID: "w-1", UserID: "user-1", Balance: d("50")}
	before := *w

	_, err := w.Apply(mutation(model.Debit, model.KindOrderPayment, "80"), "e-1", time.Now())

	assert.ErrorIs(t, err, model.ErrInsufficientBalance)
	var insufficient *model.InsufficientBalanceError
	require.True(t, errors.As(err, &insufficient))
	assert.True(t, insufficient.Required.Equal(d("80")))
	assert.True(t, insufficient.Available.Equal(d("50")))
	assert.Equal(t, before, *w)
}

func TestWallet_Apply_DebitToZero(t *testing.T) {
	w := &model.Wallet{ID: "w-1", UserID: "user-1", Balance: d("80")}

	entry, err := w.Apply(mutation(model.Debit, model.KindOrderPayment, "80"), "e-1", time.Now())

	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
	assert.True(t, w.TotalDebited.Equal(d("80")))
	assert.Nil(t, w.LastRechargeAt)
	assert.True(t, entry.BalanceBefore.Equal(d("80")))
}

func TestWallet_Apply_CashbackTotal(t *testing.T) {
	w := &model.Wallet{ID: "w-1", UserID: "user-1"}
	m := mutation(model.Credit, model.KindCashback, "3")
	m.Cashback = true

	_, err := w.Apply(m, "e-1", time.Now())

	require.NoError(t, err)
	assert.True(t, w.TotalCashback.Equal(d("3")))
	assert.True(t, w.TotalCredited.Equal(d("3")))
	assert.Nil(t, w.LastRechargeAt)
}

func TestMutation_Validate(t *testing.T) {
	testCases := []struct {
		name        string
		mutate      func(m *model.Mutation)
		expectedErr error
	}{
		{"Missing user", func(m *model.Mutation) { m.UserID = "" }, model.ErrMissingUser},
		{"Zero amount", func(m *model.Mutation) { m.Amount = decimal.Zero }, model.ErrInvalidAmount},
		{"Negative amount", func(m *model.Mutation) { m.Amount = d("-5") }, model.ErrInvalidAmount},
		{"Sub-paisa amount", func(m *model.Mutation) { m.Amount = d("0.995") }, model.ErrInvalidAmount},
		{"Rounds to zero", func(m *model.Mutation) { m.Amount = d("0.004") }, model.ErrInvalidAmount},
		{"Three decimals", func(m *model.Mutation) { m.Amount = d("1.001") }, model.ErrInvalidAmount},
		{"Above column range", func(m *model.Mutation) { m.Amount = d("1000000000000") }, model.ErrInvalidAmount},
		{"Unknown kind", func(m *model.Mutation) { m.Kind = "gift" }, model.ErrInvalidKind},
		{"Unknown direction", func(m *model.Mutation) { m.Direction = "sideways" }, model.ErrInvalidDirection},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := mutation(model.Credit, model.KindRecharge, "10")
			tc.mutate(&m)
			assert.ErrorIs(t, m.Validate(), tc.expectedErr)
		})
	}
}

func TestMutation_ValidateAcceptsTwoDecimals(t *testing.T) {
	for _, amount := range []string{"0.01", "1.5", "120.50", "999999999999.99"} {
		assert.NoError(t, mutation(model.Debit, model.KindOrderPayment, amount).Validate(), amount)
	}
}

func TestWallet_ApplyRejectsSubPaisaDebit(t *testing.T) {
	w := &model.Wallet{ID: "w-1", UserID: "user-1"}
	_, err := w.Apply(mutation(model.Credit, model.KindRecharge, "1"), "e-1", time.Now())
	require.NoError(t, err)

	_, err = w.Apply(mutation(model.Debit, model.KindOrderPayment, "0.995"), "e-2", time.Now())

	assert.ErrorIs(t, err, model.ErrInvalidAmount)
	assert.True(t, w.Balance.Equal(d("1")))
}

func TestWallet_ApplyBalanceLimit(t *testing.T) {
	w := &model.Wallet{ID: "w-1", UserID: "user-1", Balance: d("999999999999")}

	_, err := w.Apply(mutation(model.Credit, model.KindRecharge, "1"), "e-1", time.Now())

	assert.ErrorIs(t, err, model.ErrInvalidAmount)
	assert.True(t, w.Balance.Equal(d("999999999999")))
}

func TestMutation_Reference(t *testing.T) {
	recharge := mutation(model.Credit, model.KindRecharge, "10")
	recharge.Payment.GatewayPaymentID = "pay_1"
	recharge.Correlation.OrderID = "ignored"
	assert.Equal(t, "pay_1", recharge.Reference())

	cashback := mutation(model.Credit, model.KindCashback, "3")
	cashback.Correlation.OrderID = "o-1"
	assert.Equal(t, "o-1", cashback.Reference())

	sub := mutation(model.Debit, model.KindSubscriptionPayment, "30")
	sub.Correlation.SubscriptionID = "s-1"
	assert.Empty(t, sub.Reference())

	assert.Empty(t, mutation(model.Credit, model.KindRecharge, "10").Reference())
}

func TestReplayBalance(t *testing.T) {
	w := &model.Wallet{ID: "w-1", UserID: "user-1"}
	var entries []model.Transaction
	for i, m := range []model.Mutation{
		mutation(model.Credit, model.KindRecharge, "200"),
		mutation(model.Debit, model.KindOrderPayment, "120.50"),
		mutation(model.Credit, model.KindCashback, "2"),
	} {
		entry, err := w.Apply(m, string(rune('a'+i)), time.Now())
		require.NoError(t, err)
		entries = append(entries, entry)
	}

	entries = append(entries, model.Transaction{
		Direction: model.Credit,
		Amount:    d("999"),
		Status:    model.StatusPending,
	})

	assert.True(t, model.ReplayBalance(entries).Equal(w.Balance))
	assert.True(t, w.Balance.Equal(d("81.50")))
}

func TestPage_Normalize(t *testing.T) {
	assert.Equal(t, model.Page{Page: 1, Limit: 20}, model.Page{}.Normalize())
	assert.Equal(t, model.Page{Page: 3, Limit: 100}, model.Page{Page: 3, Limit: 500}.Normalize())
	assert.Equal(t, 40, model.Page{Page: 3, Limit: 20}.Offset())

	huge := model.Page{Page: math.MaxInt, Limit: 100}.Normalize()
	assert.Equal(t, model.MaxPage, huge.Page)
	assert.Positive(t, huge.Offset())

	p := model.NewPagination(model.Page{Page: 1, Limit: 20}, 41)
	assert.Equal(t, 3, p.Pages)
	assert.Equal(t, 41, p.Total)
}
