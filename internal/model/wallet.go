package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidKind         = errors.New("invalid transaction kind")
	ErrInvalidDirection    = errors.New("invalid transaction direction")
	ErrMissingUser         = errors.New("user id is required")
	ErrAlreadyApplied      = errors.New("mutation already applied")
)

// AmountScale is the number of decimal places money columns store.
const AmountScale = 2

// MaxAmount is the largest value a NUMERIC(14,2) column holds.
var MaxAmount = decimal.RequireFromString("999999999999.99")

// InsufficientBalanceError is returned when a debit exceeds the available balance.
// It matches ErrInsufficientBalance with errors.Is.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s", e.Required, e.Available)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// AlreadyAppliedError is returned when an entry with the same kind and
// reference is already in the ledger. It matches ErrAlreadyApplied.
type AlreadyAppliedError struct {
	Kind      TransactionKind
	Reference string
}

func (e *AlreadyAppliedError) Error() string {
	return fmt.Sprintf("%s %s already applied", e.Kind, e.Reference)
}

func (e *AlreadyAppliedError) Is(target error) bool {
	return target == ErrAlreadyApplied
}

type TransactionKind string

const (
	KindRecharge            TransactionKind = "recharge"
	KindOrderPayment        TransactionKind = "order-payment"
	KindRefund              TransactionKind = "refund"
	KindCashback            TransactionKind = "cashback"
	KindSubscriptionPayment TransactionKind = "subscription-payment"
	KindPenalty             TransactionKind = "penalty"
	KindBonus               TransactionKind = "bonus"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case KindRecharge, KindOrderPayment, KindRefund, KindCashback,
		KindSubscriptionPayment, KindPenalty, KindBonus:
		return true
	}
	return false
}

type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

// Wallet is the cached projection of a user's ledger.
type Wallet struct {
	ID                string          `json:"id"`
	UserID            string          `json:"userId"`
	Balance           decimal.Decimal `json:"balance"`
	TotalCredited     decimal.Decimal `json:"totalCredited"`
	TotalDebited      decimal.Decimal `json:"totalDebited"`
	TotalCashback     decimal.Decimal `json:"totalCashback"`
	IsActive          bool            `json:"isActive"`
	LastRechargeAt    *time.Time      `json:"lastRechargeDate,omitempty"`
	LastTransactionAt *time.Time      `json:"lastTransactionDate,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Transaction is one immutable ledger entry.
type Transaction struct {
	ID                  string            `json:"id"`
	UserID              string            `json:"userId"`
	WalletID            string            `json:"walletId"`
	Kind                TransactionKind   `json:"type"`
	Direction           Direction         `json:"transactionType"`
	Amount              decimal.Decimal   `json:"amount"`
	BalanceBefore       decimal.Decimal   `json:"balanceBefore"`
	BalanceAfter        decimal.Decimal   `json:"balanceAfter"`
	Status              TransactionStatus `json:"status"`
	PaymentMethod       string            `json:"paymentMethod,omitempty"`
	GatewayOrderID      string            `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID    string            `json:"gatewayPaymentId,omitempty"`
	RelatedOrder        string            `json:"relatedOrder,omitempty"`
	RelatedSubscription string            `json:"relatedSubscription,omitempty"`
	Description         string            `json:"description"`
	Metadata            map[string]any    `json:"metadata"`
	CreatedAt           time.Time         `json:"createdAt"`
}

// Correlation links a ledger entry to the order or subscription that caused it.
type Correlation struct {
	OrderID        string
	SubscriptionID string
}

type PaymentDetails struct {
	Method           string
	GatewayOrderID   string
	GatewayPaymentID string
}

// Mutation is a single balance change. Repositories apply it together with
// its ledger entry as one atomic unit.
type Mutation struct {
	UserID      string
	Kind        TransactionKind
	Direction   Direction
	Amount      decimal.Decimal
	Cashback    bool
	Description string
	Correlation Correlation
	Payment     PaymentDetails
	Metadata    map[string]any
}

func (m Mutation) Validate() error {
	if m.UserID == "" {
		return ErrMissingUser
	}
	if !m.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !m.Amount.Equal(m.Amount.Round(AmountScale)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, AmountScale)
	}
	if m.Amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: exceeds %s", ErrInvalidAmount, MaxAmount)
	}
	if !m.Kind.Valid() {
		return ErrInvalidKind
	}
	if m.Direction != Credit && m.Direction != Debit {
		return ErrInvalidDirection
	}
	return nil
}

// Reference is the external id that makes m unique in the ledger: the
// gateway payment for recharges and their bonus, the order for order
// payments, cashback and refunds. Other kinds may repeat.
func (m Mutation) Reference() string {
	switch m.Kind {
	case KindRecharge, KindBonus:
		return m.Payment.GatewayPaymentID
	case KindOrderPayment, KindCashback, KindRefund:
		return m.Correlation.OrderID
	}
	return ""
}

// Apply moves the wallet forward by m and returns the resulting ledger entry.
// On error the wallet is left untouched.
func (w *Wallet) Apply(m Mutation, entryID string, now time.Time) (Transaction, error) {
	if err := m.Validate(); err != nil {
		return Transaction{}, err
	}

	before := w.Balance
	var after decimal.Decimal
	switch m.Direction {
	case Credit:
		after = before.Add(m.Amount)
		if after.GreaterThan(MaxAmount) {
			return Transaction{}, fmt.Errorf("%w: balance limit exceeded", ErrInvalidAmount)
		}
	case Debit:
		if before.LessThan(m.Amount) {
			return Transaction{}, &InsufficientBalanceError{Required: m.Amount, Available: before}
		}
		after = before.Sub(m.Amount)
	}

	w.Balance = after
	if m.Direction == Credit {
		w.TotalCredited = w.TotalCredited.Add(m.Amount)
		if m.Cashback {
			w.TotalCashback = w.TotalCashback.Add(m.Amount)
		}
		if m.Kind == KindRecharge {
			w.LastRechargeAt = &now
		}
	} else {
		w.TotalDebited = w.TotalDebited.Add(m.Amount)
	}
	w.LastTransactionAt = &now
	w.UpdatedAt = now

	metadata := m.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return Transaction{
		ID:                  entryID,
		UserID:              w.UserID,
		WalletID:            w.ID,
		Kind:                m.Kind,
		Direction:           m.Direction,
		Amount:              m.Amount,
		BalanceBefore:       before,
		BalanceAfter:        after,
		Status:              StatusCompleted,
		PaymentMethod:       m.Payment.Method,
		GatewayOrderID:      m.Payment.GatewayOrderID,
		GatewayPaymentID:    m.Payment.GatewayPaymentID,
		RelatedOrder:        m.Correlation.OrderID,
		RelatedSubscription: m.Correlation.SubscriptionID,
		Description:         m.Description,
		Metadata:            metadata,
		CreatedAt:           now,
	}, nil
}

// ReplayBalance folds completed entries, oldest first, starting from zero.
func ReplayBalance(entries []Transaction) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range entries {
		if e.Status != StatusCompleted {
			continue
		}
		if e.Direction == Credit {
			balance = balance.Add(e.Amount)
		} else {
			balance = balance.Sub(e.Amount)
		}
	}
	return balance
}
