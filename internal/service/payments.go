package service

import (
	"context"
	"fmt"

	"AquaWallet/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CashbackRule credits Percent of an order total, floored to whole rupees,
// when the total is at least MinOrder.
type CashbackRule struct {
	MinOrder decimal.Decimal
	Percent  decimal.Decimal
}

func DefaultCashbackRule() CashbackRule {
	return CashbackRule{MinOrder: decimal.NewFromInt(100), Percent: decimal.NewFromInt(2)}
}

func (r CashbackRule) For(total decimal.Decimal) decimal.Decimal {
	if total.LessThan(r.MinOrder) || !r.Percent.IsPositive() {
		return decimal.Zero
	}
	return total.Mul(r.Percent).Div(decimal.NewFromInt(100)).Floor()
}

// PaymentFlows runs the wallet side of external events. Each flow commits one
// wallet mutation and then runs its post-commit hooks in order. A failing hook
// is logged and recorded on the receipt; it never undoes the commit.
type PaymentFlows struct {
	wallet   WalletService
	notifier NotificationService
	cashback CashbackRule
	logger   *zap.Logger
}

func NewPaymentFlows(wallet WalletService, notifier NotificationService, cashback CashbackRule, logger *zap.Logger) *PaymentFlows {
	return &PaymentFlows{
		wallet:   wallet,
		notifier: notifier,
		cashback: cashback,
		logger:   logger.Named("flows"),
	}
}

// Receipt is the outcome of a committed flow.
type Receipt struct {
	Entries     []model.Transaction
	Balance     decimal.Decimal
	HookErrors  []error
	postCommits []postCommit
}

type postCommit struct {
	name string
	run  func(ctx context.Context, r *Receipt) error
}

func (r *Receipt) then(name string, run func(ctx context.Context, r *Receipt) error) {
	r.postCommits = append(r.postCommits, postCommit{name: name, run: run})
}

func (f *PaymentFlows) runPostCommits(ctx context.Context, userID string, r *Receipt) *Receipt {
	for _, hook := range r.postCommits {
		if err := hook.run(ctx, r); err != nil {
			f.logger.Error("post-commit step failed",
				zap.String("user_id", userID),
				zap.String("step", hook.name),
				zap.Error(err))
			r.HookErrors = append(r.HookErrors, fmt.Errorf("%s: %w", hook.name, err))
		}
	}
	r.postCommits = nil
	return r
}

func newReceipt(res *Result) *Receipt {
	return &Receipt{Entries: []model.Transaction{res.Entry}, Balance: res.NewBalance}
}

type OrderPayment struct {
	UserID   string
	OrderID  string
	Quantity int
	Total    decimal.Decimal
}

// PayOrderFromWallet debits the order total, then credits cashback, sends the
// order and cashback notifications and checks for a low balance.
func (f *PaymentFlows) PayOrderFromWallet(ctx context.Context, o OrderPayment) (*Receipt, error) {
	res, err := f.wallet.Debit(ctx, Request{
		UserID:      o.UserID,
		Amount:      o.Total,
		Kind:        model.KindOrderPayment,
		Description: fmt.Sprintf("Order payment for %d bottles", o.Quantity),
		Correlation: model.Correlation{OrderID: o.OrderID},
		Payment:     model.PaymentDetails{Method: "wallet"},
	})
	if err != nil {
		return nil, err
	}

	receipt := newReceipt(res)
	cashback := f.cashback.For(o.Total)

	if cashback.IsPositive() {
		receipt.then("cashback", func(ctx context.Context, r *Receipt) error {
			cres, err := f.wallet.CreditCashback(ctx, Request{
				UserID:      o.UserID,
				Amount:      cashback,
				Kind:        model.KindCashback,
				Description: fmt.Sprintf("%s%% cashback on order of %s", f.cashback.Percent, rupees(o.Total)),
				Correlation: model.Correlation{OrderID: o.OrderID},
			})
			if err != nil {
				return err
			}
			r.Entries = append(r.Entries, cres.Entry)
			r.Balance = cres.NewBalance
			return nil
		})
	}
	receipt.then("order_placed", func(ctx context.Context, r *Receipt) error {
		_, err := f.notifier.Notify(ctx, o.UserID, model.NotificationOrderPlaced, TemplateData{
			OrderID:       o.OrderID,
			TransactionID: res.Entry.ID,
			Quantity:      o.Quantity,
			TotalAmount:   o.Total,
		})
		return err
	})
	if cashback.IsPositive() {
		receipt.then("cashback_credited", func(ctx context.Context, r *Receipt) error {
			if len(r.Entries) < 2 {
				return nil
			}
			_, err := f.notifier.Notify(ctx, o.UserID, model.NotificationCashbackCredited, TemplateData{
				OrderID:       o.OrderID,
				TransactionID: r.Entries[1].ID,
				Amount:        cashback,
			})
			return err
		})
	}
	receipt.then("low_balance", func(ctx context.Context, r *Receipt) error {
		_, err := f.notifier.CheckLowBalance(ctx, o.UserID, r.Balance)
		return err
	})

	return f.runPostCommits(ctx, o.UserID, receipt), nil
}

type Recharge struct {
	UserID      string
	Amount      decimal.Decimal
	Bonus       decimal.Decimal
	Description string
	Payment     model.PaymentDetails
}

// Recharge credits a confirmed top-up and any plan bonus, then notifies.
func (f *PaymentFlows) Recharge(ctx context.Context, in Recharge) (*Receipt, error) {
	description := in.Description
	if description == "" {
		description = fmt.Sprintf("Wallet recharge of %s", rupees(in.Amount))
		if in.Payment.Method != "" {
			description = fmt.Sprintf("Wallet recharge via %s", in.Payment.Method)
		}
	}

	res, err := f.wallet.Credit(ctx, Request{
		UserID:      in.UserID,
		Amount:      in.Amount,
		Kind:        model.KindRecharge,
		Description: description,
		Payment:     in.Payment,
	})
	if err != nil {
		return nil, err
	}

	receipt := newReceipt(res)
	if in.Bonus.IsPositive() {
		receipt.then("recharge_bonus", func(ctx context.Context, r *Receipt) error {
			bres, err := f.wallet.CreditCashback(ctx, Request{
				UserID:      in.UserID,
				Amount:      in.Bonus,
				Kind:        model.KindBonus,
				Description: "Recharge bonus",
				Payment:     in.Payment,
			})
			if err != nil {
				return err
			}
			r.Entries = append(r.Entries, bres.Entry)
			r.Balance = bres.NewBalance
			return nil
		})
	}
	receipt.then("wallet_recharged", func(ctx context.Context, r *Receipt) error {
		_, err := f.notifier.Notify(ctx, in.UserID, model.NotificationWalletRecharged, TemplateData{
			TransactionID: res.Entry.ID,
			Amount:        in.Amount,
			Bonus:         in.Bonus,
		})
		return err
	})

	return f.runPostCommits(ctx, in.UserID, receipt), nil
}

type Refund struct {
	UserID  string
	OrderID string
	Amount  decimal.Decimal
}

// RefundOrder credits a wallet refund for a cancelled order and notifies the
// resident. Cancellations without a refund amount only notify.
func (f *PaymentFlows) RefundOrder(ctx context.Context, in Refund) (*Receipt, error) {
	receipt := &Receipt{}
	data := TemplateData{OrderID: in.OrderID}

	if in.Amount.IsPositive() {
		res, err := f.wallet.Credit(ctx, Request{
			UserID:      in.UserID,
			Amount:      in.Amount,
			Kind:        model.KindRefund,
			Description: fmt.Sprintf("Refund for cancelled order #%s", shortRef(in.OrderID)),
			Correlation: model.Correlation{OrderID: in.OrderID},
		})
		if err != nil {
			return nil, err
		}
		receipt = newReceipt(res)
		data.TransactionID = res.Entry.ID
	}

	receipt.then("order_cancelled", func(ctx context.Context, r *Receipt) error {
		_, err := f.notifier.Notify(ctx, in.UserID, model.NotificationOrderCancelled, data)
		return err
	})

	return f.runPostCommits(ctx, in.UserID, receipt), nil
}

type SubscriptionCharge struct {
	UserID         string
	SubscriptionID string
	Amount         decimal.Decimal
	Description    string
}

func (f *PaymentFlows) ChargeSubscription(ctx context.Context, in SubscriptionCharge) (*Receipt, error) {
	description := in.Description
	if description == "" {
		description = "Subscription payment"
	}
	res, err := f.wallet.Debit(ctx, Request{
		UserID:      in.UserID,
		Amount:      in.Amount,
		Kind:        model.KindSubscriptionPayment,
		Description: description,
		Correlation: model.Correlation{SubscriptionID: in.SubscriptionID},
		Payment:     model.PaymentDetails{Method: "wallet"},
	})
	if err != nil {
		return nil, err
	}

	receipt := newReceipt(res)
	receipt.then("low_balance", func(ctx context.Context, r *Receipt) error {
		_, err := f.notifier.CheckLowBalance(ctx, in.UserID, r.Balance)
		return err
	})

	return f.runPostCommits(ctx, in.UserID, receipt), nil
}
