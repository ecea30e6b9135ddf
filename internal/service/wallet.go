package service

import (
	"context"
	"errors"

	"AquaWallet/internal/metrics"
	"AquaWallet/internal/model"
	"AquaWallet/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletService is the only path through which a wallet balance changes.
type WalletService interface {
	GetOrCreateWallet(ctx context.Context, userID string) (*model.Wallet, error)
	Credit(ctx context.Context, req Request) (*Result, error)
	Debit(ctx context.Context, req Request) (*Result, error)
	CreditCashback(ctx context.Context, req Request) (*Result, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID string, page model.Page) ([]model.Transaction, model.Pagination, error)
	VerifyLedger(ctx context.Context, userID string) (*Reconciliation, error)
}

// Request describes one credit or debit against a user's wallet.
type Request struct {
	UserID      string
	Amount      decimal.Decimal
	Kind        model.TransactionKind
	Description string
	Correlation model.Correlation
	Payment     model.PaymentDetails
	Metadata    map[string]any
}

type Result struct {
	NewBalance decimal.Decimal
	Entry      model.Transaction
	Wallet     model.Wallet
}

// Reconciliation compares a wallet's stored balance with a replay of its ledger.
type Reconciliation struct {
	WalletID   string
	UserID     string
	Stored     decimal.Decimal
	Replayed   decimal.Decimal
	Entries    int
	BrokenLink string // first entry whose balanceBefore does not chain
}

func (r Reconciliation) Consistent() bool {
	return r.Stored.Equal(r.Replayed) && r.BrokenLink == ""
}

type walletService struct {
	repo   repository.WalletRepository
	locks  *keyedMutex
	logger *zap.Logger
}

func NewWalletService(repo repository.WalletRepository, logger *zap.Logger) WalletService {
	return &walletService{
		repo:   repo,
		locks:  newKeyedMutex(),
		logger: logger.Named("wallet"),
	}
}

func (s *walletService) GetOrCreateWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	if userID == "" {
		return nil, model.ErrMissingUser
	}
	return s.repo.GetOrCreateWallet(ctx, userID)
}

func (s *walletService) Credit(ctx context.Context, req Request) (*Result, error) {
	return s.process(ctx, req.mutation(model.Credit, false))
}

func (s *walletService) Debit(ctx context.Context, req Request) (*Result, error) {
	return s.process(ctx, req.mutation(model.Debit, false))
}

// CreditCashback credits the wallet and counts the amount toward its cashback
// total. Kind defaults to cashback; bonus credits pass KindBonus.
func (s *walletService) CreditCashback(ctx context.Context, req Request) (*Result, error) {
	if req.Kind == "" {
		req.Kind = model.KindCashback
	}
	return s.process(ctx, req.mutation(model.Credit, true))
}

func (s *walletService) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	w, err := s.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

func (s *walletService) ListTransactions(ctx context.Context, userID string, page model.Page) ([]model.Transaction, model.Pagination, error) {
	page = page.Normalize()
	items, total, err := s.repo.ListTransactions(ctx, userID, page)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	return items, model.NewPagination(page, total), nil
}

// VerifyLedger replays the user's ledger while holding the wallet lock.
func (s *walletService) VerifyLedger(ctx context.Context, userID string) (*Reconciliation, error) {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	w, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.LedgerEntries(ctx, w.ID)
	if err != nil {
		return nil, err
	}

	rec := &Reconciliation{
		WalletID: w.ID,
		UserID:   w.UserID,
		Stored:   w.Balance,
		Replayed: model.ReplayBalance(entries),
		Entries:  len(entries),
	}
	running := decimal.Zero
	for _, e := range entries {
		if e.Status != model.StatusCompleted {
			continue
		}
		if !e.BalanceBefore.Equal(running) {
			rec.BrokenLink = e.ID
			break
		}
		running = e.BalanceAfter
	}
	return rec, nil
}

func (r Request) mutation(direction model.Direction, cashback bool) model.Mutation {
	return model.Mutation{
		UserID:      r.UserID,
		Kind:        r.Kind,
		Direction:   direction,
		Amount:      r.Amount,
		Cashback:    cashback,
		Description: r.Description,
		Correlation: r.Correlation,
		Payment:     r.Payment,
		Metadata:    r.Metadata,
	}
}

func (s *walletService) process(ctx context.Context, m model.Mutation) (*Result, error) {
	if err := m.Validate(); err != nil {
		metrics.DebitRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, m.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Once the lock is held the mutation runs to completion even if the
	// caller gives up, so it either commits or it does not.
	w, entry, err := s.repo.ProcessTransaction(context.WithoutCancel(ctx), m)
	if err != nil {
		var insufficient *model.InsufficientBalanceError
		if errors.As(err, &insufficient) {
			metrics.DebitRejections.WithLabelValues(rejectionReason(err)).Inc()
			s.logger.Info("debit rejected",
				zap.String("user_id", m.UserID),
				zap.String("required", insufficient.Required.String()),
				zap.String("available", insufficient.Available.String()))
			return nil, err
		}
		if errors.Is(err, model.ErrAlreadyApplied) {
			s.logger.Info("duplicate mutation skipped",
				zap.String("user_id", m.UserID),
				zap.String("kind", string(m.Kind)),
				zap.String("reference", m.Reference()))
			return nil, err
		}
		s.logger.Error("wallet mutation failed",
			zap.String("user_id", m.UserID),
			zap.String("kind", string(m.Kind)),
			zap.Error(err))
		return nil, err
	}

	metrics.LedgerEntries.WithLabelValues(string(entry.Kind), string(entry.Direction)).Inc()
	s.logger.Debug("ledger entry committed",
		zap.String("user_id", m.UserID),
		zap.String("entry_id", entry.ID),
		zap.String("direction", string(entry.Direction)),
		zap.String("amount", entry.Amount.String()),
		zap.String("balance_after", entry.BalanceAfter.String()))

	return &Result{NewBalance: w.Balance, Entry: *entry, Wallet: *w}, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, model.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, model.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, model.ErrInvalidKind):
		return "invalid_kind"
	default:
		return "invalid_request"
	}
}
