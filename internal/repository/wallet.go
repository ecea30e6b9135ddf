package repository

import (
	"context"
	"time"

	"AquaWallet/internal/model"
)

type WalletRepository interface {
	// GetOrCreateWallet returns the user's wallet, creating an empty one on first use.
	GetOrCreateWallet(ctx context.Context, userID string) (*model.Wallet, error)
	GetWallet(ctx context.Context, userID string) (*model.Wallet, error)
	// ProcessTransaction applies m and appends its ledger entry as one unit.
	// The wallet is created lazily when missing.
	ProcessTransaction(ctx context.Context, m model.Mutation) (*model.Wallet, *model.Transaction, error)
	ListTransactions(ctx context.Context, userID string, page model.Page) ([]model.Transaction, int, error)
	// LedgerEntries returns every entry of a wallet in commit order.
	LedgerEntries(ctx context.Context, walletID string) ([]model.Transaction, error)
	ListWallets(ctx context.Context) ([]model.Wallet, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	// MarkRead flips an unread notification to read. It reports false when
	// the notification was already read.
	MarkRead(ctx context.Context, id string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error)
	ListNotifications(ctx context.Context, userID string, filter model.NotificationFilter) ([]model.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	DeleteNotification(ctx context.Context, id string) error
}
