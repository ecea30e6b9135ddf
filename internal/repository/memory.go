package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"AquaWallet/internal/model"

	"github.com/google/uuid"
)

// MemoryWalletRepository keeps wallets and their ledgers in process memory.
// Every mutation runs under one lock, so it offers the same atomicity as the
// Postgres repository.
type MemoryWalletRepository struct {
	mu      sync.Mutex
	wallets map[string]*model.Wallet        // by user id
	ledgers map[string][]model.Transaction // by wallet id, commit order
	applied map[string]struct{}            // kind + reference
}

func NewMemoryWalletRepository() *MemoryWalletRepository {
	return &MemoryWalletRepository{
		wallets: make(map[string]*model.Wallet),
		ledgers: make(map[string][]model.Transaction),
		applied: make(map[string]struct{}),
	}
}

func (r *MemoryWalletRepository) walletLocked(userID string) *model.Wallet {
	w, ok := r.wallets[userID]
	if !ok {
		now := time.Now().UTC()
		w = &model.Wallet{
			ID:        uuid.NewString(),
			UserID:    userID,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.wallets[userID] = w
	}
	return w
}

func (r *MemoryWalletRepository) GetOrCreateWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	w := *r.walletLocked(userID)
	return &w, nil
}

func (r *MemoryWalletRepository) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wallets[userID]
	if !ok {
		return nil, model.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *MemoryWalletRepository) ProcessTransaction(ctx context.Context, m model.Mutation) (*model.Wallet, *model.Transaction, error) {
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ref := m.Reference()
	key := string(m.Kind) + "\x00" + ref
	if ref != "" {
		if _, ok := r.applied[key]; ok {
			return nil, nil, &model.AlreadyAppliedError{Kind: m.Kind, Reference: ref}
		}
	}

	stored := r.walletLocked(m.UserID)
	next := *stored
	entry, err := next.Apply(m, NewID(), time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}

	*stored = next
	r.ledgers[stored.ID] = append(r.ledgers[stored.ID], entry)
	if ref != "" {
		r.applied[key] = struct{}{}
	}

	w := next
	return &w, &entry, nil
}

func (r *MemoryWalletRepository) ListTransactions(ctx context.Context, userID string, page model.Page) ([]model.Transaction, int, error) {
	page = page.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wallets[userID]
	if !ok {
		return []model.Transaction{}, 0, nil
	}
	ledger := r.ledgers[w.ID]
	total := len(ledger)

	items := make([]model.Transaction, 0, page.Limit)
	for i := total - 1 - page.Offset(); i >= 0 && len(items) < page.Limit; i-- {
		items = append(items, ledger[i])
	}
	return items, total, nil
}

func (r *MemoryWalletRepository) LedgerEntries(ctx context.Context, walletID string) ([]model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]model.Transaction(nil), r.ledgers[walletID]...), nil
}

func (r *MemoryWalletRepository) ListWallets(ctx context.Context) ([]model.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wallets := make([]model.Wallet, 0, len(r.wallets))
	for _, w := range r.wallets {
		wallets = append(wallets, *w)
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].CreatedAt.Before(wallets[j].CreatedAt) })
	return wallets, nil
}

type MemoryNotificationRepository struct {
	mu    sync.RWMutex
	items map[string]*model.Notification
}

func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{items: make(map[string]*model.Notification)}
}

func (r *MemoryNotificationRepository) CreateNotification(ctx context.Context, n *model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = NewID()
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *n
	r.items[n.ID] = &cp
	return nil
}

func (r *MemoryNotificationRepository) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.items[id]
	if !ok {
		return nil, model.ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *MemoryNotificationRepository) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[id]
	if !ok {
		return false, model.ErrNotificationNotFound
	}
	if n.IsRead {
		return false, nil
	}
	n.IsRead = true
	n.ReadAt = &at
	n.UpdatedAt = at
	return true, nil
}

func (r *MemoryNotificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, n := range r.items {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &at
			n.UpdatedAt = at
			count++
		}
	}
	return count, nil
}

func (r *MemoryNotificationRepository) ListNotifications(ctx context.Context, userID string, filter model.NotificationFilter) ([]model.Notification, int, error) {
	page := filter.Page.Normalize()

	r.mu.RLock()
	matched := make([]model.Notification, 0)
	for _, n := range r.items {
		if n.UserID != userID || (filter.UnreadOnly && n.IsRead) {
			continue
		}
		matched = append(matched, *n)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryNotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.items {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *MemoryNotificationRepository) DeleteNotification(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return model.ErrNotificationNotFound
	}
	delete(r.items, id)
	return nil
}
