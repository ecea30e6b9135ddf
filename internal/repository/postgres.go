package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"AquaWallet/internal/model"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const walletColumns = `id::text, user_id, balance, total_credited, total_debited, total_cashback,
	is_active, last_recharge_at, last_transaction_at, created_at, updated_at`

const transactionColumns = `id, user_id, wallet_id::text, kind, direction, amount, balance_before, balance_after,
	status, payment_method, gateway_order_id, gateway_payment_id, related_order, related_subscription,
	description, metadata, created_at`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*model.Wallet, error) {
	var (
		w                   model.Wallet
		lastRecharge, lastTx sql.NullTime
	)
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.TotalCredited, &w.TotalDebited, &w.TotalCashback,
		&w.IsActive, &lastRecharge, &lastTx, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastRecharge.Valid {
		w.LastRechargeAt = &lastRecharge.Time
	}
	if lastTx.Valid {
		w.LastTransactionAt = &lastTx.Time
	}
	return &w, nil
}

func scanTransaction(row rowScanner) (model.Transaction, error) {
	var (
		t        model.Transaction
		metadata []byte
	)
	err := row.Scan(&t.ID, &t.UserID, &t.WalletID, &t.Kind, &t.Direction, &t.Amount, &t.BalanceBefore,
		&t.BalanceAfter, &t.Status, &t.PaymentMethod, &t.GatewayOrderID, &t.GatewayPaymentID,
		&t.RelatedOrder, &t.RelatedSubscription, &t.Description, &metadata, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
		return t, fmt.Errorf("failed to decode transaction metadata: %w", err)
	}
	return t, nil
}

func ensureWallet(ctx context.Context, q interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, userID string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO wallets (id, user_id) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		uuid.NewString(), userID)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetOrCreateWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	if err := ensureWallet(ctx, r.db, userID); err != nil {
		return nil, err
	}
	return r.GetWallet(ctx, userID)
}

func (r *PostgresRepository) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	w, err := scanWallet(r.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

func (r *PostgresRepository) ProcessTransaction(ctx context.Context, m model.Mutation) (*model.Wallet, *model.Transaction, error) {
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. Lazily creating the wallet
	if err := ensureWallet(ctx, tx, m.UserID); err != nil {
		return nil, nil, err
	}

	// 2. Locking the wallet row for the rest of the transaction
	w, err := scanWallet(tx.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, m.UserID))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	// 3. Checking the precondition and computing the entry
	entry, err := w.Apply(m, NewID(), time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}

	// 4. Updating the projection
	_, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance = $1, total_credited = $2, total_debited = $3, total_cashback = $4,
			last_recharge_at = $5, last_transaction_at = $6, updated_at = $7
		WHERE id = $8`,
		w.Balance, w.TotalCredited, w.TotalDebited, w.TotalCashback,
		w.LastRechargeAt, w.LastTransactionAt, w.UpdatedAt, w.ID)
	if err != nil {
		if isCheckViolation(err) {
			return nil, nil, &model.InsufficientBalanceError{Required: m.Amount, Available: entry.BalanceBefore}
		}
		return nil, nil, fmt.Errorf("balance update failed: %w", err)
	}

	// 5. Appending the ledger entry
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode transaction metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_transactions (id, user_id, wallet_id, kind, direction, amount, balance_before,
			balance_after, status, payment_method, gateway_order_id, gateway_payment_id, related_order,
			related_subscription, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		entry.ID, entry.UserID, entry.WalletID, entry.Kind, entry.Direction, entry.Amount, entry.BalanceBefore,
		entry.BalanceAfter, entry.Status, entry.PaymentMethod, entry.GatewayOrderID, entry.GatewayPaymentID,
		entry.RelatedOrder, entry.RelatedSubscription, entry.Description, metadata, entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) && m.Reference() != "" {
			return nil, nil, &model.AlreadyAppliedError{Kind: m.Kind, Reference: m.Reference()}
		}
		return nil, nil, fmt.Errorf("ledger append failed: %w", err)
	}

	// 6. Fixing the transaction
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("transaction commit failed: %w", err)
	}

	return w, &entry, nil
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, userID string, page model.Page) ([]model.Transaction, int, error) {
	page = page.Normalize()

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wallet_transactions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM wallet_transactions
		WHERE user_id = $1 ORDER BY created_at DESC, seq DESC LIMIT $2 OFFSET $3`,
		userID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	items, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PostgresRepository) LedgerEntries(ctx context.Context, walletID string) ([]model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM wallet_transactions WHERE wallet_id = $1 ORDER BY seq ASC`, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *PostgresRepository) ListWallets(ctx context.Context) ([]model.Wallet, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []model.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, *w)
	}
	return wallets, rows.Err()
}

func collectTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	items := make([]model.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func isCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23514"
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// RunMigrations executes every .sql file of dir in lexical order.
func (r *PostgresRepository) RunMigrations(ctx context.Context, dir string) error {
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to list migrations in %s: %w", dir, err)
	}
	sort.Strings(files)

	for _, path := range files {
		migration, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read migration file at %s: %w", path, err)
		}
		if _, err := r.db.ExecContext(ctx, string(migration)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filepath.Base(path), err)
		}
	}

	return nil
}
