package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AquaWallet/internal/model"
	"AquaWallet/internal/repository"
)

var walletRowColumns = []string{
	"id", "user_id", "balance", "total_credited", "total_debited", "total_cashback",
	"is_active", "last_recharge_at", "last_transaction_at", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func walletRow(balance string) *sqlmock.Rows {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(walletRowColumns).
		AddRow("7f0c3a4e-0000-4000-8000-000000000001", "user-1", balance, balance, "0", "0",
			true, nil, nil, created, created)
}

// expectLockedWallet queues the statements that run before the balance update.
func expectLockedWallet(mock sqlmock.Sqlmock, balance string) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallets (id, user_id) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM wallets WHERE user_id = $1 FOR UPDATE")).
		WithArgs("user-1").
		WillReturnRows(walletRow(balance))
}

func TestPostgresRepository_ProcessTransactionLocksAndCommits(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewPostgresRepository(db)

	expectLockedWallet(mock, "100.00")
	mock.ExpectExec(regexp.QuoteMeta("UPDATE wallets SET balance = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_transactions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m := debit("user-1", 40)
	m.Correlation.OrderID = "o-1"
	w, entry, err := repo.ProcessTransaction(context.Background(), m)
	require.NoError(t, err)

	assert.True(t, w.Balance.Equal(decimal.NewFromInt(60)), w.Balance.String())
	assert.True(t, entry.BalanceBefore.Equal(decimal.NewFromInt(100)))
	assert.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, "o-1", entry.RelatedOrder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ProcessTransactionRejectsOverdraftBeforeWriting(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewPostgresRepository(db)

	expectLockedWallet(mock, "10.00")
	mock.ExpectRollback()

	_, _, err := repo.ProcessTransaction(context.Background(), debit("user-1", 40))

	var insufficient *model.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(decimal.NewFromInt(10)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ProcessTransactionMapsConstraintErrors(t *testing.T) {
	recharge := credit("user-1", 50)
	recharge.Payment.GatewayPaymentID = "pay_1"

	testCases := []struct {
		name        string
		mutation    model.Mutation
		expect      func(mock sqlmock.Sqlmock)
		expectedErr error
	}{
		{
			name:     "Balance check violation",
			mutation: debit("user-1", 40),
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("UPDATE wallets SET balance = $1")).
					WillReturnError(&pq.Error{Code: "23514"})
			},
			expectedErr: model.ErrInsufficientBalance,
		},
		{
			name:     "Duplicate gateway payment",
			mutation: recharge,
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("UPDATE wallets SET balance = $1")).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_transactions")).
					WillReturnError(&pq.Error{Code: "23505"})
			},
			expectedErr: model.ErrAlreadyApplied,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := repository.NewPostgresRepository(db)

			expectLockedWallet(mock, "100.00")
			tc.expect(mock)
			mock.ExpectRollback()

			_, _, err := repo.ProcessTransaction(context.Background(), tc.mutation)
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepository_UniqueViolationWithoutReferenceIsNotDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewPostgresRepository(db)

	expectLockedWallet(mock, "0")
	mock.ExpectExec(regexp.QuoteMeta("UPDATE wallets SET balance = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_transactions")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, _, err := repo.ProcessTransaction(context.Background(), credit("user-1", 5))
	require.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrAlreadyApplied))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetWalletNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewPostgresRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM wallets WHERE user_id = $1")).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(walletRowColumns))

	_, err := repo.GetWallet(context.Background(), "nobody")
	assert.ErrorIs(t, err, model.ErrWalletNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListTransactionsClampsOffset(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewPostgresRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM wallet_transactions WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $2 OFFSET $3")).
		WithArgs("user-1", model.MaxPageSize, (model.MaxPage-1)*model.MaxPageSize).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	items, total, err := repo.ListTransactions(context.Background(), "user-1", model.Page{Page: math.MaxInt, Limit: 500})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 3, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresNotificationRepository_MarkReadOnlyFlipsUnread(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewPostgresNotificationRepository(db)
	at := time.Now().UTC()

	query := regexp.QuoteMeta("UPDATE notifications SET is_read = TRUE, read_at = $2, updated_at = $2 WHERE id = $1 AND is_read = FALSE")
	mock.ExpectExec(query).WithArgs("n-1", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("n-1", at).WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.MarkRead(context.Background(), "n-1", at)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkRead(context.Background(), "n-1", at)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
