package service

import (
	"context"
	"fmt"
	"time"

	"AquaWallet/internal/metrics"
	"AquaWallet/internal/repository"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Reconciler periodically replays every wallet ledger and reports wallets
// whose stored balance drifted from it.
type Reconciler struct {
	repo    repository.WalletRepository
	wallets WalletService
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration
}

type ReconcileReport struct {
	Checked int
	Drifted []Reconciliation
	Failed  int
}

func NewReconciler(repo repository.WalletRepository, wallets WalletService, logger *zap.Logger) *Reconciler {
	named := logger.Named("reconcile")
	cronLogger := cron.PrintfLogger(zap.NewStdLog(named))
	return &Reconciler{
		repo:    repo,
		wallets: wallets,
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger))),
		logger:  named,
		timeout: 10 * time.Minute,
	}
}

// Start schedules RunOnce on schedule, e.g. "@hourly".
func (r *Reconciler) Start(schedule string) error {
	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("reconcile run failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	r.cron.Start()
	r.logger.Info("ledger reconciliation scheduled", zap.String("schedule", schedule))
	return nil
}

// Stop waits for a running job to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reconciler) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	wallets, err := r.repo.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	report := &ReconcileReport{}
	for _, w := range wallets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rec, err := r.wallets.VerifyLedger(ctx, w.UserID)
		if err != nil {
			report.Failed++
			r.logger.Warn("failed to verify ledger", zap.String("user_id", w.UserID), zap.Error(err))
			continue
		}
		report.Checked++
		if !rec.Consistent() {
			report.Drifted = append(report.Drifted, *rec)
			r.logger.Error("ledger drift detected",
				zap.String("wallet_id", rec.WalletID),
				zap.String("user_id", rec.UserID),
				zap.String("stored", rec.Stored.String()),
				zap.String("replayed", rec.Replayed.String()),
				zap.String("broken_link", rec.BrokenLink))
		}
	}

	metrics.LedgerDrift.Set(float64(len(report.Drifted)))
	r.logger.Info("ledger reconciliation finished",
		zap.Int("checked", report.Checked),
		zap.Int("drifted", len(report.Drifted)),
		zap.Int("failed", report.Failed))
	return report, nil
}
