// Package metrics holds the Prometheus collectors shared by the wallet,
// notification and realtime components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquawallet_ledger_entries_total",
			Help: "Committed ledger entries by kind and direction",
		},
		[]string{"kind", "direction"},
	)

	DebitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquawallet_wallet_rejections_total",
			Help: "Wallet mutations rejected before commit",
		},
		[]string{"reason"},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquawallet_notifications_created_total",
			Help: "Notifications persisted by type",
		},
		[]string{"type"},
	)

	PushAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquawallet_push_attempts_total",
			Help: "Live push attempts by event and result",
		},
		[]string{"event", "result"},
	)

	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aquawallet_realtime_connections",
			Help: "Currently open realtime connections",
		},
	)

	LedgerDrift = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aquawallet_ledger_drift_wallets",
			Help: "Wallets whose stored balance differs from their ledger replay at the last reconcile run",
		},
	)

	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquawallet_events_processed_total",
			Help: "Inbound domain events by type and outcome",
		},
		[]string{"event", "outcome"},
	)
)
