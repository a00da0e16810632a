// Package metrics holds the prometheus instruments exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesScanned counts listing pages fully processed, per scan type
	PagesScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinolog_pages_scanned_total",
		Help: "Listing pages fully processed.",
	}, []string{"scan"})

	// RowsAdded counts net-new rows written, per table
	RowsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinolog_rows_added_total",
		Help: "Net-new rows written to the store.",
	}, []string{"table"})

	// SessionRestarts counts browser session teardown/recreate cycles
	SessionRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kinolog_session_restarts_total",
		Help: "Browser sessions torn down and recreated.",
	})

	// ChallengesDetected counts anti-bot interstitials hit on navigation
	ChallengesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kinolog_challenges_detected_total",
		Help: "Anti-bot challenge pages encountered.",
	})

	// BackupsScheduled counts accepted (non-coalesced) backup requests
	BackupsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kinolog_backups_scheduled_total",
		Help: "Store backups scheduled after ingestion batches.",
	})
)
