package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kinolog/kinolog/internal/models"
	"github.com/sirupsen/logrus"
)

// StatusHandler handles status requests
type StatusHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:     db,
		logger: logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	Shows        int64            `json:"shows"`
	ShowsByType  map[string]int64 `json:"shows_by_type"`
	HistoryRows  int64            `json:"history_rows"`
	Durations    int64            `json:"durations"`
	PendingCodes int64            `json:"pending_codes"`
	GapWatermark uint             `json:"gap_watermark"`

	LastScan *LastScan `json:"last_scan,omitempty"`
}

// LastScan summarizes the most recent history checkpoint
type LastScan struct {
	Page int       `json:"page"`
	Done bool      `json:"done"`
	At   time.Time `json:"at"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts, err := h.db.GetCounts()
	if err != nil {
		h.logger.WithError(err).Error("Failed to gather store counts")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	watermark, err := h.db.GetGapWatermark()
	if err != nil {
		h.logger.WithError(err).Error("Failed to read gap watermark")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		Shows:        counts.Shows,
		ShowsByType:  counts.ShowsByType,
		HistoryRows:  counts.History,
		Durations:    counts.Durations,
		PendingCodes: counts.Codes,
		GapWatermark: watermark,
	}

	cp, err := h.db.LatestCheckpoint(models.ScanTypeHistory, string(models.ModeEpisodes), time.Time{})
	if err != nil {
		h.logger.WithError(err).Warn("Failed to read last checkpoint")
	} else if cp != nil {
		response.LastScan = &LastScan{Page: cp.Page, Done: cp.Done, At: cp.CreatedAt}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
