package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/kinolog/kinolog/internal/models"
	"github.com/sirupsen/logrus"
)

var codeRe = regexp.MustCompile(`^\d{6}$`)

// CodeHandler receives one-time login codes from the mail hook. The
// login flow polls the store for them while it waits on the OTP form.
type CodeHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewCodeHandler creates a new code handler
func NewCodeHandler(db *models.Database, logger *logrus.Logger) *CodeHandler {
	return &CodeHandler{
		db:     db,
		logger: logger,
	}
}

// CodePayload is the body the mail hook posts
type CodePayload struct {
	Code       string    `json:"code"`
	ReceivedAt time.Time `json:"received_at,omitempty"` // defaults to now
}

// ServeHTTP handles the code ingress endpoint
func (h *CodeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload CodePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.WithError(err).Error("Failed to decode code payload")
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if !codeRe.MatchString(payload.Code) {
		h.logger.WithField("code", payload.Code).Warn("Rejected malformed one-time code")
		http.Error(w, "Code must be 6 digits", http.StatusBadRequest)
		return
	}
	if payload.ReceivedAt.IsZero() {
		payload.ReceivedAt = time.Now()
	}

	if err := h.db.CreateCode(&models.Code{Value: payload.Code, ReceivedAt: payload.ReceivedAt}); err != nil {
		h.logger.WithError(err).Error("Failed to store one-time code")
		http.Error(w, "Failed to store code", http.StatusInternalServerError)
		return
	}

	h.logger.Info("One-time code received")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
