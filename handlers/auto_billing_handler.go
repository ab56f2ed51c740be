package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/services"
)

type AutoBillingHandler struct {
	scheduler *services.AutoBillingScheduler
	logger    *zap.Logger
}

// NewAutoBillingHandler accepts a nil scheduler when automatic billing is
// disabled.
func NewAutoBillingHandler(scheduler *services.AutoBillingScheduler, logger *zap.Logger) *AutoBillingHandler {
	return &AutoBillingHandler{scheduler: scheduler, logger: logger}
}

type autoBillingStatusResponse struct {
	Enabled bool `json:"enabled"`
	*services.AutoBillingStatus
}

func (h *AutoBillingHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeJSON(w, http.StatusOK, autoBillingStatusResponse{Enabled: false})
		return
	}

	status, err := h.scheduler.Status(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, autoBillingStatusResponse{Enabled: true, AutoBillingStatus: status})
}

// RunNow performs the scheduler check immediately instead of waiting for
// the next tick.
func (h *AutoBillingHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeError(w, http.StatusConflict, "automatic billing is disabled")
		return
	}

	generated := h.scheduler.RunOnce(r.Context())
	h.logger.Info("manual auto billing check", zap.Bool("generated", generated))
	writeJSON(w, http.StatusOK, map[string]bool{"generated": generated})
}
