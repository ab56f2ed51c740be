package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/middleware"
	"github.com/RobNhz/zaptec-invoice-app/services"
)

type SyncHandler struct {
	sync   *services.SyncService
	lock   services.RunLock
	logger *zap.Logger
}

func NewSyncHandler(sync *services.SyncService, lock services.RunLock, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{sync: sync, lock: lock, logger: logger}
}

// Sync pulls charge history from the vendor. Credentials in the body win
// over the session's vendor token, which wins over configured credentials.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req services.SyncRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	h.run(w, r, req)
}

// Refresh syncs with the default history window.
func (h *SyncHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, services.SyncRequest{})
}

func (h *SyncHandler) run(w http.ResponseWriter, r *http.Request, req services.SyncRequest) {
	if req.AccessToken == "" && req.Username == "" && req.Password == "" {
		req.AccessToken = middleware.VendorToken(r.Context())
	}

	result, err := runExclusive(r.Context(), h.lock, services.RunKindSync, func() (*services.SyncResult, error) {
		return h.sync.Run(r.Context(), req)
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.logger.Info("sync requested",
		zap.String("user", middleware.Username(r.Context())),
		zap.Int("records_inserted", result.RecordsInserted))
	writeJSON(w, http.StatusOK, result)
}

// runExclusive runs fn while holding the run lock for kind.
func runExclusive[T any](ctx context.Context, lock services.RunLock, kind string, fn func() (T, error)) (T, error) {
	release, err := lock.Acquire(ctx, kind)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return fn()
}
