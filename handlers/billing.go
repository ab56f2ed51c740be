package handlers

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/database"
	"github.com/RobNhz/zaptec-invoice-app/services"
	"github.com/RobNhz/zaptec-invoice-app/services/storage"
)

type BillingHandler struct {
	store     *database.Store
	billing   *services.BillingService
	documents storage.DocumentStore
	lock      services.RunLock
	logger    *zap.Logger
}

func NewBillingHandler(store *database.Store, billing *services.BillingService, documents storage.DocumentStore, lock services.RunLock, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{
		store:     store,
		billing:   billing,
		documents: documents,
		lock:      lock,
		logger:    logger,
	}
}

type GenerateRequest struct {
	Month string `json:"month"`
}

func (h *BillingHandler) GenerateInvoices(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	result, err := runExclusive(r.Context(), h.lock, services.RunKindInvoices, func() (*services.GenerationResult, error) {
		return h.billing.GenerateInvoices(r.Context(), req.Month)
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *BillingHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.store.ListInvoices(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (h *BillingHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	inv, err := h.store.GetInvoice(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	url, err := h.documents.URL(r.Context(), inv.DocumentRef)
	if err != nil {
		h.logger.Warn("failed to sign document URL", zap.String("invoice_id", id), zap.Error(err))
	}
	if url == "" {
		url = fmt.Sprintf("/api/invoices/%s/document", inv.ID)
	}
	inv.DocumentURL = url

	writeJSON(w, http.StatusOK, inv)
}

// DownloadDocument redirects to a signed URL when the store offers one and
// streams the document otherwise.
func (h *BillingHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	inv, err := h.store.GetInvoice(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if inv.DocumentRef == "" {
		writeError(w, http.StatusNotFound, "Invoice has no document")
		return
	}

	url, err := h.documents.URL(r.Context(), inv.DocumentRef)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if url != "" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	doc, err := h.documents.Open(r.Context(), inv.DocumentRef)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	defer doc.Close()

	name := filepath.Base(inv.DocumentRef)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	if _, err := io.Copy(w, doc); err != nil {
		h.logger.Warn("failed to stream invoice document", zap.String("invoice_id", id), zap.Error(err))
	}
}
