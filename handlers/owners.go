package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/database"
	"github.com/RobNhz/zaptec-invoice-app/models"
)

const maxOwnerFieldLength = 256

type OwnerHandler struct {
	store  *database.Store
	logger *zap.Logger
}

func NewOwnerHandler(store *database.Store, logger *zap.Logger) *OwnerHandler {
	return &OwnerHandler{store: store, logger: logger}
}

type UpdateOwnerRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

func (h *OwnerHandler) List(w http.ResponseWriter, r *http.Request) {
	owners, err := h.store.ListOwners(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, owners)
}

func (h *OwnerHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req UpdateOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Name) > maxOwnerFieldLength || len(req.Address) > maxOwnerFieldLength || len(req.Phone) > maxOwnerFieldLength {
		writeError(w, http.StatusBadRequest, "fields must not exceed 256 characters")
		return
	}

	err := h.store.UpdateOwner(r.Context(), models.Owner{
		ID:      id,
		Name:    req.Name,
		Address: req.Address,
		Phone:   req.Phone,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	owner, err := h.store.GetOwner(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.logger.Info("owner updated", zap.String("owner_id", id))
	writeJSON(w, http.StatusOK, owner)
}
