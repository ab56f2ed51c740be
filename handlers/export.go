package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/database"
	"github.com/RobNhz/zaptec-invoice-app/models"
)

var consumptionCSVHeader = []string{"Charger ID", "Owner", "Period Start", "Period End", "Energy (kWh)", "Cost per kWh", "Total Cost"}

type ConsumptionHandler struct {
	store  *database.Store
	logger *zap.Logger
}

func NewConsumptionHandler(store *database.Store, logger *zap.Logger) *ConsumptionHandler {
	return &ConsumptionHandler{store: store, logger: logger}
}

// ExportConsumption writes the stored consumption records between
// start_date and end_date as CSV, optionally for one charger.
func (h *ConsumptionHandler) ExportConsumption(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")
	chargerID := r.URL.Query().Get("charger_id")

	if startDate == "" || endDate == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}
	start, err := time.Parse(models.DateLayout, startDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(models.DateLayout, endDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end_date is before start_date")
		return
	}

	var records []models.ConsumptionRecord
	if chargerID != "" {
		records, err = h.store.ConsumptionForPeriod(r.Context(), chargerID, startDate, endDate)
	} else {
		records, err = h.store.ListConsumption(r.Context(), startDate, endDate)
	}
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	owners, err := h.store.ListOwners(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	ownerNames := make(map[string]string, len(owners))
	for _, o := range owners {
		ownerNames[o.ChargerID] = o.Name
	}

	w.Header().Set("Content-Type", "text/csv")
	filename := fmt.Sprintf("consumption-export-%s-to-%s.csv", startDate, endDate)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	writer.Write(consumptionCSVHeader)
	for _, rec := range records {
		row := []string{
			rec.ChargerID,
			ownerNames[rec.ChargerID],
			rec.PeriodStart,
			rec.PeriodEnd,
			fmt.Sprintf("%.2f", rec.KWhUsed),
			fmt.Sprintf("%.2f", rec.CostPerKWh),
			fmt.Sprintf("%.2f", rec.TotalCost),
		}
		if err := writer.Write(row); err != nil {
			h.logger.Warn("failed to write CSV row", zap.Error(err))
			return
		}
	}
}
