package handlers

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/models"
)

const maxImportSize = 10 << 20

type ImportResult struct {
	Processed         int    `json:"processed"`
	Imported          int    `json:"imported"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
	OwnersCreated     int    `json:"owners_created"`
	Errors            int    `json:"errors"`
	FirstError        string `json:"first_error,omitempty"`
}

func (res *ImportResult) fail(row int, format string, args ...any) {
	res.Errors++
	if res.FirstError == "" {
		res.FirstError = fmt.Sprintf("Row %d: %s", row, fmt.Sprintf(format, args...))
	}
}

// ImportConsumption reads a CSV in the export format from the "csv" form
// field. Rows already stored for the same charger and dates are skipped;
// invalid rows are counted and skipped.
func (h *ConsumptionHandler) ImportConsumption(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	file, _, err := r.FormFile("csv")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No CSV file provided")
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read CSV header")
		return
	}
	if len(header) != len(consumptionCSVHeader) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid CSV format. Expected %d columns, got %d", len(consumptionCSVHeader), len(header)))
		return
	}

	result := &ImportResult{}
	var (
		records []models.ConsumptionRecord
		owners  []models.Owner
		seen    = map[string]bool{}
	)
	now := time.Now().UTC()

	for row := 2; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		result.Processed++
		if err != nil {
			result.fail(row, "%v", err)
			continue
		}
		if len(fields) != len(consumptionCSVHeader) {
			result.fail(row, "expected %d columns, got %d", len(consumptionCSVHeader), len(fields))
			continue
		}

		rec, err := parseConsumptionRow(fields, now)
		if err != nil {
			result.fail(row, "%v", err)
			continue
		}
		records = append(records, rec)

		if !seen[rec.ChargerID] {
			seen[rec.ChargerID] = true
			name := strings.TrimSpace(fields[1])
			if name == "" {
				name = "Charger " + rec.ChargerID
			}
			owners = append(owners, models.Owner{ID: rec.ChargerID, Name: name, ChargerID: rec.ChargerID})
		}
	}

	err = h.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		for _, owner := range owners {
			created, err := h.store.EnsureOwner(r.Context(), tx, owner)
			if err != nil {
				return err
			}
			if created {
				result.OwnersCreated++
			}
		}
		for _, rec := range records {
			inserted, err := h.store.InsertConsumption(r.Context(), tx, rec)
			if err != nil {
				return err
			}
			if inserted {
				result.Imported++
			} else {
				result.DuplicatesSkipped++
			}
		}
		return nil
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.logger.Info("consumption import completed",
		zap.Int("processed", result.Processed),
		zap.Int("imported", result.Imported),
		zap.Int("duplicates_skipped", result.DuplicatesSkipped),
		zap.Int("errors", result.Errors))
	writeJSON(w, http.StatusOK, result)
}

func parseConsumptionRow(fields []string, fetchedAt time.Time) (models.ConsumptionRecord, error) {
	chargerID := strings.TrimSpace(fields[0])
	if chargerID == "" {
		return models.ConsumptionRecord{}, errors.New("missing charger ID")
	}

	start, err := time.Parse(models.DateLayout, strings.TrimSpace(fields[2]))
	if err != nil {
		return models.ConsumptionRecord{}, errors.New("invalid period start")
	}
	end, err := time.Parse(models.DateLayout, strings.TrimSpace(fields[3]))
	if err != nil {
		return models.ConsumptionRecord{}, errors.New("invalid period end")
	}
	if end.Before(start) {
		return models.ConsumptionRecord{}, errors.New("period end is before period start")
	}

	kwh, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
	if err != nil || kwh < 0 {
		return models.ConsumptionRecord{}, errors.New("invalid energy value")
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(fields[5]), 64)
	if err != nil || price < 0 {
		return models.ConsumptionRecord{}, errors.New("invalid cost per kWh")
	}

	return models.ConsumptionRecord{
		ChargerID:   chargerID,
		PeriodStart: start.Format(models.DateLayout),
		PeriodEnd:   end.Format(models.DateLayout),
		KWhUsed:     kwh,
		CostPerKWh:  price,
		TotalCost:   kwh * price,
		FetchedAt:   fetchedAt,
	}, nil
}
