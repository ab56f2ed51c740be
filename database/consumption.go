package database

import (
	"context"
	"fmt"

	"github.com/RobNhz/zaptec-invoice-app/models"
)

// ConsumptionExists reports whether a record for the exact calendar-date
// pair is already stored for the charger.
func (s *Store) ConsumptionExists(ctx context.Context, chargerID, periodStart, periodEnd string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM consumptions
		WHERE charger_id = ? AND period_start = ? AND period_end = ?
	`, chargerID, periodStart, periodEnd).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check consumption: %w", err)
	}
	return count > 0, nil
}

// InsertConsumption stores the record unless one with the same charger and
// date pair exists. The unique index makes this safe under concurrent runs.
func (s *Store) InsertConsumption(ctx context.Context, q Querier, rec models.ConsumptionRecord) (bool, error) {
	result, err := s.querier(q).ExecContext(ctx, `
		INSERT INTO consumptions (charger_id, period_start, period_end, kwh_used, cost_per_kwh, total_cost, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (charger_id, period_start, period_end) DO NOTHING
	`, rec.ChargerID, rec.PeriodStart, rec.PeriodEnd, rec.KWhUsed, rec.CostPerKWh, rec.TotalCost, rec.FetchedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert consumption for charger %s: %w", rec.ChargerID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ConsumptionForPeriod returns records fully inside [start, end], oldest first.
func (s *Store) ConsumptionForPeriod(ctx context.Context, chargerID, start, end string) ([]models.ConsumptionRecord, error) {
	return s.queryConsumption(ctx, `
		SELECT id, charger_id, period_start, period_end, kwh_used, cost_per_kwh, total_cost, fetched_at
		FROM consumptions
		WHERE charger_id = ? AND period_start >= ? AND period_end <= ?
		ORDER BY period_start, period_end, id
	`, chargerID, start, end)
}

// ListConsumption returns the records of every charger fully inside
// [start, end], grouped by charger.
func (s *Store) ListConsumption(ctx context.Context, start, end string) ([]models.ConsumptionRecord, error) {
	return s.queryConsumption(ctx, `
		SELECT id, charger_id, period_start, period_end, kwh_used, cost_per_kwh, total_cost, fetched_at
		FROM consumptions
		WHERE period_start >= ? AND period_end <= ?
		ORDER BY charger_id, period_start, period_end, id
	`, start, end)
}

func (s *Store) queryConsumption(ctx context.Context, query string, args ...any) ([]models.ConsumptionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query consumption: %w", err)
	}
	defer rows.Close()

	var records []models.ConsumptionRecord
	for rows.Next() {
		var r models.ConsumptionRecord
		if err := rows.Scan(&r.ID, &r.ChargerID, &r.PeriodStart, &r.PeriodEnd, &r.KWhUsed, &r.CostPerKWh, &r.TotalCost, &r.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan consumption: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
