package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")

	require.NoError(t, RunMigrations(path))
	db, err := InitDB(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(db)
}

func record(charger, start, end string, kwh, price float64) models.ConsumptionRecord {
	return models.ConsumptionRecord{
		ChargerID:   charger,
		PeriodStart: start,
		PeriodEnd:   end,
		KWhUsed:     kwh,
		CostPerKWh:  price,
		TotalCost:   kwh * price,
		FetchedAt:   time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))
}

func TestInsertConsumption_DeduplicatesByDatePair(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inserted, err := store.InsertConsumption(ctx, nil, record("c1", "2026-01-05", "2026-01-05", 10, 2))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same dates, different energy: the stored row wins.
	inserted, err = store.InsertConsumption(ctx, nil, record("c1", "2026-01-05", "2026-01-05", 99, 2))
	require.NoError(t, err)
	assert.False(t, inserted)

	// Same dates on another charger is a different record.
	inserted, err = store.InsertConsumption(ctx, nil, record("c2", "2026-01-05", "2026-01-05", 5, 2))
	require.NoError(t, err)
	assert.True(t, inserted)

	records, err := store.ConsumptionForPeriod(ctx, "c1", "2026-01-01", "2026-01-31")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 10.0, records[0].KWhUsed)
}

func TestConsumptionExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertConsumption(ctx, nil, record("c1", "2026-01-05", "2026-01-06", 10, 2))
	require.NoError(t, err)

	exists, err := store.ConsumptionExists(ctx, "c1", "2026-01-05", "2026-01-06")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ConsumptionExists(ctx, "c1", "2026-01-05", "2026-01-05")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestConsumptionForPeriod_OnlyFullyContainedRowsInOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, r := range []models.ConsumptionRecord{
		record("c1", "2026-01-20", "2026-01-20", 3, 2),
		record("c1", "2026-01-01", "2026-01-02", 1, 2),
		record("c1", "2025-12-31", "2026-01-01", 7, 2), // starts before the period
		record("c1", "2026-01-31", "2026-02-01", 8, 2), // ends after the period
		record("c1", "2026-01-31", "2026-01-31", 4, 2),
	} {
		_, err := store.InsertConsumption(ctx, nil, r)
		require.NoError(t, err)
	}

	records, err := store.ConsumptionForPeriod(ctx, "c1", "2026-01-01", "2026-01-31")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "2026-01-01", records[0].PeriodStart)
	assert.Equal(t, "2026-01-20", records[1].PeriodStart)
	assert.Equal(t, "2026-01-31", records[2].PeriodStart)
}

func TestListConsumption_AllChargers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, r := range []models.ConsumptionRecord{
		record("c2", "2026-01-03", "2026-01-03", 2, 2),
		record("c1", "2026-01-10", "2026-01-10", 1, 2),
		record("c1", "2026-02-01", "2026-02-01", 9, 2),
	} {
		_, err := store.InsertConsumption(ctx, nil, r)
		require.NoError(t, err)
	}

	records, err := store.ListConsumption(ctx, "2026-01-01", "2026-01-31")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c1", records[0].ChargerID)
	assert.Equal(t, "c2", records[1].ChargerID)
}

func TestEnsureOwner_DoesNotOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.EnsureOwner(ctx, nil, models.Owner{ID: "60996", Name: "Charger 60996", ChargerID: "60996"})
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, store.UpdateOwner(ctx, models.Owner{ID: "60996", Name: "Robert", Address: "CBV 12E"}))

	created, err = store.EnsureOwner(ctx, nil, models.Owner{ID: "60996", Name: "Charger 60996", ChargerID: "60996"})
	require.NoError(t, err)
	assert.False(t, created)

	owner, err := store.GetOwner(ctx, "60996")
	require.NoError(t, err)
	assert.Equal(t, "Robert", owner.Name)
	assert.Equal(t, "CBV 12E", owner.Address)
}

func TestUpdateOwner_NotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateOwner(context.Background(), models.Owner{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvoices_InsertGetList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureOwner(ctx, nil, models.Owner{ID: "o1", Name: "Owner One", ChargerID: "c1"})
	require.NoError(t, err)

	insert := func(id string, generated time.Time) {
		err := store.WithTx(ctx, func(tx *sql.Tx) error {
			number, err := store.NextInvoiceNumber(ctx, tx)
			if err != nil {
				return err
			}
			return store.InsertInvoice(ctx, tx, models.Invoice{
				ID:            id,
				InvoiceNumber: number,
				OwnerID:       "o1",
				PeriodStart:   "2026-01-01",
				PeriodEnd:     "2026-01-31",
				TotalAmount:   12.5,
				Currency:      "SEK",
				DocumentRef:   id + ".pdf",
				GeneratedAt:   generated,
				Items: []models.InvoiceItem{
					{Description: "Laddning", Period: "Jan-2026", Quantity: 6.25, UnitPrice: 2, TotalPrice: 12.5, ItemType: models.ItemTypeConsumption},
				},
			})
		})
		require.NoError(t, err)
	}

	insert("inv-a", time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	insert("inv-b", time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC))

	list, err := store.ListInvoices(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "inv-b", list[0].ID)
	assert.Equal(t, int64(2), list[0].InvoiceNumber)

	inv, err := store.GetInvoice(ctx, "inv-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), inv.InvoiceNumber)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "Jan-2026", inv.Items[0].Period)
	require.NotNil(t, inv.Owner)
	assert.Equal(t, "Owner One", inv.Owner.Name)

	exists, err := store.InvoiceExists(ctx, nil, "o1", "2026-01-01", "2026-01-31")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = store.GetInvoice(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := store.InsertConsumption(ctx, tx, record("c1", "2026-01-05", "2026-01-05", 1, 1)); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	exists, err := store.ConsumptionExists(ctx, "c1", "2026-01-05", "2026-01-05")
	require.NoError(t, err)
	assert.False(t, exists)
}
