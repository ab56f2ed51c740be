package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/config"
	"github.com/RobNhz/zaptec-invoice-app/database"
	"github.com/RobNhz/zaptec-invoice-app/models"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Pricing.CostPerKWh = 2.00
	cfg.Sender = config.Sender{Name: "Samfälligheten Skogsbrynet", Address: "Nils Kaggs gata 7C\n254 54 Helsingborg", BankAccount: "123-4567"}
	return cfg
}

type billingFixture struct {
	store     *database.Store
	renderer  *stubRenderer
	documents *memoryDocuments
	metrics   *Metrics
	service   *BillingService
}

func newBillingFixture(t *testing.T, cfg *config.Config) *billingFixture {
	f := &billingFixture{
		store:     newTestStore(t),
		renderer:  &stubRenderer{failFor: map[string]bool{}},
		documents: newMemoryDocuments(),
		metrics:   NewMetrics(prometheus.NewRegistry()),
	}
	f.service = NewBillingService(cfg, BillingDeps{
		Store:     f.store,
		Renderer:  f.renderer,
		Documents: f.documents,
		Metrics:   f.metrics,
		Clock:     NewFixedClock(time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)),
		Logger:    zap.NewNop(),
	})
	return f
}

func TestAggregate_ExampleInvoice(t *testing.T) {
	cfg := testConfig()
	cfg.Pricing.AdminFeePerMonth = 15.00
	f := newBillingFixture(t, cfg)

	owner := seedOwner(t, f.store, "60996")
	seedConsumption(t, f.store, "60996", "2025-11-03", "2025-11-03", 77.76, 2.00)
	seedConsumption(t, f.store, "60996", "2025-12-09", "2025-12-10", 84.16, 2.00)
	seedConsumption(t, f.store, "60996", "2026-01-20", "2026-01-20", 85.73, 2.00)

	agg, err := f.service.Aggregate(context.Background(), owner, NewPeriod(date("2025-11-01"), date("2026-01-31")))
	require.NoError(t, err)

	require.Len(t, agg.Records, 3)
	require.Len(t, agg.Items, 4)
	assert.Equal(t, "Nov-2025", agg.Items[0].Period)
	assert.Equal(t, "Dec-2025", agg.Items[1].Period)
	assert.Equal(t, "Jan-2026", agg.Items[2].Period)

	fee := agg.Items[3]
	assert.Equal(t, models.ItemTypeAdminFee, fee.ItemType)
	assert.Equal(t, "3 per månad", fee.QuantityText)
	assert.InDelta(t, 45.00, fee.TotalPrice, 1e-9)

	assert.InDelta(t, 540.30, agg.Total, 1e-9)
	assert.Equal(t, "540.30", RoundMoney(agg.Total).StringFixed(2))

	toPay, rounding := WholeUnitRounding(agg.Total)
	assert.Equal(t, "540.00", toPay.StringFixed(2))
	assert.Equal(t, "-0.30", rounding.StringFixed(2))
}

func TestAggregate_GroupsRowsPerMonthAndKeepsTotalUnrounded(t *testing.T) {
	f := newBillingFixture(t, testConfig())
	owner := seedOwner(t, f.store, "c1")
	seedConsumption(t, f.store, "c1", "2026-01-02", "2026-01-02", 1.005, 2.00)
	seedConsumption(t, f.store, "c1", "2026-01-03", "2026-01-03", 1.005, 2.00)
	seedConsumption(t, f.store, "c1", "2026-01-04", "2026-01-04", 1.000, 2.50)
	// Outside January
	seedConsumption(t, f.store, "c1", "2026-02-01", "2026-02-01", 50, 2.00)

	period, err := BillingPeriod("2026-01", time.Now())
	require.NoError(t, err)

	agg, err := f.service.Aggregate(context.Background(), owner, period)
	require.NoError(t, err)
	require.Len(t, agg.Items, 2)
	assert.InDelta(t, 2.01, agg.Items[0].Quantity, 1e-9)
	assert.InDelta(t, 4.02, agg.Items[0].TotalPrice, 1e-9)
	assert.Equal(t, 2.50, agg.Items[1].UnitPrice)
	assert.InDelta(t, 6.52, agg.Total, 1e-9)
}

func TestAggregate_LineTotalsAddUpToTotal(t *testing.T) {
	f := newBillingFixture(t, testConfig())
	owner := seedOwner(t, f.store, "c1")
	// Alternating prices within one month.
	seedConsumption(t, f.store, "c1", "2026-01-02", "2026-01-02", 0.1, 1.00)
	seedConsumption(t, f.store, "c1", "2026-01-03", "2026-01-03", 0.05, 2.00)
	seedConsumption(t, f.store, "c1", "2026-01-04", "2026-01-04", 1.1, 1.00)

	period, err := BillingPeriod("2026-01", time.Now())
	require.NoError(t, err)

	agg, err := f.service.Aggregate(context.Background(), owner, period)
	require.NoError(t, err)
	require.Len(t, agg.Items, 2)

	var sum float64
	for _, item := range agg.Items {
		sum += item.TotalPrice
	}
	assert.Equal(t, sum, agg.Total)
	assert.Equal(t, "1.30", RoundMoney(agg.Total).StringFixed(2))
}

func TestAggregate_NoRecords(t *testing.T) {
	cfg := testConfig()
	cfg.Pricing.AdminFeePerMonth = 15.00
	f := newBillingFixture(t, cfg)
	owner := seedOwner(t, f.store, "c1")

	period, err := BillingPeriod("2026-01", time.Now())
	require.NoError(t, err)

	_, err = f.service.Aggregate(context.Background(), owner, period)
	assert.ErrorIs(t, err, ErrNoConsumption)
}

func TestGenerateInvoices_IsolatesFailingOwner(t *testing.T) {
	f := newBillingFixture(t, testConfig())
	ctx := context.Background()

	seedOwner(t, f.store, "a")
	seedOwner(t, f.store, "b")
	seedOwner(t, f.store, "c")
	seedConsumption(t, f.store, "a", "2026-01-05", "2026-01-05", 10, 2)
	seedConsumption(t, f.store, "c", "2026-01-06", "2026-01-06", 5, 2)
	f.renderer.failFor["c"] = true

	result, err := f.service.GenerateInvoices(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, "2026-01-01", result.PeriodStart)
	assert.Equal(t, "2026-01-31", result.PeriodEnd)
	require.Len(t, result.Invoices, 1)
	assert.Equal(t, "a", result.Invoices[0].OwnerID)
	assert.Equal(t, int64(1), result.Invoices[0].InvoiceNumber)
	assert.InDelta(t, 20.0, result.Invoices[0].TotalAmount, 1e-9)
	assert.Equal(t, []string{"b"}, result.SkippedNoConsumption)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "c", result.Failures[0].OwnerID)

	stored, err := f.store.ListInvoices(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Len(t, f.documents.docs, 1)

	inv, err := f.store.GetInvoice(ctx, result.Invoices[0].ID)
	require.NoError(t, err)
	assert.Equal(t, result.Invoices[0].DocumentRef, inv.DocumentRef)
	require.Len(t, inv.Items, 1)

	require.Len(t, f.renderer.docs, 1)
	doc := f.renderer.docs[0]
	assert.Equal(t, "2026-03-13", doc.DueDate.Format(models.DateLayout))
	assert.Equal(t, "a", doc.Reference)
	require.Len(t, doc.Records, 1)
	assert.Equal(t, "2026-01-05", doc.Records[0].PeriodStart)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.invoicesGenerated))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.invoiceFailures))
}

func TestGenerateInvoices_StorageFailureRollsBack(t *testing.T) {
	f := newBillingFixture(t, testConfig())
	ctx := context.Background()

	seedOwner(t, f.store, "a")
	seedConsumption(t, f.store, "a", "2026-01-05", "2026-01-05", 10, 2)
	f.documents.putErr = errors.New("disk full")

	result, err := f.service.GenerateInvoices(ctx, "2026-01")
	require.NoError(t, err)
	assert.Empty(t, result.Invoices)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Error, "disk full")

	stored, err := f.store.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	// The number is not burnt by the failed attempt.
	f.documents.putErr = nil
	result, err = f.service.GenerateInvoices(ctx, "2026-01")
	require.NoError(t, err)
	require.Len(t, result.Invoices, 1)
	assert.Equal(t, int64(1), result.Invoices[0].InvoiceNumber)
}

func TestGenerateInvoices_DuplicatePolicy(t *testing.T) {
	t.Run("allow", func(t *testing.T) {
		f := newBillingFixture(t, testConfig())
		seedOwner(t, f.store, "a")
		seedConsumption(t, f.store, "a", "2026-01-05", "2026-01-05", 10, 2)

		for i := 0; i < 2; i++ {
			_, err := f.service.GenerateInvoices(context.Background(), "2026-01")
			require.NoError(t, err)
		}
		stored, err := f.store.ListInvoices(context.Background())
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, int64(2), stored[0].InvoiceNumber)
	})

	t.Run("skip", func(t *testing.T) {
		cfg := testConfig()
		cfg.InvoiceDuplicates = config.DuplicatesSkip
		f := newBillingFixture(t, cfg)
		seedOwner(t, f.store, "a")
		seedConsumption(t, f.store, "a", "2026-01-05", "2026-01-05", 10, 2)

		_, err := f.service.GenerateInvoices(context.Background(), "2026-01")
		require.NoError(t, err)
		result, err := f.service.GenerateInvoices(context.Background(), "2026-01")
		require.NoError(t, err)
		assert.Empty(t, result.Invoices)
		assert.Equal(t, []string{"a"}, result.SkippedDuplicate)
	})
}

func TestGenerateInvoices_EnglishItems(t *testing.T) {
	cfg := testConfig()
	cfg.InvoiceLanguage = LanguageEnglish
	cfg.Pricing.AdminFeePerMonth = 15.00
	f := newBillingFixture(t, cfg)
	ctx := context.Background()

	seedOwner(t, f.store, "a")
	seedConsumption(t, f.store, "a", "2026-01-05", "2026-01-05", 10, 2)

	result, err := f.service.GenerateInvoices(ctx, "2026-01")
	require.NoError(t, err)
	require.Len(t, result.Invoices, 1)

	inv, err := f.store.GetInvoice(ctx, result.Invoices[0].ID)
	require.NoError(t, err)
	require.Len(t, inv.Items, 2)
	assert.Equal(t, "Charging", inv.Items[0].Description)

	fee := inv.Items[1]
	assert.Equal(t, models.ItemTypeAdminFee, fee.ItemType)
	assert.Equal(t, "Administration fee", fee.Description)
	assert.Equal(t, "1 per month", fee.QuantityText)
	assert.InDelta(t, 35.0, inv.TotalAmount, 1e-9)
}

func TestGenerateInvoices_InvalidMonth(t *testing.T) {
	f := newBillingFixture(t, testConfig())
	_, err := f.service.GenerateInvoices(context.Background(), "2026-13")
	assert.ErrorIs(t, err, ErrInvalidMonth)
}
