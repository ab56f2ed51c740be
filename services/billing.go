package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/config"
	"github.com/RobNhz/zaptec-invoice-app/database"
	"github.com/RobNhz/zaptec-invoice-app/models"
	"github.com/RobNhz/zaptec-invoice-app/services/storage"
)

var ErrNoConsumption = errors.New("no consumption in period")

// Aggregate is the billable content of one owner's period.
type Aggregate struct {
	Owner   models.Owner
	Period  Period
	Records []models.ConsumptionRecord
	Items   []models.InvoiceItem
	// Total is the unrounded sum of all item totals.
	Total float64
}

type GenerationFailure struct {
	OwnerID string `json:"owner_id"`
	Error   string `json:"error"`
}

type GenerationResult struct {
	PeriodStart          string              `json:"period_start"`
	PeriodEnd            string              `json:"period_end"`
	Invoices             []models.Invoice    `json:"invoices"`
	SkippedNoConsumption []string            `json:"skipped_no_consumption"`
	SkippedDuplicate     []string            `json:"skipped_duplicate"`
	Failures             []GenerationFailure `json:"failures"`
}

type BillingDeps struct {
	Store     *database.Store
	Renderer  Renderer
	Documents storage.DocumentStore
	Events    EventPublisher
	Metrics   *Metrics
	Clock     Clock
	Logger    *zap.Logger
}

type BillingService struct {
	store     *database.Store
	renderer  Renderer
	documents storage.DocumentStore
	events    EventPublisher
	metrics   *Metrics
	clock     Clock
	logger    *zap.Logger

	pricing         config.Pricing
	sender          config.Sender
	paymentTermDays int
	duplicates      string
	labels          InvoiceLabels
	loc             *time.Location
}

func NewBillingService(cfg *config.Config, deps BillingDeps) *BillingService {
	bs := &BillingService{
		store:           deps.Store,
		renderer:        deps.Renderer,
		documents:       deps.Documents,
		events:          deps.Events,
		metrics:         deps.Metrics,
		clock:           deps.Clock,
		logger:          deps.Logger,
		pricing:         cfg.Pricing,
		sender:          cfg.Sender,
		paymentTermDays: cfg.PaymentTermDays,
		duplicates:      cfg.InvoiceDuplicates,
		labels:          GetLabels(cfg.InvoiceLanguage),
		loc:             cfg.Location(),
	}
	if bs.events == nil {
		bs.events = NoopPublisher{}
	}
	if bs.clock == nil {
		bs.clock = realClock{}
	}
	if bs.logger == nil {
		bs.logger = zap.NewNop()
	}
	return bs
}

// Aggregate sums the owner's consumption records that lie fully inside the
// period. Records are grouped into one item per month and unit price; the
// monthly admin fee follows as a last item.
func (bs *BillingService) Aggregate(ctx context.Context, owner models.Owner, period Period) (*Aggregate, error) {
	return aggregate(ctx, bs.store, owner, period, bs.pricing, bs.labels)
}

func aggregate(ctx context.Context, store *database.Store, owner models.Owner, period Period, pricing config.Pricing, labels InvoiceLabels) (*Aggregate, error) {
	records, err := store.ConsumptionForPeriod(ctx, owner.ChargerID, period.StartDate(), period.EndDate())
	if err != nil {
		return nil, fmt.Errorf("failed to load consumption for %s: %w", owner.ChargerID, err)
	}
	if len(records) == 0 {
		return nil, ErrNoConsumption
	}

	agg := &Aggregate{Owner: owner, Period: period, Records: records}

	type lineKey struct {
		month string
		price float64
	}
	index := map[lineKey]int{}

	for _, rec := range records {
		month := rec.PeriodStart
		if t, err := time.Parse(models.DateLayout, rec.PeriodStart); err == nil {
			month = MonthLabel(t)
		}

		key := lineKey{month: month, price: rec.CostPerKWh}
		i, ok := index[key]
		if !ok {
			i = len(agg.Items)
			index[key] = i
			agg.Items = append(agg.Items, models.InvoiceItem{
				Description: labels.Charging,
				Period:      month,
				UnitPrice:   rec.CostPerKWh,
				ItemType:    models.ItemTypeConsumption,
			})
		}
		agg.Items[i].Quantity += rec.KWhUsed
		agg.Items[i].TotalPrice += rec.TotalCost
	}

	if pricing.AdminFeePerMonth > 0 {
		months := period.Months()
		fee := pricing.AdminFeePerMonth * float64(months)
		agg.Items = append(agg.Items, models.InvoiceItem{
			Description:  labels.AdminFee,
			Quantity:     float64(months),
			QuantityText: fmt.Sprintf("%d %s", months, labels.PerMonth),
			UnitPrice:    pricing.AdminFeePerMonth,
			TotalPrice:   fee,
			ItemType:     models.ItemTypeAdminFee,
		})
	}

	for _, item := range agg.Items {
		agg.Total += item.TotalPrice
	}
	return agg, nil
}

// GenerateInvoices creates one invoice per owner with consumption in the
// billing period named by month (empty means last month). Owners are
// processed one at a time and each owner's invoice is committed on its own,
// so a failing owner never takes the others down.
func (bs *BillingService) GenerateInvoices(ctx context.Context, month string) (*GenerationResult, error) {
	started := time.Now()
	now := bs.clock.Now().In(bs.loc)

	period, err := BillingPeriod(month, now)
	if err != nil {
		return nil, err
	}

	// Captured once so a run uses one consistent price list.
	pricing := bs.pricing
	sender := bs.sender

	bs.logger.Info("invoice run started",
		zap.String("period_start", period.StartDate()),
		zap.String("period_end", period.EndDate()))

	owners, err := bs.store.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}

	result := &GenerationResult{
		PeriodStart:          period.StartDate(),
		PeriodEnd:            period.EndDate(),
		Invoices:             []models.Invoice{},
		SkippedNoConsumption: []string{},
		SkippedDuplicate:     []string{},
		Failures:             []GenerationFailure{},
	}

	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		log := bs.logger.With(zap.String("owner_id", owner.ID), zap.String("charger_id", owner.ChargerID))

		agg, err := aggregate(ctx, bs.store, owner, period, pricing, bs.labels)
		if errors.Is(err, ErrNoConsumption) {
			log.Debug("no consumption in period, skipping owner")
			result.SkippedNoConsumption = append(result.SkippedNoConsumption, owner.ID)
			continue
		}
		if err != nil {
			log.Error("aggregation failed", zap.Error(err))
			result.Failures = append(result.Failures, GenerationFailure{OwnerID: owner.ID, Error: err.Error()})
			continue
		}

		if bs.duplicates == config.DuplicatesSkip {
			exists, err := bs.store.InvoiceExists(ctx, nil, owner.ID, period.StartDate(), period.EndDate())
			if err != nil {
				result.Failures = append(result.Failures, GenerationFailure{OwnerID: owner.ID, Error: err.Error()})
				continue
			}
			if exists {
				log.Info("invoice for period already exists, skipping owner")
				result.SkippedDuplicate = append(result.SkippedDuplicate, owner.ID)
				continue
			}
		}

		inv, err := bs.issueInvoice(ctx, agg, pricing, sender, now)
		if err != nil {
			log.Error("invoice generation failed", zap.Error(err))
			bs.metrics.invoiceFailed()
			result.Failures = append(result.Failures, GenerationFailure{OwnerID: owner.ID, Error: err.Error()})
			continue
		}

		log.Info("invoice generated",
			zap.Int64("invoice_number", inv.InvoiceNumber),
			zap.Float64("total_amount", inv.TotalAmount),
			zap.String("document_ref", inv.DocumentRef))
		bs.metrics.invoiceGenerated()
		bs.events.Publish(ctx, EventInvoiceGenerated, inv)
		result.Invoices = append(result.Invoices, *inv)
	}

	bs.metrics.observeRun(RunKindInvoices, time.Since(started), nil)
	bs.logger.Info("invoice run completed",
		zap.Int("invoices", len(result.Invoices)),
		zap.Int("skipped_no_consumption", len(result.SkippedNoConsumption)),
		zap.Int("skipped_duplicate", len(result.SkippedDuplicate)),
		zap.Int("failures", len(result.Failures)))

	return result, nil
}

// issueInvoice numbers, renders, stores and records one invoice inside a
// single transaction. A stored document is removed again when the
// transaction does not commit.
func (bs *BillingService) issueInvoice(ctx context.Context, agg *Aggregate, pricing config.Pricing, sender config.Sender, now time.Time) (*models.Invoice, error) {
	var (
		inv       models.Invoice
		storedRef string
	)

	err := bs.store.WithTx(ctx, func(tx *sql.Tx) error {
		number, err := bs.store.NextInvoiceNumber(ctx, tx)
		if err != nil {
			return err
		}

		owner := agg.Owner
		inv = models.Invoice{
			ID:            uuid.NewString(),
			InvoiceNumber: number,
			OwnerID:       owner.ID,
			PeriodStart:   agg.Period.StartDate(),
			PeriodEnd:     agg.Period.EndDate(),
			TotalAmount:   agg.Total,
			Currency:      pricing.Currency,
			Items:         agg.Items,
			Owner:         &owner,
			GeneratedAt:   now,
		}

		doc := newInvoiceDocument(inv, owner, sender, agg.Period, bs.labels, pricing.RoundTotal, bs.paymentTermDays)
		doc.Records = agg.Records
		data, err := bs.renderer.Render(ctx, doc)
		if err != nil {
			return fmt.Errorf("failed to render invoice: %w", err)
		}

		name := fmt.Sprintf("invoice-%d-%s%s", number, safeName(owner.ChargerID), bs.renderer.Extension())
		ref, err := bs.documents.Put(ctx, name, data, bs.renderer.ContentType())
		if err != nil {
			return fmt.Errorf("failed to store invoice document: %w", err)
		}
		storedRef = ref
		inv.DocumentRef = ref

		return bs.store.InsertInvoice(ctx, tx, inv)
	})
	if err != nil {
		if storedRef != "" {
			if delErr := bs.documents.Delete(context.WithoutCancel(ctx), storedRef); delErr != nil {
				bs.logger.Warn("failed to remove orphaned invoice document",
					zap.String("document_ref", storedRef), zap.Error(delErr))
			}
		}
		return nil, err
	}

	return &inv, nil
}

func safeName(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
