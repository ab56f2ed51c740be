package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/RobNhz/zaptec-invoice-app/config"
	"github.com/RobNhz/zaptec-invoice-app/models"
)

// Renderer turns an invoice into a document.
type Renderer interface {
	Render(ctx context.Context, doc InvoiceDocument) ([]byte, error)
	ContentType() string
	Extension() string
}

// InvoiceDocument is everything a renderer needs. Amounts are rounded here
// and nowhere else.
type InvoiceDocument struct {
	Invoice     models.Invoice
	Owner       models.Owner
	Sender      config.Sender
	Currency    string
	InvoiceDate time.Time
	DueDate     time.Time
	Reference   string
	PeriodLabel string
	Labels      InvoiceLabels
	// Records are the charging sessions behind the consumption items.
	Records []models.ConsumptionRecord

	Total        decimal.Decimal
	Rounding     decimal.Decimal
	ToPay        decimal.Decimal
	ShowRounding bool
}

func newInvoiceDocument(inv models.Invoice, owner models.Owner, sender config.Sender, period Period, labels InvoiceLabels, roundTotal bool, paymentTermDays int) InvoiceDocument {
	doc := InvoiceDocument{
		Invoice:      inv,
		Owner:        owner,
		Sender:       sender,
		Currency:     inv.Currency,
		InvoiceDate:  inv.GeneratedAt,
		DueDate:      inv.GeneratedAt.AddDate(0, 0, paymentTermDays),
		Reference:    owner.ChargerID,
		PeriodLabel:  period.Label(),
		Labels:       labels,
		Total:        RoundMoney(inv.TotalAmount),
		ShowRounding: roundTotal,
	}

	if roundTotal {
		doc.ToPay, doc.Rounding = WholeUnitRounding(inv.TotalAmount)
	} else {
		doc.ToPay = doc.Total
		doc.Rounding = decimal.Zero
	}
	return doc
}
