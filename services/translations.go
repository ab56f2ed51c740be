package services

import (
	"fmt"

	"github.com/RobNhz/zaptec-invoice-app/models"
)

const (
	LanguageSwedish = "sv"
	LanguageEnglish = "en"
)

// InvoiceLabels contains all text that appears on invoices
type InvoiceLabels struct {
	Invoice       string
	Sender        string
	Recipient     string
	InvoiceDate   string
	InvoiceNumber string
	ChargerNumber string
	DueDate       string
	Specification string
	Quantity      string
	Period        string
	UnitPrice     string
	Total         string
	InvoiceTotal  string
	Rounding      string
	ToPay         string
	PaymentInfo   string
	Bank          string
	AccountHolder string
	Account       string
	// ReferenceNote takes the payment reference.
	ReferenceNote string
	Sessions      string

	// Item types
	Charging string
	AdminFee string
	PerMonth string
}

// GetLabels returns the labels for the language, Swedish when unknown.
func GetLabels(language string) InvoiceLabels {
	switch language {
	case LanguageEnglish:
		return InvoiceLabels{
			Invoice:       "Invoice",
			Sender:        "From",
			Recipient:     "Bill to",
			InvoiceDate:   "Invoice date:",
			InvoiceNumber: "Invoice no:",
			ChargerNumber: "Charger no:",
			DueDate:       "Due date:",
			Specification: "Description",
			Quantity:      "Quantity kWh",
			Period:        "Period",
			UnitPrice:     "Price/kWh",
			Total:         "Total",
			InvoiceTotal:  "Invoice total:",
			Rounding:      "Rounding:",
			ToPay:         "Amount due:",
			PaymentInfo:   "Payment details",
			Bank:          "Bank",
			AccountHolder: "Account holder",
			Account:       "Account",
			ReferenceNote: "Please quote reference %s with your payment.",
			Sessions:      "Charging sessions",
			Charging:      "Charging",
			AdminFee:      "Administration fee",
			PerMonth:      "per month",
		}
	default:
		return InvoiceLabels{
			Invoice:       "Faktura",
			Sender:        "Avsändare",
			Recipient:     "Mottagare",
			InvoiceDate:   "Fakturadatum:",
			InvoiceNumber: "Fakturanr:",
			ChargerNumber: "Laddboxnr:",
			DueDate:       "Förfallodatum:",
			Specification: "Specifikation",
			Quantity:      "Antal kWh",
			Period:        "Mätperiod",
			UnitPrice:     "Schablonpris/kWh",
			Total:         "Total",
			InvoiceTotal:  "Summa faktura:",
			Rounding:      "Öresutjämning:",
			ToPay:         "Summa att betala:",
			PaymentInfo:   "Betalningsuppgifter",
			Bank:          "Bank",
			AccountHolder: "Kontoinnehavare",
			Account:       "Konto",
			ReferenceNote: "Var vänlig ange referensnumret %s vid betalning.",
			Sessions:      "Laddtillfällen",
			Charging:      "Laddning",
			AdminFee:      "Administrationsavgift",
			PerMonth:      "per månad",
		}
	}
}

// Reference fills the payment reference note.
func (l InvoiceLabels) Reference(ref string) string {
	return fmt.Sprintf(l.ReferenceNote, ref)
}

// ItemDescription translates known item types and keeps custom text.
func (l InvoiceLabels) ItemDescription(item models.InvoiceItem) string {
	switch item.ItemType {
	case models.ItemTypeConsumption:
		return l.Charging
	case models.ItemTypeAdminFee:
		return l.AdminFee
	default:
		return item.Description
	}
}

// SessionPeriod renders the date range of one charging session.
func (l InvoiceLabels) SessionPeriod(rec models.ConsumptionRecord) string {
	if rec.PeriodStart == rec.PeriodEnd {
		return rec.PeriodStart
	}
	return rec.PeriodStart + " - " + rec.PeriodEnd
}

// ItemQuantity renders the quantity column of an item.
func (l InvoiceLabels) ItemQuantity(item models.InvoiceItem) string {
	if item.ItemType == models.ItemTypeAdminFee {
		return fmt.Sprintf("%d %s", int(item.Quantity), l.PerMonth)
	}
	if item.QuantityText != "" {
		return item.QuantityText
	}
	return FormatQuantity(item.Quantity)
}
