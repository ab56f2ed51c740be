package models

import "time"

// DateLayout is the storage and wire format of calendar dates.
const DateLayout = "2006-01-02"

type Owner struct {
	ID        string    `json:"owner_id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	ChargerID string    `json:"charger_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConsumptionRecord is one charging session reduced to calendar dates.
// (ChargerID, PeriodStart, PeriodEnd) is unique.
type ConsumptionRecord struct {
	ID          int64     `json:"id"`
	ChargerID   string    `json:"charger_id"`
	PeriodStart string    `json:"period_start"`
	PeriodEnd   string    `json:"period_end"`
	KWhUsed     float64   `json:"kwh_used"`
	CostPerKWh  float64   `json:"cost_per_kwh"`
	TotalCost   float64   `json:"total_cost"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type Invoice struct {
	ID            string        `json:"invoice_id"`
	InvoiceNumber int64         `json:"invoice_number"`
	OwnerID       string        `json:"owner_id"`
	PeriodStart   string        `json:"period_start"`
	PeriodEnd     string        `json:"period_end"`
	TotalAmount   float64       `json:"total_amount"`
	Currency      string        `json:"currency"`
	DocumentRef   string        `json:"document_ref"`
	DocumentURL   string        `json:"document_url,omitempty"`
	Items         []InvoiceItem `json:"items,omitempty"`
	Owner         *Owner        `json:"owner,omitempty"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

const (
	ItemTypeConsumption = "consumption"
	ItemTypeAdminFee    = "admin_fee"
)

type InvoiceItem struct {
	ID           int64   `json:"id"`
	InvoiceID    string  `json:"invoice_id"`
	Description  string  `json:"description"`
	Period       string  `json:"period"`
	Quantity     float64 `json:"quantity"`
	QuantityText string  `json:"quantity_text,omitempty"`
	UnitPrice    float64 `json:"unit_price"`
	TotalPrice   float64 `json:"total_price"`
	ItemType     string  `json:"item_type"`
}
