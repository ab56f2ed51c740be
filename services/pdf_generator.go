package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/models"
)

// PDFGenerator draws invoices directly with gofpdf.
type PDFGenerator struct {
	logger *zap.Logger
}

func NewPDFGenerator(logger *zap.Logger) *PDFGenerator {
	return &PDFGenerator{logger: logger}
}

func (pg *PDFGenerator) ContentType() string { return "application/pdf" }
func (pg *PDFGenerator) Extension() string   { return ".pdf" }

func (pg *PDFGenerator) Render(ctx context.Context, doc InvoiceDocument) ([]byte, error) {
	inv := doc.Invoice
	labels := doc.Labels
	currency := displayCurrency(doc.Currency)

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(0, 0, 0)
	pdf.Cell(0, 10, tr(labels.Invoice))
	pdf.Ln(14)

	// Sender and receiver side by side
	pdf.SetFont("Arial", "B", 9)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(90, 5, tr(labels.Sender), "", 0, "L", false, 0, "")
	pdf.CellFormat(90, 5, tr(labels.Recipient), "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(0, 0, 0)
	senderLines := append([]string{doc.Sender.Name}, splitLines(doc.Sender.Address)...)
	receiverLines := append([]string{doc.Owner.Name}, splitLines(doc.Owner.Address)...)
	if doc.Owner.Phone != "" {
		receiverLines = append(receiverLines, doc.Owner.Phone)
	}
	for i := 0; i < max(len(senderLines), len(receiverLines)); i++ {
		pdf.CellFormat(90, 5, tr(lineAt(senderLines, i)), "", 0, "L", false, 0, "")
		pdf.CellFormat(90, 5, tr(lineAt(receiverLines, i)), "", 1, "L", false, 0, "")
	}
	pdf.Ln(8)

	// Invoice info
	info := [][2]string{
		{labels.InvoiceDate, doc.InvoiceDate.Format(models.DateLayout)},
		{labels.InvoiceNumber, fmt.Sprintf("%d", inv.InvoiceNumber)},
		{labels.ChargerNumber, doc.Owner.ChargerID},
		{labels.DueDate, doc.DueDate.Format(models.DateLayout)},
	}
	pdf.SetFont("Arial", "", 10)
	for _, row := range info {
		pdf.CellFormat(40, 5, tr(row[0]), "", 0, "L", false, 0, "")
		pdf.CellFormat(60, 5, row[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(10)

	// Specification table
	widths := []float64{45, 30, 35, 40, 30}
	headers := []string{labels.Specification, labels.Quantity, labels.Period, labels.UnitPrice, labels.Total + " " + currency}
	pdf.SetFillColor(220, 220, 220)
	pdf.SetDrawColor(150, 150, 150)
	pdf.SetFont("Arial", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, tr(h), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, item := range inv.Items {
		cells := []string{
			labels.ItemDescription(item),
			labels.ItemQuantity(item),
			item.Period,
			FormatAmount(RoundMoney(item.UnitPrice)) + " " + currency,
			FormatAmount(RoundMoney(item.TotalPrice)) + " " + currency,
		}
		for i, c := range cells {
			align := "R"
			if i == 0 || i == 2 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 6, tr(c), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(8)

	// Totals
	totals := [][2]string{{labels.InvoiceTotal, FormatAmount(doc.Total) + " " + currency}}
	if doc.ShowRounding {
		totals = append(totals, [2]string{labels.Rounding, FormatAmount(doc.Rounding) + " " + currency})
	}
	totals = append(totals, [2]string{labels.ToPay, FormatAmount(doc.ToPay) + " " + currency})
	for i, row := range totals {
		if i == len(totals)-1 {
			pdf.SetFont("Arial", "B", 11)
		} else {
			pdf.SetFont("Arial", "", 10)
		}
		pdf.CellFormat(70, 6, tr(row[0]), "", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, row[1], "", 1, "R", false, 0, "")
	}
	pdf.Ln(8)

	if len(doc.Records) > 0 {
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, tr(labels.Sessions))
		pdf.Ln(7)
		pdf.SetFont("Arial", "", 8)
		for _, rec := range doc.Records {
			pdf.CellFormat(50, 4.5, labels.SessionPeriod(rec), "", 0, "L", false, 0, "")
			pdf.CellFormat(30, 4.5, FormatQuantity(rec.KWhUsed)+" kWh", "", 0, "R", false, 0, "")
			pdf.CellFormat(30, 4.5, tr(FormatAmount(RoundMoney(rec.TotalCost))+" "+currency), "", 1, "R", false, 0, "")
		}
		pdf.Ln(4)
	}

	// Payment details
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 7, tr(labels.PaymentInfo))
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	if doc.Sender.BankAccount != "" {
		if doc.Sender.BankName != "" {
			pdf.Cell(0, 5, tr(labels.Bank+": "+doc.Sender.BankName))
			pdf.Ln(5)
		}
		if doc.Sender.BankAccountHolder != "" {
			pdf.Cell(0, 5, tr(labels.AccountHolder+": "+doc.Sender.BankAccountHolder))
			pdf.Ln(5)
		}
		pdf.Cell(0, 5, tr(labels.Account+": "+doc.Sender.BankAccount))
		pdf.Ln(5)
	}
	pdf.MultiCell(0, 5, tr(labels.Reference(doc.Reference)), "", "L", false)

	if doc.Sender.BankAccount != "" {
		if png, err := qrcode.Encode(paymentQRData(doc), qrcode.Medium, 256); err == nil {
			name := fmt.Sprintf("qr-%d", inv.InvoiceNumber)
			opts := gofpdf.ImageOptions{ImageType: "PNG"}
			pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
			pdf.ImageOptions(name, 150, pdf.GetY()-25, 40, 40, false, opts, 0, "")
		} else {
			pg.logger.Warn("failed to generate payment QR code", zap.Error(err))
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// paymentQRData builds the JSON payload Swedish banking apps read from
// invoice QR codes.
func paymentQRData(doc InvoiceDocument) string {
	account := stripSpaces(doc.Sender.BankAccount)
	paymentType := "BG"
	if len(account) > 2 && isLetter(account[0]) && isLetter(account[1]) {
		paymentType = "IBAN"
	}

	payload := map[string]any{
		"uqr":  1,
		"tp":   1,
		"nme":  doc.Sender.Name,
		"cc":   "SE",
		"iref": doc.Reference,
		"idt":  doc.InvoiceDate.Format("20060102"),
		"ddt":  doc.DueDate.Format("20060102"),
		"due":  doc.ToPay.InexactFloat64(),
		"cur":  doc.Currency,
		"pt":   paymentType,
		"acc":  account,
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func splitLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func lineAt(lines []string, i int) string {
	if i < len(lines) {
		return lines[i]
	}
	return ""
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}
