package services

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/models"
)

//go:embed templates/invoice.html
var templateFS embed.FS

const printTimeout = 60 * time.Second

// HTMLRenderer fills an HTML template and prints it to PDF with headless
// Chrome.
type HTMLRenderer struct {
	tmpl       *template.Template
	chromePath string
	logger     *zap.Logger
}

func NewHTMLRenderer(chromePath string, logger *zap.Logger) (*HTMLRenderer, error) {
	tmpl, err := template.New("invoice.html").Funcs(template.FuncMap{
		"date":     func(t time.Time) string { return t.Format(models.DateLayout) },
		"amount":   func(v float64) string { return FormatAmount(RoundMoney(v)) },
		"decimal":  func(d decimal.Decimal) string { return FormatAmount(d) },
		"quantity": FormatQuantity,
		"currency": displayCurrency,
	}).ParseFS(templateFS, "templates/invoice.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse invoice template: %w", err)
	}
	return &HTMLRenderer{tmpl: tmpl, chromePath: chromePath, logger: logger}, nil
}

func (r *HTMLRenderer) ContentType() string { return "application/pdf" }
func (r *HTMLRenderer) Extension() string   { return ".pdf" }

// RenderHTML executes the template only.
func (r *HTMLRenderer) RenderHTML(doc InvoiceDocument) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("failed to execute invoice template: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *HTMLRenderer) Render(ctx context.Context, doc InvoiceDocument) ([]byte, error) {
	html, err := r.RenderHTML(doc)
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.DisableGPU)
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}

	ctx, cancel := context.WithTimeout(ctx, printTimeout)
	defer cancel()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var pdf []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to print invoice with chrome: %w", err)
	}

	r.logger.Debug("printed invoice with chrome", zap.Int64("invoice_number", doc.Invoice.InvoiceNumber), zap.Int("bytes", len(pdf)))
	return pdf, nil
}

func displayCurrency(code string) string {
	if strings.EqualFold(code, "SEK") {
		return "kr"
	}
	return code
}
