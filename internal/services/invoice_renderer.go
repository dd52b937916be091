// internal/services/invoice_renderer.go
package services

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"github.com/javajoker/royalty-backend/internal/config"
	"github.com/javajoker/royalty-backend/internal/models"
)

// InvoiceRenderer lays out royalty invoices as A4 PDFs.
type InvoiceRenderer struct {
	companyName string
	currency    string
}

type InvoiceData struct {
	Number   string
	IssuedAt time.Time
	Period   models.Period
	Author   *models.Author
	Items    []models.RoyaltyItem
	Total    decimal.Decimal
}

func NewInvoiceRenderer(cfg config.RoyaltyConfig) *InvoiceRenderer {
	return &InvoiceRenderer{
		companyName: cfg.CompanyName,
		currency:    cfg.Currency,
	}
}

func (r *InvoiceRenderer) Render(data *InvoiceData) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle(data.Number, true)
	pdf.SetCreator(r.companyName, true)
	pdf.SetCreationDate(data.IssuedAt)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(r.companyName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, "Royalty Invoice "+data.Number, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Period: "+data.Period.String(), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Issued: "+data.IssuedAt.Format("2006-01-02"), "", 1, "L", false, 0, "")
	if data.Author != nil {
		pdf.CellFormat(0, 7, tr("Payee: "+data.Author.Name+" <"+data.Author.Email+">"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	widths := []float64{50, 25, 35, 25, 45}
	headers := []string{"Book", "Qty", "Net price", "Rate %", "Royalty (" + r.currency + ")"}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range data.Items {
		title := item.SaleID.String()[:8]
		if item.Sale != nil && item.Sale.Book != nil {
			title = item.Sale.Book.Title
		}
		pdf.CellFormat(widths[0], 7, tr(truncate(title, 28)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, fmt.Sprintf("%d", item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 7, item.NetPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, item.RoyaltyPercentage.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 7, item.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(widths[0]+widths[1]+widths[2]+widths[3], 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[4], 8, data.Total.StringFixed(2), "1", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render invoice %s: %w", data.Number, err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
