package export

import (
	"bytes"
	"context"
	"fmt"

	"receiptflow/internal/models"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

type PDF struct {
	title string
}

func NewPDF(title string) *PDF {
	return &PDF{title: title}
}

func (p *PDF) Begin(_ context.Context, info BatchInfo) (Batch, error) {
	return &recordBuffer{info: info, render: p.render, contentType: "application/pdf"}, nil
}

type pdfColumn struct {
	title string
	width float64
	align string
	value func(r *models.DigitizedReady) string
}

var pdfColumns = []pdfColumn{
	{"Date", 22, "L", func(r *models.DigitizedReady) string { return dateOrEmpty(r.PurchaseDate) }},
	{"Vendor", 60, "L", func(r *models.DigitizedReady) string { return r.VendorName }},
	{"ABN", 28, "L", func(r *models.DigitizedReady) string { return r.VendorABN }},
	{"Receipt No", 30, "L", func(r *models.DigitizedReady) string { return r.ReceiptNumber }},
	{"Category", 34, "L", func(r *models.DigitizedReady) string { return r.ExpenseCategory }},
	{"Excl. GST", 26, "R", func(r *models.DigitizedReady) string { return fixed(r.AmountExclTax) }},
	{"GST", 22, "R", func(r *models.DigitizedReady) string { return fixed(r.TaxAmount) }},
	{"Total", 26, "R", func(r *models.DigitizedReady) string { return fixed(r.TotalAmount) }},
	{"Paid", 26, "R", func(r *models.DigitizedReady) string { return fixed(r.TotalPaidAmount) }},
}

func (p *PDF) render(info BatchInfo, recs []*models.DigitizedReady) ([]byte, error) {
	doc := fpdf.New("L", "mm", "A4", "")
	doc.SetTitle(p.title, true)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 14)
	doc.CellFormat(0, 10, p.title, "", 1, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 9)
	doc.CellFormat(0, 6, fmt.Sprintf("%s  exported %s", info.FileName, info.StartedAt.Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	doc.Ln(2)

	doc.SetFont("Helvetica", "B", 9)
	doc.SetFillColor(31, 78, 121)
	doc.SetTextColor(255, 255, 255)
	for _, c := range pdfColumns {
		doc.CellFormat(c.width, 7, c.title, "1", 0, "C", true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Helvetica", "", 8)
	doc.SetTextColor(0, 0, 0)
	tr := doc.UnicodeTranslatorFromDescriptor("")
	var excl, tax, total, paid decimal.Decimal
	for _, r := range recs {
		for _, c := range pdfColumns {
			doc.CellFormat(c.width, 6, tr(c.value(r)), "1", 0, c.align, false, 0, "")
		}
		doc.Ln(-1)
		excl = excl.Add(models.Amount(r.AmountExclTax))
		tax = tax.Add(models.Amount(r.TaxAmount))
		total = total.Add(models.Amount(r.TotalAmount))
		paid = paid.Add(models.Amount(r.TotalPaidAmount))
	}

	doc.SetFont("Helvetica", "B", 8)
	labelWidth := 0.0
	for _, c := range pdfColumns[:5] {
		labelWidth += c.width
	}
	doc.CellFormat(labelWidth, 7, fmt.Sprintf("Total (%d receipts)", len(recs)), "1", 0, "R", false, 0, "")
	for i, v := range []decimal.Decimal{excl, tax, total, paid} {
		doc.CellFormat(pdfColumns[5+i].width, 7, v.StringFixed(2), "1", 0, "R", false, 0, "")
	}
	doc.Ln(-1)

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func fixed(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.StringFixed(2)
}
