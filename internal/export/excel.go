package export

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"receiptflow/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	excelSheet       = "Receipts"
	excelContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var excelHeaders = []string{
	"Date", "Vendor", "ABN", "Receipt No", "Document Type", "Payment", "Category",
	"Excl. GST", "GST", "Total", "Paid", "Cash Out",
}

type Excel struct{}

func NewExcel() *Excel {
	return &Excel{}
}

func (e *Excel) Begin(_ context.Context, info BatchInfo) (Batch, error) {
	return &recordBuffer{info: info, render: renderExcel, contentType: excelContentType}, nil
}

// recordBuffer collects records for exporters that write one file per batch.
type recordBuffer struct {
	info        BatchInfo
	render      func(info BatchInfo, recs []*models.DigitizedReady) ([]byte, error)
	contentType string

	mu     sync.Mutex
	recs   []*models.DigitizedReady
	closed bool
}

func (b *recordBuffer) Add(_ context.Context, rec *models.DigitizedReady) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBatchClosed
	}
	b.recs = append(b.recs, rec)
	return nil
}

func (b *recordBuffer) Close(_ context.Context) (*Artifact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBatchClosed
	}
	b.closed = true

	recs := append([]*models.DigitizedReady(nil), b.recs...)
	sort.SliceStable(recs, func(i, j int) bool {
		return purchaseBefore(recs[i], recs[j])
	})

	data, err := b.render(b.info, recs)
	if err != nil {
		return nil, err
	}
	return &Artifact{FileName: b.info.FileName, ContentType: b.contentType, Data: data}, nil
}

// purchaseBefore orders by purchase date, undated receipts last.
func purchaseBefore(a, b *models.DigitizedReady) bool {
	switch {
	case a.PurchaseDate == nil:
		return false
	case b.PurchaseDate == nil:
		return true
	}
	return a.PurchaseDate.Before(*b.PurchaseDate)
}

func renderExcel(_ BatchInfo, recs []*models.DigitizedReady) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", excelSheet); err != nil {
		return nil, err
	}

	for i, h := range excelHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(excelSheet, cell, h)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#1F4E79"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(excelHeaders))
	f.SetCellStyle(excelSheet, "A1", lastCol+"1", headerStyle)

	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, fmt.Errorf("failed to create money style: %w", err)
	}

	for i, r := range recs {
		row := i + 2
		values := []any{
			dateOrEmpty(r.PurchaseDate), r.VendorName, r.VendorABN, r.ReceiptNumber, r.DocumentType,
			r.PaymentType, r.ExpenseCategory,
			money(r.AmountExclTax), money(r.TaxAmount), money(r.TotalAmount),
			money(r.TotalPaidAmount), money(r.CashOutAmount),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(excelSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}
	if len(recs) > 0 {
		f.SetCellStyle(excelSheet, "H2", fmt.Sprintf("L%d", len(recs)+1), moneyStyle)
	}

	f.SetColWidth(excelSheet, "A", "A", 12)
	f.SetColWidth(excelSheet, "B", "B", 30)
	f.SetColWidth(excelSheet, "C", "G", 16)
	f.SetColWidth(excelSheet, "H", "L", 12)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// money renders an optional amount as a spreadsheet number, blank when absent.
func money(v decimal.NullDecimal) any {
	if !v.Valid {
		return ""
	}
	return v.Decimal.Round(2).InexactFloat64()
}
