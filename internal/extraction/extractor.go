// Package extraction turns a receipt image or PDF into structured fields
// using a hosted vision model.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"receiptflow/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotReceipt is returned when the model decides the file is not a
	// receipt or invoice.
	ErrNotReceipt = errors.New("not a receipt")
	// ErrOverloaded marks transient provider failures worth retrying.
	ErrOverloaded = errors.New("extraction provider overloaded")
	// ErrEmptyResponse means the provider answered without any content.
	ErrEmptyResponse = errors.New("empty extraction response")
)

type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (*Result, error)
}

// Result is the model output mapped onto the fixed receipt schema. Every
// field is optional; OCR output is routinely partial.
type Result struct {
	PurchaseDate    string
	VendorName      string
	VendorABN       string
	VendorAddress   string
	DocumentType    string
	ReceiptNumber   string
	PaymentType     string
	AmountExclTax   decimal.NullDecimal
	TaxAmount       decimal.NullDecimal
	CashOutAmount   decimal.NullDecimal
	DiscountAmount  decimal.NullDecimal
	SurchargeAmount decimal.NullDecimal
	TotalAmount     decimal.NullDecimal
	TotalPaidAmount decimal.NullDecimal
	ExpenseCategory string
	TaxStatus       string
	TaxType         string

	// Raw is the JSON object the model produced.
	Raw json.RawMessage
}

// Fields converts the result into stored receipt fields. An unparseable
// purchase date is dropped. When the model gives no paid amount it is
// taken to be the total plus any cash out.
func (r *Result) Fields() models.ReceiptFields {
	f := models.ReceiptFields{
		VendorName:      r.VendorName,
		VendorABN:       normalizeABN(r.VendorABN),
		VendorAddress:   r.VendorAddress,
		DocumentType:    r.DocumentType,
		ReceiptNumber:   r.ReceiptNumber,
		PaymentType:     r.PaymentType,
		CashOutAmount:   r.CashOutAmount,
		DiscountAmount:  r.DiscountAmount,
		SurchargeAmount: r.SurchargeAmount,
		AmountExclTax:   r.AmountExclTax,
		TaxAmount:       r.TaxAmount,
		TotalAmount:     r.TotalAmount,
		TotalPaidAmount: r.TotalPaidAmount,
		ExpenseCategory: r.ExpenseCategory,
		TaxStatus:       r.TaxStatus,
		TaxType:         r.TaxType,
	}
	if r.PurchaseDate != "" {
		if t, err := models.ParseDate(r.PurchaseDate); err == nil {
			f.PurchaseDate = &t
		}
	}
	if !f.TotalPaidAmount.Valid && f.TotalAmount.Valid {
		f.TotalPaidAmount = decimal.NewNullDecimal(f.TotalAmount.Decimal.Add(models.Amount(f.CashOutAmount)))
	}
	return f
}

// normalizeABN strips the spaces ABNs are usually printed with.
func normalizeABN(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, s)
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrOverloaded)
}
