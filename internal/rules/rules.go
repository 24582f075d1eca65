// Package rules holds the consistency checks a digitized receipt must pass
// before it can be exported.
package rules

import (
	"fmt"

	"receiptflow/internal/models"

	"github.com/shopspring/decimal"
)

// Tolerance absorbs rounding noise in extracted and hand-edited amounts.
var Tolerance = decimal.RequireFromString("0.02")

var eleven = decimal.NewFromInt(11)

type Code string

const (
	CodePaymentMismatch Code = "payment_mismatch"
	CodeGSTTooHigh      Code = "gst_too_high"
	CodeTaxExceedsTotal Code = "tax_exceeds_total"
	CodeVendorNotGST    Code = "vendor_not_gst_registered"
)

// Problem is one failed check. Field names the JSON field the user should fix.
type Problem struct {
	Code    Code   `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (p Problem) Error() string {
	return fmt.Sprintf("%s: %s", p.Field, p.Message)
}

// Arithmetic runs the three amount checks. Absent amounts count as zero.
func Arithmetic(f *models.ReceiptFields) []Problem {
	var problems []Problem

	total := models.Amount(f.TotalAmount)
	tax := models.Amount(f.TaxAmount)
	paid := models.Amount(f.TotalPaidAmount)
	cashOut := models.Amount(f.CashOutAmount)

	if paid.Sub(cashOut).Sub(total).Abs().GreaterThan(Tolerance) {
		problems = append(problems, Problem{
			Code:    CodePaymentMismatch,
			Field:   "total_paid_amount",
			Message: "payment amount does not match receipt total",
		})
	}

	if tax.GreaterThan(total.Div(eleven).Add(Tolerance)) {
		problems = append(problems, Problem{
			Code:    CodeGSTTooHigh,
			Field:   "tax_amount",
			Message: "GST too high for this amount",
		})
	}

	if total.Sub(tax).IsNegative() {
		problems = append(problems, Problem{
			Code:    CodeTaxExceedsTotal,
			Field:   "tax_amount",
			Message: "tax exceeds total",
		})
	}

	return problems
}

// Validate runs every check. vendor is the cached registry record for the
// receipt's ABN, or nil when none is cached; the GST registration check
// only applies when a record is known.
func Validate(f *models.ReceiptFields, vendor *models.Vendor) []Problem {
	problems := Arithmetic(f)

	if vendor != nil && !vendor.GSTRegistered() && models.Amount(f.TaxAmount).GreaterThan(Tolerance) {
		problems = append(problems, Problem{
			Code:    CodeVendorNotGST,
			Field:   "tax_amount",
			Message: "vendor is not registered for GST",
		})
	}

	return problems
}
