package rules

import (
	"testing"
	"time"

	"receiptflow/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func amt(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func fields(total, tax, paid, cashOut string) *models.ReceiptFields {
	return &models.ReceiptFields{
		TotalAmount:     amt(total),
		TaxAmount:       amt(tax),
		TotalPaidAmount: amt(paid),
		CashOutAmount:   amt(cashOut),
	}
}

func registered() *models.Vendor {
	d := time.Date(2000, 7, 1, 0, 0, 0, 0, time.UTC)
	return &models.Vendor{ABN: "51824753556", GST: &d}
}

func codes(problems []Problem) []Code {
	out := make([]Code, 0, len(problems))
	for _, p := range problems {
		out = append(out, p.Code)
	}
	return out
}

func TestCashOutMismatchRejected(t *testing.T) {
	problems := Validate(fields("27.13", "2.13", "27.13", "20.00"), registered())

	assert.Equal(t, []Code{CodePaymentMismatch}, codes(problems))
	assert.Equal(t, "payment amount does not match receipt total", problems[0].Message)
}

func TestBalancedReceiptPasses(t *testing.T) {
	assert.Empty(t, Validate(fields("110.00", "10.00", "110.00", "0"), registered()))
}

func TestVendorWithoutGSTRejected(t *testing.T) {
	vendor := &models.Vendor{ABN: "51824753556"}

	problems := Validate(fields("110.00", "10.00", "110.00", "0"), vendor)

	assert.Equal(t, []Code{CodeVendorNotGST}, codes(problems))
}

func TestVendorCheckSkippedWithoutCache(t *testing.T) {
	assert.Empty(t, Validate(fields("110.00", "10.00", "110.00", "0"), nil))
}

func TestVendorWithoutGSTAllowsZeroTax(t *testing.T) {
	vendor := &models.Vendor{ABN: "51824753556"}
	assert.Empty(t, Validate(fields("50.00", "0.02", "50.00", "0"), vendor))
}

func TestToleranceBoundaries(t *testing.T) {
	tests := []struct {
		name string
		f    *models.ReceiptFields
		want []Code
	}{
		{"paid within tolerance", fields("10.00", "0", "10.02", "0"), nil},
		{"paid just outside tolerance", fields("10.00", "0", "10.03", "0"), []Code{CodePaymentMismatch}},
		{"cash out reconciles", fields("10.00", "0.90", "60.00", "50.00"), nil},
		{"gst at bound", fields("110.00", "10.02", "110.00", "0"), nil},
		{"gst over bound", fields("110.00", "10.03", "110.00", "0"), []Code{CodeGSTTooHigh}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nilIfEmpty(codes(Validate(tt.f, registered()))))
		})
	}
}

func nilIfEmpty(c []Code) []Code {
	if len(c) == 0 {
		return nil
	}
	return c
}

func TestAllProblemsReturnedTogether(t *testing.T) {
	vendor := &models.Vendor{ABN: "51824753556"}

	problems := Validate(fields("1.00", "5.00", "9.00", "0"), vendor)

	assert.Equal(t, []Code{CodePaymentMismatch, CodeGSTTooHigh, CodeTaxExceedsTotal, CodeVendorNotGST}, codes(problems))
}

func TestNullAmountsCountAsZero(t *testing.T) {
	assert.Empty(t, Validate(&models.ReceiptFields{}, registered()))

	f := &models.ReceiptFields{TotalAmount: amt("5.00")}
	assert.Equal(t, []Code{CodePaymentMismatch}, codes(Validate(f, nil)))
}
