package dto

import (
	"bytes"
	"encoding/json"
	"strings"

	"receiptflow/internal/models"
)

// DigitizeResponse reports where a digitize run left the document.
type DigitizeResponse struct {
	Status   models.DocumentStatus `json:"status"`
	Record   *models.Digitized     `json:"record,omitempty"`
	Fallback bool                  `json:"fallback"`
}

// Amount is an optional money value sent as a JSON number or string.
// Set reports whether the field was present; null or "" clears it.
type Amount struct {
	Set   bool
	Value string
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	a.Set = true
	switch {
	case bytes.Equal(b, []byte("null")):
		a.Value = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		a.Value = strings.TrimSpace(s)
	default:
		a.Value = string(b)
	}
	return nil
}

// NewAmount returns a present amount.
func NewAmount(v string) Amount {
	return Amount{Set: true, Value: v}
}

// EditDigitizedRequest carries user corrections. Absent fields are left
// unchanged.
type EditDigitizedRequest struct {
	PurchaseDate    *string `json:"purchase_date"`
	VendorName      *string `json:"vendor_name"`
	VendorABN       *string `json:"vendor_abn"`
	VendorAddress   *string `json:"vendor_address"`
	DocumentType    *string `json:"document_type"`
	ReceiptNumber   *string `json:"receipt_number"`
	PaymentType     *string `json:"payment_type"`
	CashOutAmount   Amount  `json:"cash_out_amount,omitempty" swaggertype:"string"`
	DiscountAmount  Amount  `json:"discount_amount,omitempty" swaggertype:"string"`
	SurchargeAmount Amount  `json:"surcharge_amount,omitempty" swaggertype:"string"`
	AmountExclTax   Amount  `json:"amount_excl_tax,omitempty" swaggertype:"string"`
	TaxAmount       Amount  `json:"tax_amount,omitempty" swaggertype:"string"`
	TotalAmount     Amount  `json:"total_amount,omitempty" swaggertype:"string"`
	TotalPaidAmount Amount  `json:"total_paid_amount,omitempty" swaggertype:"string"`
	ExpenseCategory *string `json:"expense_category"`
	TaxStatus       *string `json:"tax_status"`
	TaxType         *string `json:"tax_type"`
}

// EditDigitizedResponse returns the saved record with any consistency
// warnings keyed by field.
type EditDigitizedResponse struct {
	Record   *models.Digitized   `json:"record"`
	Warnings map[string][]string `json:"warnings,omitempty"`
}
