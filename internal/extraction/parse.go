package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type amount struct {
	decimal.NullDecimal
}

// UnmarshalJSON accepts numbers, numeric strings and currency strings such
// as "$1,234.50". Blank values decode as absent.
func (a *amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		a.Valid = false
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.NewReplacer("$", "", ",", "", "AUD", "", " ", "").Replace(s)
	if s == "" {
		a.Valid = false
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", string(b), err)
	}
	a.NullDecimal = decimal.NewNullDecimal(d)
	return nil
}

type wireResult struct {
	Error           string `json:"error"`
	PurchaseDate    string `json:"purchaseDate"`
	VendorName      string `json:"vendorName"`
	VendorABN       string `json:"vendorAbn"`
	VendorAddress   string `json:"vendorAddress"`
	DocumentType    string `json:"documentType"`
	ReceiptNumber   string `json:"receiptNumber"`
	PaymentType     string `json:"paymentType"`
	AmountExclTax   amount `json:"amountExclTax"`
	TaxAmount       amount `json:"taxAmount"`
	CashOutAmount   amount `json:"cashOutAmount"`
	DiscountAmount  amount `json:"discountAmount"`
	SurchargeAmount amount `json:"surchargeAmount"`
	TotalAmount     amount `json:"totalAmount"`
	TotalPaidAmount amount `json:"totalPaidAmount"`
	ExpenseCategory string `json:"expenseCategory"`
	TaxStatus       string `json:"taxStatus"`
	TaxType         string `json:"taxType"`
}

// Parse reads the model's answer. Code fences and any prose around the
// JSON object are ignored.
func Parse(text string) (*Result, error) {
	raw := jsonObject(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in %q", ErrEmptyResponse, truncate(text, 200))
	}

	var w wireResult
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, fmt.Errorf("failed to decode extraction JSON: %w", err)
	}
	if w.Error != "" {
		if strings.Contains(strings.ToLower(w.Error), "not a receipt") {
			return &Result{Raw: json.RawMessage(raw)}, ErrNotReceipt
		}
		return nil, fmt.Errorf("model reported error: %s", w.Error)
	}

	return &Result{
		PurchaseDate:    strings.TrimSpace(w.PurchaseDate),
		VendorName:      strings.TrimSpace(w.VendorName),
		VendorABN:       strings.TrimSpace(w.VendorABN),
		VendorAddress:   strings.TrimSpace(w.VendorAddress),
		DocumentType:    strings.TrimSpace(w.DocumentType),
		ReceiptNumber:   strings.TrimSpace(w.ReceiptNumber),
		PaymentType:     strings.TrimSpace(w.PaymentType),
		AmountExclTax:   w.AmountExclTax.NullDecimal,
		TaxAmount:       w.TaxAmount.NullDecimal,
		CashOutAmount:   w.CashOutAmount.NullDecimal,
		DiscountAmount:  w.DiscountAmount.NullDecimal,
		SurchargeAmount: w.SurchargeAmount.NullDecimal,
		TotalAmount:     w.TotalAmount.NullDecimal,
		TotalPaidAmount: w.TotalPaidAmount.NullDecimal,
		ExpenseCategory: strings.TrimSpace(w.ExpenseCategory),
		TaxStatus:       strings.TrimSpace(w.TaxStatus),
		TaxType:         strings.TrimSpace(w.TaxType),
		Raw:             json.RawMessage(raw),
	}, nil
}

func jsonObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
