package extraction

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFencedJSON(t *testing.T) {
	text := "```json\n" + `{
  "purchaseDate": "2024-03-05",
  "vendorName": "Bunnings Warehouse",
  "vendorAbn": "63 008 672 179",
  "totalAmount": "$1,234.50",
  "taxAmount": 112.23,
  "cashOutAmount": null,
  "totalPaidAmount": ""
}` + "\n```"

	res, err := Parse(text)
	require.NoError(t, err)

	assert.Equal(t, "Bunnings Warehouse", res.VendorName)
	assert.True(t, res.TotalAmount.Decimal.Equal(decimal.RequireFromString("1234.50")))
	assert.True(t, res.TaxAmount.Valid)
	assert.False(t, res.CashOutAmount.Valid)
	assert.False(t, res.TotalPaidAmount.Valid)
	assert.Contains(t, string(res.Raw), "Bunnings")

	f := res.Fields()
	assert.Equal(t, "63008672179", f.VendorABN)
	require.NotNil(t, f.PurchaseDate)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), *f.PurchaseDate)
	assert.True(t, f.TotalPaidAmount.Decimal.Equal(decimal.RequireFromString("1234.50")))
}

func TestParseNotReceipt(t *testing.T) {
	res, err := Parse(`Sure! {"error": "Not a receipt"}`)
	assert.ErrorIs(t, err, ErrNotReceipt)
	require.NotNil(t, res)
	assert.JSONEq(t, `{"error": "Not a receipt"}`, string(res.Raw))
}

func TestParseWithoutJSON(t *testing.T) {
	_, err := Parse("I cannot read this image")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestFieldsDefaultsPaidToTotalPlusCashOut(t *testing.T) {
	res := &Result{
		TotalAmount:   decimal.NewNullDecimal(decimal.RequireFromString("27.13")),
		CashOutAmount: decimal.NewNullDecimal(decimal.RequireFromString("20")),
		PurchaseDate:  "not a date",
	}

	f := res.Fields()
	assert.True(t, f.TotalPaidAmount.Decimal.Equal(decimal.RequireFromString("47.13")))
	assert.Nil(t, f.PurchaseDate)
}
