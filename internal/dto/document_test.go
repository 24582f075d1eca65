package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditRequestAmounts(t *testing.T) {
	var req EditDigitizedRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"tax_amount": 10.5,
		"total_amount": " 115.50 ",
		"cash_out_amount": null,
		"discount_amount": ""
	}`), &req))

	assert.Equal(t, NewAmount("10.5"), req.TaxAmount)
	assert.Equal(t, NewAmount("115.50"), req.TotalAmount)
	assert.Equal(t, Amount{Set: true}, req.CashOutAmount)
	assert.Equal(t, Amount{Set: true}, req.DiscountAmount)
	assert.False(t, req.SurchargeAmount.Set)
	assert.Nil(t, req.VendorName)
}
