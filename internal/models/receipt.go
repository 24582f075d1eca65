package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiptFields holds the structured fields extracted from a receipt or
// invoice. Every stage table after the queue carries the same set.
type ReceiptFields struct {
	PurchaseDate    *time.Time          `db:"purchase_date" json:"purchase_date"`
	VendorName      string              `db:"vendor_name" json:"vendor_name"`
	VendorABN       string              `db:"vendor_abn" json:"vendor_abn"`
	VendorAddress   string              `db:"vendor_address" json:"vendor_address"`
	DocumentType    string              `db:"document_type" json:"document_type"`
	ReceiptNumber   string              `db:"receipt_number" json:"receipt_number"`
	PaymentType     string              `db:"payment_type" json:"payment_type"`
	CashOutAmount   decimal.NullDecimal `db:"cash_out_amount" json:"cash_out_amount"`
	DiscountAmount  decimal.NullDecimal `db:"discount_amount" json:"discount_amount"`
	SurchargeAmount decimal.NullDecimal `db:"surcharge_amount" json:"surcharge_amount"`
	AmountExclTax   decimal.NullDecimal `db:"amount_excl_tax" json:"amount_excl_tax"`
	TaxAmount       decimal.NullDecimal `db:"tax_amount" json:"tax_amount"`
	TotalAmount     decimal.NullDecimal `db:"total_amount" json:"total_amount"`
	TotalPaidAmount decimal.NullDecimal `db:"total_paid_amount" json:"total_paid_amount"`
	ExpenseCategory string              `db:"expense_category" json:"expense_category"`
	TaxStatus       string              `db:"tax_status" json:"tax_status"`
	TaxType         string              `db:"tax_type" json:"tax_type"`
}

// Amount returns the value of an optional amount, zero when absent.
func Amount(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}

// StageRecord is the part every post-queue stage row shares: the document
// identity, its source file and the extracted fields.
type StageRecord struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	OriginalDocumentID uuid.UUID `db:"original_document_id" json:"original_document_id"`
	CompanyID          uuid.UUID `db:"company_id" json:"company_id"`
	UserID             uuid.UUID `db:"user_id" json:"user_id"`
	FileName           string    `db:"file_name" json:"file_name"`
	OriginalName       string    `db:"original_name" json:"original_name"`
	FilePath           string    `db:"file_path" json:"file_path"`
	MimeType           string    `db:"mime_type" json:"mime_type"`
	ReceiptFields
}

// Digitized is a successfully extracted document, editable by its company.
type Digitized struct {
	StageRecord
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DigitizedReview is the soft-deleted archive row. Its ID is the id of the
// digitized record it was moved from.
type DigitizedReview struct {
	StageRecord
	MovedAt time.Time `db:"moved_at" json:"moved_at"`
}

// DigitizedReady passed validation and is waiting for export.
type DigitizedReady struct {
	StageRecord
	ReadyAt time.Time `db:"ready_at" json:"ready_at"`
}

type ExportStatus string

const (
	ExportStatusSuccess ExportStatus = "SUCCESS"
	ExportStatusPartial ExportStatus = "PARTIAL"
	ExportStatusFailed  ExportStatus = "FAILED"
)

// DigitizedReported is the append-only archive of exported records.
type DigitizedReported struct {
	StageRecord
	ExportedAt     time.Time    `db:"exported_at" json:"exported_at"`
	ExportFileName string       `db:"export_file_name" json:"export_file_name"`
	ExportStatus   ExportStatus `db:"export_status" json:"export_status"`
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "02/01/2006", "2/1/2006"}

// ParseDate accepts ISO dates, RFC3339 timestamps and Australian
// day-first dates.
func ParseDate(s string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		t, perr := time.Parse(layout, s)
		if perr == nil {
			return t, nil
		}
		err = perr
	}
	return time.Time{}, err
}
