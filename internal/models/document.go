package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DocumentStatus string

const (
	DocumentStatusQueue      DocumentStatus = "QUEUE"
	DocumentStatusProcessing DocumentStatus = "PROCESSING"
	DocumentStatusDigitized  DocumentStatus = "DIGITIZED"
	DocumentStatusError      DocumentStatus = "ERROR"
	DocumentStatusDeleted    DocumentStatus = "DELETED"
)

// Document is one physical uploaded file waiting in the digitization queue.
// The vendor/abn/amount columns are a denormalized projection of the last
// extraction attempt, kept for documents that never reach the digitized stage.
type Document struct {
	ID                  uuid.UUID           `db:"id" json:"id"`
	CompanyID           uuid.UUID           `db:"company_id" json:"company_id"`
	UserID              uuid.UUID           `db:"user_id" json:"user_id"`
	FileName            string              `db:"file_name" json:"file_name"`
	OriginalName        string              `db:"original_name" json:"original_name"`
	FilePath            string              `db:"file_path" json:"file_path"`
	FileSize            int64               `db:"file_size" json:"file_size"`
	MimeType            string              `db:"mime_type" json:"mime_type"`
	Status              DocumentStatus      `db:"status" json:"status"`
	UploadDate          time.Time           `db:"upload_date" json:"upload_date"`
	ProcessedDate       *time.Time          `db:"processed_date" json:"processed_date,omitempty"`
	ProcessingStartedAt *time.Time          `db:"processing_started_at" json:"-"`
	ErrorMessage        *string             `db:"error_message" json:"error_message,omitempty"`
	Vendor              *string             `db:"vendor" json:"vendor,omitempty"`
	ABN                 *string             `db:"abn" json:"abn,omitempty"`
	TotalAmount         decimal.NullDecimal `db:"total_amount" json:"total_amount"`
	GSTAmount           decimal.NullDecimal `db:"gst_amount" json:"gst_amount"`
	TransactionDate     *time.Time          `db:"transaction_date" json:"transaction_date,omitempty"`
	PaymentMethod       *string             `db:"payment_method" json:"payment_method,omitempty"`
	DocumentType        *string             `db:"document_type" json:"document_type,omitempty"`
	ReceiptData         []byte              `db:"receipt_data" json:"-"`
}

// Claimable reports whether a digitize run may pick the document up.
// A PROCESSING claim older than staleAfter is treated as abandoned.
func (d *Document) Claimable(now time.Time, staleAfter time.Duration) bool {
	switch d.Status {
	case DocumentStatusQueue, DocumentStatusError:
		return true
	case DocumentStatusProcessing:
		return d.ProcessingStartedAt != nil && now.Sub(*d.ProcessingStartedAt) > staleAfter
	}
	return false
}
