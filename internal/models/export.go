package models

import (
	"time"

	"github.com/google/uuid"
)

type ExportMode string

const (
	ExportModeXeroBill  ExportMode = "xero_bill"
	ExportModeXeroSpend ExportMode = "xero_spend"
	ExportModeExcel     ExportMode = "excel"
	ExportModePDF       ExportMode = "pdf"
)

func (m ExportMode) Valid() bool {
	switch m {
	case ExportModeXeroBill, ExportModeXeroSpend, ExportModeExcel, ExportModePDF:
		return true
	}
	return false
}

// ExportHistory is the audit row written once per export batch.
type ExportHistory struct {
	ID         uuid.UUID    `db:"id" json:"id"`
	CompanyID  uuid.UUID    `db:"company_id" json:"company_id"`
	UserID     uuid.UUID    `db:"user_id" json:"user_id"`
	FileName   string       `db:"file_name" json:"file_name"`
	Mode       ExportMode   `db:"mode" json:"mode"`
	ExportedAt time.Time    `db:"exported_at" json:"exported_at"`
	Status     ExportStatus `db:"status" json:"status"`
	TotalRows  int          `db:"total_rows" json:"total_rows"`
	FailedRows int          `db:"failed_rows" json:"failed_rows"`
}
