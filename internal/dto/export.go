package dto

import (
	"receiptflow/internal/models"

	"github.com/google/uuid"
)

type ExportRequest struct {
	IDs  []string `json:"ids"`
	Mode string   `json:"mode"`
}

type ExportFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type ExportSummary struct {
	HistoryID uuid.UUID           `json:"history_id"`
	Mode      models.ExportMode   `json:"mode"`
	Status    models.ExportStatus `json:"status"`
	FileName  string              `json:"file_name"`
	Succeeded []string            `json:"succeeded"`
	Failed    []ExportFailure     `json:"failed"`
	// DownloadURL is set when the export produced a file.
	DownloadURL string `json:"download_url,omitempty"`
}
