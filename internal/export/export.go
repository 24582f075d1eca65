// Package export sends ready receipts to accounting systems or renders
// them into spreadsheet and PDF files.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"receiptflow/internal/models"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrBatchClosed   = errors.New("export batch already closed")
	ErrNotConfigured = errors.New("export mode is not configured")
)

const nameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// BatchInfo describes one export run.
type BatchInfo struct {
	CompanyID uuid.UUID
	Mode      models.ExportMode
	FileName  string
	StartedAt time.Time
}

// Artifact is a file produced by a batch.
type Artifact struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Exporter starts batches for one export mode.
type Exporter interface {
	Begin(ctx context.Context, info BatchInfo) (Batch, error)
}

// Batch accepts records, possibly from several goroutines. Add failing
// means that record was not exported. Close finalizes the batch; an error
// from Close means none of the added records were exported.
type Batch interface {
	Add(ctx context.Context, rec *models.DigitizedReady) error
	Close(ctx context.Context) (*Artifact, error)
}

// FileName returns the batch name used in export history and on artifacts.
func FileName(mode models.ExportMode, now time.Time) (string, error) {
	id, err := gonanoid.Generate(nameAlphabet, 8)
	if err != nil {
		return "", fmt.Errorf("failed to generate file name: %w", err)
	}
	date := now.Format("20060102")
	switch mode {
	case models.ExportModeExcel:
		return fmt.Sprintf("receipts_%s_%s.xlsx", date, id), nil
	case models.ExportModePDF:
		return fmt.Sprintf("receipts_%s_%s.pdf", date, id), nil
	case models.ExportModeXeroBill, models.ExportModeXeroSpend:
		return fmt.Sprintf("xero_%s_%s_%s", mode, date, id), nil
	}
	return "", fmt.Errorf("unsupported export mode %q", mode)
}

// Registry maps export modes to exporters.
type Registry map[models.ExportMode]Exporter

func (r Registry) Get(mode models.ExportMode) (Exporter, error) {
	e, ok := r[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, mode)
	}
	return e, nil
}

func dateOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
