package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"receiptflow/internal/dto"
	"receiptflow/internal/export"
	"receiptflow/internal/models"
	"receiptflow/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const reasonNotReady = "not in ready stage or held by another export"

// readyClaimTTL bounds how long an export batch may hold a ready record
// before another batch can take it.
const readyClaimTTL = time.Hour

// ExportService sends ready records to an export target and archives the
// ones that made it.
type ExportService struct {
	stages      StageStore
	history     ExportHistoryStore
	files       storage.FileStore
	exporters   export.Registry
	concurrency int
	claimTTL    time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

func NewExportService(
	stages StageStore,
	history ExportHistoryStore,
	files storage.FileStore,
	exporters export.Registry,
	concurrency int,
	logger *zap.Logger,
) *ExportService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ExportService{
		stages:      stages,
		history:     history,
		files:       files,
		exporters:   exporters,
		concurrency: concurrency,
		claimTTL:    readyClaimTTL,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// outcome tracks one requested id through the batch.
type outcome struct {
	id     uuid.UUID
	raw    string
	added  bool
	reason string
}

// Export runs one batch. Each record is reserved for the batch before it
// reaches the export target, so a record held by a concurrent batch fails
// here instead of being sent twice. A record failing never stops the
// others; the summary lists every success and failure in request order.
func (s *ExportService) Export(ctx context.Context, companyID, userID uuid.UUID, req *dto.ExportRequest) (*dto.ExportSummary, error) {
	mode := models.ExportMode(req.Mode)
	ferrs := FieldErrors{}
	if !mode.Valid() {
		ferrs["mode"] = "must be one of xero_bill, xero_spend, excel, pdf"
	}
	if len(req.IDs) == 0 {
		ferrs["ids"] = "at least one id is required"
	}
	if len(ferrs) > 0 {
		return nil, ferrs
	}

	exporter, err := s.exporters.Get(mode)
	if err != nil {
		if errors.Is(err, export.ErrNotConfigured) {
			return nil, FieldErrors{"mode": "export mode is not configured"}
		}
		return nil, err
	}

	started := s.now()
	fileName, err := export.FileName(mode, started)
	if err != nil {
		return nil, err
	}

	outcomes := make([]*outcome, 0, len(req.IDs))
	seen := make(map[uuid.UUID]bool, len(req.IDs))
	for _, raw := range req.IDs {
		o := &outcome{raw: raw}
		id, err := uuid.Parse(raw)
		switch {
		case err != nil:
			o.reason = "invalid id"
		case seen[id]:
			o.reason = "duplicate id"
		default:
			o.id = id
			seen[id] = true
		}
		outcomes = append(outcomes, o)
	}

	batch, err := exporter.Begin(ctx, export.BatchInfo{
		CompanyID: companyID,
		Mode:      mode,
		FileName:  fileName,
		StartedAt: started,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start export: %w", err)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, o := range outcomes {
		if o.reason != "" {
			continue
		}
		g.Go(func() error {
			reason := s.add(ctx, batch, companyID, o.id, fileName, started)
			mu.Lock()
			defer mu.Unlock()
			if reason != "" {
				o.reason = reason
			} else {
				o.added = true
			}
			return nil
		})
	}
	_ = g.Wait()

	artifact, err := batch.Close(ctx)
	if err == nil && artifact != nil {
		key := storage.ExportKey(companyID.String(), artifact.FileName)
		if serr := s.files.Save(ctx, key, artifact.Data, artifact.ContentType); serr != nil {
			err = fmt.Errorf("failed to store export file: %w", serr)
		}
	}
	if err != nil {
		s.logger.Error("Export batch failed to finalize",
			zap.String("file_name", fileName),
			zap.Error(err))
		for _, o := range outcomes {
			if o.added {
				o.added = false
				o.reason = err.Error()
				s.release(ctx, companyID, o.id, fileName)
			}
		}
		artifact = nil
	}

	summary := &dto.ExportSummary{
		Mode:      mode,
		FileName:  fileName,
		Succeeded: []string{},
		Failed:    []dto.ExportFailure{},
	}
	for _, o := range outcomes {
		if o.added {
			if _, rerr := s.stages.Report(context.WithoutCancel(ctx), companyID, o.id, fileName, s.now()); rerr != nil {
				s.logger.Error("Failed to archive exported record",
					zap.String("id", o.id.String()),
					zap.Error(rerr))
				o.added = false
				o.reason = fmt.Sprintf("exported but not archived: %v", rerr)
			}
		}
		if o.added {
			summary.Succeeded = append(summary.Succeeded, o.raw)
		} else {
			summary.Failed = append(summary.Failed, dto.ExportFailure{ID: o.raw, Reason: o.reason})
		}
	}

	switch {
	case len(summary.Succeeded) == 0:
		summary.Status = models.ExportStatusFailed
	case len(summary.Failed) > 0:
		summary.Status = models.ExportStatusPartial
	default:
		summary.Status = models.ExportStatusSuccess
	}
	if artifact != nil && len(summary.Succeeded) > 0 {
		summary.DownloadURL = "/api/v1/exports/files/" + url.PathEscape(artifact.FileName)
	}

	entry := &models.ExportHistory{
		ID:         uuid.New(),
		CompanyID:  companyID,
		UserID:     userID,
		FileName:   fileName,
		Mode:       mode,
		ExportedAt: s.now(),
		Status:     summary.Status,
		TotalRows:  len(summary.Succeeded),
		FailedRows: len(summary.Failed),
	}
	if err := s.history.Create(context.WithoutCancel(ctx), entry); err != nil {
		return nil, fmt.Errorf("failed to record export history: %w", err)
	}
	summary.HistoryID = entry.ID

	s.logger.Info("Export finished",
		zap.String("file_name", fileName),
		zap.String("mode", string(mode)),
		zap.String("status", string(summary.Status)),
		zap.Int("succeeded", len(summary.Succeeded)),
		zap.Int("failed", len(summary.Failed)))
	return summary, nil
}

// add reserves one ready record for the batch and hands it over. It
// returns the failure reason, or "" on success. A record the batch rejects
// is released again.
func (s *ExportService) add(ctx context.Context, batch export.Batch, companyID, id uuid.UUID, name string, started time.Time) string {
	rec, err := s.stages.ClaimReady(ctx, companyID, id, name, started, started.Add(-s.claimTTL))
	if err != nil {
		if errors.Is(storeErr(err), ErrNotFound) {
			return reasonNotReady
		}
		s.logger.Error("Failed to claim ready record", zap.String("id", id.String()), zap.Error(err))
		return "failed to load record"
	}
	if err := batch.Add(ctx, rec); err != nil {
		s.logger.Warn("Record rejected by export target",
			zap.String("id", id.String()),
			zap.Error(err))
		s.release(ctx, companyID, id, name)
		return err.Error()
	}
	return ""
}

func (s *ExportService) release(ctx context.Context, companyID, id uuid.UUID, name string) {
	if err := s.stages.ReleaseReady(context.WithoutCancel(ctx), companyID, id, name); err != nil {
		s.logger.Error("Failed to release ready record",
			zap.String("id", id.String()),
			zap.Error(err))
	}
}

func (s *ExportService) ListExportHistory(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]models.ExportHistory, error) {
	limit, offset = clampPage(limit, offset)
	return s.history.List(ctx, companyID, limit, offset)
}

// Download returns a stored export file of the company.
func (s *ExportService) Download(ctx context.Context, companyID uuid.UUID, fileName string) ([]byte, error) {
	if fileName == "" || fileName != path.Base(fileName) || strings.HasPrefix(fileName, ".") {
		return nil, ErrNotFound
	}
	data, err := s.files.Read(ctx, storage.ExportKey(companyID.String(), fileName))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}
