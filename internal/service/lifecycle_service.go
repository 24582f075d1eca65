package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"receiptflow/internal/dto"
	"receiptflow/internal/extraction"
	"receiptflow/internal/models"
	"receiptflow/internal/rules"
	"receiptflow/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var allowedMimeTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"application/pdf": ".pdf",
}

// errClaimLost is returned when another digitize run took the document
// over before this one could finish.
var errClaimLost = fmt.Errorf("%w: document was taken over by another run", ErrConflict)

type LifecycleConfig struct {
	ExtractionTimeout time.Duration
	Fallback          bool
	StaleAfter        time.Duration
}

// LifecycleService moves documents through the digitization stages:
// queue, digitized, review, ready.
type LifecycleService struct {
	docs      DocumentStore
	stages    StageStore
	files     storage.FileStore
	extractor extraction.Extractor
	vendors   *VendorService
	cfg       LifecycleConfig
	now       func() time.Time
	logger    *zap.Logger
}

func NewLifecycleService(
	docs DocumentStore,
	stages StageStore,
	files storage.FileStore,
	extractor extraction.Extractor,
	vendors *VendorService,
	cfg LifecycleConfig,
	logger *zap.Logger,
) *LifecycleService {
	return &LifecycleService{
		docs:      docs,
		stages:    stages,
		files:     files,
		extractor: extractor,
		vendors:   vendors,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// Upload stores the file and queues a document for digitization.
func (s *LifecycleService) Upload(ctx context.Context, companyID, userID uuid.UUID, originalName, mimeType string, data []byte) (*models.Document, error) {
	mimeType = strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	ext, ok := allowedMimeTypes[mimeType]
	if !ok {
		return nil, FieldErrors{"file": fmt.Sprintf("unsupported file type %q", mimeType)}
	}
	if len(data) == 0 {
		return nil, FieldErrors{"file": "file is empty"}
	}
	if e := strings.ToLower(filepath.Ext(originalName)); e != "" {
		ext = e
	}

	id := uuid.New()
	fileName := id.String() + ext
	key := storage.UploadKey(companyID.String(), fileName)
	if err := s.files.Save(ctx, key, data, mimeType); err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	doc := &models.Document{
		ID:           id,
		CompanyID:    companyID,
		UserID:       userID,
		FileName:     fileName,
		OriginalName: sanitizeUTF8(originalName),
		FilePath:     key,
		FileSize:     int64(len(data)),
		MimeType:     mimeType,
		Status:       models.DocumentStatusQueue,
		UploadDate:   s.now(),
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if derr := s.files.Delete(ctx, key); derr != nil {
			s.logger.Warn("Failed to remove orphaned upload", zap.String("key", key), zap.Error(derr))
		}
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	s.logger.Info("Document queued",
		zap.String("document_id", doc.ID.String()),
		zap.String("company_id", companyID.String()),
		zap.String("mime_type", mimeType),
		zap.Int64("size", doc.FileSize))
	return doc, nil
}

// Digitize extracts a queued document and promotes it to the digitized
// stage. Ids that already left the queue report ErrNotFound.
func (s *LifecycleService) Digitize(ctx context.Context, companyID, id uuid.UUID) (*dto.DigitizeResponse, error) {
	// 1. Claim
	now := s.now()
	doc, err := s.docs.Claim(ctx, companyID, id, now, now.Add(-s.cfg.StaleAfter))
	if err != nil {
		if err := storeErr(err); !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("failed to claim document: %w", err)
		}
		existing, gerr := s.docs.Get(ctx, companyID, id)
		if gerr != nil {
			return nil, storeErr(gerr)
		}
		return nil, fmt.Errorf("%w: document is %s", ErrConflict, existing.Status)
	}
	claimedAt := now
	if doc.ProcessingStartedAt != nil {
		claimedAt = *doc.ProcessingStartedAt
	}

	// 2. Read the upload
	data, err := s.files.Read(ctx, doc.FilePath)
	if err != nil {
		s.markError(ctx, doc.ID, claimedAt, fmt.Sprintf("failed to read file: %v", err))
		return nil, fmt.Errorf("failed to read document file: %w", err)
	}

	// 3. Extract
	result, err := s.extract(ctx, data, doc.MimeType)
	fallback := false
	switch {
	case errors.Is(err, extraction.ErrNotReceipt):
		var raw []byte
		if result != nil {
			raw = result.Raw
		}
		if err := s.docs.MarkDeleted(context.WithoutCancel(ctx), doc.ID, claimedAt, raw, s.now()); err != nil {
			if errors.Is(storeErr(err), ErrNotFound) {
				return nil, errClaimLost
			}
			return nil, fmt.Errorf("failed to mark document deleted: %w", err)
		}
		s.logger.Info("Document is not a receipt", zap.String("document_id", doc.ID.String()))
		return &dto.DigitizeResponse{Status: models.DocumentStatusDeleted}, nil
	case err != nil:
		if !s.cfg.Fallback {
			s.markError(ctx, doc.ID, claimedAt, err.Error())
			return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		s.logger.Warn("Extraction failed, continuing with empty fields",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err))
		result = &extraction.Result{}
		fallback = true
	}

	// 4. Promote
	fields := result.Fields()
	sanitizeFields(&fields)
	created := s.now()
	rec := &models.Digitized{
		StageRecord: models.StageRecord{
			ID:                 doc.ID,
			OriginalDocumentID: doc.ID,
			CompanyID:          doc.CompanyID,
			UserID:             doc.UserID,
			FileName:           doc.FileName,
			OriginalName:       doc.OriginalName,
			FilePath:           doc.FilePath,
			MimeType:           doc.MimeType,
			ReceiptFields:      fields,
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
	if err := s.stages.PromoteDocument(ctx, rec, claimedAt); err != nil {
		if errors.Is(storeErr(err), ErrNotFound) {
			return nil, errClaimLost
		}
		s.markError(ctx, doc.ID, claimedAt, fmt.Sprintf("failed to save digitized record: %v", err))
		return nil, fmt.Errorf("failed to promote document: %w", err)
	}

	// 5. Warm the vendor cache
	if s.vendors != nil && models.ValidABN(fields.VendorABN) {
		s.vendors.RefreshAsync(fields.VendorABN)
	}

	s.logger.Info("Document digitized",
		zap.String("document_id", doc.ID.String()),
		zap.Bool("fallback", fallback))
	return &dto.DigitizeResponse{
		Status:   models.DocumentStatusDigitized,
		Record:   rec,
		Fallback: fallback,
	}, nil
}

func (s *LifecycleService) extract(ctx context.Context, data []byte, mimeType string) (*extraction.Result, error) {
	if s.cfg.ExtractionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ExtractionTimeout)
		defer cancel()
	}
	return s.extractor.Extract(ctx, data, mimeType)
}

// markError records a failed run. The caller's context may already be
// done, so the write does not inherit its cancellation.
func (s *LifecycleService) markError(ctx context.Context, id uuid.UUID, claimedAt time.Time, msg string) {
	if err := s.docs.MarkError(context.WithoutCancel(ctx), id, claimedAt, msg, s.now()); err != nil {
		s.logger.Error("Failed to mark document as errored",
			zap.String("document_id", id.String()),
			zap.Error(err))
	}
}

// Edit applies user corrections to a digitized record. Malformed input is
// rejected; amount inconsistencies are saved and returned as warnings.
func (s *LifecycleService) Edit(ctx context.Context, companyID, id uuid.UUID, req *dto.EditDigitizedRequest) (*dto.EditDigitizedResponse, error) {
	rec, err := s.stages.GetDigitized(ctx, companyID, id)
	if err != nil {
		return nil, storeErr(err)
	}

	if err := applyEdit(&rec.ReceiptFields, req); err != nil {
		return nil, err
	}
	sanitizeFields(&rec.ReceiptFields)
	rec.UpdatedAt = s.now()

	if err := s.stages.UpdateDigitized(ctx, rec); err != nil {
		return nil, storeErr(err)
	}

	resp := &dto.EditDigitizedResponse{Record: rec}
	if problems := rules.Arithmetic(&rec.ReceiptFields); len(problems) > 0 {
		resp.Warnings = make(map[string][]string, len(problems))
		for _, p := range problems {
			resp.Warnings[p.Field] = append(resp.Warnings[p.Field], p.Message)
		}
	}
	return resp, nil
}

func applyEdit(f *models.ReceiptFields, req *dto.EditDigitizedRequest) error {
	ferrs := FieldErrors{}

	if req.PurchaseDate != nil {
		if v := strings.TrimSpace(*req.PurchaseDate); v == "" {
			f.PurchaseDate = nil
		} else if t, err := models.ParseDate(v); err != nil {
			ferrs["purchase_date"] = "must be YYYY-MM-DD, RFC3339 or DD/MM/YYYY"
		} else {
			f.PurchaseDate = &t
		}
	}
	if req.VendorABN != nil {
		abn := normalizeABN(strings.TrimSpace(*req.VendorABN))
		if abn != "" && !models.ValidABN(abn) {
			ferrs["vendor_abn"] = "must be exactly 11 digits"
		} else {
			f.VendorABN = abn
		}
	}

	amounts := []struct {
		field string
		in    dto.Amount
		out   *decimal.NullDecimal
	}{
		{"cash_out_amount", req.CashOutAmount, &f.CashOutAmount},
		{"discount_amount", req.DiscountAmount, &f.DiscountAmount},
		{"surcharge_amount", req.SurchargeAmount, &f.SurchargeAmount},
		{"amount_excl_tax", req.AmountExclTax, &f.AmountExclTax},
		{"tax_amount", req.TaxAmount, &f.TaxAmount},
		{"total_amount", req.TotalAmount, &f.TotalAmount},
		{"total_paid_amount", req.TotalPaidAmount, &f.TotalPaidAmount},
	}
	for _, a := range amounts {
		if !a.in.Set {
			continue
		}
		if a.in.Value == "" {
			*a.out = decimal.NullDecimal{}
			continue
		}
		d, err := decimal.NewFromString(a.in.Value)
		if err != nil {
			ferrs[a.field] = "must be a number"
			continue
		}
		if d.IsNegative() {
			ferrs[a.field] = "must not be negative"
			continue
		}
		*a.out = decimal.NewNullDecimal(d)
	}

	if len(ferrs) > 0 {
		return ferrs
	}

	for _, t := range []struct {
		in  *string
		out *string
	}{
		{req.VendorName, &f.VendorName},
		{req.VendorAddress, &f.VendorAddress},
		{req.DocumentType, &f.DocumentType},
		{req.ReceiptNumber, &f.ReceiptNumber},
		{req.PaymentType, &f.PaymentType},
		{req.ExpenseCategory, &f.ExpenseCategory},
		{req.TaxStatus, &f.TaxStatus},
		{req.TaxType, &f.TaxType},
	} {
		if t.in != nil {
			*t.out = *t.in
		}
	}
	return nil
}

// SoftDelete archives a digitized record for review. The uploaded file
// stays in storage.
func (s *LifecycleService) SoftDelete(ctx context.Context, companyID, id uuid.UUID) (*models.DigitizedReview, error) {
	review, err := s.stages.Archive(ctx, companyID, id, s.now())
	if err != nil {
		return nil, storeErr(err)
	}
	s.logger.Info("Digitized record archived", zap.String("id", id.String()))
	return review, nil
}

// MoveToReady validates a digitized record and promotes it. Every failing
// check is reported at once.
func (s *LifecycleService) MoveToReady(ctx context.Context, companyID, id uuid.UUID) (*models.DigitizedReady, error) {
	rec, err := s.stages.GetDigitized(ctx, companyID, id)
	if err != nil {
		return nil, storeErr(err)
	}

	vendor, err := s.cachedVendor(ctx, rec.VendorABN)
	if err != nil {
		return nil, err
	}
	if problems := rules.Validate(&rec.ReceiptFields, vendor); len(problems) > 0 {
		return nil, &ValidationFailedError{Problems: problems}
	}

	ready, err := s.stages.PromoteToReady(ctx, companyID, id, s.now(), func(locked *models.Digitized) error {
		if locked.VendorABN != rec.VendorABN {
			return fmt.Errorf("%w: vendor ABN changed during validation", ErrConflict)
		}
		if problems := rules.Validate(&locked.ReceiptFields, vendor); len(problems) > 0 {
			return &ValidationFailedError{Problems: problems}
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	s.logger.Info("Digitized record ready for export", zap.String("id", id.String()))
	return ready, nil
}

func (s *LifecycleService) cachedVendor(ctx context.Context, abn string) (*models.Vendor, error) {
	if s.vendors == nil {
		return nil, nil
	}
	return s.vendors.Cached(ctx, abn)
}

func (s *LifecycleService) ListDocuments(ctx context.Context, companyID uuid.UUID, status models.DocumentStatus, limit, offset int) ([]models.Document, error) {
	limit, offset = clampPage(limit, offset)
	return s.docs.List(ctx, companyID, status, limit, offset)
}

func (s *LifecycleService) GetDigitized(ctx context.Context, companyID, id uuid.UUID) (*models.Digitized, error) {
	rec, err := s.stages.GetDigitized(ctx, companyID, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return rec, nil
}

func (s *LifecycleService) ListDigitized(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]models.Digitized, error) {
	limit, offset = clampPage(limit, offset)
	return s.stages.ListDigitized(ctx, companyID, limit, offset)
}

func (s *LifecycleService) ListReview(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]models.DigitizedReview, error) {
	limit, offset = clampPage(limit, offset)
	return s.stages.ListReview(ctx, companyID, limit, offset)
}

// ListReady lists records awaiting export, optionally within a purchase
// date range.
func (s *LifecycleService) ListReady(ctx context.Context, companyID uuid.UUID, from, to *time.Time) ([]models.DigitizedReady, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, FieldErrors{"to": "must not be before from"}
	}
	return s.stages.ListReady(ctx, companyID, from, to)
}

func (s *LifecycleService) ListReported(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]models.DigitizedReported, error) {
	limit, offset = clampPage(limit, offset)
	return s.stages.ListReported(ctx, companyID, limit, offset)
}
