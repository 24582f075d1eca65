package repository

import (
	"context"
	"time"

	"receiptflow/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const documentTable = "documents"

var documentColumns = []string{
	"id", "company_id", "user_id", "file_name", "original_name", "file_path", "file_size", "mime_type",
	"status", "upload_date", "processed_date", "processing_started_at", "error_message",
	"vendor", "abn", "total_amount", "gst_amount", "transaction_date", "payment_method", "document_type",
	"receipt_data",
}

type DocumentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDocumentRepository(db *pgxpool.Pool, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query, args, err := psql().
		Insert(documentTable).
		Columns("id", "company_id", "user_id", "file_name", "original_name", "file_path", "file_size", "mime_type", "status", "upload_date").
		Values(doc.ID, doc.CompanyID, doc.UserID, doc.FileName, doc.OriginalName, doc.FilePath, doc.FileSize, doc.MimeType, doc.Status, doc.UploadDate).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query, args...)
	return err
}

func (r *DocumentRepository) Get(ctx context.Context, companyID, id uuid.UUID) (*models.Document, error) {
	query, args, err := psql().
		Select(documentColumns...).
		From(documentTable).
		Where(squirrel.Eq{"id": id, "company_id": companyID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var doc models.Document
	if err := pgxscan.Get(ctx, r.db, &doc, query, args...); err != nil {
		return nil, notFound(err)
	}
	return &doc, nil
}

// List returns a company's documents, newest first. An empty status lists
// every status except DELETED.
func (r *DocumentRepository) List(ctx context.Context, companyID uuid.UUID, status models.DocumentStatus, limit, offset int) ([]models.Document, error) {
	q := psql().
		Select(documentColumns...).
		From(documentTable).
		Where(squirrel.Eq{"company_id": companyID}).
		OrderBy("upload_date DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
	if status != "" {
		q = q.Where(squirrel.Eq{"status": status})
	} else {
		q = q.Where(squirrel.NotEq{"status": models.DocumentStatusDeleted})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	docs := []models.Document{}
	if err := pgxscan.Select(ctx, r.db, &docs, query, args...); err != nil {
		return nil, err
	}
	return docs, nil
}

// Claim moves a QUEUE or ERROR document, or one whose PROCESSING claim
// started before staleBefore, into PROCESSING. It returns ErrNotFound when
// no row qualified.
func (r *DocumentRepository) Claim(ctx context.Context, companyID, id uuid.UUID, now, staleBefore time.Time) (*models.Document, error) {
	query, args, err := psql().
		Update(documentTable).
		Set("status", models.DocumentStatusProcessing).
		Set("processing_started_at", now).
		Set("error_message", nil).
		Where(squirrel.Eq{"id": id, "company_id": companyID}).
		Where(squirrel.Or{
			squirrel.Eq{"status": []models.DocumentStatus{models.DocumentStatusQueue, models.DocumentStatusError}},
			squirrel.And{
				squirrel.Eq{"status": models.DocumentStatusProcessing},
				squirrel.Lt{"processing_started_at": staleBefore},
			},
		}).
		Suffix(returning(documentColumns)).
		ToSql()
	if err != nil {
		return nil, err
	}

	var doc models.Document
	if err := pgxscan.Get(ctx, r.db, &doc, query, args...); err != nil {
		return nil, notFound(err)
	}
	return &doc, nil
}

// MarkError records a failed extraction. The row stays claimable. Only
// the run holding the claim started at claimedAt may write; ErrNotFound
// means the claim was lost.
func (r *DocumentRepository) MarkError(ctx context.Context, id uuid.UUID, claimedAt time.Time, message string, now time.Time) error {
	return r.update(ctx, id, claimedAt, map[string]any{
		"status":                models.DocumentStatusError,
		"error_message":         message,
		"processed_date":        now,
		"processing_started_at": nil,
	})
}

// MarkDeleted records a document the model rejected as not a receipt,
// keeping the raw answer for inspection.
func (r *DocumentRepository) MarkDeleted(ctx context.Context, id uuid.UUID, claimedAt time.Time, raw []byte, now time.Time) error {
	return r.update(ctx, id, claimedAt, map[string]any{
		"status":                models.DocumentStatusDeleted,
		"receipt_data":          raw,
		"processed_date":        now,
		"processing_started_at": nil,
	})
}

// heldClaim matches a document still in the PROCESSING claim started at
// claimedAt.
func heldClaim(id uuid.UUID, claimedAt time.Time) squirrel.Eq {
	return squirrel.Eq{
		"id":                    id,
		"status":                models.DocumentStatusProcessing,
		"processing_started_at": claimedAt,
	}
}

func (r *DocumentRepository) update(ctx context.Context, id uuid.UUID, claimedAt time.Time, set map[string]any) error {
	query, args, err := psql().
		Update(documentTable).
		SetMap(set).
		Where(heldClaim(id, claimedAt)).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
