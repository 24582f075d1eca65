package repository

import (
	"context"
	"time"

	"receiptflow/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	digitizedTable = "digitized"
	reviewTable    = "digitized_review"
	readyTable     = "digitized_ready"
	reportedTable  = "digitized_reported"
)

var receiptColumns = []string{
	"purchase_date", "vendor_name", "vendor_abn", "vendor_address", "document_type", "receipt_number",
	"payment_type", "cash_out_amount", "discount_amount", "surcharge_amount", "amount_excl_tax",
	"tax_amount", "total_amount", "total_paid_amount", "expense_category", "tax_status", "tax_type",
}

var stageColumns = withColumns([]string{
	"id", "original_document_id", "company_id", "user_id", "file_name", "original_name", "file_path", "mime_type",
}, receiptColumns...)

var (
	digitizedColumns = withColumns(stageColumns, "created_at", "updated_at")
	reviewColumns    = withColumns(stageColumns, "moved_at")
	readyColumns     = withColumns(stageColumns, "ready_at")
	reportedColumns  = withColumns(stageColumns, "exported_at", "export_file_name", "export_status")
)

func receiptValues(f *models.ReceiptFields) []any {
	return []any{
		f.PurchaseDate, f.VendorName, f.VendorABN, f.VendorAddress, f.DocumentType, f.ReceiptNumber,
		f.PaymentType, f.CashOutAmount, f.DiscountAmount, f.SurchargeAmount, f.AmountExclTax,
		f.TaxAmount, f.TotalAmount, f.TotalPaidAmount, f.ExpenseCategory, f.TaxStatus, f.TaxType,
	}
}

func stageValues(s *models.StageRecord, extra ...any) []any {
	vals := []any{s.ID, s.OriginalDocumentID, s.CompanyID, s.UserID, s.FileName, s.OriginalName, s.FilePath, s.MimeType}
	vals = append(vals, receiptValues(&s.ReceiptFields)...)
	return append(vals, extra...)
}

// StageRepository owns the digitized, review, ready and reported tables.
// Every move between them happens inside one transaction so an id is never
// visible in two stages.
type StageRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewStageRepository(db *pgxpool.Pool, logger *zap.Logger) *StageRepository {
	return &StageRepository{
		db:     db,
		logger: logger,
	}
}

// PromoteDocument removes the queue document and creates its digitized
// row. The document must still be held by the claim started at claimedAt;
// otherwise nothing changes and ErrNotFound is returned.
func (r *StageRepository) PromoteDocument(ctx context.Context, rec *models.Digitized, claimedAt time.Time) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query, args, err := psql().
			Delete(documentTable).
			Where(heldClaim(rec.OriginalDocumentID, claimedAt)).
			ToSql()
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		query, args, err = psql().
			Insert(digitizedTable).
			Columns(digitizedColumns...).
			Values(stageValues(&rec.StageRecord, rec.CreatedAt, rec.UpdatedAt)...).
			ToSql()
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, query, args...)
		return err
	})
}

func (r *StageRepository) GetDigitized(ctx context.Context, companyID, id uuid.UUID) (*models.Digitized, error) {
	var rec models.Digitized
	if err := r.getOne(ctx, r.db, &rec, digitizedTable, digitizedColumns, companyID, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *StageRepository) ListDigitized(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]models.Digitized, error) {
	recs := []models.Digitized{}
	err := r.list(ctx, &recs, psql().
		Select(digitizedColumns...).
		From(digitizedTable).
		Where(squirrel.Eq{"company_id": companyID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)))
	return recs, err
}

// UpdateDigitized overwrites the receipt fields of a digitized row.
func (r *StageRepository) UpdateDigitized(ctx context.Context, rec *models.Digitized) error {
	set := make(map[string]any, len(receiptColumns)+1)
	vals := receiptValues(&rec.ReceiptFields)
	for i, c := range receiptColumns {
		set[c] = vals[i]
	}
	set["updated_at"] = rec.UpdatedAt

	query, args, err := psql().
		Update(digitizedTable).
		SetMap(set).
		Where(squirrel.Eq{"id": rec.ID, "company_id": rec.CompanyID}).
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

// Archive moves a digitized row into the review table. Archiving an id
// that is already under review overwrites the earlier copy.
func (r *StageRepository) Archive(ctx context.Context, companyID, id uuid.UUID, now time.Time) (*models.DigitizedReview, error) {
	var out *models.DigitizedReview
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		rec, err := r.take(ctx, tx, companyID, id)
		if err != nil {
			return err
		}

		review := &models.DigitizedReview{StageRecord: rec.StageRecord, MovedAt: now}
		query, args, err := psql().
			Insert(reviewTable).
			Columns(reviewColumns...).
			Values(stageValues(&review.StageRecord, review.MovedAt)...).
			Suffix(upsertSuffix("id", reviewColumns)).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return err
		}
		out = review
		return nil
	})
	return out, err
}

// PromoteToReady moves a digitized row into the ready table. gate sees the
// row as it was removed and can veto the move, rolling it back.
func (r *StageRepository) PromoteToReady(ctx context.Context, companyID, id uuid.UUID, now time.Time, gate func(*models.Digitized) error) (*models.DigitizedReady, error) {
	var out *models.DigitizedReady
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		rec, err := r.take(ctx, tx, companyID, id)
		if err != nil {
			return err
		}
		if gate != nil {
			if err := gate(rec); err != nil {
				return err
			}
		}

		ready := &models.DigitizedReady{StageRecord: rec.StageRecord, ReadyAt: now}
		query, args, err := psql().
			Insert(readyTable).
			Columns(readyColumns...).
			Values(stageValues(&ready.StageRecord, ready.ReadyAt)...).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return err
		}
		out = ready
		return nil
	})
	return out, err
}

// take deletes a digitized row and returns it.
func (r *StageRepository) take(ctx context.Context, tx pgx.Tx, companyID, id uuid.UUID) (*models.Digitized, error) {
	query, args, err := psql().
		Delete(digitizedTable).
		Where(squirrel.Eq{"id": id, "company_id": companyID}).
		Suffix(returning(digitizedColumns)).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rec models.Digitized
	if err := pgxscan.Get(ctx, tx, &rec, query, args...); err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// claimReadyQuery reserves a ready row for one export batch. A row held by
// another batch is skipped unless that claim started before staleBefore.
func claimReadyQuery(companyID, id uuid.UUID, batch string, now, staleBefore time.Time) (string, []any, error) {
	return psql().
		Update(readyTable).
		Set("export_batch", batch).
		Set("export_claimed_at", now).
		Where(squirrel.Eq{"id": id, "company_id": companyID}).
		Where(squirrel.Or{
			squirrel.Eq{"export_batch": nil},
			squirrel.Lt{"export_claimed_at": staleBefore},
		}).
		Suffix(returning(readyColumns)).
		ToSql()
}

// ClaimReady reserves a ready row for batch and returns it. ErrNotFound
// means the row is not ready or another batch holds it.
func (r *StageRepository) ClaimReady(ctx context.Context, companyID, id uuid.UUID, batch string, now, staleBefore time.Time) (*models.DigitizedReady, error) {
	query, args, err := claimReadyQuery(companyID, id, batch, now, staleBefore)
	if err != nil {
		return nil, err
	}

	var rec models.DigitizedReady
	if err := pgxscan.Get(ctx, r.db, &rec, query, args...); err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// ReleaseReady drops the reservation batch holds on a ready row.
func (r *StageRepository) ReleaseReady(ctx context.Context, companyID, id uuid.UUID, batch string) error {
	query, args, err := psql().
		Update(readyTable).
		Set("export_batch", nil).
		Set("export_claimed_at", nil).
		Where(squirrel.Eq{"id": id, "company_id": companyID, "export_batch": batch}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

// ListReady lists ready rows, optionally limited to a purchase date range
// (inclusive on both ends).
func (r *StageRepository) ListReady(ctx context.Context, companyID uuid.UUID, from, to *time.Time) ([]models.DigitizedReady, error) {
	q := psql().
		Select(readyColumns...).
		From(readyTable).
		Where(squirrel.Eq{"company_id": companyID}).
		OrderBy("purchase_date ASC NULLS LAST", "ready_at ASC")
	if from != nil {
		q = q.Where(squirrel.GtOrEq{"purchase_date": *from})
	}
	if to != nil {
		q = q.Where(squirrel.LtOrEq{"purchase_date": *to})
	}

	recs := []models.DigitizedReady{}
	return recs, r.list(ctx, &recs, q)
}

// Report moves a ready row reserved by batch into the reported archive.
// The batch name is recorded as the export file name.
func (r *StageRepository) Report(ctx context.Context, companyID, id uuid.UUID, batch string, now time.Time) (*models.DigitizedReported, error) {
	var out *models.DigitizedReported
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query, args, err := psql().
			Delete(readyTable).
			Where(squirrel.Eq{"id": id, "company_id": companyID, "export_batch": batch}).
			Suffix(returning(readyColumns)).
			ToSql()
		if err != nil {
			return err
		}
		var ready models.DigitizedReady
		if err := pgxscan.Get(ctx, tx, &ready, query, args...); err != nil {
			return notFound(err)
		}

		reported := &models.DigitizedReported{
			StageRecord:    ready.StageRecord,
			ExportedAt:     now,
			ExportFileName: batch,
			ExportStatus:   models.ExportStatusSuccess,
		}
		query, args, err = psql().
			Insert(reportedTable).
			Columns(reportedColumns...).
			Values(stageValues(&reported.StageRecord, reported.ExportedAt, reported.ExportFileName, reported.ExportStatus)...).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return err
		}
		out = reported
		return nil
	})
	return out, err
}

func (r *StageRepository) ListReview(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]models.DigitizedReview, error) {
	recs := []models.DigitizedReview{}
	err := r.list(ctx, &recs, psql().
		Select(reviewColumns...).
		From(reviewTable).
		Where(squirrel.Eq{"company_id": companyID}).
		OrderBy("moved_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)))
	return recs, err
}

func (r *StageRepository) ListReported(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]models.DigitizedReported, error) {
	recs := []models.DigitizedReported{}
	err := r.list(ctx, &recs, psql().
		Select(reportedColumns...).
		From(reportedTable).
		Where(squirrel.Eq{"company_id": companyID}).
		OrderBy("exported_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)))
	return recs, err
}

func (r *StageRepository) getOne(ctx context.Context, db pgxscan.Querier, dst any, table string, columns []string, companyID, id uuid.UUID) error {
	query, args, err := psql().
		Select(columns...).
		From(table).
		Where(squirrel.Eq{"id": id, "company_id": companyID}).
		ToSql()
	if err != nil {
		return err
	}
	return notFound(pgxscan.Get(ctx, db, dst, query, args...))
}

func (r *StageRepository) list(ctx context.Context, dst any, q squirrel.SelectBuilder) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	return pgxscan.Select(ctx, r.db, dst, query, args...)
}
