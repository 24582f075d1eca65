package repository

import (
	"context"

	"receiptflow/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var exportHistoryColumns = []string{
	"id", "company_id", "user_id", "file_name", "mode", "exported_at", "status", "total_rows", "failed_rows",
}

type ExportHistoryRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewExportHistoryRepository(db *pgxpool.Pool, logger *zap.Logger) *ExportHistoryRepository {
	return &ExportHistoryRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ExportHistoryRepository) Create(ctx context.Context, h *models.ExportHistory) error {
	query, args, err := psql().
		Insert("export_history").
		Columns(exportHistoryColumns...).
		Values(h.ID, h.CompanyID, h.UserID, h.FileName, h.Mode, h.ExportedAt, h.Status, h.TotalRows, h.FailedRows).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query, args...)
	return err
}

func (r *ExportHistoryRepository) List(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]models.ExportHistory, error) {
	query, args, err := psql().
		Select(exportHistoryColumns...).
		From("export_history").
		Where(squirrel.Eq{"company_id": companyID}).
		OrderBy("exported_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}

	entries := []models.ExportHistory{}
	if err := pgxscan.Select(ctx, r.db, &entries, query, args...); err != nil {
		return nil, err
	}
	return entries, nil
}
