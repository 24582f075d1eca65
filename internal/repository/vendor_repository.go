package repository

import (
	"context"
	"time"

	"receiptflow/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const vendorTable = "vendors"

var vendorColumns = []string{
	"abn", "abn_status", "gst", "entity_name", "business_name", "address_state", "address_postcode", "request_update_date",
}

type VendorRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewVendorRepository(db *pgxpool.Pool, logger *zap.Logger) *VendorRepository {
	return &VendorRepository{
		db:     db,
		logger: logger,
	}
}

func (r *VendorRepository) Get(ctx context.Context, abn string) (*models.Vendor, error) {
	query, args, err := psql().
		Select(vendorColumns...).
		From(vendorTable).
		Where(squirrel.Eq{"abn": abn}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var v models.Vendor
	if err := pgxscan.Get(ctx, r.db, &v, query, args...); err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// Upsert stores a registry lookup. Concurrent refreshes of the same ABN
// race harmlessly; the last write wins.
func (r *VendorRepository) Upsert(ctx context.Context, v *models.Vendor) error {
	query, args, err := psql().
		Insert(vendorTable).
		Columns(vendorColumns...).
		Values(v.ABN, v.ABNStatus, v.GST, v.EntityName, v.BusinessName, v.AddressState, v.AddressPostcode, v.RequestUpdateDate).
		Suffix(upsertSuffix("abn", vendorColumns)).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query, args...)
	return err
}

// ListStale returns ABNs whose cached lookup is older than before.
func (r *VendorRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]string, error) {
	query, args, err := psql().
		Select("abn").
		From(vendorTable).
		Where(squirrel.Lt{"request_update_date": before}).
		OrderBy("request_update_date ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	abns := []string{}
	if err := pgxscan.Select(ctx, r.db, &abns, query, args...); err != nil {
		return nil, err
	}
	return abns, nil
}
