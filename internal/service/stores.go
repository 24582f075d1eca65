package service

import (
	"context"
	"time"

	"receiptflow/internal/models"

	"github.com/google/uuid"
)

type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, companyID, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context, companyID uuid.UUID, status models.DocumentStatus, limit, offset int) ([]models.Document, error)
	Claim(ctx context.Context, companyID, id uuid.UUID, now, staleBefore time.Time) (*models.Document, error)
	MarkError(ctx context.Context, id uuid.UUID, claimedAt time.Time, message string, now time.Time) error
	MarkDeleted(ctx context.Context, id uuid.UUID, claimedAt time.Time, raw []byte, now time.Time) error
}

type StageStore interface {
	PromoteDocument(ctx context.Context, rec *models.Digitized, claimedAt time.Time) error
	GetDigitized(ctx context.Context, companyID, id uuid.UUID) (*models.Digitized, error)
	ListDigitized(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]models.Digitized, error)
	UpdateDigitized(ctx context.Context, rec *models.Digitized) error
	Archive(ctx context.Context, companyID, id uuid.UUID, now time.Time) (*models.DigitizedReview, error)
	PromoteToReady(ctx context.Context, companyID, id uuid.UUID, now time.Time, gate func(*models.Digitized) error) (*models.DigitizedReady, error)
	ClaimReady(ctx context.Context, companyID, id uuid.UUID, batch string, now, staleBefore time.Time) (*models.DigitizedReady, error)
	ReleaseReady(ctx context.Context, companyID, id uuid.UUID, batch string) error
	ListReady(ctx context.Context, companyID uuid.UUID, from, to *time.Time) ([]models.DigitizedReady, error)
	Report(ctx context.Context, companyID, id uuid.UUID, batch string, now time.Time) (*models.DigitizedReported, error)
	ListReview(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]models.DigitizedReview, error)
	ListReported(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]models.DigitizedReported, error)
}

type ExportHistoryStore interface {
	Create(ctx context.Context, h *models.ExportHistory) error
	List(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]models.ExportHistory, error)
}

type VendorStore interface {
	Get(ctx context.Context, abn string) (*models.Vendor, error)
	Upsert(ctx context.Context, v *models.Vendor) error
	ListStale(ctx context.Context, before time.Time, limit int) ([]string, error)
}

// VendorRegistry is the upstream business register.
type VendorRegistry interface {
	Lookup(ctx context.Context, abn string) (*models.Vendor, error)
}

type UserStore interface {
	CreateWithCompany(ctx context.Context, company *models.Company, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type CompanyStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Company, error)
	UpdateSubscriptionByCustomer(ctx context.Context, customerID string, status models.SubscriptionStatus) error
	LinkCustomer(ctx context.Context, companyID uuid.UUID, customerID string, status models.SubscriptionStatus) error
}
