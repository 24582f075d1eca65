package repository

import (
	"context"

	"receiptflow/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var userColumns = []string{"id", "company_id", "username", "email", "password", "created_at", "updated_at"}

var companyColumns = []string{"id", "name", "stripe_customer_id", "subscription_status", "created_at"}

type UserRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// CreateWithCompany registers a user together with the company they own.
func (r *UserRepository) CreateWithCompany(ctx context.Context, company *models.Company, user *models.User) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query, args, err := psql().
			Insert("companies").
			Columns(companyColumns...).
			Values(company.ID, company.Name, company.StripeCustomerID, company.SubscriptionStatus, company.CreatedAt).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return err
		}

		query, args, err = psql().
			Insert("users").
			Columns(userColumns...).
			Values(user.ID, user.CompanyID, user.Username, user.Email, user.Password, user.CreatedAt, user.UpdatedAt).
			ToSql()
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, query, args...)
		return err
	})
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.get(ctx, squirrel.Eq{"email": email})
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.get(ctx, squirrel.Eq{"id": id})
}

func (r *UserRepository) get(ctx context.Context, where squirrel.Sqlizer) (*models.User, error) {
	query, args, err := psql().Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := pgxscan.Get(ctx, r.db, &user, query, args...); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

type CompanyRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewCompanyRepository(db *pgxpool.Pool, logger *zap.Logger) *CompanyRepository {
	return &CompanyRepository{
		db:     db,
		logger: logger,
	}
}

func (r *CompanyRepository) Get(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	query, args, err := psql().Select(companyColumns...).From("companies").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	var company models.Company
	if err := pgxscan.Get(ctx, r.db, &company, query, args...); err != nil {
		return nil, notFound(err)
	}
	return &company, nil
}

// UpdateSubscriptionByCustomer sets the subscription status of the company
// linked to a Stripe customer.
func (r *CompanyRepository) UpdateSubscriptionByCustomer(ctx context.Context, customerID string, status models.SubscriptionStatus) error {
	query, args, err := psql().
		Update("companies").
		Set("subscription_status", status).
		Where(squirrel.Eq{"stripe_customer_id": customerID}).
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

// LinkCustomer attaches a Stripe customer to a company and sets its
// subscription status.
func (r *CompanyRepository) LinkCustomer(ctx context.Context, companyID uuid.UUID, customerID string, status models.SubscriptionStatus) error {
	query, args, err := psql().
		Update("companies").
		Set("stripe_customer_id", customerID).
		Set("subscription_status", status).
		Where(squirrel.Eq{"id": companyID}).
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
