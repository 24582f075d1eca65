package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"receiptflow/internal/models"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
	"go.uber.org/zap"
)

// BillingService tracks each company's Stripe subscription.
type BillingService struct {
	companies     CompanyStore
	webhookSecret string
	logger        *zap.Logger
}

func NewBillingService(companies CompanyStore, webhookSecret string, logger *zap.Logger) *BillingService {
	return &BillingService{
		companies:     companies,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// CanProcess reports whether the company may upload, digitize and export.
func (s *BillingService) CanProcess(ctx context.Context, companyID uuid.UUID) (bool, error) {
	company, err := s.companies.Get(ctx, companyID)
	if err != nil {
		return false, storeErr(err)
	}
	return company.CanProcess(), nil
}

// HandleWebhook verifies a Stripe event and applies subscription changes.
// Unrelated event types are ignored.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.logger.Warn("Rejected Stripe webhook", zap.Error(err))
		return ErrInvalidSignature
	}

	switch string(event.Type) {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
	default:
		s.logger.Debug("Ignoring Stripe event", zap.String("type", string(event.Type)))
		return nil
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to decode subscription: %w", err)
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return fmt.Errorf("subscription %s has no customer", sub.ID)
	}

	status := subscriptionStatus(sub.Status)
	if string(event.Type) == "customer.subscription.deleted" {
		status = models.SubscriptionCanceled
	}

	// Checkout sessions carry the company id in subscription metadata; the
	// first event for a subscription links the customer.
	if raw, ok := sub.Metadata["company_id"]; ok {
		companyID, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid company_id metadata %q: %w", raw, err)
		}
		if err := s.companies.LinkCustomer(ctx, companyID, sub.Customer.ID, status); err != nil {
			if errors.Is(storeErr(err), ErrNotFound) {
				s.logger.Warn("Stripe metadata names unknown company", zap.String("company_id", raw))
				return nil
			}
			return fmt.Errorf("failed to link customer: %w", err)
		}
		s.logger.Info("Subscription linked",
			zap.String("company_id", raw),
			zap.String("customer_id", sub.Customer.ID),
			zap.String("status", string(status)))
		return nil
	}

	if err := s.companies.UpdateSubscriptionByCustomer(ctx, sub.Customer.ID, status); err != nil {
		if errors.Is(storeErr(err), ErrNotFound) {
			s.logger.Warn("No company for Stripe customer", zap.String("customer_id", sub.Customer.ID))
			return nil
		}
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	s.logger.Info("Subscription updated",
		zap.String("customer_id", sub.Customer.ID),
		zap.String("status", string(status)))
	return nil
}

func subscriptionStatus(st stripe.SubscriptionStatus) models.SubscriptionStatus {
	switch string(st) {
	case "trialing":
		return models.SubscriptionTrialing
	case "active":
		return models.SubscriptionActive
	case "past_due", "incomplete":
		return models.SubscriptionPastDue
	case "unpaid":
		return models.SubscriptionUnpaid
	case "canceled", "incomplete_expired":
		return models.SubscriptionCanceled
	}
	return models.SubscriptionPastDue
}
