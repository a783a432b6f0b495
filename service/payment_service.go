package service

import (
	"context"
	"fmt"

	"pixelmint/events"
	"pixelmint/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type paymentService struct {
	uowFactory UnitOfWorkFactory
	rates      RateConverter
}

// NewPaymentService creates a new payment service
func NewPaymentService(uowFactory UnitOfWorkFactory, rates RateConverter) PaymentService {
	return &paymentService{
		uowFactory: uowFactory,
		rates:      rates,
	}
}

// CreatePayment opens a pending payment for a checkout flow. The generated
// external id is what the gateway echoes back in its webhooks.
func (s *paymentService) CreatePayment(ctx context.Context, userID int64, amount int64, currency string) (*models.Payment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive, got %d", amount)
	}

	payment := &models.Payment{
		UserID:     userID,
		Amount:     amount,
		Currency:   currency,
		Status:     models.PaymentStatusPending,
		ExternalID: uuid.NewString(),
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	if err := uow.PaymentRepository().Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return payment, nil
}

// HandleGatewayEvent applies a gateway status event to the stored payment.
//
// The credit fires only when the stored status was not yet completed or
// refunded and the event carries completed, so replayed webhook deliveries
// (a certainty with most gateways) credit exactly once. The status read,
// the status update, and the credit share one transaction under the payment
// row lock; the FX lookup happens before the transaction opens so no network
// call runs under a held lock.
func (s *paymentService) HandleGatewayEvent(ctx context.Context, event *GatewayEvent) error {
	newStatus, err := mapGatewayStatus(event.Status)
	if err != nil {
		return err
	}

	// FX conversion outside the transaction. Only needed when the event can
	// trigger a credit.
	var tokens int64
	if newStatus == models.PaymentStatusCompleted {
		tokens, err = s.rates.TokensFor(ctx, event.Amount, event.Currency)
		if err != nil {
			return fmt.Errorf("failed to convert payment amount: %w", err)
		}
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	payment, err := uow.PaymentRepository().GetByExternalIDForUpdate(ctx, event.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to look up payment: %w", err)
	}
	if payment == nil {
		return fmt.Errorf("transaction %s: %w", event.TransactionID, ErrPaymentNotFound)
	}

	originalStatus := payment.Status

	shouldCredit := newStatus == models.PaymentStatusCompleted &&
		originalStatus != models.PaymentStatusCompleted &&
		originalStatus != models.PaymentStatusRefunded

	tokensCredited := payment.TokensCredited
	if shouldCredit {
		tokensCredited = tokens
	}

	if err := uow.PaymentRepository().UpdateStatus(ctx, payment.ID, newStatus, tokensCredited); err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}

	if shouldCredit {
		if _, err := creditAccount(ctx, uow, payment.UserID, tokens, models.EntryReasonPaymentCredit, map[string]any{
			"payment_id":  payment.ID,
			"external_id": payment.ExternalID,
			"amount":      event.Amount,
			"currency":    event.Currency,
		}); err != nil {
			return fmt.Errorf("failed to credit payment: %w", err)
		}

		uow.EventBus().Publish(events.PaymentCreditedEvent{
			PaymentID:  payment.ID,
			UserID:     payment.UserID,
			ExternalID: payment.ExternalID,
			Tokens:     tokens,
		})
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"externalID": event.TransactionID,
		"from":       originalStatus,
		"to":         newStatus,
		"credited":   shouldCredit,
	}).Info("Processed payment gateway event")

	return nil
}

func mapGatewayStatus(status string) (models.PaymentStatus, error) {
	switch status {
	case "pending":
		return models.PaymentStatusPending, nil
	case "completed", "succeeded":
		return models.PaymentStatusCompleted, nil
	case "failed":
		return models.PaymentStatusFailed, nil
	case "refunded":
		return models.PaymentStatusRefunded, nil
	case "cancelled", "canceled":
		return models.PaymentStatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown gateway status %q", status)
	}
}
