package service

import (
	"context"
	"errors"
	"testing"

	"pixelmint/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type paymentTestMocks struct {
	uow       *MockUnitOfWork
	factory   *MockUnitOfWorkFactory
	accounts  *MockAccountRepository
	ledger    *MockLedgerRepository
	payments  *MockPaymentRepository
	publisher *MockEventPublisher
	rates     *MockRateConverter
}

func newPaymentTestMocks() *paymentTestMocks {
	m := &paymentTestMocks{
		uow:       new(MockUnitOfWork),
		factory:   new(MockUnitOfWorkFactory),
		accounts:  new(MockAccountRepository),
		ledger:    new(MockLedgerRepository),
		payments:  new(MockPaymentRepository),
		publisher: new(MockEventPublisher),
		rates:     new(MockRateConverter),
	}
	m.uow.SetRepositories(m.accounts, m.ledger, nil, m.payments, m.publisher)
	m.factory.On("Create").Return(m.uow)
	m.uow.On("Begin", mock.Anything).Return(nil)
	m.uow.On("Rollback").Return(nil)
	return m
}

func TestPaymentService_CreatePayment(t *testing.T) {
	ctx := context.Background()
	m := newPaymentTestMocks()
	m.uow.On("Commit").Return(nil)

	service := NewPaymentService(m.factory, m.rates)

	m.payments.On("Create", ctx, mock.MatchedBy(func(p *models.Payment) bool {
		return p.UserID == 42 &&
			p.Amount == 999 &&
			p.Currency == "USD" &&
			p.Status == models.PaymentStatusPending &&
			p.ExternalID != ""
	})).Return(nil)

	payment, err := service.CreatePayment(ctx, 42, 999, "USD")

	assert.NoError(t, err)
	assert.NotEmpty(t, payment.ExternalID)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	m.payments.AssertExpectations(t)
}

func TestPaymentService_HandleGatewayEvent_CreditsOnCompletion(t *testing.T) {
	ctx := context.Background()
	m := newPaymentTestMocks()
	m.uow.On("Commit").Return(nil)

	service := NewPaymentService(m.factory, m.rates)

	stored := &models.Payment{
		ID:         7,
		UserID:     42,
		Amount:     999,
		Currency:   "USD",
		Status:     models.PaymentStatusPending,
		ExternalID: "ext-1",
	}

	m.rates.On("TokensFor", ctx, int64(999), "USD").Return(int64(999), nil)
	m.payments.On("GetByExternalIDForUpdate", ctx, "ext-1").Return(stored, nil)
	m.payments.On("UpdateStatus", ctx, int64(7), models.PaymentStatusCompleted, int64(999)).Return(nil)
	m.accounts.On("GetForUpdate", ctx, int64(42)).Return(&models.Account{UserID: 42, Balance: 10}, nil)
	m.accounts.On("UpdateBalance", ctx, int64(42), int64(1009)).Return(nil)
	m.ledger.On("Append", ctx, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.Reason == models.EntryReasonPaymentCredit &&
			e.Kind == models.EntryKindCredit &&
			e.Amount == 999
	})).Return(nil)
	m.publisher.On("Publish", mock.AnythingOfType("events.BalanceChangeEvent")).Return()
	m.publisher.On("Publish", mock.AnythingOfType("events.PaymentCreditedEvent")).Return()

	err := service.HandleGatewayEvent(ctx, &GatewayEvent{
		TransactionID: "ext-1",
		Status:        "completed",
		Amount:        999,
		Currency:      "USD",
	})

	assert.NoError(t, err)
	m.payments.AssertExpectations(t)
	m.ledger.AssertExpectations(t)
	m.publisher.AssertExpectations(t)
}

func TestPaymentService_HandleGatewayEvent_ReplayedCompletionCreditsOnce(t *testing.T) {
	ctx := context.Background()
	m := newPaymentTestMocks()
	m.uow.On("Commit").Return(nil)

	service := NewPaymentService(m.factory, m.rates)

	// Already completed: the replay must update nothing but the status row
	stored := &models.Payment{
		ID:             7,
		UserID:         42,
		Amount:         999,
		Currency:       "USD",
		Status:         models.PaymentStatusCompleted,
		TokensCredited: 999,
		ExternalID:     "ext-1",
	}

	m.rates.On("TokensFor", ctx, int64(999), "USD").Return(int64(999), nil)
	m.payments.On("GetByExternalIDForUpdate", ctx, "ext-1").Return(stored, nil)
	m.payments.On("UpdateStatus", ctx, int64(7), models.PaymentStatusCompleted, int64(999)).Return(nil)

	err := service.HandleGatewayEvent(ctx, &GatewayEvent{
		TransactionID: "ext-1",
		Status:        "completed",
		Amount:        999,
		Currency:      "USD",
	})

	assert.NoError(t, err)
	m.ledger.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	m.accounts.AssertNotCalled(t, "UpdateBalance", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_HandleGatewayEvent_RefundedNeverRecredits(t *testing.T) {
	ctx := context.Background()
	m := newPaymentTestMocks()
	m.uow.On("Commit").Return(nil)

	service := NewPaymentService(m.factory, m.rates)

	// A completed-after-refund replay must not credit again
	stored := &models.Payment{
		ID:         7,
		UserID:     42,
		Status:     models.PaymentStatusRefunded,
		ExternalID: "ext-1",
	}

	m.rates.On("TokensFor", ctx, int64(999), "USD").Return(int64(999), nil)
	m.payments.On("GetByExternalIDForUpdate", ctx, "ext-1").Return(stored, nil)
	m.payments.On("UpdateStatus", ctx, int64(7), models.PaymentStatusCompleted, int64(0)).Return(nil)

	err := service.HandleGatewayEvent(ctx, &GatewayEvent{
		TransactionID: "ext-1",
		Status:        "completed",
		Amount:        999,
		Currency:      "USD",
	})

	assert.NoError(t, err)
	m.ledger.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestPaymentService_HandleGatewayEvent_FailedEventNoCredit(t *testing.T) {
	ctx := context.Background()
	m := newPaymentTestMocks()
	m.uow.On("Commit").Return(nil)

	service := NewPaymentService(m.factory, m.rates)

	stored := &models.Payment{
		ID:         7,
		UserID:     42,
		Status:     models.PaymentStatusPending,
		ExternalID: "ext-1",
	}

	m.payments.On("GetByExternalIDForUpdate", ctx, "ext-1").Return(stored, nil)
	m.payments.On("UpdateStatus", ctx, int64(7), models.PaymentStatusFailed, int64(0)).Return(nil)

	err := service.HandleGatewayEvent(ctx, &GatewayEvent{
		TransactionID: "ext-1",
		Status:        "failed",
		Amount:        999,
		Currency:      "USD",
	})

	assert.NoError(t, err)
	m.rates.AssertNotCalled(t, "TokensFor", mock.Anything, mock.Anything, mock.Anything)
	m.ledger.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestPaymentService_HandleGatewayEvent_UnknownPayment(t *testing.T) {
	ctx := context.Background()
	m := newPaymentTestMocks()

	service := NewPaymentService(m.factory, m.rates)

	m.rates.On("TokensFor", ctx, int64(999), "USD").Return(int64(999), nil)
	m.payments.On("GetByExternalIDForUpdate", ctx, "ghost").Return(nil, nil)

	err := service.HandleGatewayEvent(ctx, &GatewayEvent{
		TransactionID: "ghost",
		Status:        "completed",
		Amount:        999,
		Currency:      "USD",
	})

	assert.True(t, errors.Is(err, ErrPaymentNotFound))
}

func TestPaymentService_HandleGatewayEvent_UnknownStatus(t *testing.T) {
	ctx := context.Background()
	m := newPaymentTestMocks()

	service := NewPaymentService(m.factory, m.rates)

	err := service.HandleGatewayEvent(ctx, &GatewayEvent{
		TransactionID: "ext-1",
		Status:        "weird",
	})

	assert.Error(t, err)
	m.payments.AssertNotCalled(t, "GetByExternalIDForUpdate", mock.Anything, mock.Anything)
}
