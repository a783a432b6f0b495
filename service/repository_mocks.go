package service

import (
	"context"
	"time"

	"pixelmint/events"
	"pixelmint/models"
	"pixelmint/provider"

	"github.com/stretchr/testify/mock"
)

// MockAccountRepository is a mock implementation of AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByUserID(ctx context.Context, userID int64) (*models.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) GetForUpdate(ctx context.Context, userID int64) (*models.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) Create(ctx context.Context, userID int64) (*models.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) UpdateBalance(ctx context.Context, userID int64, newBalance int64) error {
	args := m.Called(ctx, userID, newBalance)
	return args.Error(0)
}

func (m *MockAccountRepository) UpdateDailyCounter(ctx context.Context, userID int64, count int, resetAt time.Time) error {
	args := m.Called(ctx, userID, count, resetAt)
	return args.Error(0)
}

// MockLedgerRepository is a mock implementation of LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) Append(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepository) SumByUser(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MockJobRepository is a mock implementation of JobRepository
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, job *models.GenerationJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GenerationJob), args.Error(1)
}

func (m *MockJobRepository) GetActiveByUser(ctx context.Context, userID int64) ([]*models.GenerationJob, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.GenerationJob), args.Error(1)
}

func (m *MockJobRepository) ListOutstanding(ctx context.Context) ([]*models.GenerationJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.GenerationJob), args.Error(1)
}

func (m *MockJobRepository) SetExternalTask(ctx context.Context, id, providerName, taskID string) error {
	args := m.Called(ctx, id, providerName, taskID)
	return args.Error(0)
}

func (m *MockJobRepository) MarkProcessing(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJobRepository) MarkTerminal(ctx context.Context, id string, status models.JobStatus, resultURI, errorMessage *string) (bool, error) {
	args := m.Called(ctx, id, status, resultURI, errorMessage)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepository) MarkPublished(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockPaymentRepository is a mock implementation of PaymentRepository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetByExternalIDForUpdate(ctx context.Context, externalID string) (*models.Payment, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentRepository) UpdateStatus(ctx context.Context, id int64, status models.PaymentStatus, tokensCredited int64) error {
	args := m.Called(ctx, id, status, tokensCredited)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Payment, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Payment), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository getters
// return the instances configured via SetRepositories rather than going
// through testify, so tests only set expectations for Begin/Commit/Rollback.
type MockUnitOfWork struct {
	mock.Mock

	accounts  AccountRepository
	ledger    LedgerRepository
	jobs      JobRepository
	payments  PaymentRepository
	publisher EventPublisher
}

// SetRepositories configures the repositories returned by the getters
func (m *MockUnitOfWork) SetRepositories(accounts AccountRepository, ledger LedgerRepository, jobs JobRepository, payments PaymentRepository, publisher EventPublisher) {
	m.accounts = accounts
	m.ledger = ledger
	m.jobs = jobs
	m.payments = payments
	m.publisher = publisher
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) AccountRepository() AccountRepository {
	return m.accounts
}

func (m *MockUnitOfWork) LedgerRepository() LedgerRepository {
	return m.ledger
}

func (m *MockUnitOfWork) JobRepository() JobRepository {
	return m.jobs
}

func (m *MockUnitOfWork) PaymentRepository() PaymentRepository {
	return m.payments
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.publisher
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockProviderClient is a mock implementation of provider.Client
type MockProviderClient struct {
	mock.Mock
}

func (m *MockProviderClient) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProviderClient) Submit(ctx context.Context, req *provider.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockProviderClient) GetStatus(ctx context.Context, taskID string) (*provider.TaskStatus, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.TaskStatus), args.Error(1)
}

// MockProviderSelector is a mock implementation of ProviderSelector
type MockProviderSelector struct {
	mock.Mock
}

func (m *MockProviderSelector) ChainFor(kind string) ([]provider.Client, error) {
	args := m.Called(kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.Client), args.Error(1)
}

func (m *MockProviderSelector) ByName(name string) (provider.Client, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(provider.Client), args.Error(1)
}

// MockRateConverter is a mock implementation of RateConverter
type MockRateConverter struct {
	mock.Mock
}

func (m *MockRateConverter) TokensFor(ctx context.Context, amountMinor int64, currency string) (int64, error) {
	args := m.Called(ctx, amountMinor, currency)
	return args.Get(0).(int64), args.Error(1)
}
