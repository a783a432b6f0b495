package service

import (
	"context"
	"time"

	"pixelmint/events"
	"pixelmint/models"
	"pixelmint/provider"
)

// AccountRepository defines the interface for token account data access
type AccountRepository interface {
	// GetByUserID retrieves an account by user ID, returning nil if absent
	GetByUserID(ctx context.Context, userID int64) (*models.Account, error)

	// GetForUpdate retrieves an account under an exclusive row lock.
	// Must be called inside a transaction.
	GetForUpdate(ctx context.Context, userID int64) (*models.Account, error)

	// Create creates a new account with a zero balance, returning nil
	// without error when the account already exists
	Create(ctx context.Context, userID int64) (*models.Account, error)

	// UpdateBalance sets an account's balance
	UpdateBalance(ctx context.Context, userID int64, newBalance int64) error

	// UpdateDailyCounter sets an account's daily reward counter and reset marker
	UpdateDailyCounter(ctx context.Context, userID int64, count int, resetAt time.Time) error
}

// LedgerRepository defines the interface for the append-only transaction log
type LedgerRepository interface {
	// Append writes a new immutable ledger entry
	Append(ctx context.Context, entry *models.LedgerEntry) error

	// GetByUser returns the most recent ledger entries for a user
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error)

	// CountByUser returns the number of ledger entries for a user
	CountByUser(ctx context.Context, userID int64) (int64, error)

	// SumByUser returns sum(credits) - sum(debits) for a user
	SumByUser(ctx context.Context, userID int64) (int64, error)
}

// JobRepository defines the interface for generation job data access
type JobRepository interface {
	// Create inserts a new generation job row
	Create(ctx context.Context, job *models.GenerationJob) error

	// GetByID retrieves a generation job by its ID, returning nil if absent
	GetByID(ctx context.Context, id string) (*models.GenerationJob, error)

	// GetActiveByUser returns all pending or processing jobs owned by a user
	GetActiveByUser(ctx context.Context, userID int64) ([]*models.GenerationJob, error)

	// ListOutstanding returns all non-terminal jobs across users
	ListOutstanding(ctx context.Context) ([]*models.GenerationJob, error)

	// SetExternalTask records the provider that accepted the job and its task id
	SetExternalTask(ctx context.Context, id, providerName, taskID string) error

	// MarkProcessing transitions a pending job to processing
	MarkProcessing(ctx context.Context, id string) error

	// MarkTerminal transitions a job to completed or failed, reporting
	// whether this call performed the transition
	MarkTerminal(ctx context.Context, id string, status models.JobStatus, resultURI, errorMessage *string) (bool, error)

	// MarkPublished flags a completed job as published, reporting whether
	// this call performed the flag flip
	MarkPublished(ctx context.Context, id string) (bool, error)
}

// PaymentRepository defines the interface for payment data access
type PaymentRepository interface {
	// Create inserts a new pending payment row
	Create(ctx context.Context, payment *models.Payment) error

	// GetByExternalID retrieves a payment by its gateway tracking id,
	// returning nil if absent
	GetByExternalID(ctx context.Context, externalID string) (*models.Payment, error)

	// GetByExternalIDForUpdate retrieves a payment under an exclusive row
	// lock. Must be called inside a transaction.
	GetByExternalIDForUpdate(ctx context.Context, externalID string) (*models.Payment, error)

	// UpdateStatus sets a payment's status and credited token amount
	UpdateStatus(ctx context.Context, id int64, status models.PaymentStatus, tokensCredited int64) error

	// GetByUser returns the most recent payments for a user
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Payment, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	AccountRepository() AccountRepository
	LedgerRepository() LedgerRepository
	JobRepository() JobRepository
	PaymentRepository() PaymentRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// LedgerService defines the interface for token ledger operations
type LedgerService interface {
	// GetOrCreateAccount retrieves an account or creates one with the
	// signup bonus credited
	GetOrCreateAccount(ctx context.Context, userID int64) (*models.Account, error)

	// Debit removes tokens from a user's balance, failing atomically with
	// ErrInsufficientFunds if the balance is too low
	Debit(ctx context.Context, userID int64, amount int64, reason models.EntryReason, meta map[string]any) (int64, error)

	// Credit adds tokens to a user's balance
	Credit(ctx context.Context, userID int64, amount int64, reason models.EntryReason, meta map[string]any) (int64, error)

	// GetBalance returns a user's current balance
	GetBalance(ctx context.Context, userID int64) (int64, error)

	// GetHistory returns the most recent ledger entries for a user
	GetHistory(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error)
}

// RewardService defines the interface for daily-capped token rewards
type RewardService interface {
	// GrantDailyReward credits a reward if the user is under the daily cap.
	// Returns granted=false without error when the cap is reached.
	GrantDailyReward(ctx context.Context, userID int64, amount int64) (bool, error)
}

// GenerationRequest carries the user-facing parameters of a generation request
type GenerationRequest struct {
	Kind          models.GenerationKind
	Prompt        string
	Params        map[string]any
	PublishIntent bool
}

// GenerationService defines the interface for the generation job orchestrator
type GenerationService interface {
	// RequestGeneration admits, bills, and submits a new generation job
	RequestGeneration(ctx context.Context, userID int64, req *GenerationRequest) (*models.GenerationJob, error)

	// WaitForResult polls the provider synchronously, up to a bounded number
	// of attempts, and returns the job in its resulting state
	WaitForResult(ctx context.Context, jobID string) (*models.GenerationJob, error)

	// PublishJob marks a completed job's result as published
	PublishJob(ctx context.Context, userID int64, jobID string) error

	// GetJob retrieves a job owned by the user
	GetJob(ctx context.Context, userID int64, jobID string) (*models.GenerationJob, error)
}

// ProviderSelector resolves provider chains for the orchestrator and poller
type ProviderSelector interface {
	// ChainFor returns the ordered provider chain for a generation kind
	ChainFor(kind string) ([]provider.Client, error)

	// ByName returns the registered client with the given name
	ByName(name string) (provider.Client, error)
}

// GatewayEvent is the parsed body of a payment gateway webhook
type GatewayEvent struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// PaymentService defines the interface for payment tracking and the
// idempotent webhook credit path
type PaymentService interface {
	// CreatePayment opens a pending payment for a checkout flow
	CreatePayment(ctx context.Context, userID int64, amount int64, currency string) (*models.Payment, error)

	// HandleGatewayEvent applies a gateway status event to the stored
	// payment, crediting tokens exactly once per payment
	HandleGatewayEvent(ctx context.Context, event *GatewayEvent) error
}

// RateConverter converts gateway currency amounts into whole tokens
type RateConverter interface {
	TokensFor(ctx context.Context, amountMinor int64, currency string) (int64, error)
}

// Notifier pushes terminal job state to a live client connection,
// best-effort and at most once
type Notifier interface {
	Notify(userID int64, event string, payload any)
}
