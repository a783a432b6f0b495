package repository

import (
	"context"
	"fmt"
	"time"

	"pixelmint/database"
	"pixelmint/models"

	"github.com/jackc/pgx/v5"
)

// AccountRepository implements the AccountRepository interface
type AccountRepository struct {
	q queryable
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{q: db.Pool}
}

// newAccountRepositoryWithTx creates a new account repository with a transaction
func newAccountRepositoryWithTx(tx queryable) *AccountRepository {
	return &AccountRepository{q: tx}
}

const accountColumns = `user_id, balance, daily_count, daily_reset_at, created_at, updated_at`

// GetByUserID retrieves an account by user ID, returning nil if absent
func (r *AccountRepository) GetByUserID(ctx context.Context, userID int64) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE user_id = $1
	`

	account, err := r.scanAccount(r.q.QueryRow(ctx, query, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account for user %d: %w", userID, err)
	}

	return account, nil
}

// GetForUpdate retrieves an account and takes an exclusive row lock on it.
// The lock serializes concurrent mutators of the same account and is held
// until the enclosing transaction commits or rolls back. Must be called
// inside a transaction.
func (r *AccountRepository) GetForUpdate(ctx context.Context, userID int64) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE
	`

	account, err := r.scanAccount(r.q.QueryRow(ctx, query, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account for user %d: %w", userID, err)
	}

	return account, nil
}

// Create creates a new account with a zero balance. Returns nil without
// error when an account for the user already exists, so racing first calls
// resolve to exactly one insert instead of a unique violation.
func (r *AccountRepository) Create(ctx context.Context, userID int64) (*models.Account, error) {
	query := `
		INSERT INTO accounts (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING ` + accountColumns + `
	`

	account, err := r.scanAccount(r.q.QueryRow(ctx, query, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account for user %d: %w", userID, err)
	}

	return account, nil
}

// UpdateBalance sets an account's balance. Callers must hold the account
// row lock via GetForUpdate for the duration of the read-modify-write.
func (r *AccountRepository) UpdateBalance(ctx context.Context, userID int64, newBalance int64) error {
	query := `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE user_id = $2
	`

	result, err := r.q.Exec(ctx, query, newBalance, userID)
	if err != nil {
		return fmt.Errorf("failed to update balance for user %d: %w", userID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("account for user %d not found", userID)
	}

	return nil
}

// UpdateDailyCounter sets an account's daily reward counter and reset marker
func (r *AccountRepository) UpdateDailyCounter(ctx context.Context, userID int64, count int, resetAt time.Time) error {
	query := `
		UPDATE accounts
		SET daily_count = $1, daily_reset_at = $2, updated_at = NOW()
		WHERE user_id = $3
	`

	result, err := r.q.Exec(ctx, query, count, resetAt, userID)
	if err != nil {
		return fmt.Errorf("failed to update daily counter for user %d: %w", userID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("account for user %d not found", userID)
	}

	return nil
}

func (r *AccountRepository) scanAccount(row pgx.Row) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.UserID,
		&account.Balance,
		&account.DailyCount,
		&account.DailyResetAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
