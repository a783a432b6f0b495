package repository

import (
	"context"
	"fmt"

	"pixelmint/database"
	"pixelmint/models"

	"github.com/jackc/pgx/v5"
)

// PaymentRepository implements the PaymentRepository interface
type PaymentRepository struct {
	q queryable
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{q: db.Pool}
}

// newPaymentRepositoryWithTx creates a new payment repository with a transaction
func newPaymentRepositoryWithTx(tx queryable) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

const paymentColumns = `id, user_id, amount, currency, status, external_id, tokens_credited, created_at, updated_at`

// Create inserts a new pending payment row
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (user_id, amount, currency, status, external_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		payment.UserID,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.ExternalID,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create payment for user %d: %w", payment.UserID, err)
	}

	return nil
}

// GetByExternalID retrieves a payment by its gateway tracking id, returning nil if absent
func (r *PaymentRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE external_id = $1
	`

	return r.getPayment(ctx, query, externalID)
}

// GetByExternalIDForUpdate retrieves a payment by its gateway tracking id and
// takes an exclusive row lock, serializing concurrent webhook deliveries for
// the same payment. Must be called inside a transaction.
func (r *PaymentRepository) GetByExternalIDForUpdate(ctx context.Context, externalID string) (*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE external_id = $1
		FOR UPDATE
	`

	return r.getPayment(ctx, query, externalID)
}

// UpdateStatus sets a payment's status and the token amount credited for it
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id int64, status models.PaymentStatus, tokensCredited int64) error {
	query := `
		UPDATE payments
		SET status = $1, tokens_credited = $2, updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.q.Exec(ctx, query, status, tokensCredited, id)
	if err != nil {
		return fmt.Errorf("failed to update payment %d: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("payment %d not found", id)
	}

	return nil
}

// GetByUser returns the most recent payments for a user
func (r *PaymentRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for user %d: %w", userID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment, err := r.scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}

	return payments, nil
}

func (r *PaymentRepository) getPayment(ctx context.Context, query, externalID string) (*models.Payment, error) {
	payment, err := r.scanPayment(r.q.QueryRow(ctx, query, externalID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s: %w", externalID, err)
	}
	return payment, nil
}

func (r *PaymentRepository) scanPayment(row pgx.Row) (*models.Payment, error) {
	var payment models.Payment
	err := row.Scan(
		&payment.ID,
		&payment.UserID,
		&payment.Amount,
		&payment.Currency,
		&payment.Status,
		&payment.ExternalID,
		&payment.TokensCredited,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
