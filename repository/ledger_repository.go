package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"pixelmint/database"
	"pixelmint/models"
)

// LedgerRepository implements the LedgerRepository interface
type LedgerRepository struct {
	q queryable
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{q: db.Pool}
}

// newLedgerRepositoryWithTx creates a new ledger repository with a transaction
func newLedgerRepositoryWithTx(tx queryable) *LedgerRepository {
	return &LedgerRepository{q: tx}
}

// Append writes a new immutable ledger entry. Entries are never updated or
// deleted after this point.
func (r *LedgerRepository) Append(ctx context.Context, entry *models.LedgerEntry) error {
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry metadata: %w", err)
	}

	query := `
		INSERT INTO ledger_entries
		(user_id, amount, kind, reason, balance_before, balance_after, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		entry.UserID,
		entry.Amount,
		entry.Kind,
		entry.Reason,
		entry.BalanceBefore,
		entry.BalanceAfter,
		metadataJSON,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append ledger entry for user %d: %w", entry.UserID, err)
	}

	return nil
}

// GetByUser returns the most recent ledger entries for a user
func (r *LedgerRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error) {
	query := `
		SELECT id, user_id, amount, kind, reason, balance_before, balance_after, metadata, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries for user %d: %w", userID, err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var metadataJSON []byte
		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Amount,
			&entry.Kind,
			&entry.Reason,
			&entry.BalanceBefore,
			&entry.BalanceAfter,
			&metadataJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal ledger entry metadata: %w", err)
			}
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}

	return entries, nil
}

// CountByUser returns the number of ledger entries for a user
func (r *LedgerRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM ledger_entries
		WHERE user_id = $1
	`

	var count int64
	if err := r.q.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count ledger entries for user %d: %w", userID, err)
	}

	return count, nil
}

// SumByUser returns sum(credits) - sum(debits) for a user. Used to verify
// the balance conservation invariant against the accounts table.
func (r *LedgerRepository) SumByUser(ctx context.Context, userID int64) (int64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN kind = 'credit' THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE user_id = $1
	`

	var sum int64
	if err := r.q.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum ledger entries for user %d: %w", userID, err)
	}

	return sum, nil
}
