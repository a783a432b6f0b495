package models

import (
	"time"
)

// EntryKind represents the direction of a ledger entry
type EntryKind string

const (
	EntryKindCredit EntryKind = "credit"
	EntryKindDebit  EntryKind = "debit"
)

// EntryReason represents why a balance change occurred
type EntryReason string

const (
	EntryReasonSignupBonus      EntryReason = "signup_bonus"
	EntryReasonDailyReward      EntryReason = "daily_reward"
	EntryReasonGenerationCost   EntryReason = "generation_cost"
	EntryReasonGenerationRefund EntryReason = "generation_refund"
	EntryReasonPaymentCredit    EntryReason = "payment_credit"
	EntryReasonAdjustment       EntryReason = "adjustment"
)

// LedgerEntry represents a single immutable balance change.
// The invariant balance == sum(credits) - sum(debits) holds per user at all times.
type LedgerEntry struct {
	ID            int64          `db:"id"`
	UserID        int64          `db:"user_id"`
	Amount        int64          `db:"amount"`
	Kind          EntryKind      `db:"kind"`
	Reason        EntryReason    `db:"reason"`
	BalanceBefore int64          `db:"balance_before"`
	BalanceAfter  int64          `db:"balance_after"`
	Metadata      map[string]any `db:"metadata"`
	CreatedAt     time.Time      `db:"created_at"`
}
