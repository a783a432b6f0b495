package testutil

import (
	"time"

	"pixelmint/models"

	"github.com/google/uuid"
)

// CreateTestJob creates a pending generation job with default values
func CreateTestJob(userID int64) *models.GenerationJob {
	return &models.GenerationJob{
		ID:     uuid.NewString(),
		UserID: userID,
		Kind:   models.GenerationKindImage,
		Status: models.JobStatusPending,
		Prompt: "a lighthouse at dusk",
		Params: map[string]any{
			"width":  1024,
			"height": 1024,
		},
		Cost: 10,
	}
}

// CreateTestJobWithStatus creates a generation job in a specific state
func CreateTestJobWithStatus(userID int64, status models.JobStatus) *models.GenerationJob {
	job := CreateTestJob(userID)
	job.Status = status
	return job
}

// CreateTestLedgerEntry creates a credit ledger entry with default values
func CreateTestLedgerEntry(userID int64, reason models.EntryReason) *models.LedgerEntry {
	return &models.LedgerEntry{
		UserID:        userID,
		Amount:        100,
		Kind:          models.EntryKindCredit,
		Reason:        reason,
		BalanceBefore: 0,
		BalanceAfter:  100,
		Metadata: map[string]any{
			"test": true,
		},
	}
}

// CreateTestPayment creates a pending payment with default values
func CreateTestPayment(userID int64) *models.Payment {
	return &models.Payment{
		UserID:     userID,
		Amount:     999,
		Currency:   "USD",
		Status:     models.PaymentStatusPending,
		ExternalID: uuid.NewString(),
		CreatedAt:  time.Now(),
	}
}
