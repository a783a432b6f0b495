package service

import (
	"context"
	"fmt"
	"time"

	"pixelmint/models"
)

// DailyRewardCap is the maximum number of rewarded actions per UTC calendar day
const DailyRewardCap = 10

type rewardService struct {
	uowFactory UnitOfWorkFactory
	now        func() time.Time
}

// NewRewardService creates a new reward service
func NewRewardService(uowFactory UnitOfWorkFactory) RewardService {
	return &rewardService{
		uowFactory: uowFactory,
		now:        time.Now,
	}
}

// GrantDailyReward credits a reward if the user is under the daily cap.
// The counter reset, the cap check, the credit, and the counter increment all
// happen under the same account row lock, so concurrent grants for the same
// user serialize and the cap cannot be overshot.
func (s *rewardService) GrantDailyReward(ctx context.Context, userID int64, amount int64) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("reward amount must be positive, got %d", amount)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	account, err := uow.AccountRepository().GetForUpdate(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to lock account: %w", err)
	}
	if account == nil {
		return false, fmt.Errorf("reward user %d: %w", userID, ErrAccountNotFound)
	}

	now := s.now().UTC()
	count := account.DailyCount
	resetAt := account.DailyResetAt

	// Calendar-day boundary in UTC, not a rolling 24h window
	if utcDay(now).After(utcDay(account.DailyResetAt.UTC())) {
		count = 0
		resetAt = now
	}

	if count >= DailyRewardCap {
		// Cap reached is a normal outcome, not an error
		return false, nil
	}

	if _, err := creditAccount(ctx, uow, userID, amount, models.EntryReasonDailyReward, map[string]any{
		"daily_count": count + 1,
	}); err != nil {
		return false, fmt.Errorf("failed to credit reward: %w", err)
	}

	// Counter update commits with the credit or not at all
	if err := uow.AccountRepository().UpdateDailyCounter(ctx, userID, count+1, resetAt); err != nil {
		return false, fmt.Errorf("failed to update daily counter: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// utcDay truncates a time to its UTC calendar day
func utcDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
