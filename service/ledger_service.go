package service

import (
	"context"
	"fmt"

	"pixelmint/events"
	"pixelmint/models"
)

type ledgerService struct {
	uowFactory  UnitOfWorkFactory
	signupBonus int64
}

// NewLedgerService creates a new ledger service
func NewLedgerService(uowFactory UnitOfWorkFactory, signupBonus int64) LedgerService {
	return &ledgerService{
		uowFactory:  uowFactory,
		signupBonus: signupBonus,
	}
}

// GetOrCreateAccount retrieves an existing account or creates a new one with
// the signup bonus credited through the ledger
func (s *ledgerService) GetOrCreateAccount(ctx context.Context, userID int64) (*models.Account, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	account, err := uow.AccountRepository().GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}

	if account == nil {
		created, err := uow.AccountRepository().Create(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}

		if created == nil {
			// Lost a creation race: the winner inserted the row and credited
			// the signup bonus, so just read their account back
			account, err = uow.AccountRepository().GetByUserID(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("failed to re-read account after create conflict: %w", err)
			}
			if account == nil {
				return nil, fmt.Errorf("account for user %d missing after create conflict", userID)
			}
		} else {
			account = created

			if s.signupBonus > 0 {
				newBalance, err := creditAccount(ctx, uow, userID, s.signupBonus, models.EntryReasonSignupBonus, nil)
				if err != nil {
					return nil, fmt.Errorf("failed to credit signup bonus: %w", err)
				}
				account.Balance = newBalance
			}

			uow.EventBus().Publish(events.AccountCreatedEvent{
				UserID:         userID,
				InitialBalance: account.Balance,
			})
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return account, nil
}

// Debit removes tokens from a user's balance as one atomic unit
func (s *ledgerService) Debit(ctx context.Context, userID int64, amount int64, reason models.EntryReason, meta map[string]any) (int64, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	newBalance, err := debitAccount(ctx, uow, userID, amount, reason, meta)
	if err != nil {
		return 0, err
	}

	if err := uow.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return newBalance, nil
}

// Credit adds tokens to a user's balance as one atomic unit
func (s *ledgerService) Credit(ctx context.Context, userID int64, amount int64, reason models.EntryReason, meta map[string]any) (int64, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	newBalance, err := creditAccount(ctx, uow, userID, amount, reason, meta)
	if err != nil {
		return 0, err
	}

	if err := uow.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return newBalance, nil
}

// GetBalance returns a user's current balance
func (s *ledgerService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return 0, ErrAccountNotFound
	}

	return account.Balance, nil
}

// GetHistory returns the most recent ledger entries for a user
func (s *ledgerService) GetHistory(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	entries, err := uow.LedgerRepository().GetByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger history: %w", err)
	}

	return entries, nil
}

// creditAccount performs the locked read-modify-write-append credit sequence
// inside an already-open unit of work. This is the single credit path shared
// by the ledger, reward, generation refund, and payment services.
func creditAccount(ctx context.Context, uow UnitOfWork, userID int64, amount int64, reason models.EntryReason, meta map[string]any) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	account, err := uow.AccountRepository().GetForUpdate(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to lock account: %w", err)
	}
	if account == nil {
		return 0, fmt.Errorf("credit user %d: %w", userID, ErrAccountNotFound)
	}

	newBalance := account.Balance + amount
	if err := uow.AccountRepository().UpdateBalance(ctx, userID, newBalance); err != nil {
		return 0, fmt.Errorf("failed to write new balance: %w", err)
	}

	if err := appendEntry(ctx, uow, account, amount, newBalance, models.EntryKindCredit, reason, meta); err != nil {
		return 0, err
	}

	return newBalance, nil
}

// debitAccount performs the locked read-modify-write-append debit sequence
// inside an already-open unit of work. Fails with ErrInsufficientFunds before
// any write when the balance is too low.
func debitAccount(ctx context.Context, uow UnitOfWork, userID int64, amount int64, reason models.EntryReason, meta map[string]any) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	account, err := uow.AccountRepository().GetForUpdate(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to lock account: %w", err)
	}
	if account == nil {
		return 0, fmt.Errorf("debit user %d: %w", userID, ErrAccountNotFound)
	}

	if account.Balance < amount {
		return 0, fmt.Errorf("debit %d with balance %d: %w", amount, account.Balance, ErrInsufficientFunds)
	}

	newBalance := account.Balance - amount
	if err := uow.AccountRepository().UpdateBalance(ctx, userID, newBalance); err != nil {
		return 0, fmt.Errorf("failed to write new balance: %w", err)
	}

	if err := appendEntry(ctx, uow, account, amount, newBalance, models.EntryKindDebit, reason, meta); err != nil {
		return 0, err
	}

	return newBalance, nil
}

func appendEntry(ctx context.Context, uow UnitOfWork, account *models.Account, amount, newBalance int64, kind models.EntryKind, reason models.EntryReason, meta map[string]any) error {
	entry := &models.LedgerEntry{
		UserID:        account.UserID,
		Amount:        amount,
		Kind:          kind,
		Reason:        reason,
		BalanceBefore: account.Balance,
		BalanceAfter:  newBalance,
		Metadata:      meta,
	}

	if err := uow.LedgerRepository().Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:     account.UserID,
		OldBalance: account.Balance,
		NewBalance: newBalance,
		Kind:       kind,
		Reason:     reason,
		Amount:     amount,
	})

	return nil
}
