package service

import (
	"errors"
)

// Domain error taxonomy. Call sites match with errors.Is; every error is
// wrapped with context on the way up.
var (
	// ErrAccountNotFound indicates no token account exists for the user
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientFunds indicates a debit larger than the current balance.
	// The failed debit leaves balance and ledger untouched. Not retryable.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConcurrentGenerationLimit indicates the user already has an
	// outstanding generation job. An admission rejection, not a ledger
	// error; retry after the outstanding job finishes.
	ErrConcurrentGenerationLimit = errors.New("user already has an active generation job")

	// ErrProviderSubmitFailed indicates every provider in the chain rejected
	// the submission. Any debit taken for the job has been refunded.
	ErrProviderSubmitFailed = errors.New("all providers rejected the submission")

	// ErrJobNotFound indicates no generation job exists with the given id
	ErrJobNotFound = errors.New("generation job not found")

	// ErrAlreadyPublished indicates the job result was already published
	ErrAlreadyPublished = errors.New("job already published")

	// ErrJobNotCompleted indicates a publish attempt on a non-completed job
	ErrJobNotCompleted = errors.New("job is not completed")

	// ErrPollTimeout indicates the bounded synchronous poll exhausted its
	// attempts. The job is left in its last state; the background poller
	// still owns it.
	ErrPollTimeout = errors.New("timed out waiting for generation result")

	// ErrPaymentNotFound indicates no payment matches the gateway's
	// transaction id
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrInvalidSignature indicates a webhook signature that does not match
	// the configured key
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
