package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pixelmint/events"
	"pixelmint/models"
	"pixelmint/provider"
	"pixelmint/repository"
	"pixelmint/repository/testutil"
	"pixelmint/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// End-to-end flow against a real database: signup bonus, generation billing,
// provider failure refund, and payment credits, with the ledger reconciling
// against the account balance after every step.
func TestGenerationFlow_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(testDB.DB, eventBus)

	ledgerRepo := repository.NewLedgerRepository(testDB.DB)
	accountRepo := repository.NewAccountRepository(testDB.DB)

	ledgerService := service.NewLedgerService(uowFactory, 100)

	flux := new(service.MockProviderClient)
	flux.On("Name").Return("flux")

	selector := new(service.MockProviderSelector)
	selector.On("ChainFor", "image").Return([]provider.Client{flux}, nil)
	selector.On("ByName", "flux").Return(flux, nil)

	generationService := service.NewGenerationService(uowFactory, selector, service.GenerationConfig{
		ImageCost:    10,
		VideoCost:    50,
		PollAttempts: 2,
		PollDelay:    time.Millisecond,
	})

	const userID = int64(42)

	// Signup bonus arrives through the ledger
	account, err := ledgerService.GetOrCreateAccount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance)

	assertConservation := func(t *testing.T) {
		t.Helper()
		sum, err := ledgerRepo.SumByUser(ctx, userID)
		require.NoError(t, err)
		stored, err := accountRepo.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, stored.Balance, sum, "ledger sum must equal account balance")
	}
	assertConservation(t)

	// A successful generation debits once
	flux.On("Submit", mock.Anything, mock.Anything).Return("task-1", nil).Once()
	job, err := generationService.RequestGeneration(ctx, userID, &service.GenerationRequest{
		Kind:   models.GenerationKindImage,
		Prompt: "a lighthouse at dusk",
	})
	require.NoError(t, err)
	assert.Equal(t, "flux", job.Provider)

	balance, err := ledgerService.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), balance)
	assertConservation(t)

	// Provider reports failure: the job settles failed and the cost refunds
	flux.On("GetStatus", mock.Anything, "task-1").Return(&provider.TaskStatus{
		State:        provider.StateFailed,
		ErrorMessage: "content policy violation",
	}, nil)

	settled, err := generationService.WaitForResult(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, settled.Status)

	balance, err = ledgerService.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
	assertConservation(t)

	// A second concurrent request is admitted now that the job is terminal
	flux.On("Submit", mock.Anything, mock.Anything).Return("task-2", nil).Once()
	second, err := generationService.RequestGeneration(ctx, userID, &service.GenerationRequest{
		Kind:   models.GenerationKindImage,
		Prompt: "the same lighthouse at dawn",
	})
	require.NoError(t, err)

	// ...but a third, with the second still outstanding, is not
	_, err = generationService.RequestGeneration(ctx, userID, &service.GenerationRequest{
		Kind:   models.GenerationKindImage,
		Prompt: "one lighthouse too many",
	})
	assert.True(t, errors.Is(err, service.ErrConcurrentGenerationLimit))

	flux.On("GetStatus", mock.Anything, "task-2").Return(&provider.TaskStatus{
		State:     provider.StateCompleted,
		ResultURI: "https://cdn.example.com/lighthouse.png",
	}, nil)

	settled, err = generationService.WaitForResult(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, settled.Status)
	require.NotNil(t, settled.ResultURI)

	// Completed jobs keep their debit
	balance, err = ledgerService.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), balance)
	assertConservation(t)

	// Publishing works exactly once
	require.NoError(t, generationService.PublishJob(ctx, userID, second.ID))
	err = generationService.PublishJob(ctx, userID, second.ID)
	assert.True(t, errors.Is(err, service.ErrAlreadyPublished))
}

// Simultaneous requests from the same user race for admission against a real
// database. The account row lock serializes them, so exactly one job is
// created and exactly one debit lands no matter how the requests interleave.
func TestGenerationAdmission_ConcurrentRequests_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(testDB.DB, eventBus)

	ledgerService := service.NewLedgerService(uowFactory, 100)

	flux := new(service.MockProviderClient)
	flux.On("Name").Return("flux")
	flux.On("Submit", mock.Anything, mock.Anything).Return("task-1", nil)

	selector := new(service.MockProviderSelector)
	selector.On("ChainFor", "image").Return([]provider.Client{flux}, nil)

	generationService := service.NewGenerationService(uowFactory, selector, service.GenerationConfig{
		ImageCost:    10,
		VideoCost:    50,
		PollAttempts: 2,
		PollDelay:    time.Millisecond,
	})

	const userID = int64(42)
	_, err := ledgerService.GetOrCreateAccount(ctx, userID)
	require.NoError(t, err)

	const requests = 4

	start := make(chan struct{})
	errs := make([]error, requests)

	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = generationService.RequestGeneration(ctx, userID, &service.GenerationRequest{
				Kind:   models.GenerationKindImage,
				Prompt: "a lighthouse at dusk",
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var admitted, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, service.ErrConcurrentGenerationLimit):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, admitted, "exactly one request must win admission")
	assert.Equal(t, requests-1, rejected)

	jobRepo := repository.NewJobRepository(testDB.DB)
	active, err := jobRepo.GetActiveByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// One debit: signup bonus minus a single job cost
	balance, err := ledgerService.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), balance)

	ledgerRepo := repository.NewLedgerRepository(testDB.DB)
	sum, err := ledgerRepo.SumByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, balance, sum)
}

// Replayed gateway webhooks against a real database credit exactly once.
func TestPaymentWebhookReplay_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(testDB.DB, eventBus)

	ledgerService := service.NewLedgerService(uowFactory, 0)

	rates := new(service.MockRateConverter)
	rates.On("TokensFor", mock.Anything, int64(999), "USD").Return(int64(999), nil)

	paymentService := service.NewPaymentService(uowFactory, rates)

	const userID = int64(42)
	_, err := ledgerService.GetOrCreateAccount(ctx, userID)
	require.NoError(t, err)

	payment, err := paymentService.CreatePayment(ctx, userID, 999, "USD")
	require.NoError(t, err)

	event := &service.GatewayEvent{
		TransactionID: payment.ExternalID,
		Status:        "completed",
		Amount:        999,
		Currency:      "USD",
	}

	// The gateway delivers the same completion three times
	for i := 0; i < 3; i++ {
		require.NoError(t, paymentService.HandleGatewayEvent(ctx, event))
	}

	balance, err := ledgerService.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(999), balance)

	ledgerRepo := repository.NewLedgerRepository(testDB.DB)
	count, err := ledgerRepo.CountByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
