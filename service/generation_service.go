package service

import (
	"context"
	"fmt"
	"time"

	"pixelmint/events"
	"pixelmint/models"
	"pixelmint/provider"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// GenerationConfig holds the orchestrator's billing and polling knobs
type GenerationConfig struct {
	ImageCost    int64
	VideoCost    int64
	PollAttempts int
	PollDelay    time.Duration
}

type generationService struct {
	uowFactory UnitOfWorkFactory
	providers  ProviderSelector
	cfg        GenerationConfig
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewGenerationService creates a new generation orchestrator
func NewGenerationService(uowFactory UnitOfWorkFactory, providers ProviderSelector, cfg GenerationConfig) GenerationService {
	return &generationService{
		uowFactory: uowFactory,
		providers:  providers,
		cfg:        cfg,
		sleep:      sleepCtx,
	}
}

// RequestGeneration admits, bills, and submits a new generation job.
//
// Ordering: the debit and the job row commit together first, then the
// provider submission happens outside any transaction or lock. A submission
// that every provider rejects is unwound by marking the job failed and
// refunding the debit in one atomic unit, so no money is lost to a provider
// that never accepted work. A crash between the two steps leaves a pending
// job with no external task id; the background poller expires and refunds
// those after a grace period.
func (s *generationService) RequestGeneration(ctx context.Context, userID int64, req *GenerationRequest) (*models.GenerationJob, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt must not be empty")
	}

	cost, err := s.costFor(req.Kind)
	if err != nil {
		return nil, err
	}

	chain, err := s.providers.ChainFor(string(req.Kind))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve provider chain: %w", err)
	}

	job := &models.GenerationJob{
		ID:            uuid.NewString(),
		UserID:        userID,
		Kind:          req.Kind,
		Status:        models.JobStatusPending,
		Prompt:        req.Prompt,
		Params:        req.Params,
		Cost:          cost,
		PublishIntent: req.PublishIntent,
	}

	// Admission, debit, and job creation commit as one atomic unit. The
	// account row lock is taken before the admission read: two simultaneous
	// requests from the same user serialize on the lock, and whichever one
	// waited re-reads active jobs after the winner's job row is committed
	// and visible.
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	account, err := uow.AccountRepository().GetForUpdate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("generation for user %d: %w", userID, ErrAccountNotFound)
	}

	active, err := uow.JobRepository().GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active jobs: %w", err)
	}
	if len(active) > 0 {
		return nil, fmt.Errorf("user %d has job %s outstanding: %w", userID, active[0].ID, ErrConcurrentGenerationLimit)
	}

	if _, err := debitAccount(ctx, uow, userID, cost, models.EntryReasonGenerationCost, map[string]any{
		"job_id": job.ID,
		"kind":   string(req.Kind),
	}); err != nil {
		return nil, err
	}

	if err := uow.JobRepository().Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Provider calls happen outside any transaction or account lock
	submitReq := &provider.Request{
		Prompt: req.Prompt,
		Params: req.Params,
	}

	var taskID string
	var accepted string
	for _, client := range chain {
		taskID, err = client.Submit(ctx, submitReq)
		if err == nil {
			accepted = client.Name()
			break
		}
		log.WithFields(log.Fields{
			"jobID":    job.ID,
			"provider": client.Name(),
		}).WithError(err).Warn("Provider rejected submission, trying next in chain")
	}

	if accepted == "" {
		if failErr := s.failUnsubmitted(ctx, job, "no provider accepted the request"); failErr != nil {
			log.WithField("jobID", job.ID).WithError(failErr).Error("Failed to unwind rejected job")
		}
		return nil, fmt.Errorf("job %s: %w", job.ID, ErrProviderSubmitFailed)
	}

	uow = s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.JobRepository().SetExternalTask(ctx, job.ID, accepted, taskID); err != nil {
		return nil, fmt.Errorf("failed to record external task: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	job.Provider = accepted
	job.ExternalTaskID = taskID

	return job, nil
}

// WaitForResult polls the provider synchronously, up to a bounded number of
// attempts with a fixed delay between them. Exhausting the attempts reports
// ErrPollTimeout and leaves the job in whatever state it last had; the
// background poller keeps tracking it.
func (s *generationService) WaitForResult(ctx context.Context, jobID string) (*models.GenerationJob, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}
	if job.ExternalTaskID == "" {
		return nil, fmt.Errorf("job %s has no external task yet: %w", jobID, ErrPollTimeout)
	}

	client, err := s.providers.ByName(job.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve provider for job %s: %w", jobID, err)
	}

	for attempt := 0; attempt < s.cfg.PollAttempts; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.cfg.PollDelay); err != nil {
				return nil, err
			}
		}

		status, err := client.GetStatus(ctx, job.ExternalTaskID)
		if err != nil {
			log.WithFields(log.Fields{
				"jobID":    job.ID,
				"provider": job.Provider,
				"attempt":  attempt + 1,
			}).WithError(err).Warn("Provider status query failed")
			continue
		}

		switch status.State {
		case provider.StateCompleted, provider.StateFailed:
			return s.settleJob(ctx, job, status.State == provider.StateCompleted, status.ResultURI, status.ErrorMessage)
		case provider.StateProcessing:
			if err := s.markProcessing(ctx, job.ID); err != nil {
				log.WithField("jobID", job.ID).WithError(err).Warn("Failed to mark job processing")
			}
		}
	}

	return nil, fmt.Errorf("job %s after %d attempts: %w", jobID, s.cfg.PollAttempts, ErrPollTimeout)
}

// PublishJob marks a completed job's result as published
func (s *generationService) PublishJob(ctx context.Context, userID int64, jobID string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	job, err := uow.JobRepository().GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil || job.UserID != userID {
		return fmt.Errorf("job %s for user %d: %w", jobID, userID, ErrJobNotFound)
	}
	if job.Status != models.JobStatusCompleted {
		return fmt.Errorf("job %s has status %s: %w", jobID, job.Status, ErrJobNotCompleted)
	}

	published, err := uow.JobRepository().MarkPublished(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	if !published {
		return fmt.Errorf("job %s: %w", jobID, ErrAlreadyPublished)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetJob retrieves a job owned by the user
func (s *generationService) GetJob(ctx context.Context, userID int64, jobID string) (*models.GenerationJob, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, fmt.Errorf("job %s for user %d: %w", jobID, userID, ErrJobNotFound)
	}
	return job, nil
}

func (s *generationService) costFor(kind models.GenerationKind) (int64, error) {
	switch kind {
	case models.GenerationKindImage:
		return s.cfg.ImageCost, nil
	case models.GenerationKindVideo:
		return s.cfg.VideoCost, nil
	default:
		return 0, fmt.Errorf("unknown generation kind %q", kind)
	}
}

func (s *generationService) loadJob(ctx context.Context, jobID string) (*models.GenerationJob, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	job, err := uow.JobRepository().GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}

	return job, nil
}

func (s *generationService) markProcessing(ctx context.Context, jobID string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.JobRepository().MarkProcessing(ctx, jobID); err != nil {
		return err
	}

	return uow.Commit()
}

// settleJob applies a terminal provider status to the job and returns the
// refreshed record
func (s *generationService) settleJob(ctx context.Context, job *models.GenerationJob, completed bool, resultURI, errorMessage string) (*models.GenerationJob, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if _, err := settleTerminal(ctx, uow, job, completed, resultURI, errorMessage); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.loadJob(ctx, job.ID)
}

// failUnsubmitted marks a job that no provider accepted as failed and refunds
// its debit in the same atomic unit
func (s *generationService) failUnsubmitted(ctx context.Context, job *models.GenerationJob, reason string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if _, err := settleTerminal(ctx, uow, job, false, "", reason); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// settleTerminal transitions a job to completed or failed inside an open unit
// of work. A failed job refunds its token cost in the same atomic unit. The
// terminal-state guard in the repository makes this safe to race: only the
// caller that wins the transition performs the refund and emits the event.
// Returns false if the job was already terminal.
func settleTerminal(ctx context.Context, uow UnitOfWork, job *models.GenerationJob, completed bool, resultURI, errorMessage string) (bool, error) {
	status := models.JobStatusFailed
	var resultPtr, errPtr *string
	if completed {
		status = models.JobStatusCompleted
		resultPtr = &resultURI
	} else {
		errPtr = &errorMessage
	}

	transitioned, err := uow.JobRepository().MarkTerminal(ctx, job.ID, status, resultPtr, errPtr)
	if err != nil {
		return false, fmt.Errorf("failed to mark job terminal: %w", err)
	}
	if !transitioned {
		return false, nil
	}

	if completed {
		uow.EventBus().Publish(events.JobCompletedEvent{
			JobID:     job.ID,
			UserID:    job.UserID,
			Provider:  job.Provider,
			ResultURI: resultURI,
		})
		return true, nil
	}

	var refunded int64
	if job.Cost > 0 {
		if _, err := creditAccount(ctx, uow, job.UserID, job.Cost, models.EntryReasonGenerationRefund, map[string]any{
			"job_id": job.ID,
		}); err != nil {
			return false, fmt.Errorf("failed to refund job cost: %w", err)
		}
		refunded = job.Cost
	}

	uow.EventBus().Publish(events.JobFailedEvent{
		JobID:        job.ID,
		UserID:       job.UserID,
		Provider:     job.Provider,
		ErrorMessage: errorMessage,
		Refunded:     refunded,
	})

	return true, nil
}

// sleepCtx waits for d or until the context is cancelled
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
