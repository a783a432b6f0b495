package service

import (
	"context"
	"fmt"
	"time"

	"pixelmint/models"
	"pixelmint/provider"

	log "github.com/sirupsen/logrus"
)

// PollerConfig holds the background poller's timing knobs
type PollerConfig struct {
	// Interval between ticks. A tick finishes before the next one is armed,
	// so a slow provider can stretch the effective interval but ticks never
	// overlap and no job is double-polled.
	Interval time.Duration

	// SubmitGrace is how long a job may sit without an external task id
	// before it is treated as a crashed submission, failed, and refunded.
	SubmitGrace time.Duration

	// MaxJobAge force-fails jobs the provider never completes. Zero
	// disables the cutoff.
	MaxJobAge time.Duration
}

// JobPoller is the background worker that drives outstanding generation jobs
// to their terminal state, decoupled from any request.
type JobPoller struct {
	uowFactory UnitOfWorkFactory
	providers  ProviderSelector
	cfg        PollerConfig
	now        func() time.Time
}

// NewJobPoller creates a new background job poller
func NewJobPoller(uowFactory UnitOfWorkFactory, providers ProviderSelector, cfg PollerConfig) *JobPoller {
	return &JobPoller{
		uowFactory: uowFactory,
		providers:  providers,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Start begins the poller goroutine and returns a stop function
func (p *JobPoller) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})

	go func() {
		log.WithField("interval", p.cfg.Interval).Info("Job poller started")

		for {
			select {
			case <-ctx.Done():
				log.Info("Job poller shutting down (context cancelled)")
				return
			case <-stopChan:
				log.Info("Job poller shutting down (stop requested)")
				return
			case <-time.After(p.cfg.Interval):
				p.RunOnce(ctx)
			}
		}
	}()

	return func() {
		close(stopChan)
	}
}

// RunOnce processes one tick: every outstanding job is polled, and a failure
// on one job never prevents the others in the same tick from being processed.
func (p *JobPoller) RunOnce(ctx context.Context) {
	jobs, err := p.listOutstanding(ctx)
	if err != nil {
		log.WithError(err).Error("Job poller failed to list outstanding jobs")
		return
	}

	for _, job := range jobs {
		if err := p.pollJob(ctx, job); err != nil {
			log.WithFields(log.Fields{
				"jobID":    job.ID,
				"provider": job.Provider,
			}).WithError(err).Warn("Job poll failed, will retry next tick")
		}
	}
}

func (p *JobPoller) pollJob(ctx context.Context, job *models.GenerationJob) error {
	age := p.now().Sub(job.CreatedAt)

	// A job with no external task id is a submission that crashed between
	// the billing transaction and the provider call. Give it a grace period,
	// then fail and refund it.
	if job.ExternalTaskID == "" {
		if p.cfg.SubmitGrace > 0 && age > p.cfg.SubmitGrace {
			return p.settle(ctx, job, false, "", "submission was never completed")
		}
		return nil
	}

	if p.cfg.MaxJobAge > 0 && age > p.cfg.MaxJobAge {
		return p.settle(ctx, job, false, "", fmt.Sprintf("generation timed out after %s", p.cfg.MaxJobAge))
	}

	client, err := p.providers.ByName(job.Provider)
	if err != nil {
		return fmt.Errorf("failed to resolve provider: %w", err)
	}

	status, err := client.GetStatus(ctx, job.ExternalTaskID)
	if err != nil {
		return fmt.Errorf("failed to query provider status: %w", err)
	}

	switch status.State {
	case provider.StateProcessing:
		return p.markProcessing(ctx, job.ID)
	case provider.StateCompleted:
		return p.settle(ctx, job, true, status.ResultURI, "")
	case provider.StateFailed:
		return p.settle(ctx, job, false, "", status.ErrorMessage)
	}

	return nil
}

func (p *JobPoller) listOutstanding(ctx context.Context) ([]*models.GenerationJob, error) {
	uow := p.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.JobRepository().ListOutstanding(ctx)
}

func (p *JobPoller) markProcessing(ctx context.Context, jobID string) error {
	uow := p.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.JobRepository().MarkProcessing(ctx, jobID); err != nil {
		return err
	}

	return uow.Commit()
}

// settle transitions a job to its terminal state, performing any refund in
// the same atomic unit. The terminal event published on the transactional bus
// reaches the notification dispatcher only after the commit.
func (p *JobPoller) settle(ctx context.Context, job *models.GenerationJob, completed bool, resultURI, errorMessage string) error {
	uow := p.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	transitioned, err := settleTerminal(ctx, uow, job, completed, resultURI, errorMessage)
	if err != nil {
		return err
	}
	if !transitioned {
		// A bounded synchronous poll got there first
		return uow.Rollback()
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
