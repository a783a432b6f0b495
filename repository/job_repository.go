package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"pixelmint/database"
	"pixelmint/models"

	"github.com/jackc/pgx/v5"
)

// JobRepository implements the JobRepository interface
type JobRepository struct {
	q queryable
}

// NewJobRepository creates a new generation job repository
func NewJobRepository(db *database.DB) *JobRepository {
	return &JobRepository{q: db.Pool}
}

// newJobRepositoryWithTx creates a new generation job repository with a transaction
func newJobRepositoryWithTx(tx queryable) *JobRepository {
	return &JobRepository{q: tx}
}

const jobColumns = `id, user_id, kind, provider, external_task_id, status, prompt, params,
		       cost, result_uri, error_message, publish_intent, published, created_at, updated_at`

// Create inserts a new generation job row
func (r *JobRepository) Create(ctx context.Context, job *models.GenerationJob) error {
	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal job params: %w", err)
	}

	query := `
		INSERT INTO generation_jobs
		(id, user_id, kind, provider, external_task_id, status, prompt, params, cost, publish_intent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err = r.q.QueryRow(ctx, query,
		job.ID,
		job.UserID,
		job.Kind,
		job.Provider,
		job.ExternalTaskID,
		job.Status,
		job.Prompt,
		paramsJSON,
		job.Cost,
		job.PublishIntent,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create generation job for user %d: %w", job.UserID, err)
	}

	return nil
}

// GetByID retrieves a generation job by its ID, returning nil if absent
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM generation_jobs
		WHERE id = $1
	`

	job, err := r.scanJob(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generation job %s: %w", id, err)
	}

	return job, nil
}

// GetActiveByUser returns all pending or processing jobs owned by a user.
// Used for admission control: a user is limited to one outstanding job.
func (r *JobRepository) GetActiveByUser(ctx context.Context, userID int64) ([]*models.GenerationJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM generation_jobs
		WHERE user_id = $1 AND status IN ('pending', 'processing')
		ORDER BY created_at
	`

	return r.queryJobs(ctx, query, userID)
}

// ListOutstanding returns all jobs across users that are not yet terminal
func (r *JobRepository) ListOutstanding(ctx context.Context) ([]*models.GenerationJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM generation_jobs
		WHERE status IN ('pending', 'processing')
		ORDER BY created_at
	`

	return r.queryJobs(ctx, query)
}

// SetExternalTask records the provider that accepted the job and its task id
func (r *JobRepository) SetExternalTask(ctx context.Context, id, providerName, taskID string) error {
	query := `
		UPDATE generation_jobs
		SET provider = $1, external_task_id = $2, updated_at = NOW()
		WHERE id = $3 AND status IN ('pending', 'processing')
	`

	result, err := r.q.Exec(ctx, query, providerName, taskID, id)
	if err != nil {
		return fmt.Errorf("failed to set external task for job %s: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("generation job %s not found or already terminal", id)
	}

	return nil
}

// MarkProcessing transitions a pending job to processing. A no-op if the job
// has already moved past pending.
func (r *JobRepository) MarkProcessing(ctx context.Context, id string) error {
	query := `
		UPDATE generation_jobs
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	if _, err := r.q.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark job %s processing: %w", id, err)
	}

	return nil
}

// MarkTerminal transitions a job to completed or failed. Terminal states are
// final: the guard clause makes a second transition a no-op, and the return
// value reports whether this call performed the transition.
func (r *JobRepository) MarkTerminal(ctx context.Context, id string, status models.JobStatus, resultURI, errorMessage *string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("status %s is not terminal", status)
	}

	query := `
		UPDATE generation_jobs
		SET status = $1, result_uri = $2, error_message = $3, updated_at = NOW()
		WHERE id = $4 AND status IN ('pending', 'processing')
	`

	result, err := r.q.Exec(ctx, query, status, resultURI, errorMessage, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark job %s %s: %w", id, status, err)
	}

	return result.RowsAffected() > 0, nil
}

// MarkPublished flags a completed job as published. Returns false if the job
// was already published.
func (r *JobRepository) MarkPublished(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE generation_jobs
		SET published = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'completed' AND published = FALSE
	`

	result, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark job %s published: %w", id, err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *JobRepository) queryJobs(ctx context.Context, query string, args ...any) ([]*models.GenerationJob, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.GenerationJob
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate generation jobs: %w", err)
	}

	return jobs, nil
}

func (r *JobRepository) scanJob(row pgx.Row) (*models.GenerationJob, error) {
	var job models.GenerationJob
	var paramsJSON []byte
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Kind,
		&job.Provider,
		&job.ExternalTaskID,
		&job.Status,
		&job.Prompt,
		&paramsJSON,
		&job.Cost,
		&job.ResultURI,
		&job.ErrorMessage,
		&job.PublishIntent,
		&job.Published,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &job.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job params: %w", err)
		}
	}

	return &job, nil
}
