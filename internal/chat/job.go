package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// ReplyJob is one queued model-reply generation for a chat turn. The worker
// picks it up, generates the reply from the session's history window, appends
// the model turn and edits the placeholder Telegram message.
type ReplyJob struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	SessionID uint64 `gorm:"not null;index;index:uniq_reply_job_idempo,unique,priority:1"`
	ChatID    int64  `gorm:"not null"`
	// Telegram message id of the "Processing..." placeholder to edit.
	PlaceholderID int64 `gorm:"not null"`

	Prompt string    `gorm:"type:text;not null"`
	Date   time.Time `gorm:"not null"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_reply_job_idempo,unique,priority:2"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when succeeded
	ResultMessageID *uint64 `gorm:"index"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ReplyJob) TableName() string { return "chat_reply_jobs" }

func (r *Repo) CreateJob(ctx context.Context, job *ReplyJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*ReplyJob, error) {
	var j ReplyJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&ReplyJob{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, modelMsgID uint64) error {
	return r.db.WithContext(ctx).Model(&ReplyJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": modelMsgID,
			"error":             nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&ReplyJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
}

// CreateReplyJob queues a reply job, resolving idempotency-key collisions to
// the already-queued job. The bool reports whether a new job was created.
func (s *Service) CreateReplyJob(ctx context.Context, job *ReplyJob) (*ReplyJob, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

func (s *Service) GetReplyJob(ctx context.Context, id string) (*ReplyJob, error) {
	return s.repo.GetJobByID(ctx, id)
}

// CreateJobOrGetExisting tries to create a job, but if its (session,
// idempotency key) pair is already taken it returns the existing job instead.
// Keeps retried webhook deliveries from queueing the same turn twice.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *ReplyJob) (*ReplyJob, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	var existing ReplyJob
	getErr := r.db.WithContext(ctx).
		Where("session_id = ? AND idempotency_key = ?", job.SessionID, *job.IdempotencyKey).
		First(&existing).Error
	if getErr == nil {
		return &existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
