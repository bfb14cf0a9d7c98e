// Package jobs persists compression jobs and runs them with bounded
// concurrency.
package jobs

import (
	"context"
	"errors"

	"github.com/mantonx/vcompress/internal/database"
	vcerrors "github.com/mantonx/vcompress/internal/errors"
	"gorm.io/gorm"
)

// Repository handles job data access
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new job repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListOptions filters List.
type ListOptions struct {
	Status database.JobStatus
	// Limit caps the result; zero or less returns every match.
	Limit int
}

// Create creates a new job record
func (r *Repository) Create(ctx context.Context, job *database.Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return vcerrors.StorageError("create job", err).WithJob(job.ID)
	}
	return nil
}

// GetByID retrieves a job by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*database.Job, error) {
	var job database.Job
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, vcerrors.NotFoundError("get job", vcerrors.ErrJobNotFound).WithJob(id)
	}
	if err != nil {
		return nil, vcerrors.StorageError("get job", err).WithJob(id)
	}
	return &job, nil
}

// List retrieves jobs newest first
func (r *Repository) List(ctx context.Context, opts ListOptions) ([]*database.Job, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var jobs []*database.Job
	if err := query.Find(&jobs).Error; err != nil {
		return nil, vcerrors.StorageError("list jobs", err)
	}
	return jobs, nil
}

// UpdateFields updates specific fields of a job
func (r *Repository) UpdateFields(ctx context.Context, id string, updates map[string]interface{}) error {
	err := r.db.WithContext(ctx).Model(&database.Job{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return vcerrors.StorageError("update job", err).WithJob(id)
	}
	return nil
}

// Transition moves a job from one status to another and applies updates in
// the same statement. It fails with ErrInvalidTransition when the move is
// not allowed or the job is no longer in status from.
func (r *Repository) Transition(ctx context.Context, id string, from, to database.JobStatus, updates map[string]interface{}) error {
	if !CanTransition(from, to) {
		return vcerrors.ValidationError("transition job", vcerrors.ErrInvalidTransition).
			WithJob(id).
			WithDetail("from", from).
			WithDetail("to", to)
	}

	fields := map[string]interface{}{"status": to}
	for k, v := range updates {
		fields[k] = v
	}

	result := r.db.WithContext(ctx).Model(&database.Job{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return vcerrors.StorageError("transition job", result.Error).WithJob(id)
	}
	if result.RowsAffected == 0 {
		return vcerrors.ValidationError("transition job", vcerrors.ErrInvalidTransition).
			WithJob(id).
			WithDetail("from", from).
			WithDetail("to", to)
	}
	return nil
}

// Delete deletes a job
func (r *Repository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&database.Job{})
	if result.Error != nil {
		return vcerrors.StorageError("delete job", result.Error).WithJob(id)
	}
	if result.RowsAffected == 0 {
		return vcerrors.NotFoundError("delete job", vcerrors.ErrJobNotFound).WithJob(id)
	}
	return nil
}

// ListActive retrieves pending and running jobs, oldest first
func (r *Repository) ListActive(ctx context.Context) ([]*database.Job, error) {
	var jobs []*database.Job
	err := r.db.WithContext(ctx).
		Where("status IN ?", []database.JobStatus{database.JobStatusPending, database.JobStatusRunning}).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, vcerrors.StorageError("list active jobs", err)
	}
	return jobs, nil
}

// Stats counts jobs per status.
func (r *Repository) Stats(ctx context.Context) (map[database.JobStatus]int64, error) {
	var rows []struct {
		Status database.JobStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&database.Job{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, vcerrors.StorageError("job stats", err)
	}

	stats := make(map[database.JobStatus]int64, len(rows))
	for _, row := range rows {
		stats[row.Status] = row.Count
	}
	return stats, nil
}
