// Package jobs provides database operations for import job tracking.
//
// Counter updates are issued as atomic SQL increments so that batch
// commits from concurrent source workers never lose updates. Status
// changes are guarded in SQL as well: a transition only applies when
// the stored status is one the new status may legally follow.
package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hikeshare/importer/internal/entities"
)

var (
	// ErrIllegalTransition is returned when a status update would move
	// a job backwards (e.g. completed -> processing).
	ErrIllegalTransition = errors.New("illegal job status transition")

	ErrJobNotFound = errors.New("import job not found")
)

// Repository handles all import job database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new jobs repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateJob creates a queued ImportJob with its totals fixed.
// TotalTrailsRequested and TotalSources never change after this point.
func (r *Repository) CreateJob(target string, sources []string, maxTrailsPerSource int, bulkJobID *string) (*entities.ImportJob, error) {
	job := &entities.ImportJob{
		ID:                   uuid.NewString(),
		Status:               entities.JobStatusQueued,
		Target:               target,
		Sources:              strings.Join(sources, ","),
		TotalTrailsRequested: len(sources) * maxTrailsPerSource,
		TotalSources:         len(sources),
		BulkJobID:            bulkJobID,
		StartedAt:            time.Now(),
	}
	if err := r.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}
	return job, nil
}

// CreateBulkJob creates the parent record for a multi-source bulk run.
func (r *Repository) CreateBulkJob(totalJobs, totalTrailsRequested int) (*entities.BulkImportJob, error) {
	job := &entities.BulkImportJob{
		ID:                   uuid.NewString(),
		Status:               entities.JobStatusProcessing,
		TotalJobs:            totalJobs,
		TotalTrailsRequested: totalTrailsRequested,
		StartedAt:            time.Now(),
	}
	if err := r.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("create bulk import job: %w", err)
	}
	return job, nil
}

// GetJob fetches one ImportJob by id.
func (r *Repository) GetJob(id string) (*entities.ImportJob, error) {
	var job entities.ImportJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetBulkJob fetches one BulkImportJob by id.
func (r *Repository) GetBulkJob(id string) (*entities.BulkImportJob, error) {
	var job entities.BulkImportJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetChildJobs fetches the ImportJobs belonging to a bulk job.
func (r *Repository) GetChildJobs(bulkJobID string) ([]entities.ImportJob, error) {
	var jobs []entities.ImportJob
	err := r.db.Where("bulk_job_id = ?", bulkJobID).Order("created_at").Find(&jobs).Error
	return jobs, err
}

// RecentJobs returns the most recently created jobs.
func (r *Repository) RecentJobs(limit int) ([]entities.ImportJob, error) {
	var jobs []entities.ImportJob
	err := r.db.Order("created_at DESC").Limit(limit).Find(&jobs).Error
	return jobs, err
}

// FindActiveJob returns a queued or processing job for the given target,
// or nil when none exists. Used to reject duplicate concurrent runs.
func (r *Repository) FindActiveJob(target string) (*entities.ImportJob, error) {
	var job entities.ImportJob
	err := r.db.
		Where("target = ? AND status IN ?", target, []entities.JobStatus{entities.JobStatusQueued, entities.JobStatusProcessing}).
		Order("created_at DESC").
		First(&job).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkProcessing moves a queued job to processing. The guard is in the
// WHERE clause so a terminal job can never be reopened.
func (r *Repository) MarkProcessing(id string) error {
	result := r.db.Model(&entities.ImportJob{}).
		Where("id = ? AND status = ?", id, entities.JobStatusQueued).
		Update("status", entities.JobStatusProcessing)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.transitionError(id)
	}
	return nil
}

// AddCounters applies one batch's outcome to the job record as atomic
// increments. When the job belongs to a bulk job, the parent's counters
// are incremented in the same transaction.
func (r *Repository) AddCounters(id string, processed, added, updated, failed int) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entities.ImportJob{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"trails_processed": gorm.Expr("trails_processed + ?", processed),
				"trails_added":     gorm.Expr("trails_added + ?", added),
				"trails_updated":   gorm.Expr("trails_updated + ?", updated),
				"trails_failed":    gorm.Expr("trails_failed + ?", failed),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrJobNotFound
		}

		var job entities.ImportJob
		if err := tx.Select("bulk_job_id").Where("id = ?", id).First(&job).Error; err != nil {
			return err
		}
		if job.BulkJobID == nil {
			return nil
		}

		return tx.Model(&entities.BulkImportJob{}).
			Where("id = ?", *job.BulkJobID).
			Updates(map[string]interface{}{
				"trails_processed": gorm.Expr("trails_processed + ?", processed),
				"trails_added":     gorm.Expr("trails_added + ?", added),
				"trails_updated":   gorm.Expr("trails_updated + ?", updated),
				"trails_failed":    gorm.Expr("trails_failed + ?", failed),
			}).Error
	})
}

// Finalize moves a job to a terminal status and stamps CompletedAt.
// Only a non-terminal job can be finalized.
func (r *Repository) Finalize(id string, status entities.JobStatus, message string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finalize with non-terminal status %q", status)
	}

	now := time.Now()
	result := r.db.Model(&entities.ImportJob{}).
		Where("id = ? AND status IN ?", id, []entities.JobStatus{entities.JobStatusQueued, entities.JobStatusProcessing}).
		Updates(map[string]interface{}{
			"status":       status,
			"message":      message,
			"completed_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.transitionError(id)
	}
	return nil
}

// FinalizeBulkJob settles the parent record once every child has
// reached a terminal status: completed when any child succeeded, error
// when all of them failed.
func (r *Repository) FinalizeBulkJob(id string) error {
	children, err := r.GetChildJobs(id)
	if err != nil {
		return err
	}

	for _, child := range children {
		if !child.Status.IsTerminal() {
			return fmt.Errorf("bulk job %s has non-terminal child %s", id, child.ID)
		}
	}

	status := entities.JobStatusError
	message := "no trails were imported from any source"
	for _, child := range children {
		if child.Status == entities.JobStatusCompleted {
			status = entities.JobStatusCompleted
			message = ""
			break
		}
	}

	now := time.Now()
	result := r.db.Model(&entities.BulkImportJob{}).
		Where("id = ? AND status IN ?", id, []entities.JobStatus{entities.JobStatusQueued, entities.JobStatusProcessing}).
		Updates(map[string]interface{}{
			"status":       status,
			"message":      message,
			"completed_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrIllegalTransition
	}
	return nil
}

// transitionError distinguishes a missing job from a rejected
// transition after a guarded update matched no rows.
func (r *Repository) transitionError(id string) error {
	var count int64
	if err := r.db.Model(&entities.ImportJob{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrJobNotFound
	}
	return ErrIllegalTransition
}
