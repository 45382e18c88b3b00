package entities

import (
	"time"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// IsTerminal reports whether no further status transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// rank orders statuses so transitions can only move forward:
// queued -> processing -> {completed, error}.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusError:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next is a legal
// forward transition.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	return next.rank() > s.rank()
}

// ImportJob tracks the progress of one import run. Counters are only
// ever incremented; TotalTrailsRequested and TotalSources are fixed at
// creation.
type ImportJob struct {
	ID     string    `gorm:"primaryKey;size:36" json:"id"`
	Status JobStatus `gorm:"size:20;default:'queued';index" json:"status"`

	// Target is the logical import target this job runs against, used
	// to reject duplicate concurrent runs.
	Target string `gorm:"index;size:256" json:"target"`

	Sources string `gorm:"size:512" json:"sources"` // comma-joined source tags

	TotalTrailsRequested int `json:"total_trails_requested"`
	TotalSources         int `json:"total_sources"`

	TrailsProcessed int `json:"trails_processed"`
	TrailsAdded     int `json:"trails_added"`
	TrailsUpdated   int `json:"trails_updated"`
	TrailsFailed    int `json:"trails_failed"`

	Message string `gorm:"type:text" json:"message,omitempty"`

	// BulkJobID links this job to a parent BulkImportJob when it is one
	// constituent of a multi-source bulk run.
	BulkJobID *string `gorm:"index;size:36" json:"bulk_job_id,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (ImportJob) TableName() string {
	return "import_jobs"
}

// BulkImportJob aggregates the counters of its child ImportJobs.
type BulkImportJob struct {
	ID     string    `gorm:"primaryKey;size:36" json:"id"`
	Status JobStatus `gorm:"size:20;default:'queued';index" json:"status"`

	TotalJobs            int `json:"total_jobs"`
	TotalTrailsRequested int `json:"total_trails_requested"`

	TrailsProcessed int `json:"trails_processed"`
	TrailsAdded     int `json:"trails_added"`
	TrailsUpdated   int `json:"trails_updated"`
	TrailsFailed    int `json:"trails_failed"`

	Message string `gorm:"type:text" json:"message,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (BulkImportJob) TableName() string {
	return "bulk_import_jobs"
}
