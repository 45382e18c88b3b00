// Package progress is the read-side polling facade over import job
// records. It never mutates a job; it re-fetches counters on a fixed
// interval and derives percent-complete and a rough ETA. Counters are
// monotonic, so polling needs no stronger ordering guarantee.
package progress

import (
	"context"
	"time"

	"github.com/hikeshare/importer/internal/entities"
)

const (
	DefaultPollInterval = 5 * time.Second

	// DefaultMaxWatch bounds how long a stuck or abandoned job can keep
	// a polling client busy.
	DefaultMaxWatch = 2 * time.Hour
)

// JobReader provides read access to job records.
type JobReader interface {
	GetJob(id string) (*entities.ImportJob, error)
}

// Snapshot is one observation of a job's progress.
type Snapshot struct {
	JobID           string             `json:"job_id"`
	Status          entities.JobStatus `json:"status"`
	TrailsProcessed int                `json:"trails_processed"`
	TrailsAdded     int                `json:"trails_added"`
	TrailsUpdated   int                `json:"trails_updated"`
	TrailsFailed    int                `json:"trails_failed"`
	PercentComplete float64            `json:"percent_complete"`
	ETA             time.Duration      `json:"eta_ns"`
	Done            bool               `json:"done"`
}

// Reporter polls a job record until it finishes.
type Reporter struct {
	reader   JobReader
	interval time.Duration
	maxWatch time.Duration
}

// NewReporter creates a reporter with the given poll interval and
// maximum watch duration; zero values fall back to the defaults.
func NewReporter(reader JobReader, interval, maxWatch time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxWatch <= 0 {
		maxWatch = DefaultMaxWatch
	}
	return &Reporter{reader: reader, interval: interval, maxWatch: maxWatch}
}

// Snapshot fetches the job once and derives its progress.
func (r *Reporter) Snapshot(jobID string) (Snapshot, error) {
	job, err := r.reader.GetJob(jobID)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotOf(job, time.Now()), nil
}

// Watch polls the job on the reporter's interval, sending a snapshot
// per poll, and closes the channel when the job finishes, the watch
// duration elapses, or the context is cancelled.
func (r *Reporter) Watch(ctx context.Context, jobID string) <-chan Snapshot {
	out := make(chan Snapshot)

	go func() {
		defer close(out)

		deadline := time.Now().Add(r.maxWatch)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			snap, err := r.Snapshot(jobID)
			if err == nil {
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
				if snap.Done {
					return
				}
			}

			if time.Now().After(deadline) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

func snapshotOf(job *entities.ImportJob, now time.Time) Snapshot {
	snap := Snapshot{
		JobID:           job.ID,
		Status:          job.Status,
		TrailsProcessed: job.TrailsProcessed,
		TrailsAdded:     job.TrailsAdded,
		TrailsUpdated:   job.TrailsUpdated,
		TrailsFailed:    job.TrailsFailed,
	}

	if job.TotalTrailsRequested > 0 {
		percent := float64(job.TrailsProcessed) / float64(job.TotalTrailsRequested) * 100
		if percent > 100 {
			percent = 100
		}
		snap.PercentComplete = percent
	}
	if job.Status.IsTerminal() {
		snap.PercentComplete = 100
	}

	snap.Done = job.Status.IsTerminal() || snap.PercentComplete >= 100

	// Linear extrapolation from elapsed time.
	if !snap.Done && snap.PercentComplete > 0 {
		elapsed := now.Sub(job.StartedAt)
		if elapsed > 0 {
			total := time.Duration(float64(elapsed) / snap.PercentComplete * 100)
			snap.ETA = total - elapsed
		}
	}

	return snap
}
