package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hikeshare/importer/internal/importer"
	"github.com/mikestefanello/backlite"
)

// RunImportTask executes one import job from fetch through finalization.
type RunImportTask struct {
	JobID   string                 `json:"job_id"`
	Request importer.ImportRequest `json:"request"`
}

// Config returns the queue configuration for import run tasks.
// A single attempt: the orchestrator already absorbs per-source and
// per-batch failures, and upserts make a manual re-trigger safe.
func (t RunImportTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "run_import",
		MaxAttempts: 1,
		Timeout:     90 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// RunImportProcessor creates a processor function for RunImportTask.
func RunImportProcessor(orchestrator *importer.Orchestrator) backlite.QueueProcessor[RunImportTask] {
	return func(ctx context.Context, task RunImportTask) error {
		if orchestrator == nil {
			return fmt.Errorf("orchestrator not configured")
		}

		log.Printf("[TASK] Running import job %s (%d sources)", task.JobID, len(task.Request.Sources))

		if err := orchestrator.Run(ctx, task.JobID, task.Request); err != nil {
			return fmt.Errorf("run import job %s: %w", task.JobID, err)
		}

		log.Printf("[TASK] Import job %s finished", task.JobID)
		return nil
	}
}

// NewRunImportQueue creates a backlite queue for import run tasks.
func NewRunImportQueue(orchestrator *importer.Orchestrator) backlite.Queue {
	return backlite.NewQueue(RunImportProcessor(orchestrator))
}

// RunBulkImportTask executes a bulk import: every child job in order,
// then the parent aggregation.
type RunBulkImportTask struct {
	BulkJobID   string                 `json:"bulk_job_id"`
	ChildJobIDs []string               `json:"child_job_ids"`
	Request     importer.ImportRequest `json:"request"`
}

// Config returns the queue configuration for bulk import tasks.
func (t RunBulkImportTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "run_bulk_import",
		MaxAttempts: 1,
		Timeout:     4 * time.Hour,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// RunBulkImportProcessor creates a processor function for RunBulkImportTask.
func RunBulkImportProcessor(orchestrator *importer.Orchestrator) backlite.QueueProcessor[RunBulkImportTask] {
	return func(ctx context.Context, task RunBulkImportTask) error {
		if orchestrator == nil {
			return fmt.Errorf("orchestrator not configured")
		}

		log.Printf("[TASK] Running bulk import %s (%d child jobs)", task.BulkJobID, len(task.ChildJobIDs))

		if err := orchestrator.RunBulk(ctx, task.BulkJobID, task.ChildJobIDs, task.Request); err != nil {
			return fmt.Errorf("run bulk import %s: %w", task.BulkJobID, err)
		}

		log.Printf("[TASK] Bulk import %s finished", task.BulkJobID)
		return nil
	}
}

// NewRunBulkImportQueue creates a backlite queue for bulk import tasks.
func NewRunBulkImportQueue(orchestrator *importer.Orchestrator) backlite.Queue {
	return backlite.NewQueue(RunBulkImportProcessor(orchestrator))
}

// Dispatcher enqueues import runs onto the task queue. It satisfies the
// HTTP layer's RunDispatcher without the handlers knowing about
// backlite.
type Dispatcher struct {
	client *Client
}

// NewDispatcher creates a dispatcher over the task client.
func NewDispatcher(client *Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// Dispatch enqueues one import job for asynchronous execution.
func (d *Dispatcher) Dispatch(jobID string, req importer.ImportRequest) error {
	if d == nil || d.client == nil {
		return fmt.Errorf("task queue is disabled")
	}
	_, err := d.client.Add(RunImportTask{JobID: jobID, Request: req}).Save()
	return err
}

// DispatchBulk enqueues a bulk import run for asynchronous execution.
func (d *Dispatcher) DispatchBulk(bulkJobID string, childJobIDs []string, req importer.ImportRequest) error {
	if d == nil || d.client == nil {
		return fmt.Errorf("task queue is disabled")
	}
	_, err := d.client.Add(RunBulkImportTask{
		BulkJobID:   bulkJobID,
		ChildJobIDs: childJobIDs,
		Request:     req,
	}).Save()
	return err
}
