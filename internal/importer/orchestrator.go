package importer

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/hikeshare/importer/internal/config"
	"github.com/hikeshare/importer/internal/entities"
	"github.com/hikeshare/importer/internal/normalizer"
)

// JobStore is the slice of the jobs repository the orchestrator needs.
type JobStore interface {
	CreateJob(target string, sources []string, maxTrailsPerSource int, bulkJobID *string) (*entities.ImportJob, error)
	CreateBulkJob(totalJobs, totalTrailsRequested int) (*entities.BulkImportJob, error)
	FindActiveJob(target string) (*entities.ImportJob, error)
	MarkProcessing(id string) error
	AddCounters(id string, processed, added, updated, failed int) error
	Finalize(id string, status entities.JobStatus, message string) error
	FinalizeBulkJob(id string) error
	GetJob(id string) (*entities.ImportJob, error)
}

// ImportRequest describes one import run.
type ImportRequest struct {
	Sources            []string  `json:"sources"`
	MaxTrailsPerSource int       `json:"maxTrailsPerSource"`
	BatchSize          int       `json:"batchSize,omitempty"`
	Location           *Location `json:"location,omitempty"`
}

// Target derives the logical import target used to reject duplicate
// concurrent runs: the location (when given) plus the sorted source set.
func (r ImportRequest) Target() string {
	sources := append([]string(nil), r.Sources...)
	sort.Strings(sources)
	area := "global"
	if r.Location != nil {
		switch {
		case r.Location.City != "" && r.Location.State != "":
			area = strings.ToLower(r.Location.City + "-" + r.Location.State)
		case r.Location.City != "":
			area = strings.ToLower(r.Location.City)
		default:
			area = fmt.Sprintf("%.3f,%.3f", r.Location.Latitude, r.Location.Longitude)
		}
	}
	return area + "|" + strings.Join(sources, ",")
}

// Orchestrator coordinates source adapters, the normalizer, and the
// batch writer for one import run, and owns every mutation of the job
// record.
type Orchestrator struct {
	jobs     JobStore
	writer   *BatchWriter
	adapters map[string]SourceAdapter
	workers  int
}

// NewOrchestrator wires the orchestrator with its collaborators. The
// adapter set fixes which source tags an import may name.
func NewOrchestrator(jobs JobStore, writer *BatchWriter, adapters []SourceAdapter, workers int) *Orchestrator {
	if workers <= 0 {
		workers = config.DefaultImportWorkers
	}
	byTag := make(map[string]SourceAdapter, len(adapters))
	for _, adapter := range adapters {
		byTag[adapter.Tag()] = adapter
	}
	return &Orchestrator{
		jobs:     jobs,
		writer:   writer,
		adapters: byTag,
		workers:  workers,
	}
}

// KnownSource reports whether an adapter is registered for the tag.
func (o *Orchestrator) KnownSource(tag string) bool {
	_, ok := o.adapters[tag]
	return ok
}

// StartImport creates the job record for a request, or returns the
// already-active job for the same target. The second return value is
// false when an existing job was reused.
func (o *Orchestrator) StartImport(req ImportRequest) (*entities.ImportJob, bool, error) {
	if req.MaxTrailsPerSource <= 0 {
		req.MaxTrailsPerSource = config.DefaultMaxTrailsPerSource
	}

	target := req.Target()
	active, err := o.jobs.FindActiveJob(target)
	if err != nil {
		return nil, false, fmt.Errorf("check active job: %w", err)
	}
	if active != nil {
		// A concurrent duplicate would double-import and race the
		// counters; hand back the running job instead.
		return active, false, nil
	}

	job, err := o.jobs.CreateJob(target, req.Sources, req.MaxTrailsPerSource, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	return job, true, nil
}

// Run executes an import job to completion: every source is drained
// through fetch -> normalize -> write, with bounded concurrency across
// sources. Run never leaves the job in a non-terminal state.
func (o *Orchestrator) Run(ctx context.Context, jobID string, req ImportRequest) error {
	if req.MaxTrailsPerSource <= 0 {
		req.MaxTrailsPerSource = config.DefaultMaxTrailsPerSource
	}

	if err := o.jobs.MarkProcessing(jobID); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	sourceCh := make(chan string)
	var wg sync.WaitGroup

	workers := o.workers
	if workers > len(req.Sources) {
		workers = len(req.Sources)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tag := range sourceCh {
				o.runSource(ctx, jobID, tag, req)
			}
		}()
	}

	for _, tag := range req.Sources {
		sourceCh <- tag
	}
	close(sourceCh)
	wg.Wait()

	return o.finalize(jobID)
}

// runSource drains one source. A panic or unexpected error here must
// not abort sibling sources already in flight.
func (o *Orchestrator) runSource(ctx context.Context, jobID, tag string, req ImportRequest) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("import job %s: source %s panicked: %v", jobID, tag, r)
		}
	}()

	adapter, ok := o.adapters[tag]
	if !ok {
		log.Printf("import job %s: unknown source %q, skipping", jobID, tag)
		return
	}

	raws, err := adapter.FetchBatch(ctx, FetchRequest{
		MaxTrails: req.MaxTrailsPerSource,
		Location:  req.Location,
	})
	if err != nil {
		// Adapters degrade to empty output themselves; an error here is
		// unexpected but still must not take down the job.
		log.Printf("import job %s: source %s fetch failed: %v", jobID, tag, err)
		return
	}
	if len(raws) == 0 {
		log.Printf("import job %s: source %s returned no records", jobID, tag)
		return
	}
	if len(raws) > req.MaxTrailsPerSource {
		raws = raws[:req.MaxTrailsPerSource]
	}

	normalized := make([]entities.Trail, 0, len(raws))
	rejected := 0
	for _, raw := range raws {
		trail, err := normalizer.Normalize(raw, tag)
		if err != nil {
			rejected++
			continue
		}
		normalized = append(normalized, trail)
	}

	if rejected > 0 {
		if err := o.jobs.AddCounters(jobID, rejected, 0, 0, rejected); err != nil {
			log.Printf("import job %s: failed to record %d rejected records: %v", jobID, rejected, err)
		}
	}

	if _, err := o.writer.WriteAll(ctx, jobID, normalized); err != nil {
		log.Printf("import job %s: source %s write aborted: %v", jobID, tag, err)
	}
}

// finalize settles the job: completed when anything was imported,
// error when every source came up empty.
func (o *Orchestrator) finalize(jobID string) error {
	job, err := o.jobs.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("load job for finalization: %w", err)
	}

	if job.TrailsAdded+job.TrailsUpdated > 0 {
		message := fmt.Sprintf("Imported %d trails (%d added, %d updated, %d failed)",
			job.TrailsAdded+job.TrailsUpdated, job.TrailsAdded, job.TrailsUpdated, job.TrailsFailed)
		return o.jobs.Finalize(jobID, entities.JobStatusCompleted, message)
	}

	return o.jobs.Finalize(jobID, entities.JobStatusError, "no trails were added: all sources failed or returned no usable records")
}

// StartBulkImport creates a bulk parent and one child job per source.
// Children share the request's location and per-source cap. The
// duplicate-run guard applies per child target: a source that already
// has a live job joins the response as-is instead of getting a second
// one. When every source is already running no parent is created and
// the bulk job comes back nil.
func (o *Orchestrator) StartBulkImport(req ImportRequest) (*entities.BulkImportJob, []*entities.ImportJob, error) {
	if req.MaxTrailsPerSource <= 0 {
		req.MaxTrailsPerSource = config.DefaultMaxTrailsPerSource
	}

	childReqs := make([]ImportRequest, len(req.Sources))
	active := make([]*entities.ImportJob, len(req.Sources))
	newSources := 0
	for i, tag := range req.Sources {
		childReqs[i] = ImportRequest{
			Sources:            []string{tag},
			MaxTrailsPerSource: req.MaxTrailsPerSource,
			BatchSize:          req.BatchSize,
			Location:           req.Location,
		}
		job, err := o.jobs.FindActiveJob(childReqs[i].Target())
		if err != nil {
			return nil, nil, fmt.Errorf("check active job for %s: %w", tag, err)
		}
		if job != nil {
			active[i] = job
		} else {
			newSources++
		}
	}

	children := make([]*entities.ImportJob, 0, len(req.Sources))
	if newSources == 0 {
		for _, job := range active {
			children = append(children, job)
		}
		return nil, children, nil
	}

	bulk, err := o.jobs.CreateBulkJob(newSources, newSources*req.MaxTrailsPerSource)
	if err != nil {
		return nil, nil, fmt.Errorf("create bulk job: %w", err)
	}

	for i, tag := range req.Sources {
		if active[i] != nil {
			children = append(children, active[i])
			continue
		}
		child, err := o.jobs.CreateJob(childReqs[i].Target(), childReqs[i].Sources, req.MaxTrailsPerSource, &bulk.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("create child job for %s: %w", tag, err)
		}
		children = append(children, child)
	}

	return bulk, children, nil
}

// RunBulk drives every child job of a bulk run and then settles the
// parent from the children's terminal statuses. Children are addressed
// by id so a bulk run can resume from a task payload.
func (o *Orchestrator) RunBulk(ctx context.Context, bulkJobID string, childJobIDs []string, req ImportRequest) error {
	for _, childID := range childJobIDs {
		child, err := o.jobs.GetJob(childID)
		if err != nil {
			log.Printf("bulk job %s: child %s could not be loaded: %v", bulkJobID, childID, err)
			continue
		}
		if child.BulkJobID == nil || *child.BulkJobID != bulkJobID {
			// A job reused from another run; its owner drives it
			continue
		}

		childReq := ImportRequest{
			Sources:            strings.Split(child.Sources, ","),
			MaxTrailsPerSource: req.MaxTrailsPerSource,
			BatchSize:          req.BatchSize,
			Location:           req.Location,
		}
		if err := o.Run(ctx, child.ID, childReq); err != nil {
			log.Printf("bulk job %s: child %s failed to run: %v", bulkJobID, child.ID, err)
			// Leave no child dangling in a non-terminal state
			if ferr := o.jobs.Finalize(child.ID, entities.JobStatusError, err.Error()); ferr != nil {
				log.Printf("bulk job %s: child %s could not be finalized: %v", bulkJobID, child.ID, ferr)
			}
		}
	}

	return o.jobs.FinalizeBulkJob(bulkJobID)
}

// AbortImport settles a job that never made it onto the queue. Without
// this a permanently queued job would block its target forever.
func (o *Orchestrator) AbortImport(jobID, reason string) error {
	return o.jobs.Finalize(jobID, entities.JobStatusError, reason)
}

// AbortBulkImport settles a bulk run whose task was never enqueued:
// every child the run owns is finalized as error, then the parent.
// Children reused from other runs are left to their owners.
func (o *Orchestrator) AbortBulkImport(bulkJobID string, childJobIDs []string, reason string) error {
	for _, childID := range childJobIDs {
		child, err := o.jobs.GetJob(childID)
		if err != nil {
			log.Printf("bulk job %s: child %s could not be loaded: %v", bulkJobID, childID, err)
			continue
		}
		if child.BulkJobID == nil || *child.BulkJobID != bulkJobID {
			continue
		}
		if err := o.jobs.Finalize(child.ID, entities.JobStatusError, reason); err != nil {
			log.Printf("bulk job %s: child %s could not be aborted: %v", bulkJobID, child.ID, err)
		}
	}
	return o.jobs.FinalizeBulkJob(bulkJobID)
}
