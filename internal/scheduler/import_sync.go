package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hikeshare/importer/internal/config"
	"github.com/hikeshare/importer/internal/entities"
	"github.com/hikeshare/importer/internal/importer"
)

// ImportStarter creates (or reuses) the job record for a refresh run,
// and aborts records whose run could not be handed off.
type ImportStarter interface {
	StartImport(req importer.ImportRequest) (*entities.ImportJob, bool, error)
	AbortImport(jobID, reason string) error
}

// RunDispatcher hands a created job to the task queue for execution.
type RunDispatcher interface {
	Dispatch(jobID string, req importer.ImportRequest) error
}

// ImportSyncScheduler manages periodic refresh imports from the
// configured trail sources
type ImportSyncScheduler struct {
	starter    ImportStarter
	dispatcher RunDispatcher
	settings   config.ImportSync

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	isSyncing  bool
	cancelFunc context.CancelFunc
}

// NewImportSyncScheduler creates a new scheduler instance
func NewImportSyncScheduler(starter ImportStarter, dispatcher RunDispatcher, settings config.ImportSync) *ImportSyncScheduler {
	return &ImportSyncScheduler{
		starter:    starter,
		dispatcher: dispatcher,
		settings:   settings,
		cron:       cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler if refresh sync is enabled
func (s *ImportSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if !s.settings.Enabled {
		log.Printf("Import sync scheduler: disabled")
		return nil
	}

	if len(s.settings.Sources) == 0 {
		log.Printf("Import sync scheduler: no sources configured, skipping")
		return nil
	}

	entryID, err := s.cron.AddFunc(s.settings.Schedule, func() {
		s.runSync()
	})
	if err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.settings.Schedule, err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("Import sync scheduler: started with schedule '%s' for sources %v",
		s.settings.Schedule, s.settings.Sources)

	// Monitor for context cancellation
	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler
func (s *ImportSyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	// Stop accepting new jobs and wait for running jobs to complete
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("Import sync scheduler: stopped")
}

// RunNow triggers an immediate refresh import
func (s *ImportSyncScheduler) RunNow() error {
	go s.runSync()
	return nil
}

// IsRunning returns whether the scheduler is active
func (s *ImportSyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// IsSyncing returns whether a refresh import is currently being started
func (s *ImportSyncScheduler) IsSyncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isSyncing
}

// GetNextRunTime returns when the next refresh will occur
func (s *ImportSyncScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// runSync creates the refresh job and dispatches it onto the task queue.
// The job itself runs in a task worker, so this stays cheap.
func (s *ImportSyncScheduler) runSync() {
	s.mu.Lock()
	if s.isSyncing {
		s.mu.Unlock()
		log.Printf("Import sync: skipped (already starting a run)")
		return
	}
	s.isSyncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isSyncing = false
		s.mu.Unlock()
	}()

	req := importer.ImportRequest{
		Sources: append([]string(nil), s.settings.Sources...),
	}

	log.Printf("Import sync: starting refresh import for sources %v", req.Sources)

	job, created, err := s.starter.StartImport(req)
	if err != nil {
		log.Printf("Import sync: failed to create job: %v", err)
		return
	}

	if !created {
		// An import for the same target is still running. The upsert
		// semantics make the next scheduled run a safe catch-up.
		log.Printf("Import sync: skipped, job %s is still active", job.ID)
		return
	}

	if err := s.dispatcher.Dispatch(job.ID, req); err != nil {
		log.Printf("Import sync: failed to dispatch job %s: %v", job.ID, err)
		// The job would otherwise sit queued forever and block every
		// later refresh of the same target
		if aerr := s.starter.AbortImport(job.ID, "failed to enqueue refresh import"); aerr != nil {
			log.Printf("Import sync: failed to abort job %s: %v", job.ID, aerr)
		}
		return
	}

	log.Printf("Import sync: dispatched refresh job %s", job.ID)
}
