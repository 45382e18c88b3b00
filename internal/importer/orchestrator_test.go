package importer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hikeshare/importer/internal/entities"
	"github.com/hikeshare/importer/internal/normalizer"
)

// memJobStore is an in-memory JobStore mirroring the repository's
// transition and counter semantics.
type memJobStore struct {
	mu       sync.Mutex
	jobs     map[string]*entities.ImportJob
	bulkJobs map[string]*entities.BulkImportJob
	nextID   int
}

func newMemJobStore() *memJobStore {
	return &memJobStore{
		jobs:     map[string]*entities.ImportJob{},
		bulkJobs: map[string]*entities.BulkImportJob{},
	}
}

func (m *memJobStore) CreateJob(target string, sources []string, maxTrailsPerSource int, bulkJobID *string) (*entities.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	job := &entities.ImportJob{
		ID:                   "job-" + strconv.Itoa(m.nextID),
		Status:               entities.JobStatusQueued,
		Target:               target,
		TotalTrailsRequested: len(sources) * maxTrailsPerSource,
		TotalSources:         len(sources),
		BulkJobID:            bulkJobID,
		StartedAt:            time.Now(),
	}
	for i, s := range sources {
		if i > 0 {
			job.Sources += ","
		}
		job.Sources += s
	}
	m.jobs[job.ID] = job
	return copyJob(job), nil
}

func (m *memJobStore) CreateBulkJob(totalJobs, totalTrailsRequested int) (*entities.BulkImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	bulk := &entities.BulkImportJob{
		ID:                   "bulk-" + strconv.Itoa(m.nextID),
		Status:               entities.JobStatusProcessing,
		TotalJobs:            totalJobs,
		TotalTrailsRequested: totalTrailsRequested,
		StartedAt:            time.Now(),
	}
	m.bulkJobs[bulk.ID] = bulk
	return bulk, nil
}

func (m *memJobStore) FindActiveJob(target string) (*entities.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.Target == target && !job.Status.IsTerminal() {
			return copyJob(job), nil
		}
	}
	return nil, nil
}

func (m *memJobStore) MarkProcessing(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	if job.Status != entities.JobStatusQueued {
		return fmt.Errorf("illegal transition from %s", job.Status)
	}
	job.Status = entities.JobStatusProcessing
	return nil
}

func (m *memJobStore) AddCounters(id string, processed, added, updated, failed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.TrailsProcessed += processed
	job.TrailsAdded += added
	job.TrailsUpdated += updated
	job.TrailsFailed += failed
	if job.BulkJobID != nil {
		if bulk, ok := m.bulkJobs[*job.BulkJobID]; ok {
			bulk.TrailsProcessed += processed
			bulk.TrailsAdded += added
			bulk.TrailsUpdated += updated
			bulk.TrailsFailed += failed
		}
	}
	return nil
}

func (m *memJobStore) Finalize(id string, status entities.JobStatus, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("illegal transition from %s", job.Status)
	}
	now := time.Now()
	job.Status = status
	job.Message = message
	job.CompletedAt = &now
	return nil
}

func (m *memJobStore) FinalizeBulkJob(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bulk, ok := m.bulkJobs[id]
	if !ok {
		return fmt.Errorf("bulk job %s not found", id)
	}
	status := entities.JobStatusError
	for _, job := range m.jobs {
		if job.BulkJobID != nil && *job.BulkJobID == id && job.Status == entities.JobStatusCompleted {
			status = entities.JobStatusCompleted
		}
	}
	now := time.Now()
	bulk.Status = status
	bulk.CompletedAt = &now
	return nil
}

func (m *memJobStore) GetJob(id string) (*entities.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	return copyJob(job), nil
}

func (m *memJobStore) jobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func copyJob(job *entities.ImportJob) *entities.ImportJob {
	c := *job
	return &c
}

// stubAdapter returns canned raw records for one tag.
type stubAdapter struct {
	tag  string
	raws []normalizer.RawTrail
}

func (s *stubAdapter) Tag() string { return s.tag }

func (s *stubAdapter) FetchBatch(ctx context.Context, req FetchRequest) ([]normalizer.RawTrail, error) {
	if len(s.raws) > req.MaxTrails {
		return s.raws[:req.MaxTrails], nil
	}
	return s.raws, nil
}

func validRaws(prefix string, n int) []normalizer.RawTrail {
	raws := make([]normalizer.RawTrail, 0, n)
	for i := 0; i < n; i++ {
		raws = append(raws, normalizer.RawTrail{
			NativeID:  prefix + "-" + strconv.Itoa(i),
			Name:      "Trail " + strconv.Itoa(i),
			Latitude:  40.0 + float64(i)*0.001,
			Longitude: -105.0,
		})
	}
	return raws
}

func newTestOrchestrator(store *memJobStore, adapters ...SourceAdapter) *Orchestrator {
	writer := NewBatchWriter(newFakeTrailStore(), store, 25)
	return NewOrchestrator(store, writer, adapters, 3)
}

func TestOrchestrator_PartialSourceFailureTolerated(t *testing.T) {
	store := newMemJobStore()
	orch := newTestOrchestrator(store,
		&stubAdapter{tag: "a"},
		&stubAdapter{tag: "b"},
		&stubAdapter{tag: "c", raws: validRaws("c", 50)},
	)

	req := ImportRequest{Sources: []string{"a", "b", "c"}, MaxTrailsPerSource: 50}
	job, created, err := orch.StartImport(req)
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, 150, job.TotalTrailsRequested)
	assert.Equal(t, 3, job.TotalSources)

	require.NoError(t, orch.Run(context.Background(), job.ID, req))

	final, err := store.GetJob(job.ID)
	require.NoError(t, err)
	// Two dead sources do not fail the job as long as one delivers
	assert.Equal(t, entities.JobStatusCompleted, final.Status)
	assert.Equal(t, 50, final.TrailsProcessed)
	assert.Equal(t, 50, final.TrailsAdded)
	assert.Equal(t, 0, final.TrailsFailed)
	assert.NotNil(t, final.CompletedAt)
}

func TestOrchestrator_TotalFailureIsError(t *testing.T) {
	store := newMemJobStore()
	orch := newTestOrchestrator(store,
		&stubAdapter{tag: "a"},
		&stubAdapter{tag: "b"},
	)

	req := ImportRequest{Sources: []string{"a", "b"}, MaxTrailsPerSource: 50}
	job, _, err := orch.StartImport(req)
	require.NoError(t, err)

	require.NoError(t, orch.Run(context.Background(), job.ID, req))

	final, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusError, final.Status)
	assert.Contains(t, final.Message, "no trails were added")
}

func TestOrchestrator_DuplicateStartReturnsActiveJob(t *testing.T) {
	store := newMemJobStore()
	orch := newTestOrchestrator(store, &stubAdapter{tag: "a", raws: validRaws("a", 5)})

	req := ImportRequest{Sources: []string{"a"}, MaxTrailsPerSource: 50}

	first, created, err := orch.StartImport(req)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := orch.StartImport(req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.jobCount())
}

func TestOrchestrator_DifferentTargetsMayRunConcurrently(t *testing.T) {
	store := newMemJobStore()
	orch := newTestOrchestrator(store, &stubAdapter{tag: "a"})

	first, _, err := orch.StartImport(ImportRequest{Sources: []string{"a"}, MaxTrailsPerSource: 10,
		Location: &Location{City: "Boulder", State: "CO"}})
	require.NoError(t, err)

	second, created, err := orch.StartImport(ImportRequest{Sources: []string{"a"}, MaxTrailsPerSource: 10,
		Location: &Location{City: "Moab", State: "UT"}})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestOrchestrator_NormalizationFailuresCounted(t *testing.T) {
	raws := validRaws("a", 8)
	// Two records with unusable coordinates
	raws[3].Latitude, raws[3].Longitude = 0, 0
	raws[6].Latitude = 400

	store := newMemJobStore()
	orch := newTestOrchestrator(store, &stubAdapter{tag: "a", raws: raws})

	req := ImportRequest{Sources: []string{"a"}, MaxTrailsPerSource: 50}
	job, _, err := orch.StartImport(req)
	require.NoError(t, err)
	require.NoError(t, orch.Run(context.Background(), job.ID, req))

	final, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusCompleted, final.Status)
	assert.Equal(t, 8, final.TrailsProcessed)
	assert.Equal(t, 6, final.TrailsAdded)
	assert.Equal(t, 2, final.TrailsFailed)
	assert.Equal(t, final.TrailsProcessed, final.TrailsAdded+final.TrailsUpdated+final.TrailsFailed)
}

func TestOrchestrator_CapsAtMaxTrailsPerSource(t *testing.T) {
	store := newMemJobStore()
	orch := newTestOrchestrator(store, &stubAdapter{tag: "a", raws: validRaws("a", 80)})

	req := ImportRequest{Sources: []string{"a"}, MaxTrailsPerSource: 30}
	job, _, err := orch.StartImport(req)
	require.NoError(t, err)
	require.NoError(t, orch.Run(context.Background(), job.ID, req))

	final, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, final.TrailsProcessed)
}

func TestOrchestrator_UnknownSourceSkipped(t *testing.T) {
	store := newMemJobStore()
	orch := newTestOrchestrator(store, &stubAdapter{tag: "a", raws: validRaws("a", 5)})

	req := ImportRequest{Sources: []string{"a", "nonexistent"}, MaxTrailsPerSource: 50}
	job, _, err := orch.StartImport(req)
	require.NoError(t, err)
	require.NoError(t, orch.Run(context.Background(), job.ID, req))

	final, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusCompleted, final.Status)
	assert.Equal(t, 5, final.TrailsAdded)
}

func TestOrchestrator_CounterInvariantAtTerminal(t *testing.T) {
	store := newMemJobStore()
	orch := newTestOrchestrator(store,
		&stubAdapter{tag: "a", raws: validRaws("a", 40)},
		&stubAdapter{tag: "b", raws: validRaws("b", 27)},
		&stubAdapter{tag: "c", raws: validRaws("c", 13)},
	)

	req := ImportRequest{Sources: []string{"a", "b", "c"}, MaxTrailsPerSource: 100}
	job, _, err := orch.StartImport(req)
	require.NoError(t, err)
	require.NoError(t, orch.Run(context.Background(), job.ID, req))

	final, err := store.GetJob(job.ID)
	require.NoError(t, err)
	require.True(t, final.Status.IsTerminal())
	assert.Equal(t, final.TrailsProcessed, final.TrailsAdded+final.TrailsUpdated+final.TrailsFailed)
	assert.Equal(t, 80, final.TrailsProcessed)
}

func TestOrchestrator_BulkRunAggregatesChildren(t *testing.T) {
	store := newMemJobStore()
	orch := newTestOrchestrator(store,
		&stubAdapter{tag: "a", raws: validRaws("a", 10)},
		&stubAdapter{tag: "b", raws: validRaws("b", 15)},
	)

	req := ImportRequest{Sources: []string{"a", "b"}, MaxTrailsPerSource: 50}
	bulk, children, err := orch.StartBulkImport(req)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, 100, bulk.TotalTrailsRequested)

	childIDs := make([]string, 0, len(children))
	for _, child := range children {
		childIDs = append(childIDs, child.ID)
	}
	require.NoError(t, orch.RunBulk(context.Background(), bulk.ID, childIDs, req))

	stored := store.bulkJobs[bulk.ID]
	assert.Equal(t, entities.JobStatusCompleted, stored.Status)
	assert.Equal(t, 25, stored.TrailsProcessed)
	assert.Equal(t, 25, stored.TrailsAdded)
	assert.NotNil(t, stored.CompletedAt)

	for _, child := range children {
		final, err := store.GetJob(child.ID)
		require.NoError(t, err)
		assert.True(t, final.Status.IsTerminal())
	}
}

func TestOrchestrator_BulkStartReusesActiveJob(t *testing.T) {
	store := newMemJobStore()
	orch := newTestOrchestrator(store,
		&stubAdapter{tag: "a", raws: validRaws("a", 10)},
		&stubAdapter{tag: "b", raws: validRaws("b", 15)},
	)

	// Source "a" already has a live job from a single trigger
	active, created, err := orch.StartImport(ImportRequest{Sources: []string{"a"}, MaxTrailsPerSource: 50})
	require.NoError(t, err)
	require.True(t, created)

	req := ImportRequest{Sources: []string{"a", "b"}, MaxTrailsPerSource: 50}
	bulk, children, err := orch.StartBulkImport(req)
	require.NoError(t, err)
	require.NotNil(t, bulk)
	require.Len(t, children, 2)

	// The running job for "a" is reused, not duplicated
	assert.Equal(t, active.ID, children[0].ID)
	assert.Nil(t, children[0].BulkJobID)
	assert.Equal(t, 2, store.jobCount())

	// Only the fresh child for "b" counts toward the parent
	require.NotNil(t, children[1].BulkJobID)
	assert.Equal(t, bulk.ID, *children[1].BulkJobID)
	assert.Equal(t, 1, bulk.TotalJobs)
	assert.Equal(t, 50, bulk.TotalTrailsRequested)
}

func TestOrchestrator_BulkStartAllSourcesActive(t *testing.T) {
	store := newMemJobStore()
	orch := newTestOrchestrator(store,
		&stubAdapter{tag: "a", raws: validRaws("a", 10)},
		&stubAdapter{tag: "b", raws: validRaws("b", 15)},
	)

	_, _, err := orch.StartImport(ImportRequest{Sources: []string{"a"}, MaxTrailsPerSource: 50})
	require.NoError(t, err)
	_, _, err = orch.StartImport(ImportRequest{Sources: []string{"b"}, MaxTrailsPerSource: 50})
	require.NoError(t, err)

	bulk, children, err := orch.StartBulkImport(ImportRequest{Sources: []string{"a", "b"}, MaxTrailsPerSource: 50})
	require.NoError(t, err)
	assert.Nil(t, bulk)
	assert.Len(t, children, 2)
	assert.Empty(t, store.bulkJobs)
	assert.Equal(t, 2, store.jobCount())
}

func TestOrchestrator_BulkRunLeavesReusedJobsAlone(t *testing.T) {
	store := newMemJobStore()
	orch := newTestOrchestrator(store,
		&stubAdapter{tag: "a", raws: validRaws("a", 10)},
		&stubAdapter{tag: "b", raws: validRaws("b", 15)},
	)

	active, _, err := orch.StartImport(ImportRequest{Sources: []string{"a"}, MaxTrailsPerSource: 50})
	require.NoError(t, err)

	req := ImportRequest{Sources: []string{"a", "b"}, MaxTrailsPerSource: 50}
	bulk, children, err := orch.StartBulkImport(req)
	require.NoError(t, err)

	childIDs := make([]string, 0, len(children))
	for _, child := range children {
		childIDs = append(childIDs, child.ID)
	}
	require.NoError(t, orch.RunBulk(context.Background(), bulk.ID, childIDs, req))

	// The reused job belongs to the single trigger that created it
	reused, err := store.GetJob(active.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusQueued, reused.Status)

	stored := store.bulkJobs[bulk.ID]
	assert.Equal(t, entities.JobStatusCompleted, stored.Status)
	assert.Equal(t, 15, stored.TrailsProcessed)
}

func TestOrchestrator_AbortedJobFreesTarget(t *testing.T) {
	store := newMemJobStore()
	orch := newTestOrchestrator(store, &stubAdapter{tag: "a", raws: validRaws("a", 5)})

	req := ImportRequest{Sources: []string{"a"}, MaxTrailsPerSource: 50}
	first, created, err := orch.StartImport(req)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, orch.AbortImport(first.ID, "failed to enqueue import run"))

	aborted, err := store.GetJob(first.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusError, aborted.Status)

	// The target is free again: the next trigger gets a fresh job
	second, created, err := orch.StartImport(req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestOrchestrator_AbortBulkImportSettlesChildren(t *testing.T) {
	store := newMemJobStore()
	orch := newTestOrchestrator(store,
		&stubAdapter{tag: "a", raws: validRaws("a", 10)},
		&stubAdapter{tag: "b", raws: validRaws("b", 15)},
	)

	bulk, children, err := orch.StartBulkImport(ImportRequest{Sources: []string{"a", "b"}, MaxTrailsPerSource: 50})
	require.NoError(t, err)

	childIDs := make([]string, 0, len(children))
	for _, child := range children {
		childIDs = append(childIDs, child.ID)
	}
	require.NoError(t, orch.AbortBulkImport(bulk.ID, childIDs, "failed to enqueue bulk import run"))

	for _, child := range children {
		final, err := store.GetJob(child.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.JobStatusError, final.Status)
	}
	assert.Equal(t, entities.JobStatusError, store.bulkJobs[bulk.ID].Status)
}

func TestImportRequest_Target(t *testing.T) {
	base := ImportRequest{Sources: []string{"b", "a"}}
	assert.Equal(t, "global|a,b", base.Target())

	located := ImportRequest{
		Sources:  []string{"a"},
		Location: &Location{City: "Boulder", State: "CO"},
	}
	assert.Equal(t, "boulder-co|a", located.Target())

	// Source order must not change the target
	reordered := ImportRequest{Sources: []string{"a", "b"}}
	assert.Equal(t, base.Target(), reordered.Target())
}
