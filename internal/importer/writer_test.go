package importer

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hikeshare/importer/internal/database/trails"
	"github.com/hikeshare/importer/internal/entities"
)

type fakeTrailStore struct {
	mu       sync.Mutex
	rows     map[string]entities.Trail
	failOn   int // 1-based batch index that fails; 0 = never
	batches  int
	lastSize int
}

func newFakeTrailStore() *fakeTrailStore {
	return &fakeTrailStore{rows: map[string]entities.Trail{}}
}

func (f *fakeTrailStore) UpsertBatch(batch []entities.Trail) (trails.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	f.lastSize = len(batch)
	if f.failOn != 0 && f.batches == f.failOn {
		return trails.UpsertResult{}, errors.New("constraint violation")
	}
	var result trails.UpsertResult
	for _, trail := range batch {
		if _, exists := f.rows[trail.SourceID]; exists {
			result.Updated++
		} else {
			result.Added++
		}
		f.rows[trail.SourceID] = trail
	}
	return result, nil
}

type fakeCounters struct {
	mu      sync.Mutex
	updates []([4]int)
	err     error
}

func (f *fakeCounters) AddCounters(id string, processed, added, updated, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, [4]int{processed, added, updated, failed})
	return nil
}

func makeTrails(n int) []entities.Trail {
	out := make([]entities.Trail, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, entities.Trail{
			SourceID: "hikerdb-" + strconv.Itoa(i),
			Source:   "hikerdb",
			Name:     "Trail " + strconv.Itoa(i),
		})
	}
	return out
}

func TestBatchWriter_ChunksByBatchSize(t *testing.T) {
	store := newFakeTrailStore()
	counters := &fakeCounters{}
	writer := NewBatchWriter(store, counters, 25)

	result, err := writer.WriteAll(context.Background(), "job-1", makeTrails(60))

	require.NoError(t, err)
	assert.Equal(t, 60, result.Added)
	assert.Equal(t, 3, store.batches) // 25 + 25 + 10
	assert.Equal(t, 10, store.lastSize)
	// One counter update per committed chunk
	require.Len(t, counters.updates, 3)
	assert.Equal(t, [4]int{25, 25, 0, 0}, counters.updates[0])
	assert.Equal(t, [4]int{10, 10, 0, 0}, counters.updates[2])
}

func TestBatchWriter_SecondRunUpdatesNotAdds(t *testing.T) {
	store := newFakeTrailStore()
	counters := &fakeCounters{}
	writer := NewBatchWriter(store, counters, 100)

	batch := makeTrails(40)

	first, err := writer.WriteAll(context.Background(), "job-1", batch)
	require.NoError(t, err)
	assert.Equal(t, 40, first.Added)

	second, err := writer.WriteAll(context.Background(), "job-1", batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 40, second.Updated)
	assert.Len(t, store.rows, 40)
}

func TestBatchWriter_FailedChunkCountsWhole(t *testing.T) {
	store := newFakeTrailStore()
	store.failOn = 2
	counters := &fakeCounters{}
	writer := NewBatchWriter(store, counters, 25)

	result, err := writer.WriteAll(context.Background(), "job-1", makeTrails(75))

	require.NoError(t, err)
	// Whole-batch failure attribution: the middle chunk's 25 records
	// all count as failed
	assert.Equal(t, 50, result.Added)
	assert.Equal(t, 25, result.Failed)
	require.Len(t, counters.updates, 3)
	assert.Equal(t, [4]int{25, 0, 0, 25}, counters.updates[1])
}

func TestBatchWriter_DeduplicatesInput(t *testing.T) {
	store := newFakeTrailStore()
	counters := &fakeCounters{}
	writer := NewBatchWriter(store, counters, 100)

	batch := makeTrails(3)
	batch = append(batch, batch[0]) // duplicate source id

	result, err := writer.WriteAll(context.Background(), "job-1", batch)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Added)
	assert.Len(t, store.rows, 3)
}

func TestBatchWriter_CounterErrorPropagates(t *testing.T) {
	store := newFakeTrailStore()
	counters := &fakeCounters{err: errors.New("job row gone")}
	writer := NewBatchWriter(store, counters, 25)

	_, err := writer.WriteAll(context.Background(), "job-1", makeTrails(10))

	assert.Error(t, err)
}

func TestBatchWriter_ClampsBatchSize(t *testing.T) {
	store := newFakeTrailStore()
	counters := &fakeCounters{}
	// 5 is below the supported minimum of 25
	writer := NewBatchWriter(store, counters, 5)

	_, err := writer.WriteAll(context.Background(), "job-1", makeTrails(30))

	require.NoError(t, err)
	assert.Equal(t, 2, store.batches) // 25 + 5, not 6 chunks of 5
}

func TestBatchWriter_ContextCancellation(t *testing.T) {
	store := newFakeTrailStore()
	counters := &fakeCounters{}
	writer := NewBatchWriter(store, counters, 25)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := writer.WriteAll(ctx, "job-1", makeTrails(30))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.batches)
}
