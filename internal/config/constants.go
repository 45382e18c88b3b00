package config

import "time"

const (
	DefaultDatabasePath = "./trails.db"

	// DefaultBatchSize keeps any single write within the store's
	// request-size limits; MinBatchSize/MaxBatchSize bound what callers
	// may request.
	DefaultBatchSize = 100
	MinBatchSize     = 25
	MaxBatchSize     = 500

	DefaultImportWorkers      = 3
	DefaultMaxTrailsPerSource = 100

	// DefaultCallDelay is the fixed pause between successive calls to
	// the same provider. The providers in use impose hard request-rate
	// ceilings.
	DefaultCallDelay = 1 * time.Second
)

// ClampBatchSize bounds a requested batch size to the supported range,
// substituting the default when the request leaves it unset.
func ClampBatchSize(requested int) int {
	if requested <= 0 {
		return DefaultBatchSize
	}
	if requested < MinBatchSize {
		return MinBatchSize
	}
	if requested > MaxBatchSize {
		return MaxBatchSize
	}
	return requested
}
