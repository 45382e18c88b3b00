// Package trails provides database operations for canonical trail records.
//
// The central operation is UpsertBatch: an insert-or-update keyed on the
// provider-assigned source_id, which makes re-running an import for the
// same source idempotent.
package trails

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/hikeshare/importer/internal/entities"
)

// UpsertResult reports how a batch of trails was applied to the store.
type UpsertResult struct {
	Added   int
	Updated int
}

// Repository handles all trail database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new trails repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertBatch writes a batch of normalized trails in one transaction.
// A trail whose SourceID already exists is updated in place; otherwise
// it is inserted. The whole batch commits or fails together.
func (r *Repository) UpsertBatch(batch []entities.Trail) (UpsertResult, error) {
	var result UpsertResult

	if len(batch) == 0 {
		return result, nil
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		for i := range batch {
			trail := &batch[i]

			var existing entities.Trail
			lookup := tx.Where("source_id = ?", trail.SourceID).First(&existing)
			if lookup.Error == gorm.ErrRecordNotFound {
				if err := tx.Create(trail).Error; err != nil {
					return fmt.Errorf("insert trail %s: %w", trail.SourceID, err)
				}
				result.Added++
				continue
			}
			if lookup.Error != nil {
				return fmt.Errorf("lookup trail %s: %w", trail.SourceID, lookup.Error)
			}

			trail.ID = existing.ID
			trail.CreatedAt = existing.CreatedAt
			if err := tx.Save(trail).Error; err != nil {
				return fmt.Errorf("update trail %s: %w", trail.SourceID, err)
			}
			result.Updated++
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// GetBySourceID fetches one trail by its provider-assigned key.
func (r *Repository) GetBySourceID(sourceID string) (*entities.Trail, error) {
	var trail entities.Trail
	err := r.db.Where("source_id = ?", sourceID).First(&trail).Error
	if err != nil {
		return nil, err
	}
	return &trail, nil
}

// CountBySource returns the number of stored trails from one provider.
func (r *Repository) CountBySource(source string) (int64, error) {
	var count int64
	err := r.db.Model(&entities.Trail{}).Where("source = ?", source).Count(&count).Error
	return count, err
}

// Count returns the total number of stored trails.
func (r *Repository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&entities.Trail{}).Count(&count).Error
	return count, err
}
