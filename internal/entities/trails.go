package entities

import (
	"time"

	"gorm.io/gorm"
)

type Difficulty string

const (
	DifficultyEasy     Difficulty = "easy"
	DifficultyModerate Difficulty = "moderate"
	DifficultyHard     Difficulty = "hard"
	DifficultyExpert   Difficulty = "expert"
)

type LengthUnit string

const (
	LengthUnitKilometers LengthUnit = "km"
	LengthUnitMiles      LengthUnit = "mi"
)

// ProviderSource identifies an external trail-data provider.
type ProviderSource struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:50" json:"name"`   // e.g., "hikerdb", "overpass", "geosurvey"
	DisplayName string    `gorm:"size:100" json:"display_name"`     // e.g., "HikerDB", "OpenStreetMap Overpass"
	CreatedAt   time.Time `json:"created_at"`
}

// Trail is the canonical stored trail record. Every provider record is
// normalized into this shape before it reaches the database.
type Trail struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	SourceID    string `gorm:"uniqueIndex;size:128" json:"source_id"` // provider tag + native id, e.g. "hikerdb-48213"
	Source      string `gorm:"index;size:50" json:"source"`
	Name        string `gorm:"index;size:512" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	Difficulty Difficulty `gorm:"size:20;default:'moderate'" json:"difficulty"`

	// LengthKm is always metric; LengthNative retains the provider's
	// reported value for display alongside its unit.
	LengthKm            float64    `json:"length_km"`
	LengthNative        float64    `json:"length_native,omitempty"`
	LengthUnit          LengthUnit `gorm:"size:5;default:'km'" json:"length_unit,omitempty"`
	ElevationGainMeters float64    `json:"elevation_gain_meters"`

	Location        string `gorm:"size:256" json:"location,omitempty"`
	Country         string `gorm:"size:100" json:"country,omitempty"`
	StateOrProvince string `gorm:"size:100" json:"state_or_province,omitempty"`

	Surface   string `gorm:"size:100" json:"surface,omitempty"`
	TrailType string `gorm:"size:100" json:"trail_type,omitempty"`

	Tags   []string `gorm:"serializer:json" json:"tags,omitempty"`
	Rating float64  `json:"rating,omitempty"`

	IsAgeRestricted bool `gorm:"default:false" json:"is_age_restricted"`

	// RawGeometry is an opaque geometry payload (e.g. an encoded
	// polyline) passed through unmodified from the provider.
	RawGeometry []byte `gorm:"type:blob" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}
