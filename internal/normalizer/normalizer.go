// Package normalizer converts provider-native trail records into the
// canonical entities.Trail shape.
//
// Normalization is pure and never rejects a record for a missing
// optional field; every optional field has a default. The only hard
// rejection is a missing or invalid coordinate pair, surfaced as
// ErrInvalidCoordinates so the caller can count the record as failed.
//
// Adding a provider means registering one sourceRules entry; existing
// providers are untouched.
package normalizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hikeshare/importer/internal/entities"
	"github.com/hikeshare/importer/internal/utils"
)

// ErrInvalidCoordinates marks a record that cannot be imported because
// its coordinate pair is missing or out of range.
var ErrInvalidCoordinates = errors.New("missing or invalid coordinates")

// RawTrail is a provider-native record as fetched by a source adapter.
// Fields the provider does not supply stay at their zero values; the
// per-source rules fill in defaults during normalization.
type RawTrail struct {
	NativeID    string
	Name        string
	Description string

	Latitude  float64
	Longitude float64

	// DifficultyText is whatever the provider reports: color codes,
	// free text, numeric grades rendered as text.
	DifficultyText string

	Length        float64
	LengthUnit    entities.LengthUnit
	ElevationGain float64
	ElevationFeet bool // elevation reported in feet rather than meters

	Location        string
	Country         string
	StateOrProvince string

	Surface   string
	TrailType string

	Rating float64

	RawGeometry []byte
}

// sourceRules captures the per-provider defaults applied when a field
// is absent from the raw record.
type sourceRules struct {
	displayName      string
	defaultLengthKm  float64
	defaultElevation float64
	defaultCountry   string
	defaultTrailType string
}

var rulesByTag = map[string]sourceRules{
	"hikerdb": {
		displayName:      "HikerDB",
		defaultLengthKm:  5.0,
		defaultElevation: 150,
		defaultCountry:   "United States",
		defaultTrailType: "out-and-back",
	},
	"overpass": {
		displayName:      "OpenStreetMap Overpass",
		defaultLengthKm:  3.0,
		defaultElevation: 100,
		defaultTrailType: "route",
	},
	"geosurvey": {
		displayName:      "National Geo-Survey Trails",
		defaultLengthKm:  4.0,
		defaultElevation: 120,
		defaultCountry:   "United States",
		defaultTrailType: "point-to-point",
	},
}

var defaultRules = sourceRules{
	defaultLengthKm:  5.0,
	defaultElevation: 100,
}

// Base tags attached to every normalized trail.
var baseTags = []string{"hiking", "outdoor", "nature"}

const (
	longDistanceThresholdKm = 10.0
	steepGainThresholdM     = 500.0
	highlyRatedThreshold    = 4.5
)

// Normalize converts one raw record into the canonical trail shape,
// dispatching on the provider tag for source-specific defaults.
func Normalize(raw RawTrail, tag string) (entities.Trail, error) {
	if !utils.ValidCoordinates(raw.Latitude, raw.Longitude) {
		return entities.Trail{}, fmt.Errorf("record %q from %s: %w", raw.NativeID, tag, ErrInvalidCoordinates)
	}

	rules, ok := rulesByTag[tag]
	if !ok {
		rules = defaultRules
	}

	trail := entities.Trail{
		SourceID:    tag + "-" + raw.NativeID,
		Source:      tag,
		Name:        strings.TrimSpace(raw.Name),
		Description: raw.Description,
		Latitude:    raw.Latitude,
		Longitude:   raw.Longitude,
		Difficulty:  StandardizeDifficulty(raw.DifficultyText),
		Location:    raw.Location,
		Country:     raw.Country,
		Surface:     raw.Surface,
		TrailType:   raw.TrailType,
		Rating:      raw.Rating,
		RawGeometry: raw.RawGeometry,
	}

	if trail.Name == "" {
		trail.Name = "Unnamed Trail " + raw.NativeID
	}
	if trail.Country == "" {
		trail.Country = rules.defaultCountry
	}
	if trail.TrailType == "" {
		trail.TrailType = rules.defaultTrailType
	}

	trail.LengthKm, trail.LengthNative, trail.LengthUnit = normalizeLength(raw, rules)
	trail.ElevationGainMeters = normalizeElevation(raw, rules)

	trail.StateOrProvince = raw.StateOrProvince
	if trail.StateOrProvince == "" {
		trail.StateOrProvince = ExtractStateCode(raw.Location)
	}

	trail.Tags = extractTags(trail)

	return trail, nil
}

func normalizeLength(raw RawTrail, rules sourceRules) (km, native float64, unit entities.LengthUnit) {
	if raw.Length <= 0 {
		return rules.defaultLengthKm, rules.defaultLengthKm, entities.LengthUnitKilometers
	}
	if raw.LengthUnit == entities.LengthUnitMiles {
		return utils.MilesToKilometers(raw.Length), raw.Length, entities.LengthUnitMiles
	}
	return raw.Length, raw.Length, entities.LengthUnitKilometers
}

func normalizeElevation(raw RawTrail, rules sourceRules) float64 {
	if raw.ElevationGain <= 0 {
		return rules.defaultElevation
	}
	if raw.ElevationFeet {
		return utils.FeetToMeters(raw.ElevationGain)
	}
	return raw.ElevationGain
}

// ExtractStateCode pulls a two-letter region code from a trailing
// ", XX" pattern in a free-text location string. Returns "" when the
// pattern is absent.
func ExtractStateCode(location string) string {
	location = strings.TrimSpace(location)
	if len(location) < 4 {
		return ""
	}
	tail := location[len(location)-4:]
	if !strings.HasPrefix(tail, ", ") {
		return ""
	}
	code := tail[2:]
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return code
}

// extractTags derives the tag set from the normalized values. Base tags
// are always present; the result contains no duplicates.
func extractTags(trail entities.Trail) []string {
	tags := make([]string, 0, len(baseTags)+3)
	seen := make(map[string]bool)

	add := func(tag string) {
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}

	for _, tag := range baseTags {
		add(tag)
	}
	if trail.Rating >= highlyRatedThreshold {
		add("highly-rated")
	}
	if trail.LengthKm > longDistanceThresholdKm {
		add("long-distance")
	}
	if trail.ElevationGainMeters >= steepGainThresholdM {
		add("steep")
	}
	if trail.Difficulty == entities.DifficultyExpert {
		add("technical")
	}

	return tags
}
