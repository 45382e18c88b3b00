package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hikeshare/importer/internal/entities"
)

func validRaw() RawTrail {
	return RawTrail{
		NativeID:       "48213",
		Name:           "Royal Arch Trail",
		Latitude:       39.9983,
		Longitude:      -105.2931,
		DifficultyText: "hard",
		Length:         3.4,
		LengthUnit:     entities.LengthUnitMiles,
		ElevationGain:  1400,
		ElevationFeet:  true,
		Location:       "Boulder, CO",
		Rating:         4.7,
	}
}

func TestNormalize_BuildsSourceID(t *testing.T) {
	trail, err := Normalize(validRaw(), "hikerdb")

	require.NoError(t, err)
	assert.Equal(t, "hikerdb-48213", trail.SourceID)
	assert.Equal(t, "hikerdb", trail.Source)
}

func TestNormalize_RejectsInvalidCoordinates(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		lng  float64
	}{
		{"missing pair", 0, 0},
		{"latitude out of range", 95.1, -105.0},
		{"longitude out of range", 40.0, 200.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			raw.Latitude = tt.lat
			raw.Longitude = tt.lng

			_, err := Normalize(raw, "hikerdb")
			assert.ErrorIs(t, err, ErrInvalidCoordinates)
		})
	}
}

func TestNormalize_MilesToKilometers(t *testing.T) {
	raw := validRaw()
	raw.Length = 10
	raw.LengthUnit = entities.LengthUnitMiles

	trail, err := Normalize(raw, "hikerdb")

	require.NoError(t, err)
	assert.InDelta(t, 16.0934, trail.LengthKm, 0.001)
	// Native value retained for display
	assert.InDelta(t, 10, trail.LengthNative, 0.0001)
	assert.Equal(t, entities.LengthUnitMiles, trail.LengthUnit)
}

func TestNormalize_FeetToMeters(t *testing.T) {
	raw := validRaw()
	raw.ElevationGain = 1000
	raw.ElevationFeet = true

	trail, err := Normalize(raw, "hikerdb")

	require.NoError(t, err)
	assert.InDelta(t, 304.8, trail.ElevationGainMeters, 0.001)
}

func TestNormalize_MetricPassThrough(t *testing.T) {
	raw := validRaw()
	raw.Length = 7.2
	raw.LengthUnit = entities.LengthUnitKilometers
	raw.ElevationGain = 420
	raw.ElevationFeet = false

	trail, err := Normalize(raw, "overpass")

	require.NoError(t, err)
	assert.InDelta(t, 7.2, trail.LengthKm, 0.0001)
	assert.InDelta(t, 420, trail.ElevationGainMeters, 0.0001)
}

func TestNormalize_SourceDefaultsWhenAbsent(t *testing.T) {
	raw := validRaw()
	raw.Length = 0
	raw.ElevationGain = 0

	trail, err := Normalize(raw, "hikerdb")

	require.NoError(t, err)
	assert.InDelta(t, 5.0, trail.LengthKm, 0.0001)
	assert.InDelta(t, 150, trail.ElevationGainMeters, 0.0001)
	assert.Equal(t, "United States", trail.Country)
	assert.Equal(t, "out-and-back", trail.TrailType)
}

func TestNormalize_UnknownTagUsesGenericDefaults(t *testing.T) {
	raw := validRaw()
	raw.Length = 0

	trail, err := Normalize(raw, "somefutureprovider")

	require.NoError(t, err)
	assert.Equal(t, "somefutureprovider-48213", trail.SourceID)
	assert.InDelta(t, 5.0, trail.LengthKm, 0.0001)
}

func TestNormalize_NamelessTrailGetsPlaceholder(t *testing.T) {
	raw := validRaw()
	raw.Name = "   "

	trail, err := Normalize(raw, "overpass")

	require.NoError(t, err)
	assert.Equal(t, "Unnamed Trail 48213", trail.Name)
}

func TestNormalize_AgeRestrictionDefaultsFalse(t *testing.T) {
	trail, err := Normalize(validRaw(), "hikerdb")

	require.NoError(t, err)
	assert.False(t, trail.IsAgeRestricted)
}

func TestNormalize_RawGeometryPassThrough(t *testing.T) {
	raw := validRaw()
	raw.RawGeometry = []byte(`{"polyline":"_p~iF~ps|U"}`)

	trail, err := Normalize(raw, "geosurvey")

	require.NoError(t, err)
	assert.Equal(t, raw.RawGeometry, trail.RawGeometry)
}

func TestStandardizeDifficulty(t *testing.T) {
	tests := []struct {
		input    string
		expected entities.Difficulty
	}{
		{"green", entities.DifficultyEasy},
		{"Beginner friendly", entities.DifficultyEasy},
		{"EASY", entities.DifficultyEasy},
		{"blueish", entities.DifficultyModerate},
		{"Intermediate", entities.DifficultyModerate},
		{"black diamond", entities.DifficultyHard},
		{"Advanced scramble", entities.DifficultyHard},
		{"difficult", entities.DifficultyHard},
		{"expert only", entities.DifficultyExpert},
		{"extremely technical", entities.DifficultyExpert},
		{"double black", entities.DifficultyExpert},
		{"", entities.DifficultyModerate},
		{"grade 3", entities.DifficultyModerate},
		{"unknown gibberish", entities.DifficultyModerate},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, StandardizeDifficulty(tt.input))
		})
	}
}

func TestExtractStateCode(t *testing.T) {
	tests := []struct {
		location string
		expected string
	}{
		{"Boulder, CO", "CO"},
		{"Moab, UT", "UT"},
		{"Banff National Park", ""},
		{"Paris, France", ""},
		{"", ""},
		{"X, YZ", "YZ"},
		{"ends with, lc", ""}, // lowercase is not a region code
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractStateCode(tt.location))
		})
	}
}

func TestNormalize_StatePreferredOverExtraction(t *testing.T) {
	raw := validRaw()
	raw.StateOrProvince = "Colorado"
	raw.Location = "Somewhere, WY"

	trail, err := Normalize(raw, "hikerdb")

	require.NoError(t, err)
	assert.Equal(t, "Colorado", trail.StateOrProvince)
}

func TestNormalize_TagExtraction(t *testing.T) {
	raw := validRaw()
	raw.Rating = 4.8
	raw.Length = 12
	raw.LengthUnit = entities.LengthUnitKilometers
	raw.ElevationGain = 800
	raw.ElevationFeet = false

	trail, err := Normalize(raw, "hikerdb")

	require.NoError(t, err)
	assert.Contains(t, trail.Tags, "hiking")
	assert.Contains(t, trail.Tags, "outdoor")
	assert.Contains(t, trail.Tags, "nature")
	assert.Contains(t, trail.Tags, "highly-rated")
	assert.Contains(t, trail.Tags, "long-distance")
	assert.Contains(t, trail.Tags, "steep")

	// No duplicates
	seen := make(map[string]bool)
	for _, tag := range trail.Tags {
		assert.False(t, seen[tag], "duplicate tag %q", tag)
		seen[tag] = true
	}
}

func TestNormalize_BaseTagsOnly(t *testing.T) {
	raw := validRaw()
	raw.Rating = 3.0
	raw.Length = 2
	raw.LengthUnit = entities.LengthUnitKilometers
	raw.ElevationGain = 50
	raw.ElevationFeet = false
	raw.DifficultyText = "easy"

	trail, err := Normalize(raw, "hikerdb")

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hiking", "outdoor", "nature"}, trail.Tags)
}
