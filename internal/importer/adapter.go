// Package importer contains the trail import pipeline: source adapters
// that fetch provider-native records, the batch writer that upserts
// normalized trails, and the orchestrator that drives both while
// tracking job progress.
package importer

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hikeshare/importer/internal/entities"
	"github.com/hikeshare/importer/internal/normalizer"
	"github.com/hikeshare/importer/internal/providers/geosurvey"
	"github.com/hikeshare/importer/internal/providers/hikerdb"
	"github.com/hikeshare/importer/internal/providers/overpass"
)

// Location narrows an import to an area. City/State are labels carried
// onto the job target; the coordinates drive provider queries.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	RadiusKm  float64 `json:"radius"`
	City      string  `json:"city"`
	State     string  `json:"state"`
}

// FetchRequest tells an adapter how much to fetch and where.
type FetchRequest struct {
	MaxTrails int
	Location  *Location
}

// SourceAdapter fetches raw records from one provider.
//
// Implementations must rate-limit their own calls, deduplicate their
// own output by native id, and degrade rather than fail: a single bad
// page or region is skipped, and a fully unreachable provider yields an
// empty slice, not an error.
type SourceAdapter interface {
	Tag() string
	FetchBatch(ctx context.Context, req FetchRequest) ([]normalizer.RawTrail, error)
}

// rateLimiter enforces the fixed inter-call delay toward one provider.
// The delay is a provider requirement, not an optimization. Adapters are
// shared across concurrently running jobs, so the limiter must be safe
// for concurrent callers.
type rateLimiter struct {
	delay time.Duration

	mu   sync.Mutex
	last time.Time
}

// wait blocks until the delay since the previous call has elapsed. The
// mutex is held through the sleep: concurrent callers serialize here,
// which is what keeps the spacing toward the provider.
func (r *rateLimiter) wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.delay <= 0 || r.last.IsZero() {
		r.last = time.Now()
		return nil
	}
	remaining := r.delay - time.Since(r.last)
	if remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(remaining):
		}
	}
	r.last = time.Now()
	return nil
}

// dedupeByNativeID drops records repeating a native id, keeping the
// first occurrence. Regional and paginated queries overlap routinely.
func dedupeByNativeID(raws []normalizer.RawTrail) []normalizer.RawTrail {
	seen := make(map[string]bool, len(raws))
	out := raws[:0]
	for _, raw := range raws {
		if seen[raw.NativeID] {
			continue
		}
		seen[raw.NativeID] = true
		out = append(out, raw)
	}
	return out
}

// ---- HikerDB ----

type hikerDBAPI interface {
	Search(ctx context.Context, params hikerdb.SearchParams) (*hikerdb.SearchResponse, error)
}

// defaultHikerDBAreas are queried when the caller gives no location;
// HikerDB has no global listing, only point-radius search.
var defaultHikerDBAreas = []struct {
	name     string
	lat, lng float64
}{
	{"boulder", 40.0150, -105.2705},
	{"moab", 38.5733, -109.5498},
	{"asheville", 35.5951, -82.5515},
	{"seattle", 47.6062, -122.3321},
}

const hikerDBPageSize = 50

// HikerDBAdapter fetches trails from the HikerDB API.
type HikerDBAdapter struct {
	client  hikerDBAPI
	limiter rateLimiter
}

// NewHikerDBAdapter creates an adapter over a HikerDB client.
func NewHikerDBAdapter(client *hikerdb.Client, callDelay time.Duration) *HikerDBAdapter {
	return &HikerDBAdapter{client: client, limiter: rateLimiter{delay: callDelay}}
}

func (a *HikerDBAdapter) Tag() string { return "hikerdb" }

func (a *HikerDBAdapter) FetchBatch(ctx context.Context, req FetchRequest) ([]normalizer.RawTrail, error) {
	type area struct {
		name     string
		lat, lng float64
		radius   float64
	}

	var areas []area
	if req.Location != nil {
		areas = []area{{name: req.Location.City, lat: req.Location.Latitude, lng: req.Location.Longitude, radius: req.Location.RadiusKm}}
	} else {
		for _, a := range defaultHikerDBAreas {
			areas = append(areas, area{name: a.name, lat: a.lat, lng: a.lng, radius: 50})
		}
	}

	// Dedupe as pages arrive so the cap counts unique records; adjacent
	// areas and overlapping pages repeat trails routinely.
	seen := make(map[string]bool)
	var raws []normalizer.RawTrail
	for _, ar := range areas {
		page := 1
		for len(raws) < req.MaxTrails {
			if err := a.limiter.wait(ctx); err != nil {
				return raws, nil
			}

			resp, err := a.client.Search(ctx, hikerdb.SearchParams{
				Latitude:   ar.lat,
				Longitude:  ar.lng,
				RadiusKm:   ar.radius,
				MaxResults: hikerDBPageSize,
				Page:       page,
			})
			if err != nil {
				// A flaky area must not abort the whole fetch
				log.Printf("hikerdb: area %q page %d failed, skipping: %v", ar.name, page, err)
				break
			}

			for _, t := range resp.Trails {
				raw := hikerDBToRaw(t)
				if seen[raw.NativeID] {
					continue
				}
				seen[raw.NativeID] = true
				raws = append(raws, raw)
			}

			if resp.NextPage == nil || len(resp.Trails) == 0 {
				break
			}
			page = *resp.NextPage
		}
		if len(raws) >= req.MaxTrails {
			break
		}
	}

	return raws, nil
}

func hikerDBToRaw(t hikerdb.TrailData) normalizer.RawTrail {
	return normalizer.RawTrail{
		NativeID:       strconv.Itoa(t.ID),
		Name:           t.Name,
		Description:    t.Summary,
		Latitude:       t.Latitude,
		Longitude:      t.Longitude,
		DifficultyText: t.Difficulty,
		Length:         t.LengthMiles,
		LengthUnit:     entities.LengthUnitMiles,
		ElevationGain:  t.AscentFeet,
		ElevationFeet:  true,
		Location:       t.Location,
		Rating:         t.Stars,
	}
}

// ---- Overpass ----

type overpassAPI interface {
	QueryHikingRoutes(ctx context.Context, bbox overpass.BoundingBox, limit int) ([]overpass.Element, error)
}

// defaultOverpassBBox covers the Colorado Front Range, the densest
// region for the app's initial user base.
var defaultOverpassBBox = overpass.BoundingBox{South: 39.4, West: -105.9, North: 40.3, East: -105.0}

// OverpassAdapter fetches hiking routes from an Overpass endpoint.
type OverpassAdapter struct {
	client  overpassAPI
	limiter rateLimiter
}

// NewOverpassAdapter creates an adapter over an Overpass client.
func NewOverpassAdapter(client *overpass.Client, callDelay time.Duration) *OverpassAdapter {
	return &OverpassAdapter{client: client, limiter: rateLimiter{delay: callDelay}}
}

func (a *OverpassAdapter) Tag() string { return "overpass" }

func (a *OverpassAdapter) FetchBatch(ctx context.Context, req FetchRequest) ([]normalizer.RawTrail, error) {
	bbox := defaultOverpassBBox
	if req.Location != nil {
		bbox = bboxAround(*req.Location)
	}

	if err := a.limiter.wait(ctx); err != nil {
		return nil, nil
	}

	elements, err := a.client.QueryHikingRoutes(ctx, bbox, req.MaxTrails)
	if err != nil {
		log.Printf("overpass: query failed, returning no records: %v", err)
		return nil, nil
	}

	raws := make([]normalizer.RawTrail, 0, len(elements))
	for _, el := range elements {
		raws = append(raws, overpassToRaw(el))
		if len(raws) >= req.MaxTrails {
			break
		}
	}

	return dedupeByNativeID(raws), nil
}

// bboxAround converts a point-radius location into a bounding box.
// One degree of latitude is ~111 km; longitude is close enough at the
// mid-latitudes the app serves.
func bboxAround(loc Location) overpass.BoundingBox {
	d := loc.RadiusKm / 111.0
	if d == 0 {
		d = 0.25
	}
	return overpass.BoundingBox{
		South: loc.Latitude - d,
		West:  loc.Longitude - d,
		North: loc.Latitude + d,
		East:  loc.Longitude + d,
	}
}

func overpassToRaw(el overpass.Element) normalizer.RawTrail {
	raw := normalizer.RawTrail{
		NativeID:   el.Type + "/" + strconv.FormatInt(el.ID, 10),
		Name:       el.Tags["name"],
		LengthUnit: entities.LengthUnitKilometers,
		Surface:    el.Tags["surface"],
		TrailType:  "route",
	}
	if el.Center != nil {
		raw.Latitude = el.Center.Lat
		raw.Longitude = el.Center.Lon
	}
	if desc, ok := el.Tags["description"]; ok {
		raw.Description = desc
	}
	// sac_scale is the closest OSM analog to a difficulty grade
	if sac, ok := el.Tags["sac_scale"]; ok {
		raw.DifficultyText = sacScaleToText(sac)
	}
	if dist, ok := el.Tags["distance"]; ok {
		raw.Length = parseDistanceKm(dist)
	}
	return raw
}

// sacScaleToText maps OSM sac_scale values onto difficulty vocabulary
// the standardization table understands.
func sacScaleToText(sac string) string {
	switch sac {
	case "hiking":
		return "easy"
	case "mountain_hiking":
		return "moderate"
	case "demanding_mountain_hiking":
		return "hard"
	case "alpine_hiking", "demanding_alpine_hiking", "difficult_alpine_hiking":
		return "expert"
	}
	return sac
}

// parseDistanceKm extracts the numeric part of an OSM distance tag.
// Values come as "12", "12.5", or "12.5 km".
func parseDistanceKm(value string) float64 {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0
	}
	km, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return km
}

// ---- Geo-survey ----

type geoSurveyAPI interface {
	RegionTrails(ctx context.Context, region string, limit int) ([]geosurvey.TrailRecord, error)
}

// GeoSurveyAdapter fetches trails from the geo-survey per-region API.
type GeoSurveyAdapter struct {
	client  geoSurveyAPI
	regions []string
	limiter rateLimiter
}

// NewGeoSurveyAdapter creates an adapter over a geo-survey client
// querying the given regions.
func NewGeoSurveyAdapter(client *geosurvey.Client, regions []string, callDelay time.Duration) *GeoSurveyAdapter {
	return &GeoSurveyAdapter{client: client, regions: regions, limiter: rateLimiter{delay: callDelay}}
}

func (a *GeoSurveyAdapter) Tag() string { return "geosurvey" }

func (a *GeoSurveyAdapter) FetchBatch(ctx context.Context, req FetchRequest) ([]normalizer.RawTrail, error) {
	var raws []normalizer.RawTrail

	for _, region := range a.regions {
		if len(raws) >= req.MaxTrails {
			break
		}
		if err := a.limiter.wait(ctx); err != nil {
			break
		}

		records, err := a.client.RegionTrails(ctx, region, req.MaxTrails-len(raws))
		if err != nil {
			// Regional outages are routine; skip and keep going
			log.Printf("geosurvey: region %q failed, skipping: %v", region, err)
			continue
		}

		for _, rec := range records {
			raws = append(raws, geoSurveyToRaw(rec))
		}
	}

	return dedupeByNativeID(raws), nil
}

func geoSurveyToRaw(rec geosurvey.TrailRecord) normalizer.RawTrail {
	return normalizer.RawTrail{
		NativeID:        rec.TrailID,
		Name:            rec.TrailName,
		Description:     rec.Notes,
		Latitude:        rec.Lat,
		Longitude:       rec.Lon,
		DifficultyText:  rec.DifficultyRaw,
		Length:          rec.LengthKm,
		LengthUnit:      entities.LengthUnitKilometers,
		ElevationGain:   rec.ElevGainM,
		Location:        rec.Region,
		StateOrProvince: rec.State,
		Surface:         rec.Surface,
		RawGeometry:     rec.Geometry,
	}
}
