package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hikeshare/importer/internal/config"
	"github.com/hikeshare/importer/internal/database"
	"github.com/hikeshare/importer/internal/database/jobs"
	"github.com/hikeshare/importer/internal/database/trails"
	"github.com/hikeshare/importer/internal/importer"
	"github.com/hikeshare/importer/internal/providers/geosurvey"
	"github.com/hikeshare/importer/internal/providers/hikerdb"
	"github.com/hikeshare/importer/internal/providers/overpass"
)

// ImportTrailsCommand runs a one-shot import synchronously, without the
// HTTP server or task queue.
type ImportTrailsCommand struct {
	Sources      string
	MaxPerSource int
	BatchSize    int
	DatabasePath string
	Latitude     float64
	Longitude    float64
	RadiusKm     float64
	City         string
	State        string
	Verbose      bool
}

func NewImportTrailsCommand() *ImportTrailsCommand {
	return &ImportTrailsCommand{}
}

func (cmd *ImportTrailsCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("import-trails", flag.ExitOnError)

	fs.StringVar(&cmd.Sources, "sources", "hikerdb", "Comma-separated source tags: hikerdb, overpass, geosurvey")
	fs.IntVar(&cmd.MaxPerSource, "max", config.DefaultMaxTrailsPerSource, "Maximum trails to import per source")
	fs.IntVar(&cmd.BatchSize, "batch", config.DefaultBatchSize, "Database write batch size")
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the local database file")
	fs.Float64Var(&cmd.Latitude, "lat", 0, "Search center latitude (optional)")
	fs.Float64Var(&cmd.Longitude, "lng", 0, "Search center longitude (optional)")
	fs.Float64Var(&cmd.RadiusKm, "radius", 0, "Search radius in kilometers (optional)")
	fs.StringVar(&cmd.City, "city", "", "City name for the import target (optional)")
	fs.StringVar(&cmd.State, "state", "", "State code for the import target (optional)")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Enable verbose logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s import-trails [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Run a trail import synchronously and print a summary.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Import up to 100 trails from HikerDB:\n")
		fmt.Fprintf(os.Stderr, "  %s import-trails -sources hikerdb -max 100\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Import around Boulder, CO from every source:\n")
		fmt.Fprintf(os.Stderr, "  %s import-trails -sources hikerdb,overpass,geosurvey -lat 40.015 -lng -105.2705 -radius 30 -city Boulder -state CO\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(cmd.Sources) == "" {
		return fmt.Errorf("required flag -sources not provided")
	}

	return nil
}

func (cmd *ImportTrailsCommand) Run() error {
	fmt.Println("Trail Import")
	fmt.Println("============")

	cfg := config.NewConfig()

	absDBPath, err := filepath.Abs(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for database: %w", err)
	}

	fmt.Printf("Database: %s\n", absDBPath)

	db, err := database.NewDatabase(absDBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	jobsRepo := jobs.NewRepository(db.DB)
	trailsRepo := trails.NewRepository(db.DB)

	adapters := []importer.SourceAdapter{
		importer.NewHikerDBAdapter(hikerdb.NewClient(cfg.HikerDB.APIKey, cfg.HikerDB.BaseURL), cfg.Import.CallDelay),
		importer.NewOverpassAdapter(overpass.NewClient(cfg.Overpass.BaseURL), cfg.Import.CallDelay),
		importer.NewGeoSurveyAdapter(geosurvey.NewClient(cfg.GeoSurvey.BaseURL), cfg.GeoSurvey.Regions, cfg.Import.CallDelay),
	}

	writer := importer.NewBatchWriter(trailsRepo, jobsRepo, cmd.BatchSize)
	orchestrator := importer.NewOrchestrator(jobsRepo, writer, adapters, cfg.Import.Workers)

	req := importer.ImportRequest{
		Sources:            splitSources(cmd.Sources),
		MaxTrailsPerSource: cmd.MaxPerSource,
		BatchSize:          cmd.BatchSize,
	}
	if cmd.Latitude != 0 || cmd.Longitude != 0 || cmd.City != "" {
		req.Location = &importer.Location{
			Latitude:  cmd.Latitude,
			Longitude: cmd.Longitude,
			RadiusKm:  cmd.RadiusKm,
			City:      cmd.City,
			State:     cmd.State,
		}
	}

	for _, tag := range req.Sources {
		if !orchestrator.KnownSource(tag) {
			return fmt.Errorf("unknown source: %s", tag)
		}
	}

	job, created, err := orchestrator.StartImport(req)
	if err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}
	if !created {
		fmt.Printf("An import for this target is already running (job %s)\n", job.ID)
		return nil
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("Sources: %s\n", strings.Join(req.Sources, ", "))
	fmt.Println("\nImporting...")

	if err := orchestrator.Run(context.Background(), job.ID, req); err != nil {
		return fmt.Errorf("import run failed: %w", err)
	}

	final, err := jobsRepo.GetJob(job.ID)
	if err != nil {
		return fmt.Errorf("failed to load job result: %w", err)
	}

	fmt.Println("\n=== Import Summary ===")
	fmt.Printf("Status: %s\n", final.Status)
	fmt.Printf("Processed: %d\n", final.TrailsProcessed)
	fmt.Printf("Added: %d\n", final.TrailsAdded)
	fmt.Printf("Updated: %d\n", final.TrailsUpdated)
	fmt.Printf("Failed: %d\n", final.TrailsFailed)
	if final.Message != "" {
		fmt.Printf("Message: %s\n", final.Message)
	}

	if cmd.Verbose {
		total, err := trailsRepo.Count()
		if err == nil {
			fmt.Printf("\nTrails in database: %d\n", total)
		}
	}

	return nil
}

func splitSources(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
