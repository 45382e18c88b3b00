package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hikeshare/importer/internal/config"
	"github.com/hikeshare/importer/internal/database"
	"github.com/hikeshare/importer/internal/database/jobs"
	"github.com/hikeshare/importer/internal/database/trails"
	http_controllers "github.com/hikeshare/importer/internal/http"
	"github.com/hikeshare/importer/internal/importer"
	"github.com/hikeshare/importer/internal/progress"
	"github.com/hikeshare/importer/internal/providers/geosurvey"
	"github.com/hikeshare/importer/internal/providers/hikerdb"
	"github.com/hikeshare/importer/internal/providers/overpass"
	"github.com/hikeshare/importer/internal/scheduler"
	"github.com/hikeshare/importer/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		fmt.Printf("Starting server at %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
		// service connections
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Call shutdown callback first (e.g., to stop task queue)
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting HikeShare importer v%s", version)

	if cfg.HikerDB.APIKey == "" {
		log.Printf("WARNING: HikerDB API key is not set. HikerDB imports will fail. Set 'HIKERDB_API_KEY' environment variable to enable.")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	jobsRepo := jobs.NewRepository(db.DB)
	trailsRepo := trails.NewRepository(db.DB)

	// Provider clients and their source adapters
	hikerDBClient := hikerdb.NewClient(cfg.HikerDB.APIKey, cfg.HikerDB.BaseURL)
	overpassClient := overpass.NewClient(cfg.Overpass.BaseURL)
	geoSurveyClient := geosurvey.NewClient(cfg.GeoSurvey.BaseURL)

	adapters := []importer.SourceAdapter{
		importer.NewHikerDBAdapter(hikerDBClient, cfg.Import.CallDelay),
		importer.NewOverpassAdapter(overpassClient, cfg.Import.CallDelay),
		importer.NewGeoSurveyAdapter(geoSurveyClient, cfg.GeoSurvey.Regions, cfg.Import.CallDelay),
	}

	writer := importer.NewBatchWriter(trailsRepo, jobsRepo, cfg.Import.BatchSize)
	orchestrator := importer.NewOrchestrator(jobsRepo, writer, adapters, cfg.Import.Workers)

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	var dispatcher *tasks.Dispatcher
	if cfg.Tasks.Enabled {
		taskCfg := tasks.Config{
			Workers:           cfg.Tasks.Workers,
			ReleaseAfter:      cfg.Tasks.ReleaseAfter,
			CleanupInterval:   cfg.Tasks.CleanupInterval,
			RetentionDuration: cfg.Tasks.RetentionDuration,
		}

		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewRunImportQueue(orchestrator),
			tasks.NewRunBulkImportQueue(orchestrator),
		)

		dispatcher = tasks.NewDispatcher(taskClient)

		// Start task workers in background
		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	} else {
		log.Printf("Task queue disabled: import triggers will be rejected")
	}

	// Scheduled refresh imports
	importSync := scheduler.NewImportSyncScheduler(orchestrator, dispatcher, cfg.ImportSync)
	if err := importSync.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start import sync scheduler: %v", err)
	}

	reporter := progress.NewReporter(jobsRepo, cfg.Progress.PollInterval, cfg.Progress.MaxWatch)

	routerCfg := http_controllers.RouterConfig{
		DB:         db,
		Starter:    orchestrator,
		Dispatcher: dispatcher,
		JobReader:  jobsRepo,
		Reporter:   reporter,
		Version:    version,
	}

	router := http_controllers.NewRouter(routerCfg)

	// Shutdown callback for graceful cleanup
	onShutdown := func(ctx context.Context) {
		importSync.Stop()
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}
