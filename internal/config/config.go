package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Import
		HikerDB
		Overpass
		GeoSurvey
		Tasks
		ImportSync
		Progress
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	Import struct {
		BatchSize          int
		Workers            int
		MaxTrailsPerSource int
		CallDelay          time.Duration // fixed delay between calls to the same provider
	}
	HikerDB struct {
		APIKey  string
		BaseURL string
	}
	Overpass struct {
		BaseURL string
	}
	GeoSurvey struct {
		BaseURL string
		Regions []string
	}
	Tasks struct {
		Enabled           bool
		Workers           int
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
	ImportSync struct {
		Enabled  bool
		Schedule string // Cron format: "0 3 * * *" = daily at 03:00
		Sources  []string
	}
	Progress struct {
		PollInterval time.Duration
		MaxWatch     time.Duration
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8189)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)

	v.SetDefault("import_batch_size", DefaultBatchSize)
	v.SetDefault("import_workers", DefaultImportWorkers)
	v.SetDefault("import_max_trails_per_source", DefaultMaxTrailsPerSource)
	v.SetDefault("import_call_delay", DefaultCallDelay)

	v.SetDefault("hikerdb_api_key", "")
	v.SetDefault("hikerdb_base_url", "https://api.hikerdb.com/v1")
	v.SetDefault("overpass_base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("geosurvey_base_url", "https://trails.geosurvey.gov/api")
	v.SetDefault("geosurvey_regions", []string{"north", "central", "south"})

	v.SetDefault("tasks_enabled", true)
	v.SetDefault("tasks_workers", 2)
	v.SetDefault("tasks_release_after", 15*time.Minute)
	v.SetDefault("tasks_cleanup_interval", time.Hour)
	v.SetDefault("tasks_retention_duration", 7*24*time.Hour)

	v.SetDefault("import_sync_enabled", false)
	v.SetDefault("import_sync_schedule", "0 3 * * *") // Daily at 03:00
	v.SetDefault("import_sync_sources", []string{"hikerdb"})

	v.SetDefault("progress_poll_interval", 5*time.Second)
	v.SetDefault("progress_max_watch", 2*time.Hour)

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("port"),
			Host: v.GetString("host"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("shutdown_timeout_in_seconds"),
		},
		Database: Database{
			Path: v.GetString("database_path"),
		},
		Import: Import{
			BatchSize:          v.GetInt("import_batch_size"),
			Workers:            v.GetInt("import_workers"),
			MaxTrailsPerSource: v.GetInt("import_max_trails_per_source"),
			CallDelay:          v.GetDuration("import_call_delay"),
		},
		HikerDB: HikerDB{
			APIKey:  v.GetString("hikerdb_api_key"),
			BaseURL: v.GetString("hikerdb_base_url"),
		},
		Overpass: Overpass{
			BaseURL: v.GetString("overpass_base_url"),
		},
		GeoSurvey: GeoSurvey{
			BaseURL: v.GetString("geosurvey_base_url"),
			Regions: v.GetStringSlice("geosurvey_regions"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("tasks_enabled"),
			Workers:           v.GetInt("tasks_workers"),
			ReleaseAfter:      v.GetDuration("tasks_release_after"),
			CleanupInterval:   v.GetDuration("tasks_cleanup_interval"),
			RetentionDuration: v.GetDuration("tasks_retention_duration"),
		},
		ImportSync: ImportSync{
			Enabled:  v.GetBool("import_sync_enabled"),
			Schedule: v.GetString("import_sync_schedule"),
			Sources:  v.GetStringSlice("import_sync_sources"),
		},
		Progress: Progress{
			PollInterval: v.GetDuration("progress_poll_interval"),
			MaxWatch:     v.GetDuration("progress_max_watch"),
		},
	}
}
