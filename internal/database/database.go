package database

import (
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hikeshare/importer/internal/entities"
)

var defaultProviders = []entities.ProviderSource{
	{Name: "hikerdb", DisplayName: "HikerDB"},
	{Name: "overpass", DisplayName: "OpenStreetMap Overpass"},
	{Name: "geosurvey", DisplayName: "National Geo-Survey Trails"},
}

type Database struct {
	DB *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate all entities
	err = db.AutoMigrate(
		&entities.ProviderSource{},
		&entities.Trail{},
		&entities.ImportJob{},
		&entities.BulkImportJob{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	database := &Database{DB: db}

	if err := database.seedProviders(); err != nil {
		return nil, fmt.Errorf("failed to seed providers: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return database, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Database) seedProviders() error {
	for _, provider := range defaultProviders {
		var existing entities.ProviderSource
		result := d.DB.Where("name = ?", provider.Name).First(&existing)
		if result.Error == gorm.ErrRecordNotFound {
			if err := d.DB.Create(&provider).Error; err != nil {
				return fmt.Errorf("failed to create provider %s: %w", provider.Name, err)
			}
			log.Printf("Created provider source: %s", provider.DisplayName)
		}
	}
	return nil
}

func (d *Database) GetProviderByName(name string) (*entities.ProviderSource, error) {
	var provider entities.ProviderSource
	err := d.DB.Where("name = ?", name).First(&provider).Error
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

func (d *Database) GetAllProviders() ([]entities.ProviderSource, error) {
	var providers []entities.ProviderSource
	err := d.DB.Find(&providers).Error
	return providers, err
}
