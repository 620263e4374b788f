package repositories

import (
	"errors"
	"fmt"

	"github.com/rohits-web03/nimbus/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDatabase opens the PostgreSQL database, migrates it and seeds the
// package catalog.
func ConnectDatabase(dsn string, log *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DB_URL is not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	if err := SeedPackages(db); err != nil {
		return nil, err
	}
	log.Info("Successfully connected to database")
	return db, nil
}

// Migrate creates or updates every table the service uses.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Package{},
		&models.User{},
		&models.Folder{},
		&models.File{},
		&models.Transaction{},
		&models.ChatSession{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// DefaultPackages is the catalog written into an empty packages table.
// The first entry gets the lowest id and becomes the default tier.
var DefaultPackages = []models.Package{
	{Name: "Free", MaxUploadSize: 100 << 20, PriceCents: 0},
	{Name: "Basic", MaxUploadSize: 1 << 30, PriceCents: 19900, ChatEnabled: true},
	{Name: "Pro", MaxUploadSize: 10 << 30, PriceCents: 49900, ChatEnabled: true, ImageGenEnabled: true},
}

func SeedPackages(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Package{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count packages: %w", err)
	}
	if count > 0 {
		return nil
	}
	pkgs := make([]models.Package, len(DefaultPackages))
	copy(pkgs, DefaultPackages)
	if err := db.Create(&pkgs).Error; err != nil {
		return fmt.Errorf("seed packages: %w", err)
	}
	return nil
}
