package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/rohits-web03/nimbus/internal/models"
	"gorm.io/gorm"
)

// Catalog reads the package tiers.
type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) List(ctx context.Context) ([]models.Package, error) {
	var pkgs []models.Package
	if err := c.db.WithContext(ctx).Order("id").Find(&pkgs).Error; err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	return pkgs, nil
}

func (c *Catalog) Get(ctx context.Context, id uint) (*models.Package, error) {
	var pkg models.Package
	err := c.db.WithContext(ctx).First(&pkg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Invalid package ID")
	}
	if err != nil {
		return nil, fmt.Errorf("get package %d: %w", id, err)
	}
	return &pkg, nil
}

// Default returns the tier new users start on, the one with the lowest id.
// It returns nil when the catalog is empty.
func (c *Catalog) Default(ctx context.Context) (*models.Package, error) {
	var pkg models.Package
	err := c.db.WithContext(ctx).Order("id").Limit(1).Find(&pkg).Error
	if err != nil {
		return nil, fmt.Errorf("default package: %w", err)
	}
	if pkg.ID == 0 {
		return nil, nil
	}
	return &pkg, nil
}
