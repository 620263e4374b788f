package models

// Package is a pricing tier. Rows are seeded at startup and treated as
// read-only reference data.
type Package struct {
	ID              uint   `json:"id" gorm:"primaryKey"`
	Name            string `json:"name" gorm:"size:20;uniqueIndex;not null"`
	MaxUploadSize   int64  `json:"maxUploadSize" gorm:"not null"` // bytes
	PriceCents      int64  `json:"priceCents" gorm:"not null;default:0"`
	ChatEnabled     bool   `json:"chatEnabled" gorm:"default:false"`
	ImageGenEnabled bool   `json:"imageGenEnabled" gorm:"default:false"`
}
