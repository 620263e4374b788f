package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Transaction struct {
	ID        uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID         `json:"userId" gorm:"type:uuid;index;not null"`
	PackageID uint              `json:"packageId" gorm:"not null"`
	Package   Package           `json:"package" gorm:"constraint:OnDelete:CASCADE"`
	Ref       string            `json:"ref" gorm:"size:100;uniqueIndex;not null"`
	Amount    int64             `json:"amount" gorm:"not null"` // whole currency units
	Status    TransactionStatus `json:"status" gorm:"size:20;not null;default:pending"`
	CreatedAt time.Time         `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time         `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
