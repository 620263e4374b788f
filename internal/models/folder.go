package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Folder struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `json:"userId" gorm:"type:uuid;index;not null"`
	Name       string    `json:"name" gorm:"size:255;not null"`
	CreatedAt  time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UniqueLink uuid.UUID `json:"uniqueLink" gorm:"type:uuid;uniqueIndex;not null"`
	Files      []File    `json:"files" gorm:"foreignKey:ParentFolderID;constraint:OnDelete:CASCADE"`
}

func (f *Folder) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.UniqueLink == uuid.Nil {
		f.UniqueLink = uuid.New()
	}
	return nil
}
