package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type File struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID  `json:"userId" gorm:"type:uuid;index;not null"`
	BlobKey        string     `json:"-" gorm:"size:1024;not null"` // blob store key
	Filename       string     `json:"filename" gorm:"size:255;not null"`
	Size           int64      `json:"size" gorm:"not null"` // bytes actually stored
	ContentType    string     `json:"contentType" gorm:"size:255"`
	UploadedAt     time.Time  `json:"uploadedAt" gorm:"autoCreateTime"`
	ParentFolderID *uuid.UUID `json:"parentFolder" gorm:"type:uuid;index"`
	UniqueLink     uuid.UUID  `json:"uniqueLink" gorm:"type:uuid;uniqueIndex;not null"`
}

func (f *File) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.UniqueLink == uuid.Nil {
		f.UniqueLink = uuid.New()
	}
	return nil
}
