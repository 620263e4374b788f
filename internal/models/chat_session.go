package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatSession holds one user's sealed transcript. Plaintext never reaches
// this table.
type ChatSession struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     uuid.UUID `json:"userId" gorm:"type:uuid;uniqueIndex;not null"`
	Ciphertext []byte    `json:"-" gorm:"not null"`
	CreatedAt  time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// Turn is one transcript entry.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Valid reports whether both fields are non-empty.
func (t Turn) Valid() bool {
	return t.Role != "" && t.Content != ""
}
