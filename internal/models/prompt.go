package models

import "time"

// Prompt is a saved prompt row served by the generic table API.
type Prompt struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	OwnerID  uint64 `gorm:"not null;index" json:"owner_id"`
	Title    string `gorm:"type:text;not null" json:"title"`
	Body     string `gorm:"type:text" json:"body"`
	Provider string `gorm:"type:varchar(64);index" json:"provider"`
	Model    string `gorm:"type:text" json:"model"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
