package models

import "time"

// User represents an account that owns provider keys and prompts.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	TOTPSecret string `gorm:"type:text"` // TOTP secret for MFA.

	Active bool `gorm:"not null;default:true"` // Whether the user can sign in.

	APIKeys []ProviderAPIKey `gorm:"foreignKey:OwnerID"` // Related provider keys.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
