package models

import "time"

// ProxyCall records one upstream request made on behalf of a user.
type ProxyCall struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"` // Primary key.

	UserID   uint64 `gorm:"not null;index:idx_proxy_calls_user_time,priority:1" json:"user_id"` // Calling user.
	KeyID    uint64 `gorm:"not null;default:0" json:"key_id"`                                   // Provider key used.
	Provider string `gorm:"type:varchar(64);not null;index" json:"provider"`                    // Upstream provider.
	Endpoint string `gorm:"type:text;not null" json:"endpoint"`                                 // Path relative to the provider base URL.
	Method   string `gorm:"type:varchar(16);not null" json:"method"`                            // HTTP method.
	Role     string `gorm:"type:varchar(16);not null" json:"role"`                              // Key role.

	Status    int   `gorm:"not null" json:"status"`                   // Status returned to the caller.
	Failed    bool  `gorm:"not null;default:false" json:"failed"`     // Upstream error or non-2xx.
	LatencyMs int64 `gorm:"not null;default:0" json:"latency_ms"`     // Upstream round trip.
	BytesOut  int64 `gorm:"not null;default:0" json:"response_bytes"` // Response body size.

	RequestedAt time.Time `gorm:"not null;index:idx_proxy_calls_user_time,priority:2" json:"requested_at"` // When the call started.
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`                               // Insert time.
}
