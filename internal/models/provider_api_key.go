package models

import "time"

// Role names the purpose a provider key is activated for.
type Role string

// Key roles.
const (
	RoleGen     Role = "gen"
	RoleImprove Role = "improve"
	RoleVision  Role = "vision"
)

// Roles lists every role in display order.
var Roles = []Role{RoleGen, RoleImprove, RoleVision}

// ParseRole validates a role name. Empty input yields RoleGen.
func ParseRole(value string) (Role, bool) {
	switch Role(value) {
	case "":
		return RoleGen, true
	case RoleGen, RoleImprove, RoleVision:
		return Role(value), true
	default:
		return "", false
	}
}

// RoleModels holds the default model per role.
type RoleModels struct {
	Gen     string `gorm:"type:text" json:"gen"`
	Improve string `gorm:"type:text" json:"improve"`
	Vision  string `gorm:"type:text" json:"vision"`
}

// RoleFlags marks which roles a key is active for.
type RoleFlags struct {
	Gen     bool `gorm:"not null;default:false" json:"gen"`
	Improve bool `gorm:"not null;default:false" json:"improve"`
	Vision  bool `gorm:"not null;default:false" json:"vision"`
}

// Has reports whether role is active.
func (f RoleFlags) Has(role Role) bool {
	switch role {
	case RoleGen:
		return f.Gen
	case RoleImprove:
		return f.Improve
	case RoleVision:
		return f.Vision
	default:
		return false
	}
}

// Column returns the database column backing the flag for role.
func (RoleFlags) Column(role Role) string {
	return "active_" + string(role)
}

// ProviderAPIKey stores one owner's encrypted credential for an upstream provider.
type ProviderAPIKey struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"` // Primary key.

	OwnerID  uint64 `gorm:"not null;uniqueIndex:idx_api_keys_owner_provider" json:"owner_id"`                  // Owning user.
	Provider string `gorm:"type:varchar(64);not null;uniqueIndex:idx_api_keys_owner_provider" json:"provider"` // Provider name.

	Ciphertext string `gorm:"type:text;not null" json:"-"` // Vault blob base64(nonce||ct||tag); never serialized.
	IV         string `gorm:"type:text" json:"iv"`         // Nonce copy (base64).
	AuthTag    string `gorm:"type:text" json:"auth_tag"`   // GCM tag copy (base64).
	KeyHint    string `gorm:"type:text" json:"key_hint"`   // Last characters of the plaintext key.

	ModelDefaults RoleModels `gorm:"embedded;embeddedPrefix:default_model_" json:"model_defaults"` // Default model per role.
	ActiveRoles   RoleFlags  `gorm:"embedded;embeddedPrefix:active_" json:"active_roles"`          // Roles this key serves.

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"` // Last update timestamp.
}

// TableName overrides the default table name.
func (ProviderAPIKey) TableName() string {
	return "api_keys"
}
