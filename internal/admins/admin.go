package admins

import (
	"strings"
	"time"
)

// Admin is a site operator allowed to manage posts, comments, and contact messages.
type Admin struct {
	Username     string     `gorm:"column:username;primaryKey;size:64;not null"`
	PasswordHash string     `gorm:"column:password_hash;size:128;not null"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing admin accounts.
func (Admin) TableName() string {
	return "admins"
}

func normalizeUsername(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
