package model

import (
	"time"
)

// Association represents one tracked QR short-link
type Association struct {
	ID  int64  `gorm:"primaryKey" json:"id"`
	Key string `gorm:"uniqueIndex;type:varchar(100);not null" json:"key"`
	URL string `gorm:"type:varchar(2048);not null" json:"url"`
	// QRStyleConfig holds the serialized style options as stored; nil means
	// system defaults. Resolution against defaults happens at read time.
	QRStyleConfig *string   `gorm:"type:varchar(2048)" json:"qr_style_config,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Association
func (Association) TableName() string {
	return "associations"
}

// Stats represents the tracking and auth record for one Association
type Stats struct {
	ID            int64  `gorm:"primaryKey" json:"id"`
	AssociationID int64  `gorm:"uniqueIndex;not null" json:"association_id"`
	Key           string `gorm:"index;type:varchar(100);not null" json:"key"`
	// PasswordHash is a bcrypt hash; nil means the resource is unprotected.
	// Plaintext is never persisted.
	PasswordHash *string      `gorm:"type:varchar(100)" json:"-"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
	Impressions  []Impression `gorm:"foreignKey:StatsID" json:"impressions,omitempty"`
}

// TableName specifies the table name for Stats
func (Stats) TableName() string {
	return "stats"
}

// Protected reports whether a password gate applies to this record
func (s *Stats) Protected() bool {
	return s.PasswordHash != nil
}

// Impression represents a single redirect event
type Impression struct {
	ID       int64     `gorm:"primaryKey" json:"id"`
	StatsID  int64     `gorm:"index;not null" json:"stats_id"`
	Datetime time.Time `gorm:"index;not null" json:"datetime"`
}

// TableName specifies the table name for Impression
func (Impression) TableName() string {
	return "impressions"
}
