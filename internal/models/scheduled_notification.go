package models

import (
	"time"

	"gorm.io/datatypes"
)

// ScheduledNotification is a notification created ahead of time and delivered
// by the periodic sweep once ScheduledFor has passed. Once Sent flips to true
// the row is never delivered again.
type ScheduledNotification struct {
	BaseModel

	UserID string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Type   string         `gorm:"type:varchar(64);not null" json:"type"`
	Data   datatypes.JSON `json:"data"`

	ScheduledFor time.Time  `gorm:"not null;index:idx_due,priority:1" json:"scheduled_for"`
	Sent         bool       `gorm:"default:false;index:idx_due,priority:2" json:"sent"`
	SentAt       *time.Time `json:"sent_at"`

	User *User `json:"-"`
}
