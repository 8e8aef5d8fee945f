package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is a durable in-app notification owned by a single user.
// The read flag is derived from ReadAt: a non-nil timestamp means read.
type Notification struct {
	BaseModel

	UserID string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Type   string         `gorm:"type:varchar(64);not null" json:"type"`
	Data   datatypes.JSON `json:"data"`

	ReadAt *time.Time `gorm:"index" json:"read_at"`

	// IssuerID identifies who triggered the notification. Nil means the system.
	IssuerID *string `gorm:"type:uuid" json:"issuer_id,omitempty"`

	User   *User `json:"-"`
	Issuer *User `gorm:"foreignKey:IssuerID" json:"-"`
}

// IsRead reports whether the notification has been read.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// SetRead stamps or clears ReadAt. Setting an already-held state is a no-op so
// the original read timestamp is never refreshed.
func (n *Notification) SetRead(read bool) bool {
	if read == n.IsRead() {
		return false
	}
	if read {
		now := time.Now().UTC()
		n.ReadAt = &now
	} else {
		n.ReadAt = nil
	}
	return true
}
