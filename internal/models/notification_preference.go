package models

// Delivery channels for notification preferences.
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
	ChannelInApp = "in_app"
)

// KnownChannel reports whether the supplied channel name is recognised.
func KnownChannel(channel string) bool {
	switch channel {
	case ChannelEmail, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

// NotificationPreference is a per-user delivery toggle for one notification
// type on one channel. At most one row exists per (user, type, channel);
// absence of a row means the channel is enabled.
type NotificationPreference struct {
	BaseModel

	UserID           string `gorm:"type:uuid;not null;uniqueIndex:idx_user_type_channel" json:"user_id"`
	NotificationType string `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_type_channel" json:"notification_type"`
	Channel          string `gorm:"type:varchar(20);not null;uniqueIndex:idx_user_type_channel" json:"channel"`
	Enabled          bool   `gorm:"default:true" json:"enabled"`

	User *User `json:"-"`
}
