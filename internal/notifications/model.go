package notifications

import "time"

// Notification is one entry in a user's notification tray.
type Notification struct {
	NotificationID   string `gorm:"column:notification_id;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;size:190;not null;index:idx_notifications_user_time,priority:1"`
	Kind             string `gorm:"column:kind;size:64;not null"`
	Body             string `gorm:"column:body;type:text;not null"`
	SquadID          string `gorm:"column:squad_id;size:190"`
	ResourceID       string `gorm:"column:resource_id;size:190"`
	IsRead           bool   `gorm:"column:is_read;not null;default:false"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_notifications_user_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}

// RecordID identifies the notification within a tray store.
func (n Notification) RecordID() string {
	return n.NotificationID
}

// RecordScope is the recipient partitioning tray subscriptions.
func (n Notification) RecordScope() string {
	return n.UserID
}

// RecordCreatedAt is the feed ordering timestamp.
func (n Notification) RecordCreatedAt() time.Time {
	return time.Unix(n.CreatedAtSeconds, 0).UTC()
}
