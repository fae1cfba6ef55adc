package model

import "time"

// Notification type constants
const (
	NotifTypeNewTask         = "new_task"
	NotifTypeInactivityNudge = "inactivity_nudge"
	NotifTypeSupportReply    = "support_reply"
)

// NotificationPreference is a per-student opt-in flag for one notification
// type. Absence of a row means enabled.
type NotificationPreference struct {
	ID               int64     `json:"id"`
	TelegramID       int64     `json:"telegram_id"`
	NotificationType string    `json:"notification_type"`
	Enabled          bool      `json:"enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type PushSubscription struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}
