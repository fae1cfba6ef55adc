package model

import "time"

// AppSetting is a remote key/value configuration row (premium price,
// referral reward, ad response limit, announcement text).
type AppSetting struct {
	SettingKey   string    `json:"setting_key"`
	SettingValue string    `json:"setting_value"`
	Description  string    `json:"description,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}
