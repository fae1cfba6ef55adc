package model

import "time"

type SupportMessage struct {
	ID         string     `json:"id"`
	UserID     int64      `json:"user_id"`
	Message    string     `json:"message"`
	Reply      string     `json:"reply,omitempty"`
	IsAnswered bool       `json:"is_answered"`
	CreatedAt  time.Time  `json:"created_at"`
	RepliedAt  *time.Time `json:"replied_at,omitempty"`
}
