package model

import "time"

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of the tutor conversation, kept locally so the
// thread survives restarts.
type ChatMessage struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}
