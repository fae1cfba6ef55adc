package model

import "time"

type Question struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"user_id"`
	Question     string    `json:"question"`
	QuestionType string    `json:"question_type"`
	CreatedAt    time.Time `json:"created_at"`
}
