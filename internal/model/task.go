package model

import "time"

type Task struct {
	ID          int64     `json:"id"`
	Link        string    `json:"link"`
	Description string    `json:"description"`
	Points      int       `json:"points"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// CompletedTask links a student to a task exactly once. PointsCredited
// flips when the reward lands on the balance; a row with the flag unset is
// a completion whose credit is still pending.
type CompletedTask struct {
	ID             string     `json:"id"`
	UserID         int64      `json:"user_id"`
	TaskID         int64      `json:"task_id"`
	PointsCredited bool       `json:"points_credited"`
	CompletedAt    time.Time  `json:"completed_at"`
	CreditedAt     *time.Time `json:"credited_at,omitempty"`
}
