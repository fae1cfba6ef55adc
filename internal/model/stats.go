package model

// LeaderboardEntry is a read-only projection of students ordered by points
// descending. Rank is the 1-based position in that ordering.
type LeaderboardEntry struct {
	Name                string `json:"name"`
	Points              int    `json:"points"`
	Riyal               int    `json:"riyal"`
	SuccessfulReferrals int    `json:"successful_referrals"`
	QuestionsCount      int    `json:"questions_count"`
	Rank                int    `json:"rank"`
}

type AppStatistics struct {
	TotalUsers          int `json:"total_users"`
	PremiumUsers        int `json:"premium_users"`
	NewUsersToday       int `json:"new_users_today"`
	TotalPoints         int `json:"total_points"`
	TotalRiyal          int `json:"total_riyal"`
	TotalQuestions      int `json:"total_questions"`
	TotalCompletedTasks int `json:"total_completed_tasks"`
}
