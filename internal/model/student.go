package model

import "time"

type Student struct {
	ID                  string    `json:"id"`
	TelegramID          int64     `json:"telegram_id"`
	Name                string    `json:"name"`
	EducationStage      string    `json:"education_stage"`
	Country             string    `json:"country"`
	VerificationCode    string    `json:"verification_code"`
	ReferralCode        string    `json:"referral_code,omitempty"`
	Points              int       `json:"points"`
	Riyal               int       `json:"riyal"`
	IsPremium           bool      `json:"is_premium"`
	IsGiftPremium       bool      `json:"is_gift_premium"`
	IsManager           bool      `json:"is_manager"`
	SuccessfulReferrals int       `json:"successful_referrals"`
	QuestionsCount      int       `json:"questions_count"`
	AdsResponseCount    int       `json:"ads_response_count"`
	LastActivity        time.Time `json:"last_activity"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// StudentStats is the per-student profile summary shown on the stats page.
type StudentStats struct {
	Name                string    `json:"name"`
	EducationStage      string    `json:"education_stage"`
	Country             string    `json:"country"`
	VerificationCode    string    `json:"verification_code"`
	Points              int       `json:"points"`
	Riyal               int       `json:"riyal"`
	IsPremium           bool      `json:"is_premium"`
	QuestionsCount      int       `json:"questions_count"`
	CompletedTasks      int       `json:"completed_tasks"`
	SuccessfulReferrals int       `json:"successful_referrals"`
	MemberSince         time.Time `json:"member_since"`
	LastActivity        time.Time `json:"last_activity"`
}
