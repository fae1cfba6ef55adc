package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/manhaj-ai/miniapp/internal/model"
)

// StudentCacheStore keeps the last-known snapshot of each student's remote
// row. Reads served from here may be stale; balances are only trusted from
// the remote store.
type StudentCacheStore struct {
	db *sql.DB
}

func NewStudentCacheStore(db *sql.DB) *StudentCacheStore {
	return &StudentCacheStore{db: db}
}

// Put replaces the cached snapshot for the student.
func (s *StudentCacheStore) Put(student model.Student) error {
	_, err := s.db.Exec(
		`INSERT INTO cached_students (
			telegram_id, name, education_stage, country, verification_code,
			referral_code, points, riyal, is_premium, is_gift_premium, is_manager,
			successful_referrals, questions_count, ads_response_count, last_activity, cached_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			name = excluded.name,
			education_stage = excluded.education_stage,
			country = excluded.country,
			verification_code = excluded.verification_code,
			referral_code = excluded.referral_code,
			points = excluded.points,
			riyal = excluded.riyal,
			is_premium = excluded.is_premium,
			is_gift_premium = excluded.is_gift_premium,
			is_manager = excluded.is_manager,
			successful_referrals = excluded.successful_referrals,
			questions_count = excluded.questions_count,
			ads_response_count = excluded.ads_response_count,
			last_activity = excluded.last_activity,
			cached_at = excluded.cached_at`,
		student.TelegramID, student.Name, student.EducationStage, student.Country,
		student.VerificationCode, student.ReferralCode, student.Points, student.Riyal,
		boolToInt(student.IsPremium), boolToInt(student.IsGiftPremium), boolToInt(student.IsManager),
		student.SuccessfulReferrals, student.QuestionsCount, student.AdsResponseCount,
		student.LastActivity.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("cache student: %w", err)
	}
	return nil
}

// Get returns the cached snapshot, or nil when nothing is cached.
func (s *StudentCacheStore) Get(telegramID int64) (*model.Student, error) {
	var (
		student                       model.Student
		premium, giftPremium, manager int
	)
	err := s.db.QueryRow(
		`SELECT telegram_id, name, education_stage, country, verification_code,
			referral_code, points, riyal, is_premium, is_gift_premium, is_manager,
			successful_referrals, questions_count, ads_response_count, last_activity
		 FROM cached_students WHERE telegram_id = ?`, telegramID,
	).Scan(
		&student.TelegramID, &student.Name, &student.EducationStage, &student.Country,
		&student.VerificationCode, &student.ReferralCode, &student.Points, &student.Riyal,
		&premium, &giftPremium, &manager,
		&student.SuccessfulReferrals, &student.QuestionsCount, &student.AdsResponseCount,
		&student.LastActivity,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached student: %w", err)
	}
	student.IsPremium = premium != 0
	student.IsGiftPremium = giftPremium != 0
	student.IsManager = manager != 0
	return &student, nil
}

// Delete drops the cached snapshot, used on logout.
func (s *StudentCacheStore) Delete(telegramID int64) error {
	_, err := s.db.Exec(`DELETE FROM cached_students WHERE telegram_id = ?`, telegramID)
	if err != nil {
		return fmt.Errorf("delete cached student: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
