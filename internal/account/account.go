// Package account covers registration, login, profile stats, and the
// manager-only premium grants.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/manhaj-ai/miniapp/internal/gateway"
	"github.com/manhaj-ai/miniapp/internal/model"
)

const (
	// WelcomeBonusPoints is credited to every new account on registration.
	WelcomeBonusPoints = 50
	// ReferralBonusPoints is credited to the referrer when a referred
	// student completes registration.
	ReferralBonusPoints = 100
)

var (
	ErrNameTooShort      = errors.New("account: name needs at least two words")
	ErrNameInvalid       = errors.New("account: name may only contain letters")
	ErrStageRequired     = errors.New("account: education stage is required")
	ErrCountryRequired   = errors.New("account: country is required")
	ErrAlreadyRegistered = errors.New("account: telegram id already registered")
	ErrNotRegistered     = errors.New("account: student not registered")
)

type Service struct {
	gw     gateway.Gateway
	logger *slog.Logger
}

func NewService(gw gateway.Gateway, logger *slog.Logger) *Service {
	return &Service{
		gw:     gw,
		logger: logger.With("component", "account"),
	}
}

// RegisterInput carries the fields collected by the registration form.
// ReferredBy is the referrer's referral code and may be empty.
type RegisterInput struct {
	TelegramID     int64
	Name           string
	EducationStage string
	Country        string
	ReferredBy     string
}

// Register creates the student row with a welcome bonus and credits the
// referrer when a valid referral code was supplied. A referral credit
// failure does not undo the registration; it is logged and the new account
// stands.
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.Student, error) {
	name := strings.TrimSpace(in.Name)
	if len(strings.Fields(name)) < 2 {
		return model.Student{}, ErrNameTooShort
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
			return model.Student{}, ErrNameInvalid
		}
	}
	stage := strings.TrimSpace(in.EducationStage)
	if stage == "" {
		return model.Student{}, ErrStageRequired
	}
	country := strings.TrimSpace(in.Country)
	if country == "" {
		return model.Student{}, ErrCountryRequired
	}

	if _, err := s.gw.GetStudentByTelegramID(ctx, in.TelegramID); err == nil {
		return model.Student{}, ErrAlreadyRegistered
	} else if !errors.Is(err, gateway.ErrNotFound) {
		return model.Student{}, fmt.Errorf("check existing account: %w", err)
	}

	student, err := s.gw.CreateStudent(ctx, model.Student{
		TelegramID:       in.TelegramID,
		Name:             name,
		EducationStage:   stage,
		Country:          country,
		VerificationCode: newCode(),
		ReferralCode:     newCode(),
	})
	if err != nil {
		// Two clients racing past the existence check: the unique index on
		// telegram_id stops the second insert.
		var gerr *gateway.Error
		if errors.As(err, &gerr) && gerr.Code == "23505" {
			return model.Student{}, ErrAlreadyRegistered
		}
		return model.Student{}, fmt.Errorf("create account: %w", err)
	}

	bonus := WelcomeBonusPoints
	student, err = s.gw.UpdateStudent(ctx, in.TelegramID, gateway.StudentUpdate{
		Points: &bonus,
	})
	if err != nil {
		return model.Student{}, fmt.Errorf("apply welcome bonus: %w", err)
	}

	if code := strings.TrimSpace(in.ReferredBy); code != "" {
		s.creditReferrer(ctx, code, in.TelegramID)
	}

	s.logger.Info("student registered",
		"telegram_id", in.TelegramID,
		"country", in.Country,
		"stage", in.EducationStage)
	return student, nil
}

func (s *Service) creditReferrer(ctx context.Context, code string, newTelegramID int64) {
	referrer, err := s.gw.GetStudentByReferralCode(ctx, code)
	if err != nil {
		s.logger.Warn("referral code did not resolve",
			"code", code,
			"new_telegram_id", newTelegramID,
			"error", err)
		return
	}
	if referrer.TelegramID == newTelegramID {
		return
	}
	points := referrer.Points + ReferralBonusPoints
	referrals := referrer.SuccessfulReferrals + 1
	if _, err := s.gw.UpdateStudent(ctx, referrer.TelegramID, gateway.StudentUpdate{
		Points:              &points,
		SuccessfulReferrals: &referrals,
	}); err != nil {
		s.logger.Error("referral credit failed",
			"referrer_id", referrer.TelegramID,
			"new_telegram_id", newTelegramID,
			"error", err)
		return
	}
	s.logger.Info("referral credited",
		"referrer_id", referrer.TelegramID,
		"new_telegram_id", newTelegramID)
}

// Login fetches the student and touches last_activity. An unknown telegram
// id returns ErrNotRegistered so the client can route to registration.
func (s *Service) Login(ctx context.Context, telegramID int64) (model.Student, error) {
	if _, err := s.gw.GetStudentByTelegramID(ctx, telegramID); err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return model.Student{}, ErrNotRegistered
		}
		return model.Student{}, fmt.Errorf("read account: %w", err)
	}
	now := time.Now().UTC()
	student, err := s.gw.UpdateStudent(ctx, telegramID, gateway.StudentUpdate{
		LastActivity: &now,
	})
	if err != nil {
		return model.Student{}, fmt.Errorf("touch last activity: %w", err)
	}
	return student, nil
}

// Profile returns the current student row without side effects.
func (s *Service) Profile(ctx context.Context, telegramID int64) (model.Student, error) {
	student, err := s.gw.GetStudentByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return model.Student{}, ErrNotRegistered
		}
		return model.Student{}, fmt.Errorf("read account: %w", err)
	}
	return student, nil
}

// Stats assembles the profile summary, counting completions on the way.
func (s *Service) Stats(ctx context.Context, telegramID int64) (model.StudentStats, error) {
	student, err := s.Profile(ctx, telegramID)
	if err != nil {
		return model.StudentStats{}, err
	}
	completions, err := s.gw.ListCompletions(ctx, telegramID)
	if err != nil {
		return model.StudentStats{}, fmt.Errorf("count completions: %w", err)
	}
	return model.StudentStats{
		Name:                student.Name,
		EducationStage:      student.EducationStage,
		Country:             student.Country,
		VerificationCode:    student.VerificationCode,
		Points:              student.Points,
		Riyal:               student.Riyal,
		IsPremium:           student.IsPremium,
		QuestionsCount:      student.QuestionsCount,
		CompletedTasks:      len(completions),
		SuccessfulReferrals: student.SuccessfulReferrals,
		MemberSince:         student.CreatedAt,
		LastActivity:        student.LastActivity,
	}, nil
}

// GiftPremium grants premium to the student holding the verification code
// without charging riyal. Manager only; the handler enforces that.
func (s *Service) GiftPremium(ctx context.Context, verificationCode string) (model.Student, error) {
	student, err := s.gw.GetStudentByVerificationCode(ctx, verificationCode)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return model.Student{}, ErrNotRegistered
		}
		return model.Student{}, fmt.Errorf("resolve student: %w", err)
	}
	premium := true
	gift := true
	adsReset := 0
	updated, err := s.gw.UpdateStudent(ctx, student.TelegramID, gateway.StudentUpdate{
		IsPremium:        &premium,
		IsGiftPremium:    &gift,
		AdsResponseCount: &adsReset,
	})
	if err != nil {
		return model.Student{}, fmt.Errorf("gift premium: %w", err)
	}
	s.logger.Info("premium gifted", "telegram_id", student.TelegramID)
	return updated, nil
}

// CancelPremium revokes premium from the student holding the verification
// code. Both the paid and gifted flags are cleared.
func (s *Service) CancelPremium(ctx context.Context, verificationCode string) (model.Student, error) {
	student, err := s.gw.GetStudentByVerificationCode(ctx, verificationCode)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return model.Student{}, ErrNotRegistered
		}
		return model.Student{}, fmt.Errorf("resolve student: %w", err)
	}
	premium := false
	gift := false
	updated, err := s.gw.UpdateStudent(ctx, student.TelegramID, gateway.StudentUpdate{
		IsPremium:     &premium,
		IsGiftPremium: &gift,
	})
	if err != nil {
		return model.Student{}, fmt.Errorf("cancel premium: %w", err)
	}
	s.logger.Info("premium cancelled", "telegram_id", student.TelegramID)
	return updated, nil
}

// newCode returns a short human-shareable code, the first segment of a
// UUID uppercased.
func newCode() string {
	return strings.ToUpper(strings.SplitN(uuid.NewString(), "-", 2)[0])
}
