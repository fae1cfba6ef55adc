package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/manhaj-ai/miniapp/internal/gateway"
	"github.com/manhaj-ai/miniapp/internal/model"
	"github.com/manhaj-ai/miniapp/internal/store"
)

const (
	// DefaultAdResponseLimit is how many answers a free account gets
	// before the next question requires an ad view.
	DefaultAdResponseLimit = 2

	SettingAdResponseLimit = "ad_response_limit"
	SettingAdLink          = "ad_link"
)

// ErrAdRequired is returned when a free account has used up its ad-free
// answers. The client shows the ad and calls ConfirmAdViewed.
var ErrAdRequired = errors.New("chat: ad view required before next answer")

// ErrEmptyQuestion rejects blank questions before any recording happens.
var ErrEmptyQuestion = errors.New("chat: question is empty")

type Service struct {
	gw      gateway.Gateway
	client  *Client
	history *store.ChatStore
	logger  *slog.Logger
}

func NewService(gw gateway.Gateway, client *Client, history *store.ChatStore, logger *slog.Logger) *Service {
	return &Service{
		gw:      gw,
		client:  client,
		history: history,
		logger:  logger.With("component", "chat"),
	}
}

// Ask answers one question for the student. Premium accounts are never ad
// gated; free accounts are blocked once their ad response counter reaches
// the limit. On success both turns land in the local history and the
// question counters are updated on the remote row.
func (s *Service) Ask(ctx context.Context, telegramID int64, question string) (string, error) {
	if question == "" {
		return "", ErrEmptyQuestion
	}

	student, err := s.gw.GetStudentByTelegramID(ctx, telegramID)
	if err != nil {
		return "", fmt.Errorf("read student: %w", err)
	}
	if !student.IsPremium && student.AdsResponseCount >= s.adResponseLimit(ctx) {
		return "", ErrAdRequired
	}

	answer, err := s.client.Answer(ctx, question, StudentProfile{
		Name:           student.Name,
		EducationStage: student.EducationStage,
		Country:        student.Country,
	})
	if err != nil {
		return "", err
	}

	s.recordQuestion(ctx, student, question)

	if _, err := s.history.Append(telegramID, model.ChatRoleUser, question); err != nil {
		s.logger.Warn("store question locally failed", "error", err)
	}
	if _, err := s.history.Append(telegramID, model.ChatRoleAssistant, answer); err != nil {
		s.logger.Warn("store answer locally failed", "error", err)
	}
	return answer, nil
}

// recordQuestion bumps the remote counters and writes the question row.
// Failures here do not withhold an answer that was already generated.
func (s *Service) recordQuestion(ctx context.Context, student model.Student, question string) {
	if err := s.gw.CreateQuestion(ctx, model.Question{
		UserID:       student.TelegramID,
		Question:     question,
		QuestionType: "chat",
	}); err != nil {
		s.logger.Warn("record question failed", "telegram_id", student.TelegramID, "error", err)
	}

	questions := student.QuestionsCount + 1
	now := time.Now().UTC()
	upd := gateway.StudentUpdate{
		QuestionsCount: &questions,
		LastActivity:   &now,
	}
	if !student.IsPremium {
		ads := student.AdsResponseCount + 1
		upd.AdsResponseCount = &ads
	}
	if _, err := s.gw.UpdateStudent(ctx, student.TelegramID, upd); err != nil {
		s.logger.Warn("update question counters failed", "telegram_id", student.TelegramID, "error", err)
	}
}

// ConfirmAdViewed resets the ad response counter after the client reports
// a completed ad view.
func (s *Service) ConfirmAdViewed(ctx context.Context, telegramID int64) error {
	reset := 0
	if _, err := s.gw.UpdateStudent(ctx, telegramID, gateway.StudentUpdate{
		AdsResponseCount: &reset,
	}); err != nil {
		return fmt.Errorf("reset ad counter: %w", err)
	}
	return nil
}

// AdLink returns the configured ad URL, empty when none is set.
func (s *Service) AdLink(ctx context.Context) string {
	settings, err := s.gw.ListSettings(ctx)
	if err != nil {
		s.logger.Warn("read settings failed", "error", err)
		return ""
	}
	return settings[SettingAdLink]
}

// History returns the student's recent conversation turns.
func (s *Service) History(telegramID int64, limit int) ([]model.ChatMessage, error) {
	return s.history.History(telegramID, limit)
}

// ClearHistory wipes the local thread for the student.
func (s *Service) ClearHistory(telegramID int64) error {
	return s.history.Clear(telegramID)
}

// Ready reports whether the upstream tutor is configured.
func (s *Service) Ready() bool {
	return s.client.Ready()
}

// Model names the upstream model for health responses.
func (s *Service) Model() string {
	return s.client.Model()
}

func (s *Service) adResponseLimit(ctx context.Context) int {
	settings, err := s.gw.ListSettings(ctx)
	if err != nil {
		return DefaultAdResponseLimit
	}
	raw, ok := settings[SettingAdResponseLimit]
	if !ok {
		return DefaultAdResponseLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return DefaultAdResponseLimit
	}
	return limit
}
