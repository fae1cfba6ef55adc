// Package economy implements the balance-moving flows: point conversion,
// peer transfers, task completion crediting, and premium purchase. The
// remote store offers per-row writes only, so the transfer flow is a manual
// compensating sequence rather than a transaction.
package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/manhaj-ai/miniapp/internal/gateway"
	"github.com/manhaj-ai/miniapp/internal/model"
)

const (
	// MinConversionPoints is the smallest point amount a conversion accepts.
	MinConversionPoints = 100
	// PointsPerRiyal is the fixed conversion rate, truncating toward zero.
	PointsPerRiyal = 100

	DefaultPremiumPrice     = 10
	DefaultLeaderboardLimit = 100

	SettingPremiumPrice = "premium_price"
)

var (
	ErrAmountTooSmall     = errors.New("economy: amount below conversion minimum")
	ErrAmountInvalid      = errors.New("economy: amount must be positive")
	ErrInsufficientPoints = errors.New("economy: insufficient points")
	ErrInsufficientRiyal  = errors.New("economy: insufficient riyal")
	ErrSelfTransfer       = errors.New("economy: cannot transfer to yourself")
	ErrReceiverNotFound   = errors.New("economy: receiver not found")
	ErrAlreadyCompleted   = errors.New("economy: task already completed")
	ErrTaskInvalid        = errors.New("economy: task inactive or missing")
	ErrAlreadyPremium     = errors.New("economy: already premium")

	// ErrCreditPending marks the one acknowledged partial state: a
	// completion row exists but the point credit failed. The credit can be
	// retried against the existing completion.
	ErrCreditPending = errors.New("economy: completion recorded, point credit pending")
)

type Service struct {
	gw     gateway.Gateway
	logger *slog.Logger
}

func NewService(gw gateway.Gateway, logger *slog.Logger) *Service {
	return &Service{
		gw:     gw,
		logger: logger.With("component", "economy"),
	}
}

// Convert exchanges points for riyal at the fixed rate. The whole requested
// amount is deducted and floor(points/rate) riyal credited, so a caller
// converting 250 points ends up one riyal richer per full hundred and keeps
// nothing of the remainder. The write carries the snapshot balance as a
// predicate, so any concurrent change rejects the write instead of being
// overwritten.
func (s *Service) Convert(ctx context.Context, telegramID int64, points int) (model.Student, error) {
	if points < MinConversionPoints {
		return model.Student{}, ErrAmountTooSmall
	}

	student, err := s.gw.GetStudentByTelegramID(ctx, telegramID)
	if err != nil {
		return model.Student{}, fmt.Errorf("read balance: %w", err)
	}
	if student.Points < points {
		return model.Student{}, ErrInsufficientPoints
	}

	newPoints := student.Points - points
	newRiyal := student.Riyal + points/PointsPerRiyal
	updated, err := s.gw.UpdateStudent(ctx, telegramID, gateway.StudentUpdate{
		Points:   &newPoints,
		Riyal:    &newRiyal,
		IfPoints: &student.Points,
	})
	if err != nil {
		// A rejected write means the balance moved since the read. The
		// caller re-reads and retries; relabelling it "insufficient" would
		// be wrong when the change was a concurrent credit.
		return model.Student{}, fmt.Errorf("apply conversion: %w", err)
	}

	s.logger.Info("points converted",
		"telegram_id", telegramID,
		"points", points,
		"riyal_earned", points/PointsPerRiyal)
	return updated, nil
}

// Transfer moves riyal from sender to the student holding receiverCode.
// Steps run in a fixed order and a failed receiver credit restores the
// sender's pre-debit balance. The audit row is written last; its failure
// leaves the balances as moved and reports upward.
func (s *Service) Transfer(ctx context.Context, senderID int64, receiverCode string, amount int) (model.Student, error) {
	if amount <= 0 {
		return model.Student{}, ErrAmountInvalid
	}

	receiver, err := s.gw.GetStudentByVerificationCode(ctx, receiverCode)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return model.Student{}, ErrReceiverNotFound
		}
		return model.Student{}, fmt.Errorf("resolve receiver: %w", err)
	}
	if receiver.TelegramID == senderID {
		return model.Student{}, ErrSelfTransfer
	}

	sender, err := s.gw.GetStudentByTelegramID(ctx, senderID)
	if err != nil {
		return model.Student{}, fmt.Errorf("read sender balance: %w", err)
	}
	if sender.Riyal < amount {
		return model.Student{}, ErrInsufficientRiyal
	}

	debited := sender.Riyal - amount
	updatedSender, err := s.gw.UpdateStudent(ctx, senderID, gateway.StudentUpdate{
		Riyal:   &debited,
		IfRiyal: &sender.Riyal,
	})
	if err != nil {
		return model.Student{}, fmt.Errorf("debit sender: %w", err)
	}

	receiverNow, err := s.gw.GetStudentByTelegramID(ctx, receiver.TelegramID)
	if err != nil {
		s.compensate(ctx, senderID, sender.Riyal, err)
		return model.Student{}, fmt.Errorf("read receiver balance: %w", err)
	}
	credited := receiverNow.Riyal + amount
	if _, err := s.gw.UpdateStudent(ctx, receiver.TelegramID, gateway.StudentUpdate{
		Riyal: &credited,
	}); err != nil {
		s.compensate(ctx, senderID, sender.Riyal, err)
		return model.Student{}, fmt.Errorf("credit receiver: %w", err)
	}

	if _, err := s.gw.CreateTransfer(ctx, model.Transfer{
		SenderID:     senderID,
		ReceiverID:   receiver.TelegramID,
		Amount:       amount,
		TransferType: model.TransferTypeRiyal,
	}); err != nil {
		return updatedSender, fmt.Errorf("record transfer: %w", err)
	}

	s.logger.Info("riyal transferred",
		"sender_id", senderID,
		"receiver_id", receiver.TelegramID,
		"amount", amount)
	return updatedSender, nil
}

// compensate restores the sender's pre-debit riyal after a failed credit.
// A failed restore leaves a debited-but-not-credited state that needs
// manual reconciliation, so it is logged at error level.
func (s *Service) compensate(ctx context.Context, senderID int64, preDebitRiyal int, cause error) {
	if _, err := s.gw.UpdateStudent(ctx, senderID, gateway.StudentUpdate{
		Riyal: &preDebitRiyal,
	}); err != nil {
		s.logger.Error("transfer compensation failed, sender debited without credit",
			"sender_id", senderID,
			"restore_riyal", preDebitRiyal,
			"cause", cause,
			"error", err)
		return
	}
	s.logger.Warn("transfer rolled back",
		"sender_id", senderID,
		"cause", cause)
}

// CompleteTask records a one-time completion and credits the task's points.
// A completion that lands but fails to credit returns ErrCreditPending and
// can be resumed with RetryCredit.
func (s *Service) CompleteTask(ctx context.Context, telegramID, taskID int64) (model.Student, error) {
	if _, err := s.gw.GetCompletion(ctx, telegramID, taskID); err == nil {
		return model.Student{}, ErrAlreadyCompleted
	} else if !errors.Is(err, gateway.ErrNotFound) {
		return model.Student{}, fmt.Errorf("check completion: %w", err)
	}

	task, err := s.gw.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return model.Student{}, ErrTaskInvalid
		}
		return model.Student{}, fmt.Errorf("read task: %w", err)
	}
	if !task.IsActive {
		return model.Student{}, ErrTaskInvalid
	}

	if _, err := s.gw.CreateCompletion(ctx, model.CompletedTask{
		UserID: telegramID,
		TaskID: taskID,
	}); err != nil {
		var gerr *gateway.Error
		if errors.As(err, &gerr) && gerr.Code == "23505" {
			return model.Student{}, ErrAlreadyCompleted
		}
		return model.Student{}, fmt.Errorf("record completion: %w", err)
	}

	updated, err := s.settleCredit(ctx, telegramID, taskID, task.Points)
	if err != nil {
		if errors.Is(err, ErrAlreadyCompleted) {
			return model.Student{}, ErrAlreadyCompleted
		}
		s.logger.Error("completion recorded but credit failed",
			"telegram_id", telegramID,
			"task_id", taskID,
			"points", task.Points,
			"error", err)
		return model.Student{}, fmt.Errorf("%w: %w", ErrCreditPending, err)
	}

	s.logger.Info("task completed",
		"telegram_id", telegramID,
		"task_id", taskID,
		"points", task.Points)
	return updated, nil
}

// RetryCredit re-runs the point credit for a completion that exists but was
// reported as pending. The completion's credited marker makes the retry
// one-shot per completion: a completion that already paid out is rejected
// with ErrAlreadyCompleted.
func (s *Service) RetryCredit(ctx context.Context, telegramID, taskID int64) (model.Student, error) {
	completion, err := s.gw.GetCompletion(ctx, telegramID, taskID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return model.Student{}, ErrTaskInvalid
		}
		return model.Student{}, fmt.Errorf("check completion: %w", err)
	}
	if completion.PointsCredited {
		return model.Student{}, ErrAlreadyCompleted
	}
	task, err := s.gw.GetTask(ctx, taskID)
	if err != nil {
		return model.Student{}, fmt.Errorf("read task: %w", err)
	}
	updated, err := s.settleCredit(ctx, telegramID, taskID, task.Points)
	if err != nil {
		if errors.Is(err, ErrAlreadyCompleted) {
			return model.Student{}, ErrAlreadyCompleted
		}
		return model.Student{}, fmt.Errorf("%w: %w", ErrCreditPending, err)
	}
	s.logger.Info("pending credit applied",
		"telegram_id", telegramID,
		"task_id", taskID,
		"points", task.Points)
	return updated, nil
}

// settleCredit claims the completion's credited marker and then applies the
// point credit. Claiming first means two racing attempts cannot both pay
// out; a failed credit releases the claim so the retry path stays open. A
// claim that cannot be released blocks further retries and is logged for
// manual reconciliation, which errs toward never paying twice.
func (s *Service) settleCredit(ctx context.Context, telegramID, taskID int64, points int) (model.Student, error) {
	if err := s.gw.SetCompletionCredited(ctx, telegramID, taskID, true); err != nil {
		if errors.Is(err, gateway.ErrWriteRejected) {
			return model.Student{}, ErrAlreadyCompleted
		}
		return model.Student{}, fmt.Errorf("claim credit: %w", err)
	}
	updated, err := s.creditTaskPoints(ctx, telegramID, points)
	if err != nil {
		if relErr := s.gw.SetCompletionCredited(ctx, telegramID, taskID, false); relErr != nil {
			s.logger.Error("credit claim release failed, completion stuck as credited",
				"telegram_id", telegramID,
				"task_id", taskID,
				"cause", err,
				"error", relErr)
		}
		return model.Student{}, err
	}
	return updated, nil
}

func (s *Service) creditTaskPoints(ctx context.Context, telegramID int64, points int) (model.Student, error) {
	student, err := s.gw.GetStudentByTelegramID(ctx, telegramID)
	if err != nil {
		return model.Student{}, fmt.Errorf("read balance: %w", err)
	}
	credited := student.Points + points
	updated, err := s.gw.UpdateStudent(ctx, telegramID, gateway.StudentUpdate{
		Points: &credited,
	})
	if err != nil {
		return model.Student{}, fmt.Errorf("credit points: %w", err)
	}
	return updated, nil
}

// BuyPremium deducts the premium price from the riyal balance and flips the
// premium flag. The price comes from the premium_price setting; the ad
// response counter resets so the new premium member starts clean.
func (s *Service) BuyPremium(ctx context.Context, telegramID int64) (model.Student, error) {
	student, err := s.gw.GetStudentByTelegramID(ctx, telegramID)
	if err != nil {
		return model.Student{}, fmt.Errorf("read student: %w", err)
	}
	if student.IsPremium {
		return model.Student{}, ErrAlreadyPremium
	}

	price := s.premiumPrice(ctx)
	if student.Riyal < price {
		return model.Student{}, ErrInsufficientRiyal
	}

	newRiyal := student.Riyal - price
	premium := true
	adsReset := 0
	updated, err := s.gw.UpdateStudent(ctx, telegramID, gateway.StudentUpdate{
		Riyal:            &newRiyal,
		IsPremium:        &premium,
		AdsResponseCount: &adsReset,
		IfRiyal:          &student.Riyal,
	})
	if err != nil {
		return model.Student{}, fmt.Errorf("apply premium purchase: %w", err)
	}

	s.logger.Info("premium purchased",
		"telegram_id", telegramID,
		"price", price)
	return updated, nil
}

func (s *Service) premiumPrice(ctx context.Context) int {
	settings, err := s.gw.ListSettings(ctx)
	if err != nil {
		s.logger.Warn("read settings failed, using default premium price", "error", err)
		return DefaultPremiumPrice
	}
	raw, ok := settings[SettingPremiumPrice]
	if !ok {
		return DefaultPremiumPrice
	}
	price, err := strconv.Atoi(raw)
	if err != nil || price <= 0 {
		s.logger.Warn("invalid premium price setting", "value", raw)
		return DefaultPremiumPrice
	}
	return price
}

// Leaderboard returns the top students by points with 1-based ranks. A
// limit of 0 uses the default.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	students, err := s.gw.TopStudents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	entries := make([]model.LeaderboardEntry, len(students))
	for i, student := range students {
		entries[i] = model.LeaderboardEntry{
			Name:                student.Name,
			Points:              student.Points,
			Riyal:               student.Riyal,
			SuccessfulReferrals: student.SuccessfulReferrals,
			QuestionsCount:      student.QuestionsCount,
			Rank:                i + 1,
		}
	}
	return entries, nil
}
