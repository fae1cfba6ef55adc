package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/manhaj-ai/miniapp/internal/model"
)

func seedStudent(t *testing.T, m *Memory, telegramID int64, points, riyal int) model.Student {
	t.Helper()
	s, err := m.CreateStudent(context.Background(), model.Student{
		TelegramID:       telegramID,
		Name:             "Test Student",
		EducationStage:   "secondary",
		Country:          "SA",
		VerificationCode: "V" + string(rune('0'+telegramID%10)),
		ReferralCode:     "R" + string(rune('0'+telegramID%10)),
	})
	if err != nil {
		t.Fatalf("create student: %v", err)
	}
	if points != 0 || riyal != 0 {
		s, err = m.UpdateStudent(context.Background(), telegramID, StudentUpdate{Points: &points, Riyal: &riyal})
		if err != nil {
			t.Fatalf("seed balances: %v", err)
		}
	}
	return s
}

func TestMemoryStudentLookups(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	created := seedStudent(t, m, 1001, 0, 0)

	byID, err := m.GetStudentByTelegramID(ctx, 1001)
	if err != nil {
		t.Fatalf("get by telegram id: %v", err)
	}
	if byID.ID != created.ID {
		t.Errorf("id = %q, want %q", byID.ID, created.ID)
	}

	byCode, err := m.GetStudentByVerificationCode(ctx, created.VerificationCode)
	if err != nil {
		t.Fatalf("get by verification code: %v", err)
	}
	if byCode.TelegramID != 1001 {
		t.Errorf("telegram_id = %d, want 1001", byCode.TelegramID)
	}

	if _, err := m.GetStudentByTelegramID(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryDuplicateStudent(t *testing.T) {
	m := NewMemory()
	seedStudent(t, m, 1001, 0, 0)

	_, err := m.CreateStudent(context.Background(), model.Student{TelegramID: 1001, Name: "Dup"})
	var gerr *Error
	if !errors.As(err, &gerr) {
		t.Fatalf("expected structured error, got %v", err)
	}
	if gerr.Code != "23505" {
		t.Errorf("code = %q, want 23505", gerr.Code)
	}
}

func TestMemoryConditionalUpdate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedStudent(t, m, 1001, 250, 0)

	// Predicate holds: spend 150 points against the current snapshot.
	newPoints := 100
	snapshot := 250
	updated, err := m.UpdateStudent(ctx, 1001, StudentUpdate{
		Points:   &newPoints,
		IfPoints: &snapshot,
	})
	if err != nil {
		t.Fatalf("conditional update: %v", err)
	}
	if updated.Points != 100 {
		t.Errorf("points = %d, want 100", updated.Points)
	}

	// Predicate fails: the balance no longer matches the stale snapshot.
	_, err = m.UpdateStudent(ctx, 1001, StudentUpdate{
		Points:   &newPoints,
		IfPoints: &snapshot,
	})
	if !errors.Is(err, ErrWriteRejected) {
		t.Errorf("expected ErrWriteRejected, got %v", err)
	}

	// Unknown student is a rejected write, not a lookup failure.
	_, err = m.UpdateStudent(ctx, 4242, StudentUpdate{Points: &newPoints})
	if !errors.Is(err, ErrWriteRejected) {
		t.Errorf("expected ErrWriteRejected for missing row, got %v", err)
	}
}

func TestMemoryConditionalUpdateRejectsGrownBalance(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedStudent(t, m, 1001, 300, 0)

	// A credit lands between the caller's read and its write.
	grown := 350
	if _, err := m.UpdateStudent(ctx, 1001, StudentUpdate{Points: &grown}); err != nil {
		t.Fatalf("apply concurrent credit: %v", err)
	}

	// The stale writer's absolute value would erase those 50 points, so
	// the snapshot predicate has to miss even though the balance went up.
	stale := 300
	newPoints := 150
	_, err := m.UpdateStudent(ctx, 1001, StudentUpdate{
		Points:   &newPoints,
		IfPoints: &stale,
	})
	if !errors.Is(err, ErrWriteRejected) {
		t.Fatalf("expected ErrWriteRejected for changed balance, got %v", err)
	}
	current, _ := m.GetStudentByTelegramID(ctx, 1001)
	if current.Points != 350 {
		t.Errorf("points = %d, want 350 untouched", current.Points)
	}
}

func TestMemoryFailureHooks(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedStudent(t, m, 1001, 10, 0)

	boom := errors.New("injected")
	m.FailUpdateStudent(1001, boom)
	zero := 0
	if _, err := m.UpdateStudent(ctx, 1001, StudentUpdate{Points: &zero}); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}
	m.FailUpdateStudent(1001, nil)
	if _, err := m.UpdateStudent(ctx, 1001, StudentUpdate{Points: &zero}); err != nil {
		t.Errorf("update after clearing hook: %v", err)
	}

	m.FailCreateTransfer(boom)
	if _, err := m.CreateTransfer(ctx, model.Transfer{SenderID: 1, ReceiverID: 2, Amount: 1}); !errors.Is(err, boom) {
		t.Errorf("expected injected transfer error, got %v", err)
	}
}

func TestMemoryTopStudentsOrderAndLimit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedStudent(t, m, 1, 30, 0)
	seedStudent(t, m, 2, 90, 0)
	seedStudent(t, m, 3, 60, 0)

	top, err := m.TopStudents(ctx, 2)
	if err != nil {
		t.Fatalf("top students: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 students, got %d", len(top))
	}
	if top[0].TelegramID != 2 || top[1].TelegramID != 3 {
		t.Errorf("order = [%d %d], want [2 3]", top[0].TelegramID, top[1].TelegramID)
	}
}

func TestMemoryCompletionDuplicate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	task, err := m.CreateTask(ctx, model.Task{Link: "https://t.me/channel", Description: "Join", Points: 50, IsActive: true})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if _, err := m.CreateCompletion(ctx, model.CompletedTask{UserID: 1001, TaskID: task.ID}); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	_, err = m.CreateCompletion(ctx, model.CompletedTask{UserID: 1001, TaskID: task.ID})
	var gerr *Error
	if !errors.As(err, &gerr) || gerr.Code != "23505" {
		t.Errorf("expected duplicate-key error, got %v", err)
	}

	got, err := m.GetCompletion(ctx, 1001, task.ID)
	if err != nil {
		t.Fatalf("get completion: %v", err)
	}
	if got.TaskID != task.ID {
		t.Errorf("task_id = %d, want %d", got.TaskID, task.ID)
	}
}

func TestMemorySetCompletionCredited(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	task, _ := m.CreateTask(ctx, model.Task{Description: "Join", Points: 50, IsActive: true})
	if _, err := m.CreateCompletion(ctx, model.CompletedTask{UserID: 1001, TaskID: task.ID}); err != nil {
		t.Fatalf("create completion: %v", err)
	}

	if err := m.SetCompletionCredited(ctx, 1001, task.ID, true); err != nil {
		t.Fatalf("claim credit: %v", err)
	}
	got, _ := m.GetCompletion(ctx, 1001, task.ID)
	if !got.PointsCredited || got.CreditedAt == nil {
		t.Errorf("completion not marked credited: %+v", got)
	}

	// A second claim misses; the row already holds the target value.
	if err := m.SetCompletionCredited(ctx, 1001, task.ID, true); !errors.Is(err, ErrWriteRejected) {
		t.Errorf("expected ErrWriteRejected for double claim, got %v", err)
	}

	// Releasing flips it back and clears the timestamp.
	if err := m.SetCompletionCredited(ctx, 1001, task.ID, false); err != nil {
		t.Fatalf("release credit: %v", err)
	}
	got, _ = m.GetCompletion(ctx, 1001, task.ID)
	if got.PointsCredited || got.CreditedAt != nil {
		t.Errorf("completion still credited after release: %+v", got)
	}

	if err := m.SetCompletionCredited(ctx, 1001, 9999, true); !errors.Is(err, ErrWriteRejected) {
		t.Errorf("expected ErrWriteRejected for missing row, got %v", err)
	}
}

func TestMemorySupportLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	msg, err := m.CreateSupportMessage(ctx, model.SupportMessage{UserID: 1001, Message: "help"})
	if err != nil {
		t.Fatalf("create support message: %v", err)
	}

	open, err := m.ListOpenSupportMessages(ctx)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open message, got %d", len(open))
	}

	replied, err := m.ReplySupportMessage(ctx, msg.ID, "fixed")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if !replied.IsAnswered || replied.Reply != "fixed" || replied.RepliedAt == nil {
		t.Errorf("reply not recorded: %+v", replied)
	}

	open, _ = m.ListOpenSupportMessages(ctx)
	if len(open) != 0 {
		t.Errorf("expected 0 open messages after reply, got %d", len(open))
	}
}

func TestMemoryStatistics(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedStudent(t, m, 1, 100, 2)
	seedStudent(t, m, 2, 50, 0)

	premium := true
	if _, err := m.UpdateStudent(ctx, 1, StudentUpdate{IsPremium: &premium}); err != nil {
		t.Fatalf("set premium: %v", err)
	}

	stats, err := m.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.TotalUsers != 2 {
		t.Errorf("total_users = %d, want 2", stats.TotalUsers)
	}
	if stats.PremiumUsers != 1 {
		t.Errorf("premium_users = %d, want 1", stats.PremiumUsers)
	}
	if stats.TotalPoints != 150 {
		t.Errorf("total_points = %d, want 150", stats.TotalPoints)
	}
	if stats.TotalRiyal != 2 {
		t.Errorf("total_riyal = %d, want 2", stats.TotalRiyal)
	}
}
