package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manhaj-ai/miniapp/internal/model"
)

// Memory is an in-process Gateway used by tests and by local development
// without a remote project. Failure hooks let tests break a specific write
// so compensation paths can be exercised.
type Memory struct {
	mu sync.RWMutex

	students    map[int64]model.Student
	tasks       map[int64]model.Task
	completions []model.CompletedTask
	transfers   []model.Transfer
	questions   []model.Question
	support     map[string]model.SupportMessage
	settings    map[string]string

	nextTaskID int64

	failUpdateStudent    map[int64]error
	failCreateTransfer   error
	failCreateCompletion error
	failSetCredited      error
}

func NewMemory() *Memory {
	return &Memory{
		students:          make(map[int64]model.Student),
		tasks:             make(map[int64]model.Task),
		support:           make(map[string]model.SupportMessage),
		settings:          make(map[string]string),
		failUpdateStudent: make(map[int64]error),
		nextTaskID:        1,
	}
}

// FailUpdateStudent makes the next and all subsequent UpdateStudent calls
// for telegramID return err. Pass nil to clear.
func (m *Memory) FailUpdateStudent(telegramID int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failUpdateStudent, telegramID)
		return
	}
	m.failUpdateStudent[telegramID] = err
}

// FailCreateTransfer makes CreateTransfer return err. Pass nil to clear.
func (m *Memory) FailCreateTransfer(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreateTransfer = err
}

// FailCreateCompletion makes CreateCompletion return err. Pass nil to clear.
func (m *Memory) FailCreateCompletion(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreateCompletion = err
}

// FailSetCompletionCredited makes SetCompletionCredited return err. Pass
// nil to clear.
func (m *Memory) FailSetCompletionCredited(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSetCredited = err
}

// Transfers returns a copy of the recorded transfer audit rows.
func (m *Memory) Transfers() []model.Transfer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Transfer, len(m.transfers))
	copy(out, m.transfers)
	return out
}

// Questions returns a copy of the recorded question rows.
func (m *Memory) Questions() []model.Question {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Question, len(m.questions))
	copy(out, m.questions)
	return out
}

// =============================================================================
// Students
// =============================================================================

func (m *Memory) GetStudentByTelegramID(_ context.Context, telegramID int64) (model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[telegramID]
	if !ok {
		return model.Student{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) GetStudentByVerificationCode(_ context.Context, code string) (model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.students {
		if s.VerificationCode == code {
			return s, nil
		}
	}
	return model.Student{}, ErrNotFound
}

func (m *Memory) GetStudentByReferralCode(_ context.Context, code string) (model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.students {
		if s.ReferralCode == code {
			return s, nil
		}
	}
	return model.Student{}, ErrNotFound
}

func (m *Memory) CreateStudent(_ context.Context, s model.Student) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.students[s.TelegramID]; exists {
		return model.Student{}, &Error{Code: "23505", Message: "duplicate key value", StatusCode: 409}
	}
	now := time.Now().UTC()
	s.ID = uuid.NewString()
	s.CreatedAt = now
	s.UpdatedAt = now
	s.LastActivity = now
	m.students[s.TelegramID] = s
	return s, nil
}

func (m *Memory) UpdateStudent(_ context.Context, telegramID int64, upd StudentUpdate) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failUpdateStudent[telegramID]; err != nil {
		return model.Student{}, err
	}
	s, ok := m.students[telegramID]
	if !ok {
		return model.Student{}, ErrWriteRejected
	}
	if upd.IfPoints != nil && s.Points != *upd.IfPoints {
		return model.Student{}, ErrWriteRejected
	}
	if upd.IfRiyal != nil && s.Riyal != *upd.IfRiyal {
		return model.Student{}, ErrWriteRejected
	}
	if upd.Points != nil {
		s.Points = *upd.Points
	}
	if upd.Riyal != nil {
		s.Riyal = *upd.Riyal
	}
	if upd.IsPremium != nil {
		s.IsPremium = *upd.IsPremium
	}
	if upd.IsGiftPremium != nil {
		s.IsGiftPremium = *upd.IsGiftPremium
	}
	if upd.AdsResponseCount != nil {
		s.AdsResponseCount = *upd.AdsResponseCount
	}
	if upd.QuestionsCount != nil {
		s.QuestionsCount = *upd.QuestionsCount
	}
	if upd.SuccessfulReferrals != nil {
		s.SuccessfulReferrals = *upd.SuccessfulReferrals
	}
	if upd.LastActivity != nil {
		s.LastActivity = *upd.LastActivity
	}
	s.UpdatedAt = time.Now().UTC()
	m.students[telegramID] = s
	return s, nil
}

func (m *Memory) ListStudents(_ context.Context) ([]model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) TopStudents(_ context.Context, limit int) ([]model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].TelegramID < out[j].TelegramID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// Tasks and completions
// =============================================================================

func (m *Memory) GetTask(_ context.Context, id int64) (model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return model.Task{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ListActiveTasks(_ context.Context) ([]model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.IsActive {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CreateTask(_ context.Context, t model.Task) (model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextTaskID
	m.nextTaskID++
	t.CreatedAt = time.Now().UTC()
	m.tasks[t.ID] = t
	return t, nil
}

func (m *Memory) UpdateTask(_ context.Context, id int64, upd TaskUpdate) (model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return model.Task{}, ErrWriteRejected
	}
	if upd.Link != nil {
		t.Link = *upd.Link
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Points != nil {
		t.Points = *upd.Points
	}
	if upd.IsActive != nil {
		t.IsActive = *upd.IsActive
	}
	m.tasks[id] = t
	return t, nil
}

func (m *Memory) GetCompletion(_ context.Context, userID, taskID int64) (model.CompletedTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.completions {
		if c.UserID == userID && c.TaskID == taskID {
			return c, nil
		}
	}
	return model.CompletedTask{}, ErrNotFound
}

func (m *Memory) ListCompletions(_ context.Context, userID int64) ([]model.CompletedTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.CompletedTask
	for _, c := range m.completions {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) CreateCompletion(_ context.Context, c model.CompletedTask) (model.CompletedTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failCreateCompletion; err != nil {
		return model.CompletedTask{}, err
	}
	for _, existing := range m.completions {
		if existing.UserID == c.UserID && existing.TaskID == c.TaskID {
			return model.CompletedTask{}, &Error{Code: "23505", Message: "duplicate key value", StatusCode: 409}
		}
	}
	c.ID = uuid.NewString()
	c.CompletedAt = time.Now().UTC()
	c.PointsCredited = false
	c.CreditedAt = nil
	m.completions = append(m.completions, c)
	return c, nil
}

func (m *Memory) SetCompletionCredited(_ context.Context, userID, taskID int64, credited bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failSetCredited; err != nil {
		return err
	}
	for i := range m.completions {
		c := &m.completions[i]
		if c.UserID != userID || c.TaskID != taskID {
			continue
		}
		if c.PointsCredited == credited {
			return ErrWriteRejected
		}
		c.PointsCredited = credited
		if credited {
			now := time.Now().UTC()
			c.CreditedAt = &now
		} else {
			c.CreditedAt = nil
		}
		return nil
	}
	return ErrWriteRejected
}

// =============================================================================
// Transfers, questions, support
// =============================================================================

func (m *Memory) CreateTransfer(_ context.Context, t model.Transfer) (model.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failCreateTransfer; err != nil {
		return model.Transfer{}, err
	}
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	m.transfers = append(m.transfers, t)
	return t, nil
}

func (m *Memory) CreateQuestion(_ context.Context, q model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.ID = uuid.NewString()
	q.CreatedAt = time.Now().UTC()
	m.questions = append(m.questions, q)
	return nil
}

func (m *Memory) CreateSupportMessage(_ context.Context, msg model.SupportMessage) (model.SupportMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	msg.IsAnswered = false
	m.support[msg.ID] = msg
	return msg, nil
}

func (m *Memory) ListOpenSupportMessages(_ context.Context) ([]model.SupportMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.SupportMessage
	for _, msg := range m.support {
		if !msg.IsAnswered {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ReplySupportMessage(_ context.Context, id, reply string) (model.SupportMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.support[id]
	if !ok {
		return model.SupportMessage{}, ErrNotFound
	}
	now := time.Now().UTC()
	msg.Reply = reply
	msg.IsAnswered = true
	msg.RepliedAt = &now
	m.support[id] = msg
	return msg, nil
}

// =============================================================================
// Settings and statistics
// =============================================================================

func (m *Memory) ListSettings(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *Memory) Statistics(_ context.Context) (model.AppStatistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stats model.AppStatistics
	today := time.Now().UTC().Truncate(24 * time.Hour)
	for _, s := range m.students {
		stats.TotalUsers++
		if s.IsPremium {
			stats.PremiumUsers++
		}
		if !s.CreatedAt.Before(today) {
			stats.NewUsersToday++
		}
		stats.TotalPoints += s.Points
		stats.TotalRiyal += s.Riyal
		stats.TotalQuestions += s.QuestionsCount
	}
	stats.TotalCompletedTasks = len(m.completions)
	return stats, nil
}
