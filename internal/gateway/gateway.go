// Package gateway is the client's only path to the authoritative remote
// data store. Local state elsewhere in the app is a cache of what these
// calls last returned.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/manhaj-ai/miniapp/internal/model"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("gateway: row not found")
	// ErrWriteRejected is returned when a conditional update matched no
	// row: the row is gone or its balance predicate failed at write time.
	ErrWriteRejected = errors.New("gateway: write rejected")
)

// Error is a structured failure returned by the remote store.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Hint       string `json:"hint,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway: %s (%s)", e.Message, e.Code)
	}
	return "gateway: " + e.Message
}

// StudentUpdate is a partial update applied to a student row. Nil fields are
// left untouched. The If* predicates narrow the update to a row whose balance
// still equals the caller's snapshot at write time; a miss surfaces as
// ErrWriteRejected. Equality, not a floor: a concurrent credit also misses,
// so the stale writer re-reads instead of overwriting points that arrived
// after its snapshot.
type StudentUpdate struct {
	Points              *int
	Riyal               *int
	IsPremium           *bool
	IsGiftPremium       *bool
	AdsResponseCount    *int
	QuestionsCount      *int
	SuccessfulReferrals *int
	LastActivity        *time.Time

	IfPoints *int
	IfRiyal  *int
}

// TaskUpdate is a partial update applied to a task row.
type TaskUpdate struct {
	Link        *string
	Description *string
	Points      *int
	IsActive    *bool
}

// Gateway is the row-level surface of the remote store: lookup by key,
// insert, conditional update, and ordered/limited listing over the named
// collections. Implementations return ErrNotFound, ErrWriteRejected, or a
// transport failure; callers distinguish nothing finer.
type Gateway interface {
	// Students
	GetStudentByTelegramID(ctx context.Context, telegramID int64) (model.Student, error)
	GetStudentByVerificationCode(ctx context.Context, code string) (model.Student, error)
	GetStudentByReferralCode(ctx context.Context, code string) (model.Student, error)
	CreateStudent(ctx context.Context, s model.Student) (model.Student, error)
	UpdateStudent(ctx context.Context, telegramID int64, upd StudentUpdate) (model.Student, error)
	ListStudents(ctx context.Context) ([]model.Student, error)
	TopStudents(ctx context.Context, limit int) ([]model.Student, error)

	// Tasks
	GetTask(ctx context.Context, id int64) (model.Task, error)
	ListActiveTasks(ctx context.Context) ([]model.Task, error)
	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	UpdateTask(ctx context.Context, id int64, upd TaskUpdate) (model.Task, error)

	// Completions
	GetCompletion(ctx context.Context, userID, taskID int64) (model.CompletedTask, error)
	ListCompletions(ctx context.Context, userID int64) ([]model.CompletedTask, error)
	CreateCompletion(ctx context.Context, c model.CompletedTask) (model.CompletedTask, error)
	// SetCompletionCredited flips the completion's points_credited flag,
	// but only when the row currently holds the opposite value. A miss
	// surfaces as ErrWriteRejected, so two racing credit attempts cannot
	// both claim the same completion.
	SetCompletionCredited(ctx context.Context, userID, taskID int64, credited bool) error

	// Transfers (immutable audit rows)
	CreateTransfer(ctx context.Context, t model.Transfer) (model.Transfer, error)

	// Questions
	CreateQuestion(ctx context.Context, q model.Question) error

	// Support
	CreateSupportMessage(ctx context.Context, m model.SupportMessage) (model.SupportMessage, error)
	ListOpenSupportMessages(ctx context.Context) ([]model.SupportMessage, error)
	ReplySupportMessage(ctx context.Context, id, reply string) (model.SupportMessage, error)

	// Settings and statistics
	ListSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error
	Statistics(ctx context.Context) (model.AppStatistics, error)
}
