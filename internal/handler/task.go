package handler

import (
	"log/slog"
	"net/http"

	"github.com/manhaj-ai/miniapp/internal/auth"
	"github.com/manhaj-ai/miniapp/internal/economy"
	"github.com/manhaj-ai/miniapp/internal/gateway"
	"github.com/manhaj-ai/miniapp/internal/model"
	ws "github.com/manhaj-ai/miniapp/internal/websocket"
)

type TaskHandler struct {
	gw      gateway.Gateway
	economy *economy.Service
	hub     Broadcaster
	logger  *slog.Logger
}

func NewTaskHandler(gw gateway.Gateway, svc *economy.Service, hub Broadcaster, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{gw: gw, economy: svc, hub: hub, logger: logger}
}

type taskView struct {
	model.Task
	Completed bool `json:"completed"`
}

// List handles GET /api/tasks. Active tasks come back flagged with whether
// the caller already completed them.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	tasks, err := h.gw.ListActiveTasks(r.Context())
	if err != nil {
		h.logger.Error("list tasks", "error", err)
		writeDomainError(w, err)
		return
	}

	completions, err := h.gw.ListCompletions(r.Context(), telegramID)
	if err != nil {
		h.logger.Error("list completions", "telegram_id", telegramID, "error", err)
		writeDomainError(w, err)
		return
	}
	done := make(map[int64]bool, len(completions))
	for _, c := range completions {
		done[c.TaskID] = true
	}

	views := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, taskView{Task: task, Completed: done[task.ID]})
	}
	writeJSON(w, http.StatusOK, views)
}

// Complete handles POST /api/tasks/{id}/complete
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	taskID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	student, err := h.economy.CompleteTask(r.Context(), telegramID, taskID)
	if err != nil {
		if !isExpectedEconomyError(err) {
			h.logger.Error("complete task", "telegram_id", telegramID, "task_id", taskID, "error", err)
		}
		writeDomainError(w, err)
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(ws.EventBalanceUpdated, map[string]any{
			"telegram_id": student.TelegramID,
			"points":      student.Points,
			"riyal":       student.Riyal,
		})
	}
	writeJSON(w, http.StatusOK, student)
}

// RetryCredit handles POST /api/tasks/{id}/retry-credit. It finishes a
// completion whose credit step failed earlier.
func (h *TaskHandler) RetryCredit(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	taskID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	student, err := h.economy.RetryCredit(r.Context(), telegramID, taskID)
	if err != nil {
		if !isExpectedEconomyError(err) {
			h.logger.Error("retry credit", "telegram_id", telegramID, "task_id", taskID, "error", err)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, student)
}
