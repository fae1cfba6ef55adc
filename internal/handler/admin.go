package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/manhaj-ai/miniapp/internal/account"
	"github.com/manhaj-ai/miniapp/internal/gateway"
	"github.com/manhaj-ai/miniapp/internal/model"
	"github.com/manhaj-ai/miniapp/internal/telegram"
	ws "github.com/manhaj-ai/miniapp/internal/websocket"
)

// Archiver exports the current statistics snapshot on demand.
type Archiver interface {
	ArchiveNow(ctx context.Context) (string, error)
}

// SupportPusher sends the web push for an answered support message.
type SupportPusher interface {
	NotifySupportReply(telegramID int64)
}

type AdminHandler struct {
	gw       gateway.Gateway
	accounts *account.Service
	bot      *telegram.Bot
	archiver Archiver
	pusher   SupportPusher
	hub      Broadcaster
	logger   *slog.Logger
}

func NewAdminHandler(
	gw gateway.Gateway,
	accounts *account.Service,
	bot *telegram.Bot,
	archiver Archiver,
	pusher SupportPusher,
	hub Broadcaster,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		gw:       gw,
		accounts: accounts,
		bot:      bot,
		archiver: archiver,
		pusher:   pusher,
		hub:      hub,
		logger:   logger,
	}
}

// Stats handles GET /api/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gw.Statistics(r.Context())
	if err != nil {
		h.logger.Error("admin stats", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Students handles GET /api/admin/students
func (h *AdminHandler) Students(w http.ResponseWriter, r *http.Request) {
	students, err := h.gw.ListStudents(r.Context())
	if err != nil {
		h.logger.Error("list students", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

type taskRequest struct {
	Link        string `json:"link"`
	Description string `json:"description"`
	Points      int    `json:"points"`
	IsActive    *bool  `json:"is_active"`
}

// CreateTask handles POST /api/admin/tasks
func (h *AdminHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	if req.Points <= 0 {
		writeError(w, http.StatusBadRequest, "points must be positive")
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	task, err := h.gw.CreateTask(r.Context(), model.Task{
		Link:        req.Link,
		Description: req.Description,
		Points:      req.Points,
		IsActive:    active,
	})
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeDomainError(w, err)
		return
	}

	if h.hub != nil && task.IsActive {
		h.hub.Broadcast(ws.EventTaskCreated, task)
	}
	writeJSON(w, http.StatusCreated, task)
}

// UpdateTask handles PUT /api/admin/tasks/{id}
func (h *AdminHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	upd := gateway.TaskUpdate{IsActive: req.IsActive}
	if req.Link != "" {
		upd.Link = &req.Link
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		upd.Description = &desc
	}
	if req.Points > 0 {
		upd.Points = &req.Points
	}

	task, err := h.gw.UpdateTask(r.Context(), id, upd)
	if err != nil {
		if !errors.Is(err, gateway.ErrNotFound) {
			h.logger.Error("update task", "task_id", id, "error", err)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type premiumRequest struct {
	VerificationCode string `json:"verification_code"`
}

// GiftPremium handles POST /api/admin/premium/gift
func (h *AdminHandler) GiftPremium(w http.ResponseWriter, r *http.Request) {
	var req premiumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	student, err := h.accounts.GiftPremium(r.Context(), req.VerificationCode)
	if err != nil {
		if !errors.Is(err, gateway.ErrNotFound) {
			h.logger.Error("gift premium", "error", err)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

// CancelPremium handles POST /api/admin/premium/cancel
func (h *AdminHandler) CancelPremium(w http.ResponseWriter, r *http.Request) {
	var req premiumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	student, err := h.accounts.CancelPremium(r.Context(), req.VerificationCode)
	if err != nil {
		if !errors.Is(err, gateway.ErrNotFound) {
			h.logger.Error("cancel premium", "error", err)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

type settingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SetSetting handles PUT /api/admin/settings
func (h *AdminHandler) SetSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	if err := h.gw.SetSetting(r.Context(), req.Key, req.Value); err != nil {
		h.logger.Error("set setting", "key", req.Key, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ListSupport handles GET /api/admin/support
func (h *AdminHandler) ListSupport(w http.ResponseWriter, r *http.Request) {
	messages, err := h.gw.ListOpenSupportMessages(r.Context())
	if err != nil {
		h.logger.Error("list support messages", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type replyRequest struct {
	Reply string `json:"reply"`
}

// ReplySupport handles POST /api/admin/support/{id}/reply. The student is
// told over the bot chat and web push; a delivery failure does not undo
// the reply.
func (h *AdminHandler) ReplySupport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Reply = strings.TrimSpace(req.Reply)
	if req.Reply == "" {
		writeError(w, http.StatusBadRequest, "reply is required")
		return
	}

	msg, err := h.gw.ReplySupportMessage(r.Context(), id, req.Reply)
	if err != nil {
		if !errors.Is(err, gateway.ErrNotFound) {
			h.logger.Error("reply support message", "id", id, "error", err)
		}
		writeDomainError(w, err)
		return
	}

	if h.bot != nil && h.bot.Enabled() {
		text := "📩 *رد الدعم الفني*\n\n" + req.Reply
		if err := h.bot.SendMessage(r.Context(), msg.UserID, text); err != nil {
			h.logger.Warn("notify support reply", "telegram_id", msg.UserID, "error", err)
		}
	}
	if h.pusher != nil {
		h.pusher.NotifySupportReply(msg.UserID)
	}
	if h.hub != nil {
		h.hub.Broadcast(ws.EventSupportReply, map[string]any{
			"telegram_id": msg.UserID,
			"message_id":  msg.ID,
		})
	}
	writeJSON(w, http.StatusOK, msg)
}

type broadcastRequest struct {
	Text string `json:"text"`
}

// Broadcast handles POST /api/admin/broadcast. Delivery is best effort per
// student; the response counts how many sends went through.
func (h *AdminHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	if h.bot == nil || !h.bot.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "bot is not configured")
		return
	}

	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	students, err := h.gw.ListStudents(r.Context())
	if err != nil {
		h.logger.Error("list students for broadcast", "error", err)
		writeDomainError(w, err)
		return
	}

	sent := 0
	for _, student := range students {
		if err := h.bot.SendMessage(r.Context(), student.TelegramID, req.Text); err != nil {
			h.logger.Warn("broadcast send", "telegram_id", student.TelegramID, "error", err)
			continue
		}
		sent++
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"sent":  sent,
		"total": len(students),
	})
}

// Archive handles POST /api/admin/archive
func (h *AdminHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archive storage is not configured")
		return
	}

	key, err := h.archiver.ArchiveNow(r.Context())
	if err != nil {
		h.logger.Error("archive snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "archive failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key})
}
