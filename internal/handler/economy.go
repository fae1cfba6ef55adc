package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/manhaj-ai/miniapp/internal/auth"
	"github.com/manhaj-ai/miniapp/internal/economy"
	"github.com/manhaj-ai/miniapp/internal/model"
	ws "github.com/manhaj-ai/miniapp/internal/websocket"
)

type EconomyHandler struct {
	economy *economy.Service
	hub     Broadcaster
	logger  *slog.Logger
}

func NewEconomyHandler(svc *economy.Service, hub Broadcaster, logger *slog.Logger) *EconomyHandler {
	return &EconomyHandler{economy: svc, hub: hub, logger: logger}
}

func (h *EconomyHandler) balanceChanged(student model.Student) {
	if h.hub == nil {
		return
	}
	h.hub.Broadcast(ws.EventBalanceUpdated, map[string]any{
		"telegram_id": student.TelegramID,
		"points":      student.Points,
		"riyal":       student.Riyal,
	})
}

type convertRequest struct {
	Points int `json:"points"`
}

// Convert handles POST /api/economy/convert
func (h *EconomyHandler) Convert(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	student, err := h.economy.Convert(r.Context(), telegramID, req.Points)
	if err != nil {
		if !isExpectedEconomyError(err) {
			h.logger.Error("convert", "telegram_id", telegramID, "error", err)
		}
		writeDomainError(w, err)
		return
	}

	h.balanceChanged(student)
	writeJSON(w, http.StatusOK, student)
}

type transferRequest struct {
	ReceiverCode string `json:"receiver_code"`
	Amount       int    `json:"amount"`
}

// Transfer handles POST /api/economy/transfer
func (h *EconomyHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	student, err := h.economy.Transfer(r.Context(), telegramID, req.ReceiverCode, req.Amount)
	if err != nil {
		if !isExpectedEconomyError(err) {
			h.logger.Error("transfer", "telegram_id", telegramID, "error", err)
		}
		writeDomainError(w, err)
		return
	}

	h.balanceChanged(student)
	writeJSON(w, http.StatusOK, student)
}

// BuyPremium handles POST /api/economy/premium
func (h *EconomyHandler) BuyPremium(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	student, err := h.economy.BuyPremium(r.Context(), telegramID)
	if err != nil {
		if !isExpectedEconomyError(err) {
			h.logger.Error("buy premium", "telegram_id", telegramID, "error", err)
		}
		writeDomainError(w, err)
		return
	}

	h.balanceChanged(student)
	writeJSON(w, http.StatusOK, student)
}

// isExpectedEconomyError filters business rejections out of the error log.
func isExpectedEconomyError(err error) bool {
	return errors.Is(err, economy.ErrAmountInvalid) ||
		errors.Is(err, economy.ErrAmountTooSmall) ||
		errors.Is(err, economy.ErrInsufficientPoints) ||
		errors.Is(err, economy.ErrInsufficientRiyal) ||
		errors.Is(err, economy.ErrSelfTransfer) ||
		errors.Is(err, economy.ErrReceiverNotFound) ||
		errors.Is(err, economy.ErrAlreadyPremium) ||
		errors.Is(err, economy.ErrAlreadyCompleted) ||
		errors.Is(err, economy.ErrTaskInvalid)
}
