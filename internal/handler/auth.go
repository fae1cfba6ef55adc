package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/manhaj-ai/miniapp/internal/account"
	"github.com/manhaj-ai/miniapp/internal/auth"
	"github.com/manhaj-ai/miniapp/internal/model"
	"github.com/manhaj-ai/miniapp/internal/store"
	"github.com/manhaj-ai/miniapp/internal/telegram"
)

type AuthHandler struct {
	accounts  *account.Service
	verifier  *telegram.Verifier
	issuer    *auth.TokenIssuer
	cache     *store.StudentCacheStore
	managers  map[int64]bool
	adminHash []byte
	logger    *slog.Logger
}

func NewAuthHandler(
	accounts *account.Service,
	verifier *telegram.Verifier,
	issuer *auth.TokenIssuer,
	cache *store.StudentCacheStore,
	managerIDs []int64,
	adminPasswordHash string,
	logger *slog.Logger,
) *AuthHandler {
	managers := make(map[int64]bool, len(managerIDs))
	for _, id := range managerIDs {
		managers[id] = true
	}
	return &AuthHandler{
		accounts:  accounts,
		verifier:  verifier,
		issuer:    issuer,
		cache:     cache,
		managers:  managers,
		adminHash: []byte(adminPasswordHash),
		logger:    logger,
	}
}

// cacheSnapshot refreshes the local copy of the remote row. The UI reads
// it when the remote store is briefly unreachable, so a failure here only
// costs freshness.
func (h *AuthHandler) cacheSnapshot(student model.Student) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Put(student); err != nil {
		h.logger.Warn("cache student snapshot", "telegram_id", student.TelegramID, "error", err)
	}
}

type telegramAuthRequest struct {
	InitData string `json:"init_data"`
}

type authResponse struct {
	Token   string        `json:"token"`
	Student model.Student `json:"student"`
}

func (h *AuthHandler) isManager(student model.Student) bool {
	return student.IsManager || h.managers[student.TelegramID]
}

func (h *AuthHandler) issueToken(w http.ResponseWriter, student model.Student, status int) {
	token, err := h.issuer.Issue(auth.AuthContext{
		TelegramID: student.TelegramID,
		Name:       student.Name,
		IsManager:  h.isManager(student),
	})
	if err != nil {
		h.logger.Error("issue token", "telegram_id", student.TelegramID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, status, authResponse{Token: token, Student: student})
}

// Telegram handles POST /api/auth/telegram. The init data proves who the
// caller is; a known student gets a session token, an unknown one gets 404
// so the client shows the registration form.
func (h *AuthHandler) Telegram(w http.ResponseWriter, r *http.Request) {
	var req telegramAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	data, err := h.verifier.Verify(req.InitData)
	if err != nil {
		h.logger.Warn("init data rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "init data verification failed")
		return
	}

	student, err := h.accounts.Login(r.Context(), data.User.ID)
	if err != nil {
		if errors.Is(err, account.ErrNotRegistered) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error":             "not registered",
				"needs_registration": true,
			})
			return
		}
		h.logger.Error("login", "telegram_id", data.User.ID, "error", err)
		writeDomainError(w, err)
		return
	}

	h.cacheSnapshot(student)
	h.issueToken(w, student, http.StatusOK)
}

type registerRequest struct {
	InitData       string `json:"init_data"`
	Name           string `json:"name"`
	EducationStage string `json:"education_stage"`
	Country        string `json:"country"`
	ReferredBy     string `json:"referred_by"`
}

// Register handles POST /api/auth/register. Registration is also gated on
// verified init data so nobody can create accounts for other Telegram IDs.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	data, err := h.verifier.Verify(req.InitData)
	if err != nil {
		h.logger.Warn("init data rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "init data verification failed")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = data.User.FullName()
	}

	student, err := h.accounts.Register(r.Context(), account.RegisterInput{
		TelegramID:     data.User.ID,
		Name:           name,
		EducationStage: req.EducationStage,
		Country:        req.Country,
		ReferredBy:     req.ReferredBy,
	})
	if err != nil {
		if !errors.Is(err, account.ErrNameTooShort) && !errors.Is(err, account.ErrAlreadyRegistered) {
			h.logger.Error("register", "telegram_id", data.User.ID, "error", err)
		}
		writeDomainError(w, err)
		return
	}

	h.cacheSnapshot(student)
	h.issueToken(w, student, http.StatusCreated)
}

type adminLoginRequest struct {
	InitData string `json:"init_data"`
	Password string `json:"password"`
}

// AdminLogin handles POST /api/auth/admin. The caller proves their Telegram
// identity the same way as a normal login and additionally presents the
// panel password; the token that comes back carries the manager flag.
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	if len(h.adminHash) == 0 {
		writeError(w, http.StatusServiceUnavailable, "admin login is not configured")
		return
	}

	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	data, err := h.verifier.Verify(req.InitData)
	if err != nil {
		h.logger.Warn("init data rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "init data verification failed")
		return
	}

	if err := bcrypt.CompareHashAndPassword(h.adminHash, []byte(req.Password)); err != nil {
		h.logger.Warn("admin password rejected", "telegram_id", data.User.ID)
		writeError(w, http.StatusUnauthorized, "wrong password")
		return
	}

	student, err := h.accounts.Login(r.Context(), data.User.ID)
	if err != nil {
		if errors.Is(err, account.ErrNotRegistered) {
			writeError(w, http.StatusNotFound, "not registered")
			return
		}
		h.logger.Error("admin login", "telegram_id", data.User.ID, "error", err)
		writeDomainError(w, err)
		return
	}

	token, err := h.issuer.Issue(auth.AuthContext{
		TelegramID: student.TelegramID,
		Name:       student.Name,
		IsManager:  true,
	})
	if err != nil {
		h.logger.Error("issue token", "telegram_id", student.TelegramID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, Student: student})
}
