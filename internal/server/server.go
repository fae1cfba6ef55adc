package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/manhaj-ai/miniapp/internal/account"
	"github.com/manhaj-ai/miniapp/internal/archive"
	"github.com/manhaj-ai/miniapp/internal/auth"
	"github.com/manhaj-ai/miniapp/internal/chat"
	"github.com/manhaj-ai/miniapp/internal/economy"
	"github.com/manhaj-ai/miniapp/internal/gateway"
	"github.com/manhaj-ai/miniapp/internal/handler"
	"github.com/manhaj-ai/miniapp/internal/middleware"
	"github.com/manhaj-ai/miniapp/internal/payments"
	"github.com/manhaj-ai/miniapp/internal/push"
	"github.com/manhaj-ai/miniapp/internal/store"
	"github.com/manhaj-ai/miniapp/internal/telegram"
	ws "github.com/manhaj-ai/miniapp/internal/websocket"
)

// Config collects everything the server needs beyond the two stores.
type Config struct {
	JWTSecret string
	BotToken  string
	// ManagerIDs get manager tokens regardless of their remote row flag.
	ManagerIDs []int64
	// AdminPasswordHash is the bcrypt hash gating the panel login.
	AdminPasswordHash string

	Chat     chat.ClientConfig
	Push     push.Config
	Payments payments.Config
	Archive  archive.Config
}

type Server struct {
	db  *sql.DB
	gw  gateway.Gateway
	hub *ws.Hub

	authH     *handler.AuthHandler
	economyH  *handler.EconomyHandler
	taskH     *handler.TaskHandler
	statsH    *handler.StatsHandler
	chatH     *handler.ChatHandler
	supportH  *handler.SupportHandler
	adminH    *handler.AdminHandler
	pushH     *handler.PushHandler
	prefsH    *handler.PreferencesHandler
	paymentsH *handler.PaymentsHandler
	webhookH  *payments.WebhookHandler

	issuer        *auth.TokenIssuer
	rateLimiter   *middleware.RateLimiter
	pushScheduler *push.Scheduler
	archiveMgr    *archive.Manager
	logger        *slog.Logger
}

// New wires the whole application. The local db holds device state while
// gw talks to the authoritative remote store.
func New(db *sql.DB, gw gateway.Gateway, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	pushStore := store.NewPushStore(db)
	chatStore := store.NewChatStore(db)
	prefsStore := store.NewPreferencesStore(db)
	cacheStore := store.NewStudentCacheStore(db)

	accounts := account.NewService(gw, logger.With("component", "account"))
	economySvc := economy.NewService(gw, logger.With("component", "economy"))
	chatSvc := chat.NewService(gw, chat.NewClient(cfg.Chat), chatStore, logger)

	verifier := telegram.NewVerifier(cfg.BotToken, 24*time.Hour)
	bot := telegram.NewBot(telegram.BotConfig{Token: cfg.BotToken})
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, auth.DefaultTokenTTL)

	// Push delivery stays off without VAPID keys; subscriptions are still
	// stored so enabling keys later picks them up.
	var pushSvc *push.Service
	var pushSched *push.Scheduler
	if cfg.Push.VAPIDPublicKey != "" && cfg.Push.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey)
		pushSched = push.NewScheduler(pushSvc, pushStore, gw)
	}
	var supportPusher handler.SupportPusher
	if pushSched != nil {
		supportPusher = pushSched
	}

	archiveMgr := archive.NewManager(cfg.Archive, gw, func(s archive.Status) {
		hub.Broadcast(ws.EventArchiveStatus, map[string]any{
			"state":       s.State,
			"in_progress": s.InProgress,
			"error":       s.Error,
			"key":         s.LastKey,
		})
	})
	var archiver handler.Archiver
	if archiveMgr.Enabled() {
		archiver = archiveMgr
	}

	var paymentsClient *payments.Client
	var webhookH *payments.WebhookHandler
	if cfg.Payments.SecretKey != "" {
		paymentsClient = payments.NewClient(cfg.Payments)
		webhookH = payments.NewWebhookHandler(paymentsClient, gw, logger)
	}

	return &Server{
		db:  db,
		gw:  gw,
		hub: hub,

		authH:     handler.NewAuthHandler(accounts, verifier, issuer, cacheStore, cfg.ManagerIDs, cfg.AdminPasswordHash, logger.With("component", "auth")),
		economyH:  handler.NewEconomyHandler(economySvc, hub, logger.With("component", "economy_handler")),
		taskH:     handler.NewTaskHandler(gw, economySvc, hub, logger.With("component", "task")),
		statsH:    handler.NewStatsHandler(gw, accounts, economySvc, logger.With("component", "stats")),
		chatH:     handler.NewChatHandler(chatSvc, logger.With("component", "chat_handler")),
		supportH:  handler.NewSupportHandler(gw, logger.With("component", "support")),
		adminH:    handler.NewAdminHandler(gw, accounts, bot, archiver, supportPusher, hub, logger.With("component", "admin")),
		pushH:     handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler")),
		prefsH:    handler.NewPreferencesHandler(prefsStore, logger.With("component", "preferences")),
		paymentsH: handler.NewPaymentsHandler(paymentsClient, logger.With("component", "payments")),
		webhookH:  webhookH,

		issuer:        issuer,
		rateLimiter:   middleware.NewRateLimiter(),
		pushScheduler: pushSched,
		archiveMgr:    archiveMgr,
		logger:        logger,
	}
}

// Start launches the background loops. Safe to call with unconfigured
// push or archive, those simply stay idle.
func (s *Server) Start(ctx context.Context) {
	if s.pushScheduler != nil {
		s.pushScheduler.Start(ctx)
	}
	s.archiveMgr.Start(ctx)
}

// Stop shuts the background loops down and waits for them.
func (s *Server) Stop() {
	if s.pushScheduler != nil {
		s.pushScheduler.Stop()
	}
	s.archiveMgr.Stop()
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/auth/telegram", s.rateLimitedHandler(s.authH.Telegram, 10))
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register, 10))
	outerMux.HandleFunc("POST /api/auth/admin", s.rateLimitedHandler(s.authH.AdminLogin, 5))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	if s.webhookH != nil {
		// Authenticated by the Stripe signature, not by a session token
		outerMux.HandleFunc("POST /api/payments/webhook", s.webhookH.HandleStripeWebhook)
	}

	// Protected routes wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.issuer)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc, perMinute int) http.HandlerFunc {
	return s.limitedHandler(h, middleware.RealIP, perMinute)
}

func (s *Server) limitedHandler(h http.HandlerFunc, keyFunc func(*http.Request) string, perMinute int) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, perMinute, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Profile
	mux.HandleFunc("GET /api/me", s.statsH.Me)
	mux.HandleFunc("GET /api/me/stats", s.statsH.MeStats)

	// Economy
	mux.HandleFunc("POST /api/economy/convert", s.economyH.Convert)
	mux.HandleFunc("POST /api/economy/transfer", s.economyH.Transfer)
	mux.HandleFunc("POST /api/economy/premium", s.economyH.BuyPremium)

	// Tasks
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.taskH.Complete)
	mux.HandleFunc("POST /api/tasks/{id}/retry-credit", s.taskH.RetryCredit)

	// Read-only views
	mux.HandleFunc("GET /api/leaderboard", s.statsH.Leaderboard)
	mux.HandleFunc("GET /api/statistics", s.statsH.Statistics)
	mux.HandleFunc("GET /api/settings", s.statsH.Settings)

	// AI tutor; questions are rate limited per account on top of the ad gate
	mux.HandleFunc("POST /api/chat/question", s.limitedHandler(s.chatH.Question, middleware.AccountKey, 30))
	mux.HandleFunc("POST /api/chat/ad-viewed", s.chatH.AdViewed)
	mux.HandleFunc("GET /api/chat/history", s.chatH.History)
	mux.HandleFunc("DELETE /api/chat/history", s.chatH.ClearHistory)
	mux.HandleFunc("GET /api/chat/health", s.chatH.Health)

	// Support
	mux.HandleFunc("POST /api/support", s.supportH.Create)

	// Card payments
	mux.HandleFunc("POST /api/payments/checkout", s.paymentsH.Checkout)

	// Push notifications
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscribe", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.Subscriptions)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.HandleFunc("GET /api/push/preferences", s.pushH.Preferences)
	mux.HandleFunc("PUT /api/push/preferences", s.pushH.SetPreference)

	// Device preferences
	mux.HandleFunc("GET /api/preferences", s.prefsH.Get)
	mux.HandleFunc("PUT /api/preferences", s.prefsH.Set)

	// Admin routes require a manager token on top of authentication
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("GET /api/admin/stats", s.adminH.Stats)
	adminMux.HandleFunc("GET /api/admin/students", s.adminH.Students)
	adminMux.HandleFunc("POST /api/admin/tasks", s.adminH.CreateTask)
	adminMux.HandleFunc("PUT /api/admin/tasks/{id}", s.adminH.UpdateTask)
	adminMux.HandleFunc("POST /api/admin/premium/gift", s.adminH.GiftPremium)
	adminMux.HandleFunc("POST /api/admin/premium/cancel", s.adminH.CancelPremium)
	adminMux.HandleFunc("PUT /api/admin/settings", s.adminH.SetSetting)
	adminMux.HandleFunc("GET /api/admin/support", s.adminH.ListSupport)
	adminMux.HandleFunc("POST /api/admin/support/{id}/reply", s.adminH.ReplySupport)
	adminMux.HandleFunc("POST /api/admin/broadcast", s.adminH.Broadcast)
	adminMux.HandleFunc("POST /api/admin/archive", s.adminH.Archive)
	mux.Handle("/api/admin/", middleware.RequireManager(adminMux))

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
}
