package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/manhaj-ai/miniapp/internal/archive"
	"github.com/manhaj-ai/miniapp/internal/chat"
	"github.com/manhaj-ai/miniapp/internal/database"
	"github.com/manhaj-ai/miniapp/internal/gateway"
	"github.com/manhaj-ai/miniapp/internal/logging"
	"github.com/manhaj-ai/miniapp/internal/payments"
	"github.com/manhaj-ai/miniapp/internal/push"
	"github.com/manhaj-ai/miniapp/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("MINIAPP_LOG_LEVEL"), os.Getenv("MINIAPP_LOG_FORMAT"))

	port := os.Getenv("MINIAPP_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("MINIAPP_DB_PATH")
	if dbPath == "" {
		dbPath = "miniapp.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	gw, err := gateway.NewPostgREST(gateway.PostgRESTConfig{
		ProjectURL: os.Getenv("MINIAPP_SUPABASE_URL"),
		APIKey:     os.Getenv("MINIAPP_SUPABASE_KEY"),
	})
	if err != nil {
		log.Fatalf("failed to configure remote store: %v", err)
	}

	jwtSecret := os.Getenv("MINIAPP_JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("MINIAPP_JWT_SECRET is required")
	}

	cfg := server.Config{
		JWTSecret:         jwtSecret,
		BotToken:          os.Getenv("MINIAPP_BOT_TOKEN"),
		ManagerIDs:        parseManagerIDs(os.Getenv("MINIAPP_MANAGER_IDS")),
		AdminPasswordHash: os.Getenv("MINIAPP_ADMIN_PASSWORD_HASH"),
		Chat: chat.ClientConfig{
			APIKey: os.Getenv("MINIAPP_GEMINI_API_KEY"),
			Model:  os.Getenv("MINIAPP_GEMINI_MODEL"),
		},
		Push: push.Config{
			VAPIDPublicKey:  os.Getenv("MINIAPP_VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: os.Getenv("MINIAPP_VAPID_PRIVATE_KEY"),
		},
		Payments: payments.Config{
			SecretKey:      os.Getenv("MINIAPP_STRIPE_SECRET_KEY"),
			WebhookSecret:  os.Getenv("MINIAPP_STRIPE_WEBHOOK_SECRET"),
			PremiumPriceID: os.Getenv("MINIAPP_STRIPE_PREMIUM_PRICE"),
			SuccessURL:     os.Getenv("MINIAPP_STRIPE_SUCCESS_URL"),
			CancelURL:      os.Getenv("MINIAPP_STRIPE_CANCEL_URL"),
		},
		Archive: archive.Config{
			S3: archive.S3Config{
				Endpoint:  os.Getenv("MINIAPP_S3_ENDPOINT"),
				Bucket:    os.Getenv("MINIAPP_S3_BUCKET"),
				Region:    os.Getenv("MINIAPP_S3_REGION"),
				AccessKey: os.Getenv("MINIAPP_S3_ACCESS_KEY"),
				SecretKey: os.Getenv("MINIAPP_S3_SECRET_KEY"),
			},
		},
	}

	srv := server.New(db, gw, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	srv.Start(ctx)
	defer srv.Stop()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("miniapp running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

func parseManagerIDs(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			log.Fatalf("invalid manager id %q", part)
		}
		ids = append(ids, id)
	}
	return ids
}
