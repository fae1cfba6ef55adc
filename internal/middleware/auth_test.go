package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/manhaj-ai/miniapp/internal/auth"
)

func testIssuer(t *testing.T) *auth.TokenIssuer {
	t.Helper()
	return auth.NewTokenIssuer("test-secret", time.Hour)
}

func TestRequireAuthNoToken(t *testing.T) {
	handler := RequireAuth(testIssuer(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/api/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	handler := RequireAuth(testIssuer(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidToken(t *testing.T) {
	issuer := testIssuer(t)
	token, err := issuer.Issue(auth.AuthContext{TelegramID: 1001, Name: "Sara Ahmed"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var gotAC auth.AuthContext
	handler := RequireAuth(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected AuthContext in request context")
		}
		gotAC = ac
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotAC.TelegramID != 1001 {
		t.Errorf("TelegramID = %d, want 1001", gotAC.TelegramID)
	}
	if gotAC.Name != "Sara Ahmed" {
		t.Errorf("Name = %q, want %q", gotAC.Name, "Sara Ahmed")
	}
}

func TestRequireAuthQueryToken(t *testing.T) {
	issuer := testIssuer(t)
	token, err := issuer.Issue(auth.AuthContext{TelegramID: 1001})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	handler := RequireAuth(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.TelegramID(r.Context()) != 1001 {
			t.Errorf("TelegramID = %d, want 1001", auth.TelegramID(r.Context()))
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireManagerAllowed(t *testing.T) {
	ctx := auth.WithAuth(context.Background(), auth.AuthContext{IsManager: true})
	req := httptest.NewRequest("GET", "/api/admin/tasks", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler := RequireManager(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireManagerForbidden(t *testing.T) {
	ctx := auth.WithAuth(context.Background(), auth.AuthContext{TelegramID: 1001})
	req := httptest.NewRequest("GET", "/api/admin/tasks", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler := RequireManager(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}
