package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

const testToken = "123456:TEST-TOKEN"

func signedInitData(t *testing.T, v *Verifier, userID int64, authDate time.Time) string {
	t.Helper()
	user, err := json.Marshal(WebAppUser{ID: userID, FirstName: "Sara", LastName: "Ahmed"})
	if err != nil {
		t.Fatalf("marshal user: %v", err)
	}
	values := url.Values{}
	values.Set("user", string(user))
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("query_id", "AAE1001")
	return v.Sign(values)
}

func TestVerify(t *testing.T) {
	v := NewVerifier(testToken, time.Hour)
	raw := signedInitData(t, v, 1001, time.Now())

	data, err := v.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if data.User.ID != 1001 {
		t.Errorf("user id = %d, want 1001", data.User.ID)
	}
	if data.User.FullName() != "Sara Ahmed" {
		t.Errorf("full name = %q", data.User.FullName())
	}
	if data.QueryID != "AAE1001" {
		t.Errorf("query id = %q", data.QueryID)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	v := NewVerifier(testToken, time.Hour)
	raw := signedInitData(t, v, 1001, time.Now())

	tampered := strings.Replace(raw, "Sara", "Evil", 1)
	if _, err := v.Verify(tampered); !errors.Is(err, ErrInvalidInitData) {
		t.Errorf("expected ErrInvalidInitData, got %v", err)
	}
}

func TestVerifyRejectsWrongToken(t *testing.T) {
	signer := NewVerifier("999999:OTHER-TOKEN", time.Hour)
	raw := signedInitData(t, signer, 1001, time.Now())

	v := NewVerifier(testToken, time.Hour)
	if _, err := v.Verify(raw); !errors.Is(err, ErrInvalidInitData) {
		t.Errorf("expected ErrInvalidInitData, got %v", err)
	}
}

func TestVerifyRejectsMissingHash(t *testing.T) {
	v := NewVerifier(testToken, time.Hour)
	if _, err := v.Verify("user=%7B%22id%22%3A1%7D&auth_date=1"); !errors.Is(err, ErrInvalidInitData) {
		t.Errorf("expected ErrInvalidInitData, got %v", err)
	}
}

func TestVerifyExpiry(t *testing.T) {
	v := NewVerifier(testToken, time.Hour)
	raw := signedInitData(t, v, 1001, time.Now().Add(-2*time.Hour))

	if _, err := v.Verify(raw); !errors.Is(err, ErrExpiredInitData) {
		t.Errorf("expected ErrExpiredInitData, got %v", err)
	}

	// Zero maxAge disables the age check
	lax := NewVerifier(testToken, 0)
	stale := signedInitData(t, lax, 1001, time.Now().Add(-48*time.Hour))
	if _, err := lax.Verify(stale); err != nil {
		t.Errorf("expected stale data accepted with no max age, got %v", err)
	}
}

func TestVerifyRequiresUser(t *testing.T) {
	v := NewVerifier(testToken, time.Hour)
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	raw := v.Sign(values)

	if _, err := v.Verify(raw); !errors.Is(err, ErrInvalidInitData) {
		t.Errorf("expected ErrInvalidInitData without user, got %v", err)
	}
}

func TestBotSendMessage(t *testing.T) {
	var gotPath string
	var gotReq sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(apiResponse{OK: true})
	}))
	defer srv.Close()

	bot := NewBot(BotConfig{Token: testToken, BaseURL: srv.URL})
	if err := bot.SendMessage(context.Background(), 1001, "مرحبا"); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if gotPath != "/bot"+testToken+"/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotReq.ChatID != 1001 || gotReq.Text != "مرحبا" {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestBotSendMessageRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiResponse{OK: false, Description: "chat not found"})
	}))
	defer srv.Close()

	bot := NewBot(BotConfig{Token: testToken, BaseURL: srv.URL})
	err := bot.SendMessage(context.Background(), 42, "hi")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("expected rejection error, got %v", err)
	}
}

func TestBotDisabled(t *testing.T) {
	bot := NewBot(BotConfig{})
	if bot.Enabled() {
		t.Error("expected disabled without token")
	}
	if err := bot.SendMessage(context.Background(), 1, "hi"); err == nil {
		t.Error("expected error when token missing")
	}
}
