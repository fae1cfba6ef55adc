package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/manhaj-ai/miniapp/internal/database"
	"github.com/manhaj-ai/miniapp/internal/gateway"
	"github.com/manhaj-ai/miniapp/internal/model"
	"github.com/manhaj-ai/miniapp/internal/store"
)

func fakeUpstream(t *testing.T, answer string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "generateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Contents) == 0 || len(req.Contents[0].Parts) == 0 {
			t.Fatal("empty prompt")
		}
		json.NewEncoder(w).Encode(generateResponse{
			Candidates: []struct {
				Content content `json:"content"`
			}{{Content: content{Parts: []part{{Text: answer}}}}},
		})
	}))
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
}

func setupChatService(t *testing.T, client *Client) (*Service, *gateway.Memory) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	mem := gateway.NewMemory()
	svc := NewService(mem, client, store.NewChatStore(db), slog.Default())
	return svc, mem
}

func newStudent(t *testing.T, mem *gateway.Memory, telegramID int64, premium bool, adsCount int) {
	t.Helper()
	if _, err := mem.CreateStudent(context.Background(), model.Student{
		TelegramID:     telegramID,
		Name:           "Sara Ahmed",
		EducationStage: "secondary",
		Country:        "SA",
	}); err != nil {
		t.Fatalf("create student: %v", err)
	}
	if premium || adsCount != 0 {
		upd := gateway.StudentUpdate{AdsResponseCount: &adsCount}
		if premium {
			p := true
			upd.IsPremium = &p
		}
		if _, err := mem.UpdateStudent(context.Background(), telegramID, upd); err != nil {
			t.Fatalf("seed student: %v", err)
		}
	}
}

func TestAsk(t *testing.T) {
	svc, mem := setupChatService(t, fakeUpstream(t, "الجاذبية قوة طبيعية"))
	newStudent(t, mem, 1001, false, 0)

	answer, err := svc.Ask(context.Background(), 1001, "ما هي الجاذبية؟")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer != "الجاذبية قوة طبيعية" {
		t.Errorf("answer = %q", answer)
	}

	// Counters bumped on the remote row
	student, _ := mem.GetStudentByTelegramID(context.Background(), 1001)
	if student.QuestionsCount != 1 {
		t.Errorf("questions_count = %d, want 1", student.QuestionsCount)
	}
	if student.AdsResponseCount != 1 {
		t.Errorf("ads_response_count = %d, want 1", student.AdsResponseCount)
	}
	if len(mem.Questions()) != 1 {
		t.Errorf("question rows = %d, want 1", len(mem.Questions()))
	}

	// Both turns recorded locally
	history, err := svc.History(1001, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history len = %d, want 2", len(history))
	}
	if history[0].Role != model.ChatRoleUser || history[1].Role != model.ChatRoleAssistant {
		t.Errorf("history roles = [%s %s]", history[0].Role, history[1].Role)
	}
}

func TestAskAdGate(t *testing.T) {
	svc, mem := setupChatService(t, fakeUpstream(t, "answer"))
	newStudent(t, mem, 1001, false, DefaultAdResponseLimit)

	_, err := svc.Ask(context.Background(), 1001, "سؤال")
	if !errors.Is(err, ErrAdRequired) {
		t.Fatalf("expected ErrAdRequired, got %v", err)
	}

	// Counters untouched while gated
	student, _ := mem.GetStudentByTelegramID(context.Background(), 1001)
	if student.QuestionsCount != 0 {
		t.Errorf("questions_count = %d, want 0", student.QuestionsCount)
	}

	// Confirming the ad view unblocks the next question
	if err := svc.ConfirmAdViewed(context.Background(), 1001); err != nil {
		t.Fatalf("confirm ad: %v", err)
	}
	if _, err := svc.Ask(context.Background(), 1001, "سؤال"); err != nil {
		t.Fatalf("ask after ad: %v", err)
	}
}

func TestAskPremiumSkipsAdGate(t *testing.T) {
	svc, mem := setupChatService(t, fakeUpstream(t, "answer"))
	newStudent(t, mem, 1001, true, 99)

	if _, err := svc.Ask(context.Background(), 1001, "سؤال"); err != nil {
		t.Fatalf("premium ask: %v", err)
	}

	// Premium answers never bump the ad counter
	student, _ := mem.GetStudentByTelegramID(context.Background(), 1001)
	if student.AdsResponseCount != 99 {
		t.Errorf("ads_response_count = %d, want 99", student.AdsResponseCount)
	}
}

func TestAskConfiguredAdLimit(t *testing.T) {
	svc, mem := setupChatService(t, fakeUpstream(t, "answer"))
	newStudent(t, mem, 1001, false, 3)
	mem.SetSetting(context.Background(), SettingAdResponseLimit, "5")

	if _, err := svc.Ask(context.Background(), 1001, "سؤال"); err != nil {
		t.Fatalf("ask below configured limit: %v", err)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	svc, mem := setupChatService(t, fakeUpstream(t, "answer"))
	newStudent(t, mem, 1001, false, 0)

	if _, err := svc.Ask(context.Background(), 1001, ""); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestAskUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	client := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
	svc, mem := setupChatService(t, client)
	newStudent(t, mem, 1001, false, 0)

	_, err := svc.Ask(context.Background(), 1001, "سؤال")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	// No counters move when the upstream fails
	student, _ := mem.GetStudentByTelegramID(context.Background(), 1001)
	if student.QuestionsCount != 0 {
		t.Errorf("questions_count = %d, want 0", student.QuestionsCount)
	}
}

func TestClientNotReady(t *testing.T) {
	client := NewClient(ClientConfig{})
	if client.Ready() {
		t.Error("expected not ready without API key")
	}
	_, err := client.Answer(context.Background(), "q", StudentProfile{})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestBuildPromptDefaults(t *testing.T) {
	prompt := buildPrompt("سؤال", StudentProfile{})
	if !strings.Contains(prompt, "طالب") {
		t.Error("expected default student name in prompt")
	}
	if !strings.Contains(prompt, "سؤال") {
		t.Error("expected question in prompt")
	}

	prompt = buildPrompt("q", StudentProfile{Name: "Sara", Country: "مصر", EducationStage: "الجامعة"})
	if !strings.Contains(prompt, "Sara") || !strings.Contains(prompt, "مصر") {
		t.Error("expected profile fields in prompt")
	}
}
