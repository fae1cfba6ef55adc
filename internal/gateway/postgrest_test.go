package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/manhaj-ai/miniapp/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *PostgREST {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewPostgREST(PostgRESTConfig{
		ProjectURL: srv.URL,
		APIKey:     "test-key",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestPostgRESTGetStudent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/students" {
			t.Errorf("path = %q, want /rest/v1/students", r.URL.Path)
		}
		if got := r.URL.RawQuery; got != "telegram_id=eq.1001" {
			t.Errorf("query = %q, want telegram_id=eq.1001", got)
		}
		if got := r.Header.Get("apikey"); got != "test-key" {
			t.Errorf("apikey header = %q, want test-key", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.pgrst.object+json" {
			t.Errorf("accept = %q, want single-object", got)
		}
		json.NewEncoder(w).Encode(model.Student{TelegramID: 1001, Name: "Sara", Points: 250})
	})

	s, err := client.GetStudentByTelegramID(context.Background(), 1001)
	if err != nil {
		t.Fatalf("get student: %v", err)
	}
	if s.Name != "Sara" || s.Points != 250 {
		t.Errorf("student = %+v", s)
	}
}

func TestPostgRESTNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "PGRST116",
			"message": "JSON object requested, multiple (or no) rows returned",
		})
	})

	_, err := client.GetStudentByTelegramID(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgRESTConditionalUpdateFilters(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %q, want PATCH", r.Method)
		}
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]model.Student{{TelegramID: 1001, Points: 100, Riyal: 1}})
	})

	points := 100
	snapshot := 250
	s, err := client.UpdateStudent(context.Background(), 1001, StudentUpdate{
		Points:   &points,
		IfPoints: &snapshot,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	// Equality on the snapshot, not a floor: the filter has to miss when a
	// concurrent credit raised the balance past what the caller read.
	want := "telegram_id=eq.1001&points=eq.250"
	if gotQuery != want {
		t.Errorf("query = %q, want %q", gotQuery, want)
	}
	if s.Points != 100 {
		t.Errorf("points = %d, want 100", s.Points)
	}
}

func TestPostgRESTUpdateRejectedOnEmptyResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// A conditional PATCH that matches no row returns an empty set.
		w.Write([]byte("[]"))
	})

	points := 100
	snapshot := 250
	_, err := client.UpdateStudent(context.Background(), 1001, StudentUpdate{
		Points:   &points,
		IfPoints: &snapshot,
	})
	if !errors.Is(err, ErrWriteRejected) {
		t.Errorf("expected ErrWriteRejected, got %v", err)
	}
}

func TestPostgRESTCreateCompletionConflict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "23505",
			"message": "duplicate key value violates unique constraint",
		})
	})

	// A unique violation keeps its code so callers can translate it to
	// their own duplicate error instead of a generic rejection.
	_, err := client.CreateCompletion(context.Background(), model.CompletedTask{UserID: 1001, TaskID: 3})
	var gerr *Error
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if gerr.Code != "23505" || gerr.StatusCode != http.StatusConflict {
		t.Errorf("error = %+v", gerr)
	}
}

func TestPostgRESTSetCompletionCreditedFilters(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %q, want PATCH", r.Method)
		}
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]model.CompletedTask{{UserID: 1001, TaskID: 3, PointsCredited: true}})
	})

	if err := client.SetCompletionCredited(context.Background(), 1001, 3, true); err != nil {
		t.Fatalf("set credited: %v", err)
	}
	want := "user_id=eq.1001&task_id=eq.3&points_credited=eq.false"
	if gotQuery != want {
		t.Errorf("query = %q, want %q", gotQuery, want)
	}
}

func TestPostgRESTSetCompletionCreditedMiss(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Already credited: the points_credited filter matches no row.
		w.Write([]byte("[]"))
	})

	err := client.SetCompletionCredited(context.Background(), 1001, 3, true)
	if !errors.Is(err, ErrWriteRejected) {
		t.Errorf("expected ErrWriteRejected, got %v", err)
	}
}

func TestPostgRESTTopStudentsQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		want := "order=points.desc&limit=100"
		if got := r.URL.RawQuery; got != want {
			t.Errorf("query = %q, want %q", got, want)
		}
		json.NewEncoder(w).Encode([]model.Student{
			{Name: "First", Points: 900},
			{Name: "Second", Points: 500},
		})
	})

	top, err := client.TopStudents(context.Background(), 100)
	if err != nil {
		t.Fatalf("top students: %v", err)
	}
	if len(top) != 2 || top[0].Name != "First" {
		t.Errorf("top = %+v", top)
	}
}

func TestPostgRESTStructuredError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "22P02",
			"message": "invalid input syntax",
			"hint":    "check the filter value",
		})
	})

	_, err := client.GetTask(context.Background(), 7)
	var gerr *Error
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if gerr.Code != "22P02" || gerr.StatusCode != http.StatusBadRequest {
		t.Errorf("error = %+v", gerr)
	}
	if gerr.Hint != "check the filter value" {
		t.Errorf("hint = %q", gerr.Hint)
	}
}

func TestPostgRESTListSettings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.RawQuery; got != "select=setting_key,setting_value" {
			t.Errorf("query = %q", got)
		}
		json.NewEncoder(w).Encode([]model.AppSetting{
			{SettingKey: "premium_price", SettingValue: "10"},
			{SettingKey: "conversion_rate", SettingValue: "100"},
		})
	})

	settings, err := client.ListSettings(context.Background())
	if err != nil {
		t.Fatalf("list settings: %v", err)
	}
	if settings["premium_price"] != "10" {
		t.Errorf("premium_price = %q, want 10", settings["premium_price"])
	}
	if settings["conversion_rate"] != "100" {
		t.Errorf("conversion_rate = %q, want 100", settings["conversion_rate"])
	}
}
