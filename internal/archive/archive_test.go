package archive

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/manhaj-ai/miniapp/internal/gateway"
	"github.com/manhaj-ai/miniapp/internal/model"
)

type fakeS3 struct {
	mu   sync.Mutex
	puts []*s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, input)
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func setupManager(t *testing.T) (*Manager, *fakeS3, *gateway.Memory) {
	t.Helper()
	mem := gateway.NewMemory()
	ctx := context.Background()
	students := []model.Student{
		{TelegramID: 1001, Name: "Sara Ahmed", Points: 500},
		{TelegramID: 1002, Name: "Omar Khalid", Points: 120},
	}
	for _, s := range students {
		if _, err := mem.CreateStudent(ctx, s); err != nil {
			t.Fatalf("seed student %d: %v", s.TelegramID, err)
		}
	}

	fake := &fakeS3{}
	m := NewManager(Config{S3: S3Config{Bucket: "archives"}, LeaderboardSize: 10}, mem, nil)
	m.client = fake
	m.status.State = StateIdle
	return m, fake, mem
}

func TestArchiveNowUploadsSnapshot(t *testing.T) {
	m, fake, _ := setupManager(t)

	key, err := m.ArchiveNow(context.Background())
	if err != nil {
		t.Fatalf("ArchiveNow: %v", err)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("puts = %d, want 1", len(fake.puts))
	}
	put := fake.puts[0]
	if *put.Bucket != "archives" {
		t.Errorf("bucket = %q", *put.Bucket)
	}
	if *put.Key != key {
		t.Errorf("key mismatch: returned %q, uploaded %q", key, *put.Key)
	}

	var snap Snapshot
	if err := json.Unmarshal(fake.body, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Statistics.TotalUsers != 2 {
		t.Errorf("total_users = %d, want 2", snap.Statistics.TotalUsers)
	}
	if len(snap.Leaderboard) != 2 {
		t.Fatalf("leaderboard entries = %d, want 2", len(snap.Leaderboard))
	}
	if snap.Leaderboard[0].Name != "Sara Ahmed" || snap.Leaderboard[0].Rank != 1 {
		t.Errorf("rank 1 = %+v", snap.Leaderboard[0])
	}
	if snap.GeneratedAt.IsZero() {
		t.Error("generated_at not set")
	}
}

func TestArchiveNowUpdatesStatus(t *testing.T) {
	var updates []Status
	m, _, _ := setupManager(t)
	m.callback = func(s Status) { updates = append(updates, s) }

	if _, err := m.ArchiveNow(context.Background()); err != nil {
		t.Fatalf("ArchiveNow: %v", err)
	}

	status := m.Status()
	if status.State != StateIdle {
		t.Errorf("state = %q, want %q", status.State, StateIdle)
	}
	if status.LastArchive == nil || status.LastKey == "" {
		t.Errorf("last archive not recorded: %+v", status)
	}
	if len(updates) < 2 {
		t.Fatalf("callback fired %d times, want at least 2", len(updates))
	}
	if updates[0].State != StateRunning || !updates[0].InProgress {
		t.Errorf("first update = %+v, want running", updates[0])
	}
}

func TestArchiveNowUploadFailure(t *testing.T) {
	m, fake, _ := setupManager(t)
	fake.err = io.ErrUnexpectedEOF

	if _, err := m.ArchiveNow(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
	if got := m.Status().State; got != StateError {
		t.Errorf("state = %q, want %q", got, StateError)
	}
}

func TestArchiveDisabledWithoutCredentials(t *testing.T) {
	m := NewManager(Config{}, gateway.NewMemory(), nil)
	if m.Enabled() {
		t.Error("manager should be disabled without credentials")
	}
	if _, err := m.ArchiveNow(context.Background()); err == nil {
		t.Error("expected error from unconfigured manager")
	}
}

func TestManagerStartStop(t *testing.T) {
	m, _, _ := setupManager(t)
	m.Start(context.Background())

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
