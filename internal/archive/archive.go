// Package archive exports periodic snapshots of the reward economy to
// S3-compatible storage for offline analysis.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/manhaj-ai/miniapp/internal/gateway"
	"github.com/manhaj-ai/miniapp/internal/model"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds archive manager configuration.
type Config struct {
	S3 S3Config
	// Hour is the UTC hour of the daily scheduled export.
	Hour int
	// LeaderboardSize bounds how many entries the snapshot carries.
	LeaderboardSize int
}

// State represents the archive manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current archive manager status.
type Status struct {
	State       State      `json:"state"`
	LastArchive *time.Time `json:"last_archive,omitempty"`
	LastKey     string     `json:"last_key,omitempty"`
	Error       string     `json:"error,omitempty"`
	InProgress  bool       `json:"in_progress"`
}

// StatusCallback is called whenever the archive state changes.
type StatusCallback func(Status)

// Snapshot is the JSON document written to storage.
type Snapshot struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Statistics  model.AppStatistics      `json:"statistics"`
	Leaderboard []model.LeaderboardEntry `json:"leaderboard"`
}

// Manager exports statistics snapshots on demand and on a daily schedule.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	callback StatusCallback

	gw     gateway.Gateway
	client s3Client

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a new archive manager. Without S3 credentials it
// stays disabled and every export attempt fails fast.
func NewManager(cfg Config, gw gateway.Gateway, callback StatusCallback) *Manager {
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = 100
	}
	m := &Manager{
		cfg:      cfg,
		gw:       gw,
		callback: callback,
		status:   Status{State: StateDisabled},
	}

	if cfg.S3.Bucket != "" && cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}

	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether storage is configured.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// Start begins the daily export loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.status.State == StateDisabled {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkSchedule(ctx)
			}
		}
	}()
}

// Stop gracefully stops the archive manager.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the current archive status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

func (m *Manager) checkSchedule(ctx context.Context) {
	now := time.Now().UTC()
	if now.Hour() != m.cfg.Hour || now.Minute() != 0 {
		return
	}

	if _, err := m.ArchiveNow(ctx); err != nil {
		log.Printf("archive: scheduled export failed: %v", err)
	}
}

// ArchiveNow builds a snapshot and uploads it, returning the object key.
func (m *Manager) ArchiveNow(ctx context.Context) (string, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()

	if client == nil {
		return "", fmt.Errorf("archive not configured: S3 credentials missing")
	}

	m.setStatus(Status{State: StateRunning, InProgress: true})

	snapshot, err := m.buildSnapshot(ctx)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return "", err
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	key := fmt.Sprintf("archives/stats-%s.json", snapshot.GeneratedAt.Format("2006-01-02T150405Z"))
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return "", fmt.Errorf("upload snapshot: %w", err)
	}

	now := time.Now().UTC()
	m.setStatus(Status{State: StateIdle, LastArchive: &now, LastKey: key})
	return key, nil
}

func (m *Manager) buildSnapshot(ctx context.Context) (Snapshot, error) {
	stats, err := m.gw.Statistics(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read statistics: %w", err)
	}

	top, err := m.gw.TopStudents(ctx, m.cfg.LeaderboardSize)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read leaderboard: %w", err)
	}

	entries := make([]model.LeaderboardEntry, 0, len(top))
	for i, student := range top {
		entries = append(entries, model.LeaderboardEntry{
			Name:                student.Name,
			Points:              student.Points,
			Riyal:               student.Riyal,
			SuccessfulReferrals: student.SuccessfulReferrals,
			QuestionsCount:      student.QuestionsCount,
			Rank:                i + 1,
		})
	}

	return Snapshot{
		GeneratedAt: time.Now().UTC(),
		Statistics:  stats,
		Leaderboard: entries,
	}, nil
}
