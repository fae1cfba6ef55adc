package push

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/manhaj-ai/miniapp/internal/gateway"
	"github.com/manhaj-ai/miniapp/internal/model"
	"github.com/manhaj-ai/miniapp/internal/store"
)

// inactivityThreshold is how long a student can stay idle before the
// nudge goes out.
const inactivityThreshold = 72 * time.Hour

// Scheduler periodically checks for notifications to send.
type Scheduler struct {
	mu       sync.RWMutex
	service  *Service
	push     *store.PushStore
	gw       gateway.Gateway
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a notification scheduler.
func NewScheduler(svc *Service, pushStore *store.PushStore, gw gateway.Gateway) *Scheduler {
	return &Scheduler{
		service:  svc,
		push:     pushStore,
		gw:       gw,
		interval: 60 * time.Second,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.checkNewTasks(ctx)
	s.checkInactiveStudents(ctx)
}

// checkNewTasks notifies subscribers about active tasks they have not been
// told about yet. The sent-log keeps each task to one notification per
// student across restarts.
func (s *Scheduler) checkNewTasks(ctx context.Context) {
	tasks, err := s.gw.ListActiveTasks(ctx)
	if err != nil {
		log.Printf("push scheduler: list tasks: %v", err)
		return
	}
	if len(tasks) == 0 {
		return
	}

	subs, err := s.push.ListAll()
	if err != nil {
		log.Printf("push scheduler: list subs: %v", err)
		return
	}

	for _, task := range tasks {
		refID := fmt.Sprintf("task-%d", task.ID)
		payload := Payload{
			Title: "مهمة جديدة",
			Body:  fmt.Sprintf("%s (+%d نقطة)", task.Description, task.Points),
			URL:   "/tasks",
			Tag:   refID,
		}

		for _, sub := range subs {
			sent, err := s.push.WasSent(sub.TelegramID, model.NotifTypeNewTask, refID)
			if err != nil {
				log.Printf("push scheduler: check sent: %v", err)
				continue
			}
			if sent {
				continue
			}
			enabled, _ := s.push.IsPreferenceEnabled(sub.TelegramID, model.NotifTypeNewTask)
			if !enabled {
				continue
			}

			s.deliver(&sub, payload)
			s.push.RecordSent(sub.TelegramID, model.NotifTypeNewTask, refID)
		}
	}
}

// checkInactiveStudents nudges students whose last activity is older than
// the threshold, at most once per day each.
func (s *Scheduler) checkInactiveStudents(ctx context.Context) {
	now := time.Now().UTC()
	refID := fmt.Sprintf("nudge-%s", now.Format("2006-01-02"))

	telegramIDs, err := s.push.ListTelegramIDs()
	if err != nil {
		log.Printf("push scheduler: list subscribers: %v", err)
		return
	}

	for _, telegramID := range telegramIDs {
		sent, err := s.push.WasSent(telegramID, model.NotifTypeInactivityNudge, refID)
		if err != nil || sent {
			continue
		}
		enabled, _ := s.push.IsPreferenceEnabled(telegramID, model.NotifTypeInactivityNudge)
		if !enabled {
			continue
		}

		student, err := s.gw.GetStudentByTelegramID(ctx, telegramID)
		if err != nil {
			if !errors.Is(err, gateway.ErrNotFound) {
				log.Printf("push scheduler: read student %d: %v", telegramID, err)
			}
			continue
		}
		if student.LastActivity.IsZero() || now.Sub(student.LastActivity) < inactivityThreshold {
			continue
		}

		subs, err := s.push.ListByStudent(telegramID)
		if err != nil {
			log.Printf("push scheduler: list subs for %d: %v", telegramID, err)
			continue
		}

		payload := Payload{
			Title: "اشتقنا لك",
			Body:  "عندك أسئلة؟ المساعد جاهز يجاوبك وتكسب نقاط",
			URL:   "/",
			Tag:   "inactivity-nudge",
		}
		for _, sub := range subs {
			s.deliver(&sub, payload)
		}
		s.push.RecordSent(telegramID, model.NotifTypeInactivityNudge, refID)
	}
}

// NotifySupportReply pushes the support answer to the student's devices.
// Called from the admin handler path, not from the scheduler loop.
func (s *Scheduler) NotifySupportReply(telegramID int64) {
	enabled, _ := s.push.IsPreferenceEnabled(telegramID, model.NotifTypeSupportReply)
	if !enabled {
		return
	}

	subs, err := s.push.ListByStudent(telegramID)
	if err != nil {
		log.Printf("push: support reply list subs: %v", err)
		return
	}

	payload := Payload{
		Title: "رد الدعم الفني",
		Body:  "وصلك رد جديد من فريق الدعم",
		URL:   "/support",
		Tag:   "support-reply",
	}
	for _, sub := range subs {
		s.deliver(&sub, payload)
	}
}

func (s *Scheduler) deliver(sub *model.PushSubscription, payload Payload) {
	if err := s.service.Send(sub, payload); err != nil {
		if errors.Is(err, ErrExpired) {
			s.push.DeleteByEndpoint(sub.Endpoint)
		} else {
			log.Printf("push: send %q: %v", payload.Tag, err)
		}
	}
}
