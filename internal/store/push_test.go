package store

import (
	"testing"
	"time"

	"github.com/manhaj-ai/miniapp/internal/database"
	"github.com/manhaj-ai/miniapp/internal/model"
)

func setupPushTestDB(t *testing.T) *PushStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPushStore(db)
}

func TestCreateSubscription(t *testing.T) {
	ps := setupPushTestDB(t)

	sub, err := ps.CreateSubscription(1001, "https://push.example.com/sub1", "p256dh_key1", "auth_key1", "Chrome Desktop")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if sub.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if sub.Endpoint != "https://push.example.com/sub1" {
		t.Errorf("endpoint = %q, want %q", sub.Endpoint, "https://push.example.com/sub1")
	}
	if sub.DeviceName != "Chrome Desktop" {
		t.Errorf("device_name = %q, want %q", sub.DeviceName, "Chrome Desktop")
	}
}

func TestCreateSubscriptionUpsert(t *testing.T) {
	ps := setupPushTestDB(t)

	sub1, _ := ps.CreateSubscription(1001, "https://push.example.com/sub1", "key1", "auth1", "Device A")
	sub2, err := ps.CreateSubscription(1001, "https://push.example.com/sub1", "key2", "auth2", "Device B")
	if err != nil {
		t.Fatalf("upsert subscription: %v", err)
	}

	// Should be same subscription, updated keys
	if sub2.ID != sub1.ID {
		t.Errorf("expected same ID on upsert, got %d != %d", sub2.ID, sub1.ID)
	}
	if sub2.P256dhKey != "key2" {
		t.Errorf("p256dh = %q, want %q", sub2.P256dhKey, "key2")
	}
}

func TestListByStudent(t *testing.T) {
	ps := setupPushTestDB(t)

	ps.CreateSubscription(1001, "https://push.example.com/1", "k1", "a1", "Device 1")
	ps.CreateSubscription(1001, "https://push.example.com/2", "k2", "a2", "Device 2")
	ps.CreateSubscription(2002, "https://push.example.com/3", "k3", "a3", "Device 3")

	subs, err := ps.ListByStudent(1001)
	if err != nil {
		t.Fatalf("list by student: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("len = %d, want 2", len(subs))
	}

	all, err := ps.ListAll()
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all len = %d, want 3", len(all))
	}
}

func TestDeleteSubscription(t *testing.T) {
	ps := setupPushTestDB(t)

	sub, _ := ps.CreateSubscription(1001, "https://push.example.com/1", "k1", "a1", "D1")

	// Deleting with a different student's id is a no-op
	if err := ps.DeleteSubscription(sub.ID, 2002); err != nil {
		t.Fatalf("delete with wrong student: %v", err)
	}
	subs, _ := ps.ListByStudent(1001)
	if len(subs) != 1 {
		t.Fatalf("sub should still exist, got %d", len(subs))
	}

	if err := ps.DeleteSubscription(sub.ID, 1001); err != nil {
		t.Fatalf("delete: %v", err)
	}
	subs, _ = ps.ListByStudent(1001)
	if len(subs) != 0 {
		t.Errorf("expected 0 subs after delete, got %d", len(subs))
	}
}

func TestDeleteByEndpoint(t *testing.T) {
	ps := setupPushTestDB(t)

	ps.CreateSubscription(1001, "https://push.example.com/expired", "k1", "a1", "D1")

	if err := ps.DeleteByEndpoint("https://push.example.com/expired"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}

	subs, _ := ps.ListByStudent(1001)
	if len(subs) != 0 {
		t.Errorf("expected 0 subs, got %d", len(subs))
	}
}

func TestListTelegramIDs(t *testing.T) {
	ps := setupPushTestDB(t)

	ps.CreateSubscription(1001, "https://push.example.com/1", "k1", "a1", "D1")
	ps.CreateSubscription(1001, "https://push.example.com/2", "k2", "a2", "D2")

	ids, err := ps.ListTelegramIDs()
	if err != nil {
		t.Fatalf("list telegram ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1001 {
		t.Errorf("ids = %v, want [1001]", ids)
	}
}

func TestPreferences(t *testing.T) {
	ps := setupPushTestDB(t)

	// Default: no prefs exist, IsPreferenceEnabled returns true
	enabled, err := ps.IsPreferenceEnabled(1001, model.NotifTypeNewTask)
	if err != nil {
		t.Fatalf("check default pref: %v", err)
	}
	if !enabled {
		t.Error("expected default enabled=true")
	}

	// Set a preference
	if err := ps.SetPreference(1001, model.NotifTypeNewTask, false); err != nil {
		t.Fatalf("set preference: %v", err)
	}

	enabled, err = ps.IsPreferenceEnabled(1001, model.NotifTypeNewTask)
	if err != nil {
		t.Fatalf("check disabled pref: %v", err)
	}
	if enabled {
		t.Error("expected enabled=false after setting")
	}

	// List preferences
	prefs, err := ps.GetPreferences(1001)
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if len(prefs) != 1 {
		t.Fatalf("prefs len = %d, want 1", len(prefs))
	}
	if prefs[0].NotificationType != model.NotifTypeNewTask {
		t.Errorf("type = %q, want %q", prefs[0].NotificationType, model.NotifTypeNewTask)
	}

	// Upsert: re-enable
	if err := ps.SetPreference(1001, model.NotifTypeNewTask, true); err != nil {
		t.Fatalf("upsert preference: %v", err)
	}
	enabled, _ = ps.IsPreferenceEnabled(1001, model.NotifTypeNewTask)
	if !enabled {
		t.Error("expected enabled=true after upsert")
	}
}

func TestSentNotificationDedup(t *testing.T) {
	ps := setupPushTestDB(t)

	sent, err := ps.WasSent(1001, model.NotifTypeNewTask, "task-42")
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Error("expected not sent")
	}

	if err := ps.RecordSent(1001, model.NotifTypeNewTask, "task-42"); err != nil {
		t.Fatalf("record sent: %v", err)
	}

	sent, _ = ps.WasSent(1001, model.NotifTypeNewTask, "task-42")
	if !sent {
		t.Error("expected sent after recording")
	}

	// Different reference is separate
	sent, _ = ps.WasSent(1001, model.NotifTypeNewTask, "task-43")
	if sent {
		t.Error("expected not sent for different reference")
	}

	// Duplicate insert is ignored (INSERT OR IGNORE)
	if err := ps.RecordSent(1001, model.NotifTypeNewTask, "task-42"); err != nil {
		t.Fatalf("duplicate record sent should not error: %v", err)
	}
}

func TestCleanupSent(t *testing.T) {
	ps := setupPushTestDB(t)

	ps.RecordSent(1001, model.NotifTypeNewTask, "old-task")
	ps.RecordSent(1001, model.NotifTypeNewTask, "new-task")

	// Cutoff in the past should delete nothing
	if err := ps.CleanupSent(time.Now().UTC().Add(-1 * time.Hour)); err != nil {
		t.Fatalf("cleanup sent: %v", err)
	}
	sent, _ := ps.WasSent(1001, model.NotifTypeNewTask, "old-task")
	if !sent {
		t.Error("expected old notification to still exist (cutoff in past)")
	}

	// Cutoff in the future deletes everything
	if err := ps.CleanupSent(time.Now().UTC().Add(1 * time.Hour)); err != nil {
		t.Fatalf("cleanup sent: %v", err)
	}
	sent, _ = ps.WasSent(1001, model.NotifTypeNewTask, "old-task")
	if sent {
		t.Error("expected old notification to be cleaned up")
	}
	sent, _ = ps.WasSent(1001, model.NotifTypeNewTask, "new-task")
	if sent {
		t.Error("expected new notification to be cleaned up")
	}
}
