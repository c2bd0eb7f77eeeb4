package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"

	"spray-machine-monitoring/internal/models"
)

type memNotifications struct {
	mu    sync.Mutex
	saved []models.Notification
}

func (m *memNotifications) CreateNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = uint(len(m.saved) + 1)
	m.saved = append(m.saved, *n)
	return nil
}

type failingNotifications struct{}

func (failingNotifications) CreateNotification(context.Context, *models.Notification) error {
	return errStoreDown
}

type failingAdmins struct{}

func (failingAdmins) FindAdmins(context.Context) ([]models.User, error) {
	return nil, errStoreDown
}

type staticAdmins []models.User

func (a staticAdmins) FindAdmins(context.Context) ([]models.User, error) {
	return a, nil
}

func TestNotifyOwnerAndAdmins(t *testing.T) {
	store := &memNotifications{}
	publisher := &memPublisher{}
	admins := staticAdmins{{ID: 1, Role: "admin"}, {ID: 2, Role: "admin"}}
	svc := NewNotificationService(store, admins, NewBroadcaster(publisher))

	svc.Notify(NotificationEvent{
		MachineID:   "SPR01",
		MachineName: "Line 1",
		OwnerID:     2,
		Type:        models.NotificationMQTTDisconnected,
		Severity:    "warning",
		Title:       "Machine disconnected",
		Message:     "No telemetry",
	})
	svc.Wait()

	if len(store.saved) != 2 {
		t.Fatalf("saved %d notifications, want 2", len(store.saved))
	}
	byUser := map[uint]models.Notification{}
	for _, n := range store.saved {
		byUser[n.UserID] = n
	}
	if byUser[2].Title != "Machine disconnected" {
		t.Fatalf("owner title = %q", byUser[2].Title)
	}
	if !strings.HasPrefix(byUser[1].Title, "[Admin] ") {
		t.Fatalf("admin title = %q", byUser[1].Title)
	}

	var rooms []string
	for _, e := range publisher.named(EventNotificationNew) {
		rooms = append(rooms, e.rooms...)
	}
	sort.Strings(rooms)
	if len(rooms) != 2 || rooms[0] != "user:1" || rooms[1] != "user:2" {
		t.Fatalf("notification rooms = %v", rooms)
	}
}

func TestNotifyWithoutOwnerDefaultsSeverity(t *testing.T) {
	store := &memNotifications{}
	svc := NewNotificationService(store, staticAdmins{{ID: 9}}, NewBroadcaster(&memPublisher{}))

	svc.Notify(NotificationEvent{MachineID: "SPR01", Type: models.NotificationSystem, Title: "Hello"})
	svc.Wait()

	if len(store.saved) != 1 || store.saved[0].UserID != 9 || store.saved[0].Severity != "info" {
		t.Fatalf("saved = %+v", store.saved)
	}
}

func TestDeliveryFailuresAreLogged(t *testing.T) {
	buf := captureLog(t)

	svc := NewNotificationService(failingNotifications{}, failingAdmins{}, NewBroadcaster(&memPublisher{}))
	svc.Notify(NotificationEvent{MachineID: "SPR01", OwnerID: 4, Type: models.NotificationSystem, Title: "Hello"})
	svc.Wait()

	lines := logLines(buf)
	if len(lines) != 2 {
		t.Fatalf("logged %q, want the failed save and the failed admin lookup", lines)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "[Notify] ") {
			t.Fatalf("log line %q lacks the [Notify] prefix", line)
		}
	}
}
