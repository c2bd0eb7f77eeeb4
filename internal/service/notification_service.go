package service

import (
	"context"
	"log"
	"sync"
	"time"

	"spray-machine-monitoring/internal/models"
)

// NotificationStore persists notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// AdminDirectory lists the accounts that receive a copy of every alert.
type AdminDirectory interface {
	FindAdmins(ctx context.Context) ([]models.User, error)
}

// NotificationEvent describes one alert about a machine.
type NotificationEvent struct {
	MachineID   string
	MachineName string
	OwnerID     uint
	Type        string
	Severity    string
	Title       string
	Message     string
}

// NotificationService stores an alert for the machine owner and every
// admin, then pushes each copy to its recipient's room.
type NotificationService struct {
	repo    NotificationStore
	admins  AdminDirectory
	events  *Broadcaster
	wg      sync.WaitGroup
	timeout time.Duration
}

func NewNotificationService(repo NotificationStore, admins AdminDirectory, events *Broadcaster) *NotificationService {
	return &NotificationService{
		repo:    repo,
		admins:  admins,
		events:  events,
		timeout: 10 * time.Second,
	}
}

// Notify delivers in the background; failures are logged and dropped.
func (s *NotificationService) Notify(event NotificationEvent) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.deliver(ctx, event)
	}()
}

// Wait blocks until every pending delivery has finished.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) deliver(ctx context.Context, event NotificationEvent) {
	if event.OwnerID != 0 {
		s.store(ctx, event.OwnerID, event, event.Title)
	}

	admins, err := s.admins.FindAdmins(ctx)
	if err != nil {
		log.Printf("[Notify] Error fetching admins for %s notification: %v", event.MachineID, err)
		return
	}
	for _, admin := range admins {
		if admin.ID == event.OwnerID {
			continue
		}
		s.store(ctx, admin.ID, event, "[Admin] "+event.Title)
	}
}

func (s *NotificationService) store(ctx context.Context, userID uint, event NotificationEvent, title string) {
	severity := event.Severity
	if severity == "" {
		severity = "info"
	}
	n := &models.Notification{
		UserID:      userID,
		MachineID:   event.MachineID,
		MachineName: event.MachineName,
		Type:        event.Type,
		Severity:    severity,
		Title:       title,
		Message:     event.Message,
		Source:      "System",
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		log.Printf("[Notify] Error saving notification for user %d: %v", userID, err)
		return
	}
	s.events.Notification(n)
}
