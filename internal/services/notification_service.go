package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/models"
)

// NotificationService records user-visible events and schedules their push
// delivery for the worker. Every failure is logged and swallowed: payment
// correctness never depends on a notification landing.
type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

// Notify persists the notification and enqueues a delivery task.
func (s *NotificationService) Notify(ctx context.Context, userID uint, typ models.NotificationType, title, description, link string) {
	notification := models.Notification{
		ID:          uuid.New().String(),
		UserID:      userID,
		Type:        typ,
		Title:       title,
		Description: description,
		Link:        link,
	}
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		log.Printf("failed to record notification for user %d: %v", userID, err)
		return
	}

	task := models.ScheduledTask{
		TaskName:   "send_notification",
		Arguments:  map[string]interface{}{"notification_id": notification.ID},
		Due:        time.Now(),
		Status:     models.ScheduledTaskStatusActive,
		TaskType:   models.ScheduledTaskTypeOneTime,
		MaxAttempt: 3,
	}
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		log.Printf("failed to enqueue notification delivery for user %d: %v", userID, err)
	}
}

// NoopNotifier drops events. Used when the worker pipeline is disabled.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, uint, models.NotificationType, string, string, string) {}
