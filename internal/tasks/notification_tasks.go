package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/models"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/services"
)

// SendNotificationTaskDef delivers a recorded notification as an FCM push.
// Delivery stays out of the request path: the coordinator only enqueues.
type SendNotificationTaskDef struct {
	Pusher services.PushSender
}

// TaskID returns the unique identifier for this task
func (t *SendNotificationTaskDef) TaskID() string {
	return "send_notification"
}

// HandleExecution loads the notification, pushes it to the user's device
// and stamps DeliveredAt. Users without a registered device are skipped,
// not failed; the in-app notification row already exists for them.
func (t *SendNotificationTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	notificationID, ok := task.Arguments["notification_id"].(string)
	if !ok || notificationID == "" {
		return nil, fmt.Errorf("notification_id not provided")
	}

	var notification models.Notification
	if err := db.WithContext(ctx).Preload("User").First(&notification, "id = ?", notificationID).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch notification: %w", err)
	}

	if notification.DeliveredAt != nil {
		return map[string]interface{}{"status": "skipped", "message": "already delivered"}, nil
	}

	if notification.User.FCMToken == "" {
		log.Printf("No device token for user %d, keeping in-app only", notification.UserID)
		return map[string]interface{}{"status": "skipped", "message": "no device token"}, nil
	}

	if t.Pusher == nil {
		return map[string]interface{}{"status": "skipped", "message": "push delivery not configured"}, nil
	}

	err := t.Pusher.SendPush(ctx, notification.User.FCMToken,
		notification.Title, notification.Description, notification.Link)
	if err != nil {
		return nil, fmt.Errorf("push delivery failed: %w", err)
	}

	now := time.Now()
	if err := db.WithContext(ctx).Model(&notification).Update("delivered_at", &now).Error; err != nil {
		return nil, fmt.Errorf("failed to stamp delivery: %w", err)
	}

	return map[string]interface{}{
		"status":          "success",
		"notification_id": notificationID,
	}, nil
}

// SendNotificationTask is the singleton instance of SendNotificationTaskDef.
// Its Pusher is injected by DefineTasks.
var SendNotificationTask = &SendNotificationTaskDef{}
