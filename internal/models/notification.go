package models

import (
	"time"

	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationTypePaymentApproved  NotificationType = "payment_approved"
	NotificationTypePaymentCompleted NotificationType = "payment_completed"
	NotificationTypePaymentCancelled NotificationType = "payment_cancelled"
	NotificationTypeRewardIssued     NotificationType = "reward_issued"
)

// Notification is a best-effort user-visible event. Delivery (FCM push) is
// handled by the worker; payment correctness never depends on it.
type Notification struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID      uint             `gorm:"index" json:"user_id"`
	Type        NotificationType `gorm:"type:varchar(50)" json:"type"`
	Title       string           `gorm:"type:varchar(255)" json:"title"`
	Description string           `gorm:"type:text" json:"description"`
	Link        string           `gorm:"type:varchar(512)" json:"link"`
	DeliveredAt *time.Time       `json:"delivered_at"`
	ReadAt      *time.Time       `json:"read_at"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
