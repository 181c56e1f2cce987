package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a Pi user known to the dashboard
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PiUID    string `gorm:"type:varchar(100);uniqueIndex" json:"pi_uid"`
	Username string `gorm:"type:varchar(255)" json:"username"`
	FCMToken string `gorm:"type:varchar(512)" json:"-"`

	// Relationships
	Sessions           []Session           `gorm:"foreignKey:UserID" json:"sessions,omitempty"`
	LedgerTransactions []LedgerTransaction `gorm:"foreignKey:UserID" json:"ledger_transactions,omitempty"`
}
