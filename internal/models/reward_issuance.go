package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RewardIssuanceStatus string

const (
	RewardStatusPending RewardIssuanceStatus = "pending"
	RewardStatusIssued  RewardIssuanceStatus = "issued"
	RewardStatusFailed  RewardIssuanceStatus = "failed"
)

// RewardIssuance tracks an app-to-user payment. The unique index on
// (user_id, reward_key) is what makes issuance exactly-once: a second
// insert for the same key fails and is treated as already issued.
type RewardIssuance struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID    uint                  `gorm:"uniqueIndex:idx_reward_user_key,priority:1" json:"user_id"`
	RewardKey string                `gorm:"type:varchar(255);uniqueIndex:idx_reward_user_key,priority:2" json:"reward_key"`
	PaymentID string                `gorm:"type:varchar(100);index" json:"payment_id"`
	Amount    decimal.Decimal       `gorm:"type:decimal(18,7)" json:"amount"`
	Type      LedgerTransactionType `gorm:"type:varchar(20)" json:"type"`
	Status    RewardIssuanceStatus  `gorm:"type:varchar(20);index" json:"status"`
	Memo      string                `gorm:"type:text" json:"memo"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
