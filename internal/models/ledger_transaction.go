package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerTransactionType classifies a ledger entry
type LedgerTransactionType string

const (
	LedgerTypeSent         LedgerTransactionType = "sent"
	LedgerTypeReceived     LedgerTransactionType = "received"
	LedgerTypeMiningReward LedgerTransactionType = "mining_reward"
	LedgerTypeNodeBonus    LedgerTransactionType = "node_bonus"
)

// LedgerTransactionStatus is the user-visible lifecycle of a ledger entry
type LedgerTransactionStatus string

const (
	LedgerStatusPending   LedgerTransactionStatus = "pending"
	LedgerStatusCompleted LedgerTransactionStatus = "completed"
	LedgerStatusFailed    LedgerTransactionStatus = "failed"
)

// LedgerTransaction is the user-facing record of a transfer. It lives
// independently of PaymentOrder but shares PaymentID/Txid with it so the
// two can be reconciled.
type LedgerTransaction struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID           uint                    `gorm:"index" json:"user_id"`
	PaymentID        string                  `gorm:"type:varchar(100);index" json:"payment_id"`
	Type             LedgerTransactionType   `gorm:"type:varchar(20)" json:"type"`
	Amount           decimal.Decimal         `gorm:"type:decimal(18,7)" json:"amount"`
	Status           LedgerTransactionStatus `gorm:"type:varchar(20);index" json:"status"`
	Description      string                  `gorm:"type:text" json:"description"`
	BlockExplorerURL string                  `gorm:"type:varchar(512)" json:"block_explorer_url"`
	Txid             string                  `gorm:"type:varchar(100)" json:"txid"`
	Date             time.Time               `json:"date"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
