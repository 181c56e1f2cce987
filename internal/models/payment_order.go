package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentOrder is the durable protocol record for one payment attempt,
// keyed by the platform-issued payment identifier. Rows are never deleted;
// once Paid or Cancelled is set, only Txid and UpdatedAt may change.
type PaymentOrder struct {
	PaymentID string    `gorm:"type:varchar(100);primaryKey" json:"payment_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID    uint              `gorm:"index:idx_payment_orders_user_paid,priority:1" json:"user_id"`
	Amount    decimal.Decimal   `gorm:"type:decimal(18,7)" json:"amount"`
	Memo      string            `gorm:"type:text" json:"memo"`
	Metadata  datatypes.JSONMap `json:"metadata"`
	Txid      *string           `gorm:"type:varchar(100)" json:"txid"`
	Paid      bool              `gorm:"default:false;index:idx_payment_orders_user_paid,priority:2" json:"paid"`
	Cancelled bool              `gorm:"default:false" json:"cancelled"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Terminal reports whether the order has reached a final state.
func (o PaymentOrder) Terminal() bool {
	return o.Paid || o.Cancelled
}
