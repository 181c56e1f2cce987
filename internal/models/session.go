package models

import "time"

// Session maps an opaque cookie token to a user and the platform
// credentials obtained at sign-in. Rows are only ever mutated by flipping
// Active off; expiry is enforced on read.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Token                string    `gorm:"type:varchar(128);uniqueIndex" json:"-"`
	UserID               uint      `gorm:"index" json:"user_id"`
	PlatformAccessToken  string    `gorm:"type:text" json:"-"`
	PlatformRefreshToken string    `gorm:"type:text" json:"-"`
	ExpiresAt            time.Time `gorm:"index" json:"expires_at"`
	Active               bool      `gorm:"default:true" json:"active"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
