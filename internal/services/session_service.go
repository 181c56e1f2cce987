package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/apperrors"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/models"
)

// SessionStore is the persistence surface the session service needs.
type SessionStore interface {
	Insert(session *models.Session) error
	FindByToken(token string) (*models.Session, error)
	Deactivate(token string) error
}

// GormSessionStore backs SessionStore with the sessions table.
type GormSessionStore struct {
	db *gorm.DB
}

func NewGormSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db}
}

func (s *GormSessionStore) Insert(session *models.Session) error {
	return s.db.Create(session).Error
}

func (s *GormSessionStore) FindByToken(token string) (*models.Session, error) {
	var session models.Session
	err := s.db.Preload("User").Where("token = ?", token).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &session, nil
}

// Deactivate flips Active off. Updating an unknown token affects zero rows,
// which is fine; invalidation is idempotent.
func (s *GormSessionStore) Deactivate(token string) error {
	return s.db.Model(&models.Session{}).
		Where("token = ?", token).
		Update("active", false).Error
}

// SessionService issues, resolves and invalidates opaque session tokens.
type SessionService struct {
	store SessionStore
	ttl   time.Duration
	now   func() time.Time
}

func NewSessionService(store SessionStore, ttl time.Duration) *SessionService {
	return &SessionService{store: store, ttl: ttl, now: time.Now}
}

// Create generates a 256-bit random token and persists a session for it.
func (s *SessionService) Create(userID uint, accessToken, refreshToken string) (*models.Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, apperrors.Persistence(err, "generate session token")
	}

	session := &models.Session{
		Token:                token,
		UserID:               userID,
		PlatformAccessToken:  accessToken,
		PlatformRefreshToken: refreshToken,
		ExpiresAt:            s.now().Add(s.ttl),
		Active:               true,
	}

	if err := s.store.Insert(session); err != nil {
		return nil, apperrors.Persistence(err, "persist session")
	}
	return session, nil
}

// Resolve returns the session for a token. Unknown, inactive and expired
// tokens all fail the same way so callers cannot distinguish them.
func (s *SessionService) Resolve(token string) (*models.Session, error) {
	if token == "" {
		return nil, apperrors.Authentication("session required")
	}

	session, err := s.store.FindByToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Authentication("session required")
		}
		// Store unavailable: fail closed, never grant access.
		return nil, apperrors.Persistence(err, "resolve session")
	}

	if !session.Active || session.Expired(s.now()) {
		return nil, apperrors.Authentication("session required")
	}
	return session, nil
}

// Invalidate deactivates a token. Unknown and already-inactive tokens are
// not errors.
func (s *SessionService) Invalidate(token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.Deactivate(token); err != nil {
		return apperrors.Persistence(err, "invalidate session")
	}
	return nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
