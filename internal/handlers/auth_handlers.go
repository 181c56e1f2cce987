package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/apperrors"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/middleware"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/models"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/services"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	db           *gorm.DB
	platform     services.PiPlatform
	sessions     *services.SessionService
	sessionTTL   time.Duration
	cookieSecure bool
}

func NewAuthHandler(db *gorm.DB, platform services.PiPlatform, sessions *services.SessionService, sessionTTL time.Duration, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		db:           db,
		platform:     platform,
		sessions:     sessions,
		sessionTTL:   sessionTTL,
		cookieSecure: cookieSecure,
	}
}

// SignIn verifies the Pi access token against the platform, upserts the
// user and issues a session cookie.
func (h *AuthHandler) SignIn(c echo.Context) error {
	var req SignInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}
	if req.AccessToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "accessToken is required")
	}

	piUser, err := h.platform.Me(c.Request().Context(), req.AccessToken)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindTransientPlatform) {
			return err
		}
		return apperrors.Authentication("access token rejected by platform")
	}

	user := models.User{PiUID: piUser.UID, Username: piUser.Username}
	err = h.db.WithContext(c.Request().Context()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pi_uid"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "updated_at"}),
		}).
		Create(&user).Error
	if err != nil {
		return apperrors.Persistence(err, "upsert user")
	}
	// Fetch to get the row ID, OnConflict does not populate it on update
	if err := h.db.Where("pi_uid = ?", piUser.UID).First(&user).Error; err != nil {
		return apperrors.Persistence(err, "load user")
	}

	session, err := h.sessions.Create(user.ID, req.AccessToken, "")
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.Token,
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}

// Me returns the identity bound to the current session.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"user": map[string]interface{}{
			"id":       getUintFromContext(c, "userID"),
			"pi_uid":   getStringFromContext(c, "piUID"),
			"username": getStringFromContext(c, "username"),
		},
	})
}

// Logout invalidates the session and clears the cookie. Logging out with
// an unknown or already-dead session is still a success.
func (h *AuthHandler) Logout(c echo.Context) error {
	if cookie, err := c.Cookie(middleware.SessionCookieName); err == nil {
		if err := h.sessions.Invalidate(cookie.Value); err != nil {
			c.Logger().Error(err)
		}
	}

	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
	})
}
