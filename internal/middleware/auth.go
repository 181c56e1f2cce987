package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/apperrors"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/services"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "session-token"

// RequireSession returns a middleware that resolves the session cookie and
// rejects the request when it cannot. Store failures also reject: access is
// never granted on an unverifiable session.
func RequireSession(sessions *services.SessionService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				return apperrors.Authentication("session required")
			}

			session, err := sessions.Resolve(cookie.Value)
			if err != nil {
				if apperrors.IsKind(err, apperrors.KindPersistence) {
					c.Logger().Error(err)
				}
				// Invalid session, clear the cookie before rejecting
				c.SetCookie(&http.Cookie{
					Name:     SessionCookieName,
					Value:    "",
					MaxAge:   -1,
					HttpOnly: true,
					Path:     "/",
				})
				return apperrors.Authentication("session required")
			}

			c.Set("userID", session.UserID)
			c.Set("piUID", session.User.PiUID)
			c.Set("username", session.User.Username)
			c.Set("platformAccessToken", session.PlatformAccessToken)
			c.Set("sessionToken", session.Token)

			return next(c)
		}
	}
}
