package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/config"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/services"
)

// RateLimit returns a middleware that checks the request against the
// configured budget for the named operation before any store or platform
// work happens. Keys are the user when a session was resolved, the client
// IP otherwise.
func RateLimit(limiter services.RateLimiter, operation string, rl config.RateLimit) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := operation + ":" + clientKey(c)

			if !services.AllowOrLog(c.Request().Context(), limiter, key, rl.Limit, rl.Window) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

func clientKey(c echo.Context) string {
	if userID, ok := c.Get("userID").(uint); ok && userID != 0 {
		return fmt.Sprintf("user:%d", userID)
	}
	return "ip:" + c.RealIP()
}
