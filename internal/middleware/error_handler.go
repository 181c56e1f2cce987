package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/apperrors"
)

// CustomErrorHandler maps the error taxonomy onto JSON responses. Echo
// HTTPErrors pass through with their own codes; everything else is
// classified by kind.
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Something went wrong. Please try again later."

	var httpErr *echo.HTTPError
	var appErr *apperrors.Error

	switch {
	case errors.As(err, &httpErr):
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok && msg != "" {
			message = msg
		}
	case errors.As(err, &appErr):
		code = apperrors.HTTPStatus(appErr)
		message = appErr.Msg
	}

	if code >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}

	if jsonErr := c.JSON(code, map[string]interface{}{
		"success": false,
		"error":   message,
	}); jsonErr != nil {
		c.Logger().Error(jsonErr)
	}
}
