package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/apperrors"
)

// SignInRequest carries the Pi access token obtained by the frontend SDK.
type SignInRequest struct {
	AccessToken string `json:"accessToken"`
}

type ApproveRequest struct {
	PaymentID string                 `json:"paymentId"`
	Metadata  map[string]interface{} `json:"metadata"`
}

type CompleteRequest struct {
	PaymentID string `json:"paymentId"`
	Txid      string `json:"txid"`
}

type CancelRequest struct {
	PaymentID string `json:"paymentId"`
	Reason    string `json:"reason"`
}

// IncompleteRequest is the payload the platform relays for a payment left
// unresolved by an interrupted client session.
type IncompleteRequest struct {
	Payment struct {
		Identifier  string `json:"identifier"`
		Transaction struct {
			Txid string `json:"txid"`
			Link string `json:"_link"`
		} `json:"transaction"`
	} `json:"payment"`
}

func kindIsNotFound(err error) bool {
	return apperrors.IsKind(err, apperrors.KindNotFound)
}

// Helper to safely get string from context
func getStringFromContext(c echo.Context, key string) string {
	val := c.Get(key)
	if val == nil {
		return ""
	}
	strVal, ok := val.(string)
	if !ok {
		return ""
	}
	return strVal
}

func getUintFromContext(c echo.Context, key string) uint {
	val := c.Get(key)
	if val == nil {
		return 0
	}
	uintVal, ok := val.(uint)
	if !ok {
		return 0
	}
	return uintVal
}
