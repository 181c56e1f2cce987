package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/services"
)

// PaymentHandler exposes the payment lifecycle over HTTP. All protocol
// decisions live in the coordinator; the handlers only parse, dispatch and
// shape responses.
type PaymentHandler struct {
	payments *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Approve acknowledges a client-initiated payment with the platform.
func (h *PaymentHandler) Approve(c echo.Context) error {
	var req ApproveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}
	if req.PaymentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "paymentId is required")
	}

	userID := getUintFromContext(c, "userID")
	order, err := h.payments.Approve(c.Request().Context(), userID, req.PaymentID, req.Metadata)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"order":   order,
	})
}

// Complete finishes a payment after blockchain submission.
func (h *PaymentHandler) Complete(c echo.Context) error {
	var req CompleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}
	if req.PaymentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "paymentId is required")
	}
	if req.Txid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "txid is required")
	}

	order, err := h.payments.Complete(c.Request().Context(), req.PaymentID, req.Txid)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"transaction": order,
	})
}

// Cancel aborts an unpaid payment.
func (h *PaymentHandler) Cancel(c echo.Context) error {
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}
	if req.PaymentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "paymentId is required")
	}

	order, err := h.payments.Cancel(c.Request().Context(), req.PaymentID, req.Reason)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"order":   order,
	})
}

// Incomplete handles platform-relayed recovery for payments left over from
// an interrupted session. No session cookie: the caller is the platform.
func (h *PaymentHandler) Incomplete(c echo.Context) error {
	var req IncompleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}
	if req.Payment.Identifier == "" || req.Payment.Transaction.Txid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payment identifier and txid are required")
	}

	_, err := h.payments.RecoverIncomplete(
		c.Request().Context(),
		req.Payment.Identifier,
		req.Payment.Transaction.Txid,
		req.Payment.Transaction.Link,
	)
	if err != nil {
		// No matching order means there is nothing to recover; the platform
		// expects a 400 for that, not a 404.
		if kindIsNotFound(err) {
			return echo.NewHTTPError(http.StatusBadRequest, "no matching order for payment")
		}
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "incomplete payment resolved",
	})
}
