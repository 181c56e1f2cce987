package services

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/apperrors"
	"github.com/ftcn86/dynamic-wallet-view-sub000/internal/config"
)

// PlatformUser is the identity returned by the platform for a user access token.
type PlatformUser struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
}

// PlatformPaymentStatus mirrors the status block the platform reports per payment.
type PlatformPaymentStatus struct {
	DeveloperApproved   bool `json:"developer_approved"`
	TransactionVerified bool `json:"transaction_verified"`
	DeveloperCompleted  bool `json:"developer_completed"`
	Cancelled           bool `json:"cancelled"`
	UserCancelled       bool `json:"user_cancelled"`
}

// PlatformTransaction is the blockchain part of a platform payment.
type PlatformTransaction struct {
	Txid     string `json:"txid"`
	Verified bool   `json:"verified"`
	Link     string `json:"_link"`
}

// PlatformPayment is the platform's canonical payment record.
type PlatformPayment struct {
	Identifier  string                 `json:"identifier"`
	UserUID     string                 `json:"user_uid"`
	Amount      decimal.Decimal        `json:"amount"`
	Memo        string                 `json:"memo"`
	Metadata    map[string]interface{} `json:"metadata"`
	Direction   string                 `json:"direction"`
	Status      PlatformPaymentStatus  `json:"status"`
	Transaction *PlatformTransaction   `json:"transaction"`
}

// HorizonTransaction is the subset of a Horizon blockchain transaction the
// coordinator needs for memo verification.
type HorizonTransaction struct {
	Hash string `json:"hash"`
	Memo string `json:"memo"`
}

// A2UPaymentArgs describes an app-to-user payment to create.
type A2UPaymentArgs struct {
	UID      string                 `json:"uid"`
	Amount   decimal.Decimal        `json:"amount"`
	Memo     string                 `json:"memo"`
	Metadata map[string]interface{} `json:"metadata"`
}

// PiPlatform is the surface of the external payment platform the
// coordinator depends on. Implemented by PiClient; stubbed in tests.
type PiPlatform interface {
	Me(ctx context.Context, accessToken string) (*PlatformUser, error)
	GetPayment(ctx context.Context, paymentID string) (*PlatformPayment, error)
	ApprovePayment(ctx context.Context, paymentID string) (*PlatformPayment, error)
	CompletePayment(ctx context.Context, paymentID, txid string) (*PlatformPayment, error)
	CancelPayment(ctx context.Context, paymentID string) (*PlatformPayment, error)
	CreatePayment(ctx context.Context, args A2UPaymentArgs) (*PlatformPayment, error)
	GetTransaction(ctx context.Context, txid string) (*HorizonTransaction, error)
}

// PiClient talks to the Pi platform API and the Horizon blockchain API.
type PiClient struct {
	api     *resty.Client
	horizon *resty.Client
}

func NewPiClient(cfg *config.Config) *PiClient {
	api := resty.New().
		SetBaseURL(cfg.PiAPIBaseURL).
		SetTimeout(cfg.PlatformTimeout).
		SetHeader("Authorization", "Key "+cfg.PiAPIKey).
		SetHeader("Content-Type", "application/json")

	horizon := resty.New().
		SetBaseURL(cfg.HorizonBaseURL).
		SetTimeout(cfg.PlatformTimeout)

	return &PiClient{api: api, horizon: horizon}
}

// Me verifies a user access token against /me and returns the identity.
// The user's own bearer token is used instead of the server key.
func (c *PiClient) Me(ctx context.Context, accessToken string) (*PlatformUser, error) {
	var user PlatformUser
	resp, err := c.api.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+accessToken).
		SetResult(&user).
		Get("/me")
	if err := platformError(resp, err, "platform /me"); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *PiClient) GetPayment(ctx context.Context, paymentID string) (*PlatformPayment, error) {
	var payment PlatformPayment
	resp, err := c.api.R().
		SetContext(ctx).
		SetResult(&payment).
		Get(fmt.Sprintf("/payments/%s", paymentID))
	if err := platformError(resp, err, "platform get payment"); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *PiClient) ApprovePayment(ctx context.Context, paymentID string) (*PlatformPayment, error) {
	var payment PlatformPayment
	resp, err := c.api.R().
		SetContext(ctx).
		SetResult(&payment).
		Post(fmt.Sprintf("/payments/%s/approve", paymentID))
	if err := platformError(resp, err, "platform approve"); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *PiClient) CompletePayment(ctx context.Context, paymentID, txid string) (*PlatformPayment, error) {
	var payment PlatformPayment
	resp, err := c.api.R().
		SetContext(ctx).
		SetBody(map[string]string{"txid": txid}).
		SetResult(&payment).
		Post(fmt.Sprintf("/payments/%s/complete", paymentID))
	if err := platformError(resp, err, "platform complete"); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *PiClient) CancelPayment(ctx context.Context, paymentID string) (*PlatformPayment, error) {
	var payment PlatformPayment
	resp, err := c.api.R().
		SetContext(ctx).
		SetResult(&payment).
		Post(fmt.Sprintf("/payments/%s/cancel", paymentID))
	if err := platformError(resp, err, "platform cancel"); err != nil {
		return nil, err
	}
	return &payment, nil
}

// CreatePayment creates an app-to-user payment.
func (c *PiClient) CreatePayment(ctx context.Context, args A2UPaymentArgs) (*PlatformPayment, error) {
	var payment PlatformPayment
	resp, err := c.api.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"payment": args}).
		SetResult(&payment).
		Post("/payments")
	if err := platformError(resp, err, "platform create payment"); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetTransaction looks up a blockchain transaction on Horizon, used for
// best-effort memo verification before completing a payment.
func (c *PiClient) GetTransaction(ctx context.Context, txid string) (*HorizonTransaction, error) {
	var tx HorizonTransaction
	resp, err := c.horizon.R().
		SetContext(ctx).
		SetResult(&tx).
		Get(fmt.Sprintf("/transactions/%s", txid))
	if err := platformError(resp, err, "horizon transaction"); err != nil {
		return nil, err
	}
	return &tx, nil
}

// platformError normalizes resty results into the error taxonomy. Transport
// failures and 5xx responses are transient (nothing local was mutated yet);
// 404 means the platform does not know the entity.
func platformError(resp *resty.Response, err error, op string) error {
	if err != nil {
		return apperrors.TransientPlatform(err, op)
	}
	if resp == nil {
		return apperrors.TransientPlatform(nil, op+": empty response")
	}
	switch {
	case resp.IsSuccess():
		return nil
	case resp.StatusCode() == 404:
		return apperrors.NotFound("%s: not found", op)
	case resp.StatusCode() >= 500:
		return apperrors.TransientPlatform(
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()), op)
	case resp.StatusCode() == 401 || resp.StatusCode() == 403:
		return apperrors.Authentication("%s: rejected (%d)", op, resp.StatusCode())
	default:
		return apperrors.New(apperrors.KindInternal, "%s: status %d: %s",
			op, resp.StatusCode(), resp.String())
	}
}
