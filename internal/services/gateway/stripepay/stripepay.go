package stripepay

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tickethub/internal/status"
	"tickethub/utils"

	"github.com/shopspring/decimal"
)

type (
	Config struct {
		BaseURL    string `json:"baseUrl" mapstructure:"base_url"`
		MerchantID string `json:"merchantId" mapstructure:"merchant_id"`
		ClientID   string `json:"clientId" mapstructure:"client_id"`
		ClientKey  string `json:"clientKey" mapstructure:"client_key"`
		HMACKey    string `json:"hmacKey" mapstructure:"hmac_key"`
	}

	// StripePay is a synchronous card-style provider: a charge resolves to
	// approved or declined within the authorize call itself. Webhooks from
	// this provider only re-confirm already-known outcomes.
	StripePay struct {
		MerchantID string

		hmacKey string
		client  *Client
	}
)

type (
	ChargeForm struct {
		Reference  string
		Amount     decimal.Decimal
		Currency   string
		PayerName  string
		PayerEmail string
	}

	ChargeResult struct {
		ChargeID string
		Outcome  string // APPROVED, DECLINED
		Reason   string
		Raw      string
	}

	// payload is the provider's notification shape, shared between the
	// webhook body and the check-transaction response.
	payload struct {
		ChargeID  string          `json:"chargeId"`
		Reference string          `json:"reference"`
		State     string          `json:"state"` // SUCCESS, FAILED
		Amount    decimal.Decimal `json:"txnAmount"`
		Currency  string          `json:"sourceCurrency"`
		Payer     string          `json:"payerName"`
		CreatedAt string          `json:"txnDateTime"`
	}
)

// New returns a new StripePay instance.
func New(ctx context.Context, cfg *Config) (*StripePay, error) {
	client := newClient(ctx, cfg)

	// Connect to the StripePay backend. Get access token.
	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	// Notify access token expired.
	go client.notifyAccessTokenExpired(ctx)

	return &StripePay{
		MerchantID: cfg.MerchantID,
		hmacKey:    cfg.HMACKey,
		client:     client,
	}, nil
}

// Authorize submits a charge and returns its immediate outcome.
func (s *StripePay) Authorize(ctx context.Context, f *ChargeForm) (*ChargeResult, error) {
	return s.client.authorize(ctx, f)
}

// CheckTransaction queries the provider for a charge's state.
func (s *StripePay) CheckTransaction(ctx context.Context, chargeID string) (*status.Transaction, error) {
	p, err := s.client.checkTransaction(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	return p.ToDomain()
}

// VerifyNotification authenticates a webhook body against the shared HMAC
// key. The signature covers the canonical field concatenation, not the raw
// body, so field order and whitespace in the JSON do not matter.
func (s *StripePay) VerifyNotification(body []byte, signature string) (*status.Transaction, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("stripepay: notification decode: %w", err)
	}

	expected := utils.Hmac256([]byte(p.canonical()), []byte(s.hmacKey))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil, status.ErrSignatureInvalid
	}

	tran, err := p.ToDomain()
	if err != nil {
		return nil, err
	}
	tran.RawPayload = string(body)
	return tran, nil
}

// canonical returns the field concatenation the webhook signature covers.
func (p *payload) canonical() string {
	return strings.Join([]string{p.ChargeID, p.Reference, p.State, p.Amount.String(), p.Currency}, "|")
}

func (p *payload) ToDomain() (*status.Transaction, error) {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.CreatedAt, time.Local)
	if err != nil {
		return nil, err
	}

	st := "declined"
	if p.State == "SUCCESS" {
		st = "approved"
	}

	return &status.Transaction{
		TransactionID: p.ChargeID,
		SaleID:        p.Reference,
		Status:        st,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Payer:         p.Payer,
		CreatedAt:     ts,
	}, nil
}
