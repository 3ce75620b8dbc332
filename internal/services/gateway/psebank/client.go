package psebank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"tickethub/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DebitForm struct {
	Reference  string
	Amount     decimal.Decimal
	Currency   string
	PayerEmail string
	PayerPhone string
	ExpiryMin  string
}

type DebitResult struct {
	DebitID     string
	RedirectURL string
	EmvCode     string
	Raw         string
}

type Client struct {
	// baseURL is the base url of the bank backend.
	baseURL string

	// merchantID identifies the merchant account.
	merchantID string

	// clientID is the api client id.
	clientID string

	// clientKey is the api client secret.
	clientKey string

	// hmacKey signs every request body.
	hmacKey string

	// accessToken is used to authenticate with the bank backend.
	accessToken string

	// mu guards the access token.
	mu sync.Mutex

	// toggleTokenRefresher notifies the token refresher to refresh early.
	toggleTokenRefresher chan struct{}

	// hc is the http client.
	hc *http.Client
}

func newClient(_ context.Context, c *Config) *Client {
	return &Client{
		baseURL:    c.BaseURL,
		merchantID: c.MerchantID,
		clientID:   c.ClientID,
		clientKey:  c.ClientKey,
		hmacKey:    c.HMACKey,

		// make a buffered channel to avoid blocking.
		toggleTokenRefresher: make(chan struct{}, 1),

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// notifyAccessTokenExpired renews the access token periodically, and
// immediately when a call hits a 401, with an exponential backOff strategy.
func (c *Client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			log.Println("notifyAccessTokenExpired: toggleTokenRefresher => token refreshed")
		}

		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)

				break Retry

			default:
				log.Printf("notifyAccessTokenExpired: %v", err)
				select {
				case <-ctx.Done():
					return

				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

func (c *Client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// connect performs authentication with the bank backend.
func (c *Client) connect(ctx context.Context) (string, error) {
	requestID, err := utils.GenerateCode(8)
	if err != nil {
		return "", fmt.Errorf("connectPSEBank: requestID: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"merchantId":%q,"clientId":%q,"clientSecret":%q}`,
		requestID, c.merchantID, c.clientID, c.clientKey)

	resp, err := c.post(ctx, "/api/v1/partner/authenticate", body, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("connectPSEBank: http.StatusCode: %d", resp.StatusCode)
	}

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			TokenType   string `json:"tokenType"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return "", fmt.Errorf("connectPSEBank: json.Decode: %v", err)
	}
	if reply.Status != "OK" {
		return "", fmt.Errorf("connectPSEBank: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return fmt.Sprintf("%s %s", reply.Data.TokenType, reply.Data.AccessToken), nil
}

// createDebit registers a pending debit with the bank.
func (c *Client) createDebit(ctx context.Context, f *DebitForm) (*DebitResult, error) {
	requestID, err := utils.GenerateCode(8)
	if err != nil {
		return nil, fmt.Errorf("createDebitPSEBank: requestID: %v", err)
	}

	expiry := f.ExpiryMin
	if expiry == "" {
		expiry = "30"
	}

	body := fmt.Sprintf(`{"requestId":%q,"merchantId":%q,"reference":%q,"txnAmount":%s,"sourceCurrency":%q,"payerEmail":%q,"mobileNo":%q,"expiryMinutes":%q}`,
		requestID, c.merchantID, f.Reference, f.Amount, f.Currency, f.PayerEmail, f.PayerPhone, expiry)

	resp, err := c.post(ctx, "/api/v1/debits", body, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return nil, errors.New("createDebitPSEBank: resp.StatusCode: 401 => Unauthorized")
	}

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			DebitID     string `json:"debitId"`
			RedirectURL string `json:"redirectUrl"`
			EmvCode     string `json:"emv"`
		} `json:"data"`
	}
	raw := new(bytes.Buffer)
	dec := json.NewDecoder(io.TeeReader(resp.Body, raw))
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("createDebitPSEBank: json.Decode: %w", err)
	}
	if reply.Status != "OK" {
		return nil, fmt.Errorf("createDebitPSEBank: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return &DebitResult{
		DebitID:     reply.Data.DebitID,
		RedirectURL: reply.Data.RedirectURL,
		EmvCode:     reply.Data.EmvCode,
		Raw:         raw.String(),
	}, nil
}

// checkTransaction queries a debit's current state.
func (c *Client) checkTransaction(ctx context.Context, debitID string) (*payload, error) {
	requestID, err := utils.GenerateCode(8)
	if err != nil {
		return nil, fmt.Errorf("checkTransactionPSEBank: requestID: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"debitId":%q}`, requestID, debitID)

	resp, err := c.post(ctx, "/api/v1/debits/check", body, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return nil, errors.New("checkTransactionPSEBank: resp.StatusCode: 401 => Unauthorized")
	}

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			payload
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("checkTransactionPSEBank: json.Decode: %v", err)
	}
	if reply.Status != "OK" {
		if reply.Status == "NOT_FOUND" {
			return nil, errors.New("debit not found")
		}
		return nil, fmt.Errorf("checkTransactionPSEBank: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	p := reply.Data.payload
	return &p, nil
}

func (c *Client) post(ctx context.Context, path, body string, authed bool) (*http.Response, error) {
	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), path), bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, fmt.Errorf("psebank: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", utils.Hmac256([]byte(body), []byte(c.hmacKey)))
	// Per-request id for correlating provider logs with ours.
	req.Header.Set("X-Request-Id", uuid.NewString())
	if authed {
		req.Header.Set("Authorization", c.getAccessToken())
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("psebank: http.Do: %w", err)
	}
	return resp, nil
}
