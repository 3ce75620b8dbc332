package psebank

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"tickethub/internal/status"
	"tickethub/utils"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"
)

type (
	Config struct {
		BaseURL    string `json:"baseUrl" mapstructure:"base_url"`
		MerchantID string `json:"merchantId" mapstructure:"merchant_id"`
		ClientID   string `json:"clientId" mapstructure:"client_id"`
		ClientKey  string `json:"clientKey" mapstructure:"client_key"`
		HMACKey    string `json:"hmacKey" mapstructure:"hmac_key"`

		PNSubKey    string `json:"pn_subkey" mapstructure:"pn_subkey"`
		PNSubSecret string `json:"pn_subsecret" mapstructure:"pn_subsecret"`
		PNUUID      string `json:"pn_uuid" mapstructure:"pn_uuid"`
		PNChannel   string `json:"pn_channel" mapstructure:"pn_channel"`
		PNCipherKey string `json:"pn_cipherKey" mapstructure:"pn_cipherkey"`
	}

	// PSEBank is a redirect/bank-debit provider. A debit request resolves
	// to pending; the final state arrives later, either over the provider's
	// PubNub channel or through the HTTP webhook. Both paths normalize into
	// the same status.Transaction.
	PSEBank struct {
		MerchantID string

		pnSubKey    string
		pnSubSecret string
		pnUUID      string
		pnChannels  []string
		pnCipherKey string

		hmacKey string

		sub    *subscribe
		client *Client
	}
)

type (
	payload struct {
		DebitID       string          `json:"debitId"`
		Reference     string          `json:"reference"`
		State         string          `json:"state"` // SUCCESS, FAILED
		Amount        decimal.Decimal `json:"txnAmount"`
		Currency      string          `json:"sourceCurrency"`
		Payer         string          `json:"sourceName"`
		AccountNumber string          `json:"sourceAccount"`
		CreatedAt     string          `json:"txnDateTime"`
	}
)

// New returns a new PSEBank instance.
func New(ctx context.Context, cfg *Config) (*PSEBank, error) {
	client := newClient(ctx, &Config{
		BaseURL:    cfg.BaseURL,
		MerchantID: cfg.MerchantID,
		ClientID:   cfg.ClientID,
		ClientKey:  cfg.ClientKey,
		HMACKey:    cfg.HMACKey,
	})

	// Connect to the bank backend. Get access token.
	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	// Notify access token expired.
	go client.notifyAccessTokenExpired(ctx)

	p := &PSEBank{
		MerchantID: cfg.MerchantID,

		pnSubKey:    cfg.PNSubKey,
		pnSubSecret: cfg.PNSubSecret,
		pnUUID:      cfg.PNUUID,
		pnChannels:  []string{cfg.PNChannel},
		pnCipherKey: cfg.PNCipherKey,

		hmacKey: cfg.HMACKey,

		client: client,
	}

	// Set the provider's PubNub config.
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(p.pnUUID))
	pnCfg.SubscribeKey = p.pnSubKey
	pnCfg.CipherKey = p.pnCipherKey
	pnCfg.SecretKey = p.pnSubSecret

	// Subscribe to the provider's PubNub channel.
	newSub, err := p.newSubscription(ctx, pnCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to PSEBank's PubNub channel: %v", err)
	}

	newSub.pn.AddListener(newSub.lis)
	p.sub = newSub

	return p, nil
}

type subscribe struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener
	ch  chan *status.Transaction
}

func (p *PSEBank) newSubscription(ctx context.Context, pnCfg *pubnub.Config) (*subscribe, error) {
	sub := &subscribe{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
	}

	go sub.processSubscription(ctx)

	return sub, nil
}

func (s *subscribe) processSubscription(ctx context.Context) error {
	listener := s.lis
	for {
		select {
		case st := <-listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to pubnub")

			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to pubnub")

			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from pubnub")

			case pubnub.PNAccessDeniedCategory:
				log.Println("access denied connect to pubnub")

			case pubnub.PNTimeoutCategory:
				log.Println("timeout connect to pubnub")

			default:
				log.Println("pubnub status category:", st.Category)
			}

		case message := <-listener.Message:
			log.Println("message received pubnub: ", message.Message)

			var p payload
			dec := json.NewDecoder(strings.NewReader(message.Message.(string)))
			if err := dec.Decode(&p); err != nil {
				log.Println(err)
				continue
			}

			tran, err := p.ToDomain()
			if err != nil {
				log.Println(err)
				continue
			}
			if s.ch != nil {
				s.ch <- tran
			}

		case <-ctx.Done():
			log.Println("close subscribe")
			return nil
		}
	}
}

// canonical returns the field concatenation the webhook signature covers.
func (p *payload) canonical() string {
	return strings.Join([]string{p.DebitID, p.Reference, p.State, p.Amount.String(), p.Currency}, "|")
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
		TransactionID: p.DebitID,
		SaleID:        p.Reference,
		Status:        st,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Payer:         p.Payer,
		AccountNumber: p.AccountNumber,
		CreatedAt:     ts,
	}, nil
}

// addChannel subscribes to the per-debit notification channel, rewound two
// minutes so a confirmation published during the redirect is not missed.
func (p *PSEBank) addChannel(_ context.Context, debitID string) {
	channel := fmt.Sprintf("%s_%s", p.MerchantID, debitID)

	tt := time.Now().Add(time.Duration(-2*time.Minute)).Unix() * 10000

	p.sub.pn.Subscribe().Channels([]string{channel}).Timetoken(tt).Execute()
}

func (p *PSEBank) Unsubscribe(ctx context.Context, debitID string) {
	p.sub.pn.Unsubscribe().Channels([]string{fmt.Sprintf("%s_%s", p.MerchantID, debitID)}).Execute()
}

func (p *PSEBank) SetTranChannel(ch chan *status.Transaction) {
	p.sub.ch = ch
}

// CreateDebit registers a debit with the bank and returns its id plus the
// redirect URL and EMV QR string the buyer completes the payment with.
func (p *PSEBank) CreateDebit(ctx context.Context, f *DebitForm) (*DebitResult, error) {
	res, err := p.client.createDebit(ctx, f)
	if err != nil {
		return nil, err
	}

	p.addChannel(ctx, res.DebitID)

	return res, nil
}

func (p *PSEBank) CheckTransaction(ctx context.Context, debitID string) (*status.Transaction, error) {
	pl, err := p.client.checkTransaction(ctx, debitID)
	if err != nil {
		return nil, err
	}
	return pl.ToDomain()
}

// VerifyNotification authenticates a webhook body against the shared HMAC
// key over the canonical field concatenation.
func (p *PSEBank) VerifyNotification(body []byte, signature string) (*status.Transaction, error) {
	var pl payload
	if err := json.Unmarshal(body, &pl); err != nil {
		return nil, fmt.Errorf("psebank: notification decode: %w", err)
	}

	expected := utils.Hmac256([]byte(pl.canonical()), []byte(p.hmacKey))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil, status.ErrSignatureInvalid
	}

	tran, err := pl.ToDomain()
	if err != nil {
		return nil, err
	}
	tran.RawPayload = string(body)
	return tran, nil
}
