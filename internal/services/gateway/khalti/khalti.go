package khalti

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"

	"planora/internal/status"
)

type (
	Config struct {
		BaseURL    string `json:"base_url" mapstructure:"base_url"`
		SecretKey  string `json:"secret_key" mapstructure:"secret_key"`
		ReturnURL  string `json:"return_url" mapstructure:"return_url"`
		WebsiteURL string `json:"website_url" mapstructure:"website_url"`

		// WebhookSecretHash is the bcrypt hash of the shared webhook secret.
		WebhookSecretHash string `json:"webhook_secret_hash" mapstructure:"webhook_secret_hash"`

		PNSubKey    string `json:"pn_subkey" mapstructure:"pn_subkey"`
		PNSubSecret string `json:"pn_subsecret" mapstructure:"pn_subsecret"`
		PNUUID      string `json:"pn_uuid" mapstructure:"pn_uuid"`
		PNChannel   string `json:"pn_channel" mapstructure:"pn_channel"`
	}

	Khalti struct {
		returnURL  string
		websiteURL string

		webhookSecretHash string

		pnSubKey    string
		pnSubSecret string
		pnUUID      string
		pnChannels  []string

		sub *subscribe

		client *Client
	}
)

type (
	// payload is the webhook notification relayed over the PubNub channel.
	payload struct {
		Pidx     string          `json:"pidx"`
		OrderID  string          `json:"purchase_order_id"`
		Status   string          `json:"status"`
		Amount   decimal.Decimal `json:"total_amount"`
		Payer    string          `json:"payer_name"`
		Secret   string          `json:"secret"`
		PaidAt   string          `json:"paid_at"`
	}
)

// New returns a new Khalti instance listening on its webhook relay channel.
func New(ctx context.Context, cfg *Config) (*Khalti, error) {
	client := newClient(&ClientConfig{
		BaseURL:    cfg.BaseURL,
		SecretKey:  cfg.SecretKey,
		ReturnURL:  cfg.ReturnURL,
		WebsiteURL: cfg.WebsiteURL,
	})

	k := &Khalti{
		returnURL:  cfg.ReturnURL,
		websiteURL: cfg.WebsiteURL,

		webhookSecretHash: cfg.WebhookSecretHash,

		pnSubKey:    cfg.PNSubKey,
		pnSubSecret: cfg.PNSubSecret,
		pnUUID:      cfg.PNUUID,
		pnChannels:  []string{cfg.PNChannel},

		client: client,
	}

	if cfg.PNSubKey != "" {
		pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(k.pnUUID))
		pnCfg.SubscribeKey = k.pnSubKey
		pnCfg.SecretKey = k.pnSubSecret

		sub, err := k.newSubscription(ctx, pnCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to Khalti webhook channel: %v", err)
		}
		sub.pn.AddListener(sub.lis)
		sub.pn.Subscribe().Channels(k.pnChannels).Execute()
		k.sub = sub
	}

	return k, nil
}

type subscribe struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener
	ch  chan *status.Transaction

	secretHash string
}

func (k *Khalti) newSubscription(ctx context.Context, pnCfg *pubnub.Config) (*subscribe, error) {
	sub := &subscribe{
		pn:         pubnub.NewPubNub(pnCfg),
		lis:        pubnub.NewListener(),
		secretHash: k.webhookSecretHash,
	}

	go sub.processSubscription(ctx)

	return sub, nil
}

func (s *subscribe) processSubscription(ctx context.Context) {
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
			raw, ok := message.Message.(string)
			if !ok {
				continue
			}

			var p payload
			dec := json.NewDecoder(strings.NewReader(raw))
			if err := dec.Decode(&p); err != nil {
				log.Println(err)
				continue
			}

			if !VerifyWebhookSecret(s.secretHash, p.Secret) {
				log.Println("khalti webhook: secret mismatch, dropping notification")
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
			return
		}
	}
}

func (p *payload) ToDomain() (*status.Transaction, error) {
	if p.Status != "Completed" {
		return nil, status.ErrFailedPayment
	}

	ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.PaidAt, time.Local)
	if err != nil {
		ts = time.Now()
	}

	return &status.Transaction{
		RefID:     p.Pidx,
		UUID:      p.OrderID,
		Ccy:       "NPR",
		Payer:     p.Payer,
		Amount:    p.Amount,
		CreatedAt: ts,
	}, nil
}

// SetTranChannel sets the channel confirmed transactions are delivered on.
func (k *Khalti) SetTranChannel(ch chan *status.Transaction) {
	if k.sub != nil {
		k.sub.ch = ch
	}
}

// Unsubscribe leaves the webhook relay channel.
func (k *Khalti) Unsubscribe(ctx context.Context) {
	if k.sub != nil {
		k.sub.pn.Unsubscribe().Channels(k.pnChannels).Execute()
	}
}

// Initiate starts an ePayment checkout and returns the hosted payment URL.
func (k *Khalti) Initiate(ctx context.Context, f *InitiateForm) (*InitiateReply, error) {
	return k.client.initiate(ctx, f)
}

// Lookup checks the status of a checkout by pidx.
func (k *Khalti) Lookup(ctx context.Context, pidx string) (*LookupReply, error) {
	return k.client.lookup(ctx, pidx)
}
