package khalti

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"planora/internal/status"
)

type (
	ClientConfig struct {
		BaseURL    string
		SecretKey  string
		ReturnURL  string
		WebsiteURL string
	}

	Client struct {
		baseURL    string
		secretKey  string
		returnURL  string
		websiteURL string

		// hc is the http client.
		hc *http.Client
	}
)

func newClient(cfg *ClientConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		secretKey:  cfg.SecretKey,
		returnURL:  cfg.ReturnURL,
		websiteURL: cfg.WebsiteURL,

		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type (
	InitiateForm struct {
		// Amount in NPR; Khalti wants paisa on the wire.
		Amount        decimal.Decimal
		OrderID       string
		OrderName     string
		CustomerName  string
		CustomerPhone string
	}

	InitiateReply struct {
		Pidx       string `json:"pidx"`
		PaymentURL string `json:"payment_url"`
		ExpiresAt  string `json:"expires_at"`
	}

	LookupReply struct {
		Pidx          string          `json:"pidx"`
		TotalAmount   decimal.Decimal `json:"total_amount"`
		Status        string          `json:"status"` // Completed, Pending, Expired, User canceled, Refunded
		TransactionID string          `json:"transaction_id"`
		Fee           decimal.Decimal `json:"fee"`
		Refunded      bool            `json:"refunded"`
	}
)

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Authorization", fmt.Sprintf("Key %s", c.secretKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

// initiate calls the ePayment initiate endpoint.
func (c *Client) initiate(ctx context.Context, f *InitiateForm) (*InitiateReply, error) {
	paisa := f.Amount.Mul(decimal.NewFromInt(100)).IntPart()

	b, err := json.Marshal(map[string]any{
		"return_url":          c.returnURL,
		"website_url":         c.websiteURL,
		"amount":              paisa,
		"purchase_order_id":   f.OrderID,
		"purchase_order_name": f.OrderName,
		"customer_info": map[string]string{
			"name":  f.CustomerName,
			"phone": f.CustomerPhone,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("initiateKhalti: json.Marshal: %w", err)
	}
	body := bytes.NewBuffer(b)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/epayment/initiate/", c.baseURL), body)
	if err != nil {
		return nil, fmt.Errorf("initiateKhalti: http.NewRequestWithContext: %w", err)
	}
	req = c.setHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("initiateKhalti: c.hc.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("initiateKhalti: resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, rbody)
	}

	var reply InitiateReply
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("initiateKhalti: json.Decode: %w", err)
	}
	if reply.Pidx == "" {
		return nil, fmt.Errorf("initiateKhalti: empty pidx in reply")
	}

	return &reply, nil
}

// lookup calls the ePayment lookup endpoint.
func (c *Client) lookup(ctx context.Context, pidx string) (*LookupReply, error) {
	b, err := json.Marshal(map[string]string{"pidx": pidx})
	if err != nil {
		return nil, fmt.Errorf("lookupKhalti: json.Marshal: %w", err)
	}
	body := bytes.NewBuffer(b)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/epayment/lookup/", c.baseURL), body)
	if err != nil {
		return nil, fmt.Errorf("lookupKhalti: http.NewRequestWithContext: %w", err)
	}
	req = c.setHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookupKhalti: c.hc.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("lookupKhalti: resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, rbody)
	}

	var reply LookupReply
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("lookupKhalti: json.Decode: %w", err)
	}

	switch reply.Status {
	case "Completed", "Pending", "Initiated":
	case "Expired", "User canceled", "Refunded":
		return nil, status.ErrFailedPayment
	default:
		return nil, fmt.Errorf("lookupKhalti: unexpected status %q", reply.Status)
	}

	return &reply, nil
}
