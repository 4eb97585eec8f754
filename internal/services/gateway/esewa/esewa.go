package esewa

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

var _ ESewa = (*esewa)(nil)

type (
	Config struct {
		GatewayURL  string `json:"gateway_url" mapstructure:"gateway_url"`
		StatusURL   string `json:"status_url" mapstructure:"status_url"`
		ProductCode string `json:"product_code" mapstructure:"product_code"`
		SecretKey   string `json:"secret_key" mapstructure:"secret_key"`
		SuccessURL  string `json:"success_url" mapstructure:"success_url"`
		FailureURL  string `json:"failure_url" mapstructure:"failure_url"`
	}

	esewa struct {
		gatewayURL  string
		statusURL   string
		productCode string
		secretKey   string
		successURL  string
		failureURL  string

		// hc is the http client.
		hc *http.Client
	}
)

type ESewa interface {
	// BuildForm produces the signed hidden-form field set the browser posts
	// to the eSewa gateway.
	BuildForm(f *FormRequest) (map[string]string, error)

	// CheckTransaction queries the transaction status service.
	CheckTransaction(ctx context.Context, transactionUUID string, totalAmount decimal.Decimal) (*Tx, error)

	// DecodeCallback decodes and verifies the base64 `data` query parameter
	// the gateway appends to the success redirect.
	DecodeCallback(data string) (*Callback, error)

	// GatewayURL returns the form post target.
	GatewayURL() string
}

// New creates a new instance of the eSewa client.
func New(cfg *Config) ESewa {
	return &esewa{
		gatewayURL:  cfg.GatewayURL,
		statusURL:   cfg.StatusURL,
		productCode: cfg.ProductCode,
		secretKey:   cfg.SecretKey,
		successURL:  cfg.SuccessURL,
		failureURL:  cfg.FailureURL,

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type FormRequest struct {
	Amount          decimal.Decimal
	TaxAmount       decimal.Decimal
	ServiceCharge   decimal.Decimal
	DeliveryCharge  decimal.Decimal
	TransactionUUID string
}

func (e *esewa) GatewayURL() string {
	return e.gatewayURL
}

// BuildForm assembles the v2 ePay form. signed_field_names fixes the exact
// fields covered by the HMAC signature; the gateway rejects mismatches.
func (e *esewa) BuildForm(f *FormRequest) (map[string]string, error) {
	total := f.Amount.Add(f.TaxAmount).Add(f.ServiceCharge).Add(f.DeliveryCharge)

	fields := map[string]string{
		"amount":                  f.Amount.String(),
		"tax_amount":              f.TaxAmount.String(),
		"total_amount":            total.String(),
		"transaction_uuid":        f.TransactionUUID,
		"product_code":            e.productCode,
		"product_service_charge":  f.ServiceCharge.String(),
		"product_delivery_charge": f.DeliveryCharge.String(),
		"success_url":             e.successURL,
		"failure_url":             e.failureURL,
		"signed_field_names":      signedFieldNames,
	}

	signature, err := signFields([]byte(e.secretKey), fields, signedFieldNames)
	if err != nil {
		return nil, err
	}
	fields["signature"] = signature

	return fields, nil
}
