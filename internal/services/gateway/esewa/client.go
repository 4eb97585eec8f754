package esewa

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"context"

	"github.com/shopspring/decimal"

	"planora/internal/status"
)

type (
	// Callback is the payload eSewa base64-encodes into the `data` query
	// parameter of the success redirect.
	Callback struct {
		TransactionCode  string `json:"transaction_code"`
		Status           string `json:"status"`
		TotalAmount      string `json:"total_amount"`
		TransactionUUID  string `json:"transaction_uuid"`
		ProductCode      string `json:"product_code"`
		SignedFieldNames string `json:"signed_field_names"`
		Signature        string `json:"signature"`
	}

	// Tx is a normalized status inquiry result.
	Tx struct {
		RefID     string
		UUID      string
		Status    string
		Amount    decimal.Decimal
		CreatedAt time.Time
	}
)

// Amount returns the callback total as a decimal.
func (c *Callback) Amount() (decimal.Decimal, error) {
	return decimal.NewFromString(normalizeAmount(c.TotalAmount))
}

// DecodeCallback decodes the base64 JSON blob and verifies its signature
// against the callback's own signed_field_names list.
func (e *esewa) DecodeCallback(data string) (*Callback, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		// The gateway is inconsistent about padding.
		raw, err = base64.RawStdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("decodeCallback: base64.Decode: %w", status.ErrMalformedCallback)
		}
	}

	var cb Callback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("decodeCallback: json.Unmarshal: %w", status.ErrMalformedCallback)
	}

	if cb.TransactionUUID == "" || cb.SignedFieldNames == "" {
		return nil, status.ErrMalformedCallback
	}

	fields := map[string]string{
		"transaction_code":   cb.TransactionCode,
		"status":             cb.Status,
		"total_amount":       cb.TotalAmount,
		"transaction_uuid":   cb.TransactionUUID,
		"product_code":       cb.ProductCode,
		"signed_field_names": cb.SignedFieldNames,
	}
	if !verifyFields([]byte(e.secretKey), fields, cb.SignedFieldNames, cb.Signature) {
		return nil, status.ErrVerificationFailed
	}

	return &cb, nil
}

// checkTransaction queries the eSewa transaction status service.
func (e *esewa) checkTransaction(ctx context.Context, transactionUUID string, totalAmount decimal.Decimal) (*Tx, error) {
	query := url.Values{}
	query.Set("product_code", e.productCode)
	query.Set("total_amount", totalAmount.String())
	query.Set("transaction_uuid", transactionUUID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?%s", e.statusURL, query.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("checkTransactionESewa: http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkTransactionESewa: e.hc.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("checkTransactionESewa: resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, rbody)
	}

	var reply struct {
		ProductCode     string          `json:"product_code"`
		TransactionUUID string          `json:"transaction_uuid"`
		TotalAmount     decimal.Decimal `json:"total_amount"`
		Status          string          `json:"status"`
		RefID           string          `json:"ref_id"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("checkTransactionESewa: json.Decode: %w", err)
	}

	switch reply.Status {
	case "COMPLETE":
		// fallthrough to return below
	case "PENDING", "AMBIGUOUS":
		// verifiable later, surface as-is
	case "CANCELED", "NOT_FOUND", "FULL_REFUND", "PARTIAL_REFUND":
		return nil, status.ErrFailedPayment
	default:
		return nil, fmt.Errorf("checkTransactionESewa: unexpected status %q", reply.Status)
	}

	return &Tx{
		RefID:     reply.RefID,
		UUID:      reply.TransactionUUID,
		Status:    reply.Status,
		Amount:    reply.TotalAmount,
		CreatedAt: time.Now(),
	}, nil
}

func (e *esewa) CheckTransaction(ctx context.Context, transactionUUID string, totalAmount decimal.Decimal) (*Tx, error) {
	return e.checkTransaction(ctx, transactionUUID, totalAmount)
}
