package esewa

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planora/internal/status"
)

// UAT credentials from the eSewa ePay v2 integration docs.
const (
	testSecret      = "8gBm/:&EnhH.1/q"
	testProductCode = "EPAYTEST"

	// HMAC-SHA256, base64, over
	// "total_amount=100,transaction_uuid=11-201-13,product_code=EPAYTEST"
	// with the UAT secret.
	goldenSignature = "5DZywcrTKD0gia/rsSMcrRHmJl+4Tbol6S+lWgdJ94E="
)

func testClient() ESewa {
	return New(&Config{
		GatewayURL:  "https://rc-epay.esewa.com.np/api/epay/main/v2/form",
		StatusURL:   "https://rc.esewa.com.np/api/epay/transaction/status/",
		ProductCode: testProductCode,
		SecretKey:   testSecret,
		SuccessURL:  "http://localhost:5173/success",
		FailureURL:  "http://localhost:5173/failure",
	})
}

func TestSignFields_GoldenVector(t *testing.T) {
	fields := map[string]string{
		"total_amount":     "100",
		"transaction_uuid": "11-201-13",
		"product_code":     "EPAYTEST",
	}

	signature, err := signFields([]byte(testSecret), fields, signedFieldNames)
	require.NoError(t, err)

	assert.Equal(t, goldenSignature, signature)
}

func TestSignFields_MissingField(t *testing.T) {
	_, err := signFields([]byte(testSecret), map[string]string{"total_amount": "100"}, signedFieldNames)
	assert.Error(t, err)
}

func TestBuildForm(t *testing.T) {
	client := testClient()

	fields, err := client.BuildForm(&FormRequest{
		Amount:          decimal.NewFromInt(100),
		TaxAmount:       decimal.Zero,
		ServiceCharge:   decimal.Zero,
		DeliveryCharge:  decimal.Zero,
		TransactionUUID: "11-201-13",
	})
	require.NoError(t, err)

	assert.Equal(t, "100", fields["amount"])
	assert.Equal(t, "100", fields["total_amount"])
	assert.Equal(t, "11-201-13", fields["transaction_uuid"])
	assert.Equal(t, testProductCode, fields["product_code"])
	assert.Equal(t, signedFieldNames, fields["signed_field_names"])
	assert.Equal(t, goldenSignature, fields["signature"])

	// Every field the gateway form contract names must be present.
	for _, name := range []string{
		"amount", "tax_amount", "total_amount", "transaction_uuid", "product_code",
		"product_service_charge", "product_delivery_charge", "success_url",
		"failure_url", "signed_field_names", "signature",
	} {
		assert.Contains(t, fields, name)
	}
}

func TestBuildForm_TotalIncludesCharges(t *testing.T) {
	client := testClient()

	fields, err := client.BuildForm(&FormRequest{
		Amount:          decimal.NewFromInt(1000),
		TaxAmount:       decimal.NewFromInt(130),
		ServiceCharge:   decimal.NewFromInt(20),
		DeliveryCharge:  decimal.NewFromInt(50),
		TransactionUUID: "tx-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "1200", fields["total_amount"])
}

func encodeCallback(t *testing.T, cb Callback) string {
	t.Helper()

	if cb.Signature == "" {
		fields := map[string]string{
			"transaction_code":   cb.TransactionCode,
			"status":             cb.Status,
			"total_amount":       cb.TotalAmount,
			"transaction_uuid":   cb.TransactionUUID,
			"product_code":       cb.ProductCode,
			"signed_field_names": cb.SignedFieldNames,
		}
		signature, err := signFields([]byte(testSecret), fields, cb.SignedFieldNames)
		require.NoError(t, err)
		cb.Signature = signature
	}

	raw, err := json.Marshal(cb)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestDecodeCallback_Valid(t *testing.T) {
	client := testClient()

	data := encodeCallback(t, Callback{
		TransactionCode:  "000AWEO",
		Status:           "COMPLETE",
		TotalAmount:      "1,000",
		TransactionUUID:  "250610-162413",
		ProductCode:      testProductCode,
		SignedFieldNames: "transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names",
	})

	cb, err := client.DecodeCallback(data)
	require.NoError(t, err)

	assert.Equal(t, "250610-162413", cb.TransactionUUID)
	assert.Equal(t, "COMPLETE", cb.Status)

	amount, err := cb.Amount()
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(1000)), "amount: %s", amount)
}

func TestDecodeCallback_TamperedAmount(t *testing.T) {
	client := testClient()

	cb := Callback{
		TransactionCode:  "000AWEO",
		Status:           "COMPLETE",
		TotalAmount:      "1000",
		TransactionUUID:  "250610-162413",
		ProductCode:      testProductCode,
		SignedFieldNames: "transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names",
	}
	data := encodeCallback(t, cb)

	// Re-encode with a modified amount but the original signature.
	raw, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	var signed Callback
	require.NoError(t, json.Unmarshal(raw, &signed))
	signed.TotalAmount = "1"
	tampered, err := json.Marshal(signed)
	require.NoError(t, err)

	_, err = client.DecodeCallback(base64.StdEncoding.EncodeToString(tampered))
	assert.ErrorIs(t, err, status.ErrVerificationFailed)
}

func TestDecodeCallback_Malformed(t *testing.T) {
	client := testClient()

	cases := []string{
		"not-base64!!!",
		base64.StdEncoding.EncodeToString([]byte("not json")),
		base64.StdEncoding.EncodeToString([]byte(`{}`)),
	}

	for _, data := range cases {
		_, err := client.DecodeCallback(data)
		assert.ErrorIs(t, err, status.ErrMalformedCallback, "data: %q", data)
	}
}
