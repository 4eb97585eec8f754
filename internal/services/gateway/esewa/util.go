package esewa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// signedFieldNames is the field set eSewa requires in the form signature.
const signedFieldNames = "total_amount,transaction_uuid,product_code"

// signFields builds the `name=value` message over the listed fields in order
// and returns the base64 encoded HMAC-SHA256 signature.
func signFields(key []byte, fields map[string]string, names string) (string, error) {
	parts := make([]string, 0, 3)
	for _, name := range strings.Split(names, ",") {
		value, ok := fields[name]
		if !ok {
			return "", fmt.Errorf("signFields: missing signed field %q", name)
		}
		parts = append(parts, fmt.Sprintf("%s=%s", name, value))
	}

	return base64.StdEncoding.EncodeToString(hmac256(key, []byte(strings.Join(parts, ",")))), nil
}

// verifyFields recomputes the signature over the listed fields and compares
// it in constant time.
func verifyFields(key []byte, fields map[string]string, names, received string) bool {
	expected, err := signFields(key, fields, names)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(received), []byte(expected))
}

func hmac256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// normalizeAmount strips the thousands separators eSewa inserts into
// callback amounts ("1,000" -> "1000").
func normalizeAmount(s string) string {
	return strings.ReplaceAll(s, ",", "")
}
