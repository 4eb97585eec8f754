package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

func GenerateCode(n int) (string, error) {
	// Make a slice of n random bytes.
	byt := make([]byte, n)

	// Read into the slice.
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	// Return the hexadecimal string.
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateTicketCode returns a human readable ticket code, e.g. PLT-4F7A21BC.
func GenerateTicketCode() (string, error) {
	code, err := GenerateCode(4)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PLT-%s", code), nil
}
