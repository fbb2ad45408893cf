package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeader carries the HMAC Discourse computes over the webhook body.
const SignatureHeader = "X-Discourse-Event-Signature"

var ErrInvalidSignature = errors.New("invalid webhook signature")

// GenerateHMACSignature generates an HMAC SHA256 signature for the payload
// Returns the signature in the format: sha256=<hex_encoded_hmac>
func GenerateHMACSignature(payload []byte, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	if _, err := mac.Write(payload); err != nil {
		return "", fmt.Errorf("failed to write payload to HMAC: %w", err)
	}

	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil))), nil
}

// VerifySignature checks a signature header value against the payload.
func VerifySignature(payload []byte, secret, header string) error {
	expected, err := GenerateHMACSignature(payload, secret)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(header))) {
		return ErrInvalidSignature
	}
	return nil
}
