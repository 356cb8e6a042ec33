package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// verifyWebhookSignature checks the messenger webhook signature: the
// base64-encoded HMAC-SHA256 of the raw body keyed by the channel secret.
func verifyWebhookSignature(secret, signatureHeader string, body []byte) error {
	if strings.TrimSpace(secret) == "" {
		return errors.New("webhook secret is not configured")
	}
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" {
		return errors.New("missing X-Line-Signature header")
	}
	provided, err := base64.StdEncoding.DecodeString(signatureHeader)
	if err != nil {
		return errors.New("malformed webhook signature")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return errors.New("webhook signature mismatch")
	}
	return nil
}
