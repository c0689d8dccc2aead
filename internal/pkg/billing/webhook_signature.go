package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SignatureVerifier checks the x-signature header sent with webhook deliveries.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier builds a verifier for the shared webhook secret.
func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return nil, fmt.Errorf("%w: webhook secret is not configured", ErrConfiguration)
	}
	return &SignatureVerifier{secret: []byte(s)}, nil
}

// Verify compares the hex HMAC-SHA256 of the raw body against signatureHeader.
// rawBody must be the bytes exactly as received.
func (v *SignatureVerifier) Verify(rawBody []byte, signatureHeader string) error {
	if v == nil || len(v.secret) == 0 {
		return ErrConfiguration
	}
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" {
		return ErrInvalidSignature
	}
	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	if !hmac.Equal(mac.Sum(nil), decodedSig) {
		return ErrInvalidSignature
	}
	return nil
}

// SignPayload returns the hex HMAC-SHA256 signature the provider would send for body.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
