// Package webhook receives the video provider's signed callbacks. Nothing in
// the request body is trusted until the signature over it has been verified.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"

	"github.com/fieldscope/mediaworks/internal/domain"
)

// Verifier checks the provider's signature header, of the form
// "t=<unix-timestamp>,v1=<hex-hmac>". The v1 value is HMAC-SHA256 over
// "<timestamp>.<raw body>" keyed with the pre-shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify returns domain.ErrBadSignature for a missing or malformed header
// and for any signature mismatch. The body must not be processed unless
// Verify succeeds.
func (v *Verifier) Verify(rawBody []byte, signatureHeader string) error {
	timestamp, signature, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return err
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return errors.Wrap(domain.ErrBadSignature, "signature is not valid hex")
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(rawBody)

	if !hmac.Equal(mac.Sum(nil), provided) {
		return domain.ErrBadSignature
	}
	return nil
}

func parseSignatureHeader(header string) (timestamp, signature string, err error) {
	if header == "" {
		return "", "", errors.Wrap(domain.ErrBadSignature, "missing signature header")
	}

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			return "", "", errors.Wrap(domain.ErrBadSignature, "malformed signature header")
		}
		switch strings.TrimSpace(key) {
		case "t":
			timestamp = value
		case "v1":
			signature = value
		}
	}

	if timestamp == "" || signature == "" {
		return "", "", errors.Wrap(domain.ErrBadSignature, "signature header missing t or v1")
	}
	return timestamp, signature, nil
}
