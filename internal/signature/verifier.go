package signature

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dcastano/pagosur-backend/pkg/config"
)

// Verifier authenticates inbound webhook bodies against the per-gateway
// pre-shared secrets. A Verifier without a secret cannot exist: construction
// fails rather than letting verification fall open.
type Verifier struct {
	cardnetSecret []byte
	paytecSecret  string
}

func NewVerifier(cfg config.GatewaysConfig) (*Verifier, error) {
	if cfg.CardnetSecret == "" {
		return nil, errors.New("cardnet webhook secret is required")
	}
	if cfg.PaytecSecret == "" {
		return nil, errors.New("paytec webhook secret is required")
	}
	return &Verifier{
		cardnetSecret: []byte(cfg.CardnetSecret),
		paytecSecret:  cfg.PaytecSecret,
	}, nil
}

// VerifyCardnet checks the HMAC-SHA256 hex digest of the raw request body
// against the signature header. Comparison is constant-time.
func (v *Verifier) VerifyCardnet(body []byte, header string) bool {
	if header == "" {
		return false
	}
	mac := hmac.New(sha256.New, v.cardnetSecret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

// VerifyPaytec checks the legacy MD5 digest paytec computes over
// reference~amount~state_code~secret. MD5 is mandated by that gateway's
// protocol; the compare is still constant-time.
func (v *Verifier) VerifyPaytec(reference, amount, stateCode, sign string) bool {
	if sign == "" {
		return false
	}
	expected := PaytecDigest(reference, amount, stateCode, v.paytecSecret)
	return hmac.Equal([]byte(expected), []byte(sign))
}

// PaytecDigest computes the paytec callback digest. Exposed so tests and
// outbound tooling can build valid signatures.
func PaytecDigest(reference, amount, stateCode, secret string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s~%s~%s~%s", reference, amount, stateCode, secret)))
	return hex.EncodeToString(sum[:])
}
