package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const (
	HeaderSignature = "X-Razorpay-Signature"
	HeaderEventID   = "X-Razorpay-Event-Id"
)

var (
	ErrMissingSignature = errors.New("razorpay: missing signature")
	ErrInvalidSignature = errors.New("razorpay: invalid signature")
)

// Verifier checks webhook signatures: lowercase hex HMAC-SHA256 of the raw
// request body keyed with the webhook secret.
type Verifier struct {
	secret []byte
	// step is called once per compared byte; tests use it to observe the
	// comparison structure.
	step func()
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign returns the signature Razorpay would send for body.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature authenticates body. The body is used as
// received; it is never re-encoded.
func (v *Verifier) Verify(body []byte, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}
	expected := []byte(v.Sign(body))
	if !constantTimeEqual(expected, []byte(signature), v.step) {
		return ErrInvalidSignature
	}
	return nil
}

// constantTimeEqual compares a and b without an early exit: after the length
// check every byte pair is XORed and OR-accumulated, so the running time does
// not depend on where the first difference is.
func constantTimeEqual(a, b []byte, step func()) bool {
	if len(a) != len(b) {
		return false
	}
	var acc byte
	for i := range a {
		if step != nil {
			step()
		}
		acc |= a[i] ^ b[i]
	}
	return acc == 0
}
