package tools

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// FixedVerificationCode is the code every verification accepts when the
// Verifier runs in fixed mode. Convenient for demos and tests.
const FixedVerificationCode = "123456"

// Verifier simulates an SMS verification service.
//
// SendCode starts a verification for a phone number and returns a
// verification id; CheckCode validates a submitted code against it. A
// verification is consumed on first successful check. Safe for
// concurrent use.
type Verifier struct {
	randomCodes bool

	mu      sync.Mutex
	pending map[string]string // verification id -> expected code
}

// NewVerifier creates a Verifier. With randomCodes false every
// verification expects FixedVerificationCode; with it true a random
// 6-digit code is generated per verification (retrievable in tests via
// PendingCode).
func NewVerifier(randomCodes bool) *Verifier {
	return &Verifier{
		randomCodes: randomCodes,
		pending:     make(map[string]string),
	}
}

// SendCode starts a verification for the phone number and returns the
// verification id.
func (v *Verifier) SendCode(phone string) (string, error) {
	if phone == "" {
		return "", fmt.Errorf("phone number is required")
	}

	code := FixedVerificationCode
	if v.randomCodes {
		code = fmt.Sprintf("%06d", rand.Intn(1000000))
	}

	id := uuid.NewString()
	v.mu.Lock()
	v.pending[id] = code
	v.mu.Unlock()
	return id, nil
}

// CheckCode reports whether code matches the pending verification. The
// verification is consumed on success; further checks against the same
// id fail.
func (v *Verifier) CheckCode(verificationID, code string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	expected, ok := v.pending[verificationID]
	if !ok || code != expected {
		return false
	}
	delete(v.pending, verificationID)
	return true
}

// PendingCode returns the expected code for a verification id. Intended
// for tests running in random mode.
func (v *Verifier) PendingCode(verificationID string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	code, ok := v.pending[verificationID]
	return code, ok
}
