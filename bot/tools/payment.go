package tools

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ChargeResult is the outcome of a payment attempt.
type ChargeResult struct {
	Succeeded     bool   `json:"succeeded"`
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason,omitempty"`
}

// PaymentGateway simulates a payment processor.
//
// Charge is idempotent on the intent id: charging the same intent twice
// returns the first result without processing a second payment. Safe for
// concurrent use.
type PaymentGateway struct {
	failureRate float64

	mu        sync.Mutex
	processed map[string]ChargeResult // intent id -> first result
}

// NewPaymentGateway creates a gateway that fails the given fraction of
// charges (0 means every charge succeeds).
func NewPaymentGateway(failureRate float64) *PaymentGateway {
	return &PaymentGateway{
		failureRate: failureRate,
		processed:   make(map[string]ChargeResult),
	}
}

// NewIntentID mints a payment intent id.
func NewIntentID() string {
	return "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// Charge processes a payment for the intent. Replays of an already
// processed intent return the original result.
func (g *PaymentGateway) Charge(intentID string, amount float64) (ChargeResult, error) {
	if intentID == "" {
		return ChargeResult{}, fmt.Errorf("payment intent id is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if result, ok := g.processed[intentID]; ok {
		return result, nil
	}

	var result ChargeResult
	if g.failureRate > 0 && rand.Float64() < g.failureRate {
		result = ChargeResult{Reason: "Card declined (simulated failure)"}
	} else {
		result = ChargeResult{
			Succeeded:     true,
			TransactionID: "txn_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		}
	}

	g.processed[intentID] = result
	return result, nil
}

// ChargeCount returns how many distinct intents have been processed.
// Intended for tests asserting idempotence.
func (g *PaymentGateway) ChargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.processed)
}
