// Package intel aggregates threat intelligence about wallet addresses from
// multiple providers. Lookups fan out in parallel, merge into a single
// verdict, and degrade to a local static analysis when every provider
// fails. Verdicts are cached with a TTL so repeated lookups for hot
// addresses do not hammer upstream APIs.
package intel

import (
	"context"
	"errors"
	"time"
)

// Tier is the severity classification a provider assigns to an address.
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// rank orders tiers for max-merging. Unknown tiers rank lowest.
func (t Tier) rank() int {
	switch t {
	case TierCritical:
		return 3
	case TierHigh:
		return 2
	case TierMedium:
		return 1
	default:
		return 0
	}
}

// MaxTier returns the more severe of two tiers.
func MaxTier(a, b Tier) Tier {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Verdict is the merged threat assessment for a single address.
type Verdict struct {
	Address     string    `json:"address"`
	Tier        Tier      `json:"tier"`
	Confidence  float64   `json:"confidence"`
	Tags        []string  `json:"tags,omitempty"`
	Sources     []string  `json:"sources"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Provider is a single threat-intel source.
//
// Lookup returns ErrNoData when the provider has nothing on the address;
// that is a successful lookup, not a failure, and does not trip circuit
// breakers. Any other error counts against the provider.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, address string) (*Verdict, error)
}

// ErrNoData means the provider responded but holds no record for the address.
var ErrNoData = errors.New("intel: no data for address")
