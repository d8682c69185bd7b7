// Package risk implements heuristic risk scoring for wallet histories.
//
// A fixed set of independent factor evaluators inspects a wallet's
// transactions and token balances; each contributes either zero or its
// fixed weight. The aggregator sums contributions into a score and derives
// a discrete level, optionally combined with an external threat-intel tier.
// Factors are pure and order-independent; the breakdown always carries one
// entry per registered factor, zeros included.
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mbd888/walletscope/internal/chain"
)

// Level is the discrete risk classification derived from a score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Score thresholds for level derivation, evaluated highest-first.
const (
	CriticalThreshold = 80 // combined score only; heuristics alone never reach critical
	HighThreshold     = 60
	MediumThreshold   = 30
)

// Breakdown maps factor name to its contribution. Complete by construction:
// every registered factor has an entry, including zero-valued ones.
type Breakdown map[string]float64

// Total returns the sum of all contributions.
func (b Breakdown) Total() float64 {
	var sum float64
	for _, v := range b {
		sum += v
	}
	return sum
}

// Verdict is the aggregated risk result for a wallet.
type Verdict struct {
	Score     float64   `json:"score"` // uncapped sum; callers may clamp for display
	Level     Level     `json:"level"`
	Breakdown Breakdown `json:"breakdown"`
}

// Input carries everything a factor may inspect. Now is the single
// reference instant for the whole run; every time-relative factor uses it
// so that re-evaluating the same input yields an identical breakdown.
type Input struct {
	Transactions []chain.Transaction
	Balances     []chain.TokenBalance
	Now          time.Time
}

// Lists holds the address and token sets the evaluators match against.
// Supplied at construction so deployments can update them without a
// rebuild. All addresses are stored lowercased.
type Lists struct {
	Mixers        map[string]struct{}
	ScamContracts map[string]struct{}
	Blacklist     map[string]struct{}
	ScamTokens    map[string]struct{}
}

// listsFile is the on-disk shape for LoadLists.
type listsFile struct {
	Mixers        []string `json:"mixers"`
	ScamContracts []string `json:"scamContracts"`
	Blacklist     []string `json:"blacklist"`
	ScamTokens    []string `json:"scamTokens"`
}

// DefaultLists returns a small built-in set for development. Production
// deployments load curated lists via LoadLists.
func DefaultLists() *Lists {
	return &Lists{
		Mixers: toSet([]string{
			"0x8589427373d6d84e98730d7795d8f6f8731fda16", // tornado.cash router
			"0x722122df12d4e14e13ac3b6895a86e84145b6967",
			"0xd90e2f925da726b50c4ed8d0fb90ad053324f31b",
		}),
		ScamContracts: toSet([]string{
			"0x05f6e0a593ce9d35612da8e7f2a126336b77f9ff",
		}),
		Blacklist: toSet([]string{
			"0x098b716b8aaf21512996dc57eb0615e2383e2f96", // ronin bridge exploiter
			"0x7f367cc41522ce07553e823bf3be79a889debe1b",
		}),
		ScamTokens: toSet([]string{"MINEREUM", "AICELL", "ERC20TOKEN"}),
	}
}

// LoadLists reads intel lists from a JSON file.
func LoadLists(path string) (*Lists, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("risk: read lists file: %w", err)
	}
	var f listsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("risk: parse lists file: %w", err)
	}
	return &Lists{
		Mixers:        toSet(f.Mixers),
		ScamContracts: toSet(f.ScamContracts),
		Blacklist:     toSet(f.Blacklist),
		ScamTokens:    toSet(f.ScamTokens),
	}, nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// Assessment is one recorded evaluation, persisted for the audit trail.
// Recording is best-effort; the engine never depends on it.
type Assessment struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	Score       float64   `json:"score"`
	Level       Level     `json:"level"`
	Breakdown   Breakdown `json:"breakdown"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// Store persists assessments for audit queries.
type Store interface {
	Record(ctx context.Context, a *Assessment) error
	ListByAddress(ctx context.Context, address string, limit int) ([]*Assessment, error)
}
