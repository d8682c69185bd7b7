package risk

import (
	"sort"
	"strings"
	"time"

	"github.com/mbd888/walletscope/internal/chain"
)

// Factor is a single pure risk heuristic. Evaluate must not mutate the
// input and must return either 0 or the factor's fixed weight.
type Factor interface {
	Name() string
	Weight() float64
	Evaluate(in *Input) float64
}

// Factor weights. Contributions are binary: a factor fires at full weight
// or not at all. This is a deliberate simplification — factors do not
// scale with severity.
const (
	weightHighFrequency         = 20
	weightMixerUsage            = 30
	weightScamContract          = 30
	weightAbnormalGas           = 10
	weightReceivedFromBlacklist = 40
	weightSentToBlacklist       = 40
	weightScamTokens            = 20
	weightLargeInflowOutflow    = 15
	weightWalletAge             = 20
	weightTotalTransactions     = 10
	weightWashTrading           = 25
	weightCircularTransactions  = 25
	weightAnomalies             = 15
)

// Factor trigger thresholds.
const (
	highFrequencyWindow  = time.Hour
	highFrequencyCount   = 10
	abnormalGasThreshold = 1_000_000
	largeAmountThreshold = 10_000
	youngWalletAge       = 7 * 24 * time.Hour
	manyTransactions     = 200
	washTradeCount       = 3
	circularWindow       = 24 * time.Hour
	circularAmountDelta  = 0.0001
	anomalyMinSamples    = 5
	anomalyMedianRatio   = 10
	anomalyOddHourCount  = 3
	oddHoursStart        = 2 // UTC, inclusive
	oddHoursEnd          = 5 // UTC, inclusive
)

// DefaultFactors returns the canonical factor set bound to the given lists.
func DefaultFactors(lists *Lists) []Factor {
	if lists == nil {
		lists = DefaultLists()
	}
	return []Factor{
		&HighFrequencyFactor{},
		&MixerUsageFactor{mixers: lists.Mixers},
		&ScamContractFactor{contracts: lists.ScamContracts},
		&AbnormalGasFactor{},
		&BlacklistFactor{name: "receivedFromBlacklist", weight: weightReceivedFromBlacklist, direction: chain.DirectionIncoming, blacklist: lists.Blacklist},
		&BlacklistFactor{name: "sentToBlacklist", weight: weightSentToBlacklist, direction: chain.DirectionOutgoing, blacklist: lists.Blacklist},
		&ScamTokensFactor{tokens: lists.ScamTokens},
		&LargeInflowOutflowFactor{},
		&WalletAgeFactor{},
		&TotalTransactionsFactor{},
		&WashTradingFactor{},
		&CircularTransactionsFactor{},
		&AnomaliesFactor{},
	}
}

// ---------------------------------------------------------------------------
// highFrequency: >10 transactions within the trailing hour
// ---------------------------------------------------------------------------

type HighFrequencyFactor struct{}

func (f *HighFrequencyFactor) Name() string    { return "highFrequency" }
func (f *HighFrequencyFactor) Weight() float64 { return weightHighFrequency }

func (f *HighFrequencyFactor) Evaluate(in *Input) float64 {
	cutoff := in.Now.Add(-highFrequencyWindow)
	count := 0
	for i := range in.Transactions {
		ts := in.Transactions[i].Timestamp
		if ts.After(cutoff) && !ts.After(in.Now) {
			count++
		}
	}
	if count > highFrequencyCount {
		return weightHighFrequency
	}
	return 0
}

// ---------------------------------------------------------------------------
// mixerUsage: any contract address in the known-mixer set
// ---------------------------------------------------------------------------

type MixerUsageFactor struct {
	mixers map[string]struct{}
}

func (f *MixerUsageFactor) Name() string    { return "mixerUsage" }
func (f *MixerUsageFactor) Weight() float64 { return weightMixerUsage }

func (f *MixerUsageFactor) Evaluate(in *Input) float64 {
	for i := range in.Transactions {
		if _, ok := f.mixers[in.Transactions[i].Contract]; ok {
			return weightMixerUsage
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// scamContract: any contract address in the known-scam set
// ---------------------------------------------------------------------------

type ScamContractFactor struct {
	contracts map[string]struct{}
}

func (f *ScamContractFactor) Name() string    { return "scamContract" }
func (f *ScamContractFactor) Weight() float64 { return weightScamContract }

func (f *ScamContractFactor) Evaluate(in *Input) float64 {
	for i := range in.Transactions {
		if _, ok := f.contracts[in.Transactions[i].Contract]; ok {
			return weightScamContract
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// abnormalGas: any transaction burning more than 1M gas
// ---------------------------------------------------------------------------

type AbnormalGasFactor struct{}

func (f *AbnormalGasFactor) Name() string    { return "abnormalGas" }
func (f *AbnormalGasFactor) Weight() float64 { return weightAbnormalGas }

func (f *AbnormalGasFactor) Evaluate(in *Input) float64 {
	for i := range in.Transactions {
		if in.Transactions[i].GasUsed > abnormalGasThreshold {
			return weightAbnormalGas
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// receivedFromBlacklist / sentToBlacklist: counterparty on the blacklist
// ---------------------------------------------------------------------------

// BlacklistFactor covers both directions; the two registered instances
// differ only in name, weight, and the direction they inspect.
type BlacklistFactor struct {
	name      string
	weight    float64
	direction chain.Direction
	blacklist map[string]struct{}
}

func (f *BlacklistFactor) Name() string    { return f.name }
func (f *BlacklistFactor) Weight() float64 { return f.weight }

func (f *BlacklistFactor) Evaluate(in *Input) float64 {
	for i := range in.Transactions {
		tx := &in.Transactions[i]
		if tx.Direction != f.direction {
			continue
		}
		if _, ok := f.blacklist[tx.Counterparty]; ok {
			return f.weight
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// scamTokens: any held token symbol in the known-scam-token set
// ---------------------------------------------------------------------------

type ScamTokensFactor struct {
	tokens map[string]struct{}
}

func (f *ScamTokensFactor) Name() string    { return "scamTokens" }
func (f *ScamTokensFactor) Weight() float64 { return weightScamTokens }

func (f *ScamTokensFactor) Evaluate(in *Input) float64 {
	for i := range in.Balances {
		// Token symbols are matched case-insensitively; lists are lowercased.
		if _, ok := f.tokens[strings.ToLower(in.Balances[i].Symbol)]; ok {
			return weightScamTokens
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// largeInflowOutflow: any single transfer above the token-unit threshold
// ---------------------------------------------------------------------------

type LargeInflowOutflowFactor struct{}

func (f *LargeInflowOutflowFactor) Name() string    { return "largeInflowOutflow" }
func (f *LargeInflowOutflowFactor) Weight() float64 { return weightLargeInflowOutflow }

func (f *LargeInflowOutflowFactor) Evaluate(in *Input) float64 {
	for i := range in.Transactions {
		if in.Transactions[i].Amount > largeAmountThreshold {
			return weightLargeInflowOutflow
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// walletAge: first activity within 7 days of the reference time
// ---------------------------------------------------------------------------

type WalletAgeFactor struct{}

func (f *WalletAgeFactor) Name() string    { return "walletAge" }
func (f *WalletAgeFactor) Weight() float64 { return weightWalletAge }

func (f *WalletAgeFactor) Evaluate(in *Input) float64 {
	if len(in.Transactions) == 0 {
		return 0
	}
	earliest := in.Transactions[0].Timestamp
	for i := range in.Transactions {
		if in.Transactions[i].Timestamp.Before(earliest) {
			earliest = in.Transactions[i].Timestamp
		}
	}
	if in.Now.Sub(earliest) < youngWalletAge {
		return weightWalletAge
	}
	return 0
}

// ---------------------------------------------------------------------------
// totalTransactions: more than 200 transfers in the history
// ---------------------------------------------------------------------------

type TotalTransactionsFactor struct{}

func (f *TotalTransactionsFactor) Name() string    { return "totalTransactions" }
func (f *TotalTransactionsFactor) Weight() float64 { return weightTotalTransactions }

func (f *TotalTransactionsFactor) Evaluate(in *Input) float64 {
	if len(in.Transactions) > manyTransactions {
		return weightTotalTransactions
	}
	return 0
}

// ---------------------------------------------------------------------------
// washTrading: >3 incoming and >3 outgoing with the same counterparty
// ---------------------------------------------------------------------------

type WashTradingFactor struct{}

func (f *WashTradingFactor) Name() string    { return "washTrading" }
func (f *WashTradingFactor) Weight() float64 { return weightWashTrading }

func (f *WashTradingFactor) Evaluate(in *Input) float64 {
	type flow struct{ in, out int }
	flows := make(map[string]*flow)
	for i := range in.Transactions {
		tx := &in.Transactions[i]
		if tx.Counterparty == "" {
			continue
		}
		fl, ok := flows[tx.Counterparty]
		if !ok {
			fl = &flow{}
			flows[tx.Counterparty] = fl
		}
		if tx.Direction == chain.DirectionIncoming {
			fl.in++
		} else {
			fl.out++
		}
	}
	for _, fl := range flows {
		if fl.in > washTradeCount && fl.out > washTradeCount {
			return weightWashTrading
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// circularTransactions: matched in/out pair with the same counterparty,
// near-identical amount, within 24h of each other
// ---------------------------------------------------------------------------

type CircularTransactionsFactor struct{}

func (f *CircularTransactionsFactor) Name() string    { return "circularTransactions" }
func (f *CircularTransactionsFactor) Weight() float64 { return weightCircularTransactions }

func (f *CircularTransactionsFactor) Evaluate(in *Input) float64 {
	var incoming, outgoing []*chain.Transaction
	for i := range in.Transactions {
		tx := &in.Transactions[i]
		if tx.Counterparty == "" {
			continue
		}
		if tx.Direction == chain.DirectionIncoming {
			incoming = append(incoming, tx)
		} else {
			outgoing = append(outgoing, tx)
		}
	}
	for _, inc := range incoming {
		for _, out := range outgoing {
			if inc.Counterparty != out.Counterparty {
				continue
			}
			dt := inc.Timestamp.Sub(out.Timestamp)
			if dt < 0 {
				dt = -dt
			}
			da := inc.Amount - out.Amount
			if da < 0 {
				da = -da
			}
			if dt < circularWindow && da < circularAmountDelta {
				return weightCircularTransactions
			}
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// anomalies: outsized max amount or clustered odd-hour activity
// ---------------------------------------------------------------------------

type AnomaliesFactor struct{}

func (f *AnomaliesFactor) Name() string    { return "anomalies" }
func (f *AnomaliesFactor) Weight() float64 { return weightAnomalies }

func (f *AnomaliesFactor) Evaluate(in *Input) float64 {
	if len(in.Transactions) < anomalyMinSamples {
		return 0
	}

	amounts := make([]float64, len(in.Transactions))
	oddHours := 0
	for i := range in.Transactions {
		amounts[i] = in.Transactions[i].Amount
		h := in.Transactions[i].Timestamp.UTC().Hour()
		if h >= oddHoursStart && h <= oddHoursEnd {
			oddHours++
		}
	}

	sort.Float64s(amounts)
	med := median(amounts)
	if med > 0 && amounts[len(amounts)-1] > anomalyMedianRatio*med {
		return weightAnomalies
	}
	if oddHours > anomalyOddHourCount {
		return weightAnomalies
	}
	return 0
}

// median of a sorted slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
