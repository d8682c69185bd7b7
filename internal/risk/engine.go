package risk

import (
	"context"
	"time"

	"github.com/mbd888/walletscope/internal/idgen"
)

// Engine runs the registered factor set and aggregates contributions.
// Stateless between calls; safe for concurrent use.
type Engine struct {
	factors []Factor
	store   Store
}

// NewEngine creates an engine with the canonical factor set bound to the
// given lists. A nil lists falls back to the built-in development set.
func NewEngine(lists *Lists) *Engine {
	return &Engine{factors: DefaultFactors(lists)}
}

// WithStore attaches a best-effort assessment audit store.
func (e *Engine) WithStore(store Store) *Engine {
	e.store = store
	return e
}

// WithFactors overrides the factor set (tests only).
func (e *Engine) WithFactors(factors []Factor) *Engine {
	e.factors = factors
	return e
}

// Factors returns the registered factor set.
func (e *Engine) Factors() []Factor { return e.factors }

// Evaluate runs every factor against the input and returns the complete
// breakdown: one entry per factor, zero contributions retained. A nil
// input is treated as empty.
func (e *Engine) Evaluate(in *Input) Breakdown {
	if in == nil {
		in = &Input{}
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	breakdown := make(Breakdown, len(e.factors))
	for _, f := range e.factors {
		breakdown[f.Name()] = f.Evaluate(in)
	}
	return breakdown
}

// Assess evaluates, aggregates, and records an audit entry. The audit
// write is async and best-effort; a failing store never affects the
// returned verdict.
func (e *Engine) Assess(ctx context.Context, address string, in *Input) *Verdict {
	breakdown := e.Evaluate(in)
	verdict := Aggregate(breakdown)

	if e.store != nil {
		a := &Assessment{
			ID:          idgen.WithPrefix("risk_"),
			Address:     address,
			Score:       verdict.Score,
			Level:       verdict.Level,
			Breakdown:   breakdown,
			EvaluatedAt: time.Now(),
		}
		go func() {
			_ = e.store.Record(context.WithoutCancel(ctx), a)
		}()
	}
	return verdict
}

// History returns recorded assessments for an address, newest first.
// Nil when no audit store is attached.
func (e *Engine) History(ctx context.Context, address string, limit int) ([]*Assessment, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.ListByAddress(ctx, address, limit)
}

// HasStore reports whether an audit store is attached.
func (e *Engine) HasStore() bool { return e.store != nil }

// Aggregate sums the breakdown into a verdict. The score is uncapped;
// display layers may clamp it. Heuristics alone never produce critical —
// that requires an external threat-intel tier (see Combine).
func Aggregate(breakdown Breakdown) *Verdict {
	score := breakdown.Total()
	return &Verdict{
		Score:     score,
		Level:     levelForScore(score),
		Breakdown: breakdown,
	}
}

func levelForScore(score float64) Level {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// IntelPoints converts a threat-intel tier into the address-level score
// contribution. Clamped to 100 by construction.
func IntelPoints(tier Level) float64 {
	switch tier {
	case LevelCritical:
		return 100
	case LevelHigh:
		return 75
	case LevelMedium:
		return 40
	default:
		return 0
	}
}

// Combine merges a heuristic verdict with an external threat-intel tier.
// The intel tier strictly dominates at the top end: a critical or high
// external verdict is never downgraded by a low heuristic score.
func Combine(v *Verdict, tier Level) (float64, Level) {
	combined := v.Score + IntelPoints(tier)

	switch {
	case tier == LevelCritical || combined >= CriticalThreshold:
		return combined, LevelCritical
	case tier == LevelHigh || combined >= HighThreshold:
		return combined, LevelHigh
	case combined >= MediumThreshold:
		return combined, LevelMedium
	default:
		return combined, LevelLow
	}
}
