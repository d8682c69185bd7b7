package intel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

type stubProvider struct {
	name    string
	verdict *Verdict
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Lookup(ctx context.Context, address string) (*Verdict, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	v := *s.verdict
	v.Address = address
	return &v, nil
}

func TestLookupCachesVerdict(t *testing.T) {
	p := &stubProvider{name: "alpha", verdict: testVerdict("", TierHigh)}
	a := NewAggregator([]Provider{p})

	first := a.Lookup(context.Background(), "0xABC")
	second := a.Lookup(context.Background(), "0xabc")

	if p.calls.Load() != 1 {
		t.Errorf("provider called %d times, want 1 (second lookup cached)", p.calls.Load())
	}
	if first.Tier != TierHigh || second.Tier != TierHigh {
		t.Errorf("tiers = %s/%s, want high", first.Tier, second.Tier)
	}
}

func TestLookupMergesProviders(t *testing.T) {
	alpha := &stubProvider{name: "alpha", verdict: &Verdict{
		Tier: TierMedium, Confidence: 0.6, Tags: []string{"mixer"}, Sources: []string{"alpha"},
	}}
	beta := &stubProvider{name: "beta", verdict: &Verdict{
		Tier: TierCritical, Confidence: 0.9, Tags: []string{"mixer", "sanctioned"}, Sources: []string{"beta"},
	}}
	a := NewAggregator([]Provider{alpha, beta})

	v := a.Lookup(context.Background(), "0xabc")

	if v.Tier != TierCritical {
		t.Errorf("tier = %s, want critical (max wins)", v.Tier)
	}
	if v.Confidence != 0.75 {
		t.Errorf("confidence = %v, want 0.75 (mean of 0.6 and 0.9)", v.Confidence)
	}
	if len(v.Tags) != 2 {
		t.Errorf("tags = %v, want deduplicated union of 2", v.Tags)
	}
	if len(v.Sources) != 2 {
		t.Errorf("sources = %v, want both providers", v.Sources)
	}
}

func TestLookupFallsBackToStatic(t *testing.T) {
	failing := &stubProvider{name: "down", err: errors.New("connection refused")}
	a := NewAggregator([]Provider{failing})

	v := a.Lookup(context.Background(), "0xabc123")

	if len(v.Sources) != 1 || v.Sources[0] != StaticSource {
		t.Errorf("sources = %v, want [%q]", v.Sources, StaticSource)
	}
	if v.Confidence != 0.3 {
		t.Errorf("confidence = %v, want 0.3", v.Confidence)
	}
}

func TestLookupNoDataFallsBackToStatic(t *testing.T) {
	empty := &stubProvider{name: "empty", err: ErrNoData}
	a := NewAggregator([]Provider{empty})

	v := a.Lookup(context.Background(), "0xabc")
	if len(v.Sources) != 1 || v.Sources[0] != StaticSource {
		t.Errorf("sources = %v, want static fallback when no provider has data", v.Sources)
	}
}

func TestStaticFallbackDisabled(t *testing.T) {
	failing := &stubProvider{name: "down", err: errors.New("connection refused")}
	a := NewAggregator([]Provider{failing}, WithStaticFallback(false))

	// An all-zero burn address would trip the static heuristics if they ran.
	v := a.Lookup(context.Background(), "0x0000000000000000000000000000000000000000")

	if v.Tier != TierLow {
		t.Errorf("tier = %s, want low when heuristics are disabled", v.Tier)
	}
	if len(v.Sources) != 0 || len(v.Tags) != 0 {
		t.Errorf("sources = %v, tags = %v, want a bare verdict", v.Sources, v.Tags)
	}
	if v.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", v.Confidence)
	}
}

func TestSlowProviderDoesNotBlockOthers(t *testing.T) {
	slow := &stubProvider{name: "slow", delay: time.Second, verdict: testVerdict("", TierCritical)}
	fast := &stubProvider{name: "fast", verdict: &Verdict{
		Tier: TierMedium, Confidence: 0.7, Sources: []string{"fast"},
	}}
	a := NewAggregator([]Provider{slow, fast}, WithProviderTimeout(50*time.Millisecond))

	start := time.Now()
	v := a.Lookup(context.Background(), "0xabc")
	elapsed := time.Since(start)

	if elapsed > 500*time.Millisecond {
		t.Errorf("lookup took %v, slow provider should be cut off by its timeout", elapsed)
	}
	if v.Tier != TierMedium {
		t.Errorf("tier = %s, want medium from the fast provider only", v.Tier)
	}
	if len(v.Sources) != 1 || v.Sources[0] != "fast" {
		t.Errorf("sources = %v, want only the fast provider", v.Sources)
	}
}

func TestBreakerSkipsRepeatedlyFailingProvider(t *testing.T) {
	failing := &stubProvider{name: "flaky", err: errors.New("boom")}
	a := NewAggregator([]Provider{failing})

	// Distinct addresses so the cache never short-circuits the fan-out.
	// The default breaker opens after 5 consecutive failures.
	for i := 0; i < 8; i++ {
		a.Lookup(context.Background(), fmt.Sprintf("0xaddr%d", i))
	}

	if got := failing.calls.Load(); got != 5 {
		t.Errorf("provider called %d times, want 5 before the breaker opens", got)
	}
}

func TestFallbackVerdictIsCached(t *testing.T) {
	failing := &stubProvider{name: "down", err: errors.New("unreachable")}
	a := NewAggregator([]Provider{failing})

	a.Lookup(context.Background(), "0xabc")
	a.Lookup(context.Background(), "0xabc")

	if failing.calls.Load() != 1 {
		t.Errorf("provider called %d times, want 1 — fallback verdicts cache too", failing.calls.Load())
	}
}
