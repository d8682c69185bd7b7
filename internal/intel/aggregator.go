package intel

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/walletscope/internal/circuitbreaker"
	"github.com/mbd888/walletscope/internal/metrics"
	"github.com/mbd888/walletscope/internal/traces"
)

// DefaultProviderTimeout bounds each provider call within a lookup.
const DefaultProviderTimeout = 5 * time.Second

// Aggregator fans a lookup out to every registered provider, merges the
// answers, and falls back to static analysis when nothing comes back.
// Lookup never returns an error: the caller always gets a verdict, with
// the Sources field recording how trustworthy it is.
type Aggregator struct {
	providers      []Provider
	cache          *Cache
	breaker        *circuitbreaker.Breaker
	timeout        time.Duration
	staticFallback bool
	logger         *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithCache replaces the default verdict cache.
func WithCache(c *Cache) Option {
	return func(a *Aggregator) { a.cache = c }
}

// WithProviderTimeout sets the per-provider call timeout.
func WithProviderTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithStaticFallback controls whether address-shape heuristics run when
// every provider fails. Disabled, the fallback verdict is a bare low tier.
func WithStaticFallback(enabled bool) Option {
	return func(a *Aggregator) { a.staticFallback = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator creates an aggregator over the given providers.
func NewAggregator(providers []Provider, opts ...Option) *Aggregator {
	a := &Aggregator{
		providers:      providers,
		cache:          NewCache(DefaultCacheTTL, DefaultCacheSize),
		breaker:        circuitbreaker.New(5, 30*time.Second),
		timeout:        DefaultProviderTimeout,
		staticFallback: true,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Lookup returns the merged threat verdict for an address.
//
// Order of resort: cache, then parallel provider fan-out, then static
// fallback. The result is cached regardless of which path produced it,
// so a flapping provider fleet does not retry on every request.
func (a *Aggregator) Lookup(ctx context.Context, address string) *Verdict {
	address = strings.ToLower(address)

	if v := a.cache.Get(address); v != nil {
		return v
	}

	results := a.fanOut(ctx, address)

	var verdict *Verdict
	switch {
	case len(results) > 0:
		verdict = merge(address, results)
	case a.staticFallback:
		metrics.IntelFallbacksTotal.Inc()
		a.logger.Warn("all intel providers failed, using static analysis",
			"address", address, "providers", len(a.providers))
		verdict = StaticAnalyze(address)
	default:
		metrics.IntelFallbacksTotal.Inc()
		verdict = &Verdict{
			Address:     address,
			Tier:        TierLow,
			RetrievedAt: time.Now().UTC(),
		}
	}

	a.cache.Put(address, verdict)
	return verdict
}

// fanOut queries every allowed provider concurrently and collects the
// verdicts that arrive. A slow or failing provider only loses its own
// slot; the others are unaffected.
func (a *Aggregator) fanOut(ctx context.Context, address string) []*Verdict {
	results := make([]*Verdict, len(a.providers))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range a.providers {
		if !a.breaker.Allow(p.Name()) {
			metrics.ProviderCallsTotal.WithLabelValues(p.Name(), "skipped").Inc()
			continue
		}

		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			callCtx, span := traces.StartSpan(callCtx, "intel.provider_lookup",
				traces.Provider(p.Name()), traces.WalletAddr(address))
			defer span.End()

			v, err := p.Lookup(callCtx, address)
			switch {
			case errors.Is(err, ErrNoData):
				// The provider answered; it just has nothing. Healthy.
				a.breaker.RecordSuccess(p.Name())
				metrics.ProviderCallsTotal.WithLabelValues(p.Name(), "no_data").Inc()
			case err != nil:
				a.breaker.RecordFailure(p.Name())
				metrics.ProviderCallsTotal.WithLabelValues(p.Name(), "error").Inc()
				a.logger.Warn("intel provider lookup failed",
					"provider", p.Name(), "address", address, "error", err)
			default:
				a.breaker.RecordSuccess(p.Name())
				metrics.ProviderCallsTotal.WithLabelValues(p.Name(), "ok").Inc()
				results[i] = v
			}
			// Never propagate: one provider's failure must not cancel the rest.
			return nil
		})
	}
	_ = g.Wait()

	var merged []*Verdict
	for _, v := range results {
		if v != nil {
			merged = append(merged, v)
		}
	}
	return merged
}

// merge combines provider verdicts: the most severe tier wins, tags and
// sources are unioned, and confidence is the mean of the positive values.
func merge(address string, verdicts []*Verdict) *Verdict {
	out := &Verdict{
		Address:     address,
		Tier:        TierLow,
		RetrievedAt: time.Now().UTC(),
	}

	var confSum float64
	var confCount int
	seenTags := make(map[string]struct{})
	seenSources := make(map[string]struct{})

	for _, v := range verdicts {
		out.Tier = MaxTier(out.Tier, v.Tier)
		if v.Confidence > 0 {
			confSum += v.Confidence
			confCount++
		}
		for _, tag := range v.Tags {
			if _, ok := seenTags[tag]; ok {
				continue
			}
			seenTags[tag] = struct{}{}
			out.Tags = append(out.Tags, tag)
		}
		for _, src := range v.Sources {
			if _, ok := seenSources[src]; ok {
				continue
			}
			seenSources[src] = struct{}{}
			out.Sources = append(out.Sources, src)
		}
	}

	if confCount > 0 {
		out.Confidence = confSum / float64(confCount)
	}
	return out
}
