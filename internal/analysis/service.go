package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/walletscope/internal/chain"
	"github.com/mbd888/walletscope/internal/graph"
	"github.com/mbd888/walletscope/internal/idgen"
	"github.com/mbd888/walletscope/internal/intel"
	"github.com/mbd888/walletscope/internal/metrics"
	"github.com/mbd888/walletscope/internal/pagination"
	"github.com/mbd888/walletscope/internal/risk"
	"github.com/mbd888/walletscope/internal/traces"
	"github.com/mbd888/walletscope/internal/validation"
)

// DefaultCounterpartyLimit caps how many counterparties get their own
// intel lookup per analysis.
const DefaultCounterpartyLimit = 25

// counterpartyScanParallelism bounds concurrent counterparty lookups.
const counterpartyScanParallelism = 4

// Broadcaster receives completed-analysis notifications. Implemented by
// the realtime hub adapter; nil disables broadcasting.
type Broadcaster interface {
	AnalysisCompleted(r *Report)
	ThreatAlert(r *Report)
}

// Service runs the full analysis pipeline for a wallet.
type Service struct {
	fetcher           chain.Fetcher
	engine            *risk.Engine
	intel             *intel.Aggregator
	store             Store
	broadcaster       Broadcaster
	counterpartyLimit int
	logger            *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStore attaches a best-effort report store.
func WithStore(store Store) ServiceOption {
	return func(s *Service) { s.store = store }
}

// WithBroadcaster attaches a realtime event sink.
func WithBroadcaster(b Broadcaster) ServiceOption {
	return func(s *Service) { s.broadcaster = b }
}

// WithCounterpartyLimit caps per-analysis counterparty intel lookups.
func WithCounterpartyLimit(n int) ServiceOption {
	return func(s *Service) {
		if n >= 0 {
			s.counterpartyLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService wires the analysis pipeline.
func NewService(fetcher chain.Fetcher, engine *risk.Engine, intelAgg *intel.Aggregator, opts ...ServiceOption) *Service {
	s := &Service{
		fetcher:           fetcher,
		engine:            engine,
		intel:             intelAgg,
		counterpartyLimit: DefaultCounterpartyLimit,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnalyzeWallet produces a full report: history fetch, risk scoring,
// graph + clusters, subject and counterparty intel, combined level.
func (s *Service) AnalyzeWallet(ctx context.Context, address string) (*Report, error) {
	address = strings.ToLower(address)
	start := time.Now()

	ctx, span := traces.StartSpan(ctx, "analysis.analyze_wallet", traces.WalletAddr(address))
	defer span.End()

	txs, err := s.fetcher.FetchTransactions(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}

	// Balances only feed the scam-token factor; their absence degrades the
	// score, not the whole analysis.
	balances, err := s.fetcher.FetchTokenBalances(ctx, address)
	if err != nil {
		s.logger.Warn("token balance fetch failed, scoring without balances",
			"address", address, "error", err)
		balances = nil
	}

	now := time.Now().UTC()
	verdict := s.engine.Assess(ctx, address, &risk.Input{
		Transactions: txs,
		Balances:     balances,
		Now:          now,
	})

	g := graph.Build(address, txs)
	clusters, clusterCount := graph.AssignClusters(g)
	metrics.ClustersPerAnalysis.Observe(float64(clusterCount))

	threat := s.intel.Lookup(ctx, address)
	combined, level := risk.Combine(verdict, risk.Level(threat.Tier))
	span.SetAttributes(traces.RiskLevel(string(level)), traces.Tier(string(threat.Tier)))

	report := &Report{
		ID:                  idgen.WithPrefix("rpt_"),
		Address:             validation.ChecksumAddress(address),
		Score:               verdict.Score,
		Breakdown:           verdict.Breakdown,
		Threat:              threat,
		CombinedScore:       combined,
		Level:               level,
		Graph:               g,
		Clusters:            clusters,
		ClusterCount:        clusterCount,
		CounterpartyThreats: s.scanCounterparties(ctx, g),
		GeneratedAt:         now,
	}
	span.SetAttributes(traces.ReportID(report.ID))

	metrics.AnalysesTotal.WithLabelValues(string(level)).Inc()
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())

	if s.store != nil {
		go func() {
			if err := s.store.SaveReport(context.WithoutCancel(ctx), report); err != nil {
				s.logger.Warn("report save failed", "address", address, "error", err)
			}
		}()
	}
	if s.broadcaster != nil {
		s.broadcaster.AnalysisCompleted(report)
		if level == risk.LevelHigh || level == risk.LevelCritical {
			s.broadcaster.ThreatAlert(report)
		}
	}

	s.logger.Info("wallet analyzed",
		"address", address,
		"score", verdict.Score,
		"combined", combined,
		"level", level,
		"clusters", clusterCount,
		"duration_ms", time.Since(start).Milliseconds())

	return report, nil
}

// scanCounterparties looks up intel for the wallet's counterparties and
// returns those flagged high or critical. Bounded both in how many
// counterparties are scanned and how many lookups run at once.
func (s *Service) scanCounterparties(ctx context.Context, g *graph.Graph) map[string]*intel.Verdict {
	if s.counterpartyLimit == 0 {
		return nil
	}

	var targets []string
	for _, n := range g.Nodes {
		if n.Role != graph.RoleCounterparty {
			continue
		}
		targets = append(targets, n.ID)
		if len(targets) >= s.counterpartyLimit {
			break
		}
	}
	if len(targets) == 0 {
		return nil
	}

	var mu sync.Mutex
	flagged := make(map[string]*intel.Verdict)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(counterpartyScanParallelism)
	for _, addr := range targets {
		eg.Go(func() error {
			v := s.intel.Lookup(ctx, addr)
			if v.Tier == intel.TierHigh || v.Tier == intel.TierCritical {
				mu.Lock()
				flagged[addr] = v
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	if len(flagged) == 0 {
		return nil
	}
	return flagged
}

// Graph builds the transaction graph and clusters without scoring.
func (s *Service) Graph(ctx context.Context, address string) (*GraphView, error) {
	address = strings.ToLower(address)

	ctx, span := traces.StartSpan(ctx, "analysis.graph", traces.WalletAddr(address))
	defer span.End()

	txs, err := s.fetcher.FetchTransactions(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}

	g := graph.Build(address, txs)
	clusters, clusterCount := graph.AssignClusters(g)

	return &GraphView{
		Address:      validation.ChecksumAddress(address),
		Graph:        g,
		Clusters:     clusters,
		ClusterCount: clusterCount,
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

// Threat returns the intel verdict for an address without a full analysis.
func (s *Service) Threat(ctx context.Context, address string) *intel.Verdict {
	return s.intel.Lookup(ctx, address)
}

// History lists stored reports for an address, newest first.
func (s *Service) History(ctx context.Context, address string, limit int, cursor *pagination.Cursor) ([]*Report, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListByAddress(ctx, address, limit, cursor)
}

// Assessments lists the recorded scoring audit trail for an address,
// newest first.
func (s *Service) Assessments(ctx context.Context, address string, limit int) ([]*risk.Assessment, error) {
	return s.engine.History(ctx, strings.ToLower(address), limit)
}

// HasStore reports whether report persistence is configured.
func (s *Service) HasStore() bool { return s.store != nil }

// HasAssessmentStore reports whether the engine records an audit trail.
func (s *Service) HasAssessmentStore() bool { return s.engine.HasStore() }
