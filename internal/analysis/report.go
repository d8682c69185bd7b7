// Package analysis orchestrates a full wallet investigation: transaction
// fetch, risk scoring, graph construction, clustering, and threat-intel
// enrichment, folded into a single report.
package analysis

import (
	"time"

	"github.com/mbd888/walletscope/internal/graph"
	"github.com/mbd888/walletscope/internal/intel"
	"github.com/mbd888/walletscope/internal/risk"
)

// Report is the complete analysis of one wallet at one point in time.
// Address is rendered in EIP-55 checksummed form; graph node IDs and
// counterparty keys stay lowercase, the canonical form for matching.
type Report struct {
	ID      string `json:"id"`
	Address string `json:"address"`

	// Heuristic scoring.
	Score     float64        `json:"score"`
	Breakdown risk.Breakdown `json:"breakdown"`

	// External intelligence and the combined result.
	Threat        *intel.Verdict `json:"threat"`
	CombinedScore float64        `json:"combinedScore"`
	Level         risk.Level     `json:"level"`

	// Transaction graph.
	Graph        *graph.Graph     `json:"graph,omitempty"`
	Clusters     graph.Assignment `json:"clusters,omitempty"`
	ClusterCount int              `json:"clusterCount"`

	// Counterparties whose own intel verdict reached high or critical.
	CounterpartyThreats map[string]*intel.Verdict `json:"counterpartyThreats,omitempty"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// GraphView is the graph-only projection served by the /graph endpoint.
type GraphView struct {
	Address      string           `json:"address"`
	Graph        *graph.Graph     `json:"graph"`
	Clusters     graph.Assignment `json:"clusters"`
	ClusterCount int              `json:"clusterCount"`
	GeneratedAt  time.Time        `json:"generatedAt"`
}
