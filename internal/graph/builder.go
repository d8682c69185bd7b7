// Package graph folds a wallet's transfer history into a node/edge model
// and partitions it into connectivity clusters for visualization.
package graph

import (
	"strings"
	"time"

	"github.com/mbd888/walletscope/internal/chain"
)

// Role classifies a node relative to the analyzed wallet.
type Role string

const (
	RoleSubject      Role = "subject"
	RoleCounterparty Role = "counterparty"
)

// ClusterUnassigned marks a node that has not been through AssignClusters.
const ClusterUnassigned = -1

// Node is one wallet in the transaction graph.
type Node struct {
	ID          string              `json:"id"` // wallet address, lowercased
	Role        Role                `json:"role"`
	TotalVolume float64             `json:"totalVolume"`
	TxCount     int                 `json:"txCount"`
	Tokens      map[string]struct{} `json:"-"`
	Cluster     int                 `json:"cluster"`
}

// TokenList returns the observed token symbols in deterministic order
// (first-seen order is not retained; callers sort for display).
func (n *Node) TokenList() []string {
	tokens := make([]string, 0, len(n.Tokens))
	for t := range n.Tokens {
		tokens = append(tokens, t)
	}
	return tokens
}

// Edge is one transfer between two wallets. Edges are never merged: a
// pair with many transfers carries one edge per transaction.
type Edge struct {
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Value     float64   `json:"value"`
	Token     string    `json:"token"`
	Timestamp time.Time `json:"timestamp"`
	TxHash    string    `json:"txHash"`
}

// Graph is the node/edge model for one analyzed wallet. Nodes is ordered:
// subject first, then counterparties in first-seen order. Cluster
// assignment depends on this order being stable.
type Graph struct {
	Nodes []*Node `json:"nodes"`
	Edges []Edge  `json:"edges"`

	index map[string]*Node
}

// NodeByID returns the node for an address, or nil.
func (g *Graph) NodeByID(id string) *Node {
	return g.index[strings.ToLower(id)]
}

// BuildOption adjusts graph construction.
type BuildOption func(*buildConfig)

type buildConfig struct {
	minEdgeValue float64
}

// WithMinEdgeValue drops transfers below v from the graph. Zero (the
// default) keeps dust edges, which matter for spam-pattern analysis.
func WithMinEdgeValue(v float64) BuildOption {
	return func(c *buildConfig) { c.minEdgeValue = v }
}

// Build constructs the graph for a subject wallet: one subject node, one
// node per distinct counterparty, one edge per transaction. Incoming
// transfers point counterparty→subject, outgoing subject→counterparty.
func Build(subject string, txs []chain.Transaction, opts ...BuildOption) *Graph {
	subject = strings.ToLower(subject)

	var cfg buildConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	g := &Graph{index: make(map[string]*Node)}
	g.addNode(subject, RoleSubject)

	for i := range txs {
		tx := &txs[i]

		if tx.Amount < cfg.minEdgeValue {
			continue
		}

		counterparty := resolveCounterparty(subject, tx)
		if counterparty == "" {
			continue // self-transfer or unresolvable, no edge to draw
		}

		node := g.index[counterparty]
		if node == nil {
			node = g.addNode(counterparty, RoleCounterparty)
		}
		node.TotalVolume += tx.Amount
		node.TxCount++
		node.Tokens[tx.Token] = struct{}{}

		sub := g.index[subject]
		sub.TotalVolume += tx.Amount
		sub.TxCount++
		sub.Tokens[tx.Token] = struct{}{}

		source, target := subject, counterparty
		if tx.Direction == chain.DirectionIncoming {
			source, target = counterparty, subject
		}
		g.Edges = append(g.Edges, Edge{
			Source:    source,
			Target:    target,
			Value:     tx.Amount,
			Token:     tx.Token,
			Timestamp: tx.Timestamp,
			TxHash:    tx.Hash,
		})
	}

	return g
}

func (g *Graph) addNode(id string, role Role) *Node {
	node := &Node{
		ID:      id,
		Role:    role,
		Tokens:  make(map[string]struct{}),
		Cluster: ClusterUnassigned,
	}
	g.Nodes = append(g.Nodes, node)
	g.index[id] = node
	return node
}

// resolveCounterparty returns the other side of a transfer, preferring the
// explicit counterparty field and falling back to from/to. The subject
// itself and empty values resolve to "".
func resolveCounterparty(subject string, tx *chain.Transaction) string {
	c := strings.ToLower(tx.Counterparty)
	if c == "" {
		if tx.Direction == chain.DirectionIncoming {
			c = strings.ToLower(tx.From)
		} else {
			c = strings.ToLower(tx.To)
		}
	}
	if c == subject {
		return ""
	}
	return c
}
