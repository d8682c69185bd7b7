package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *WalletscopeClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *WalletscopeClient) *Handlers {
	return &Handlers{client: client}
}

// HandleAnalyzeWallet runs a full analysis and formats the report.
func (h *Handlers) HandleAnalyzeWallet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	raw, err := h.client.AnalyzeWallet(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Analysis failed: %v", err)), nil
	}

	text, err := formatReport(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse report: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleThreatLookup returns the intel verdict for one address.
func (h *Handlers) HandleThreatLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	raw, err := h.client.ThreatLookup(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Threat lookup failed: %v", err)), nil
	}

	text, err := formatVerdict(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse verdict: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleThreatBatch screens a comma-separated list of addresses.
func (h *Handlers) HandleThreatBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list := req.GetString("addresses", "")
	if list == "" {
		return mcp.NewToolResultError("addresses is required"), nil
	}

	var addresses []string
	for _, a := range strings.Split(list, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addresses = append(addresses, a)
		}
	}
	if len(addresses) == 0 {
		return mcp.NewToolResultError("addresses is required"), nil
	}

	raw, err := h.client.ThreatBatch(ctx, addresses)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Batch lookup failed: %v", err)), nil
	}

	text, err := formatBatch(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse batch result: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleWalletGraph returns the transaction graph summary.
func (h *Handlers) HandleWalletGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	raw, err := h.client.WalletGraph(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Graph request failed: %v", err)), nil
	}

	text, err := formatGraph(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse graph: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleWalletHistory lists stored reports for a wallet.
func (h *Handlers) HandleWalletHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}
	limit := req.GetInt("limit", 20)

	raw, err := h.client.WalletHistory(ctx, address, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("History request failed: %v", err)), nil
	}

	text, err := formatHistory(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse history: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

func formatReport(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Wallet Analysis: %s\n", getString(m, "address"))
	if level := getString(m, "level"); level != "" {
		fmt.Fprintf(&sb, "Risk Level: %s\n", strings.ToUpper(level))
	}
	if score, ok := getFloat(m, "combinedScore"); ok {
		heuristic, _ := getFloat(m, "score")
		fmt.Fprintf(&sb, "Combined Score: %.0f (heuristic %.0f)\n", score, heuristic)
	}
	if n, ok := getFloat(m, "clusterCount"); ok {
		fmt.Fprintf(&sb, "Transaction Clusters: %.0f\n", n)
	}

	// Non-zero risk factors, largest first
	if breakdown, ok := m["breakdown"].(map[string]any); ok {
		type factor struct {
			name   string
			points float64
		}
		var factors []factor
		for name, v := range breakdown {
			if pts, ok := v.(float64); ok && pts > 0 {
				factors = append(factors, factor{name, pts})
			}
		}
		if len(factors) > 0 {
			sort.Slice(factors, func(i, j int) bool { return factors[i].points > factors[j].points })
			sb.WriteString("\nRisk Factors:\n")
			for _, f := range factors {
				fmt.Fprintf(&sb, "  %s: +%.0f\n", f.name, f.points)
			}
		}
	}

	if threat, ok := m["threat"].(map[string]any); ok {
		sb.WriteString("\nThreat Intel:\n")
		writeVerdictLines(&sb, "  ", threat)
	}

	if cps, ok := m["counterpartyThreats"].(map[string]any); ok && len(cps) > 0 {
		fmt.Fprintf(&sb, "\nFlagged Counterparties (%d):\n", len(cps))
		addrs := make([]string, 0, len(cps))
		for addr := range cps {
			addrs = append(addrs, addr)
		}
		sort.Strings(addrs)
		for _, addr := range addrs {
			if v, ok := cps[addr].(map[string]any); ok {
				fmt.Fprintf(&sb, "  %s: %s %s\n", addr, getString(v, "tier"), strings.Join(getStrings(v, "tags"), ", "))
			}
		}
	}

	return sb.String(), nil
}

func formatVerdict(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Threat Verdict: %s\n", getString(m, "address"))
	writeVerdictLines(&sb, "  ", m)
	return sb.String(), nil
}

func writeVerdictLines(sb *strings.Builder, indent string, v map[string]any) {
	fmt.Fprintf(sb, "%sTier: %s\n", indent, getString(v, "tier"))
	if conf, ok := getFloat(v, "confidence"); ok {
		fmt.Fprintf(sb, "%sConfidence: %.0f%%\n", indent, conf*100)
	}
	if tags := getStrings(v, "tags"); len(tags) > 0 {
		fmt.Fprintf(sb, "%sTags: %s\n", indent, strings.Join(tags, ", "))
	}
	if sources := getStrings(v, "sources"); len(sources) > 0 {
		fmt.Fprintf(sb, "%sSources: %s\n", indent, strings.Join(sources, ", "))
	}
}

func formatBatch(raw json.RawMessage) (string, error) {
	var resp struct {
		Verdicts []map[string]any `json:"verdicts"`
		Invalid  []string         `json:"invalid"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Verdicts) == 0 && len(resp.Invalid) == 0 {
		return "No addresses screened.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Screened %d address(es):\n\n", len(resp.Verdicts))
	for _, v := range resp.Verdicts {
		tier := getString(v, "tier")
		line := fmt.Sprintf("%s: %s", getString(v, "address"), tier)
		if tags := getStrings(v, "tags"); len(tags) > 0 {
			line += " (" + strings.Join(tags, ", ") + ")"
		}
		sb.WriteString(line + "\n")
	}
	if len(resp.Invalid) > 0 {
		fmt.Fprintf(&sb, "\nInvalid addresses skipped: %s\n", strings.Join(resp.Invalid, ", "))
	}
	return sb.String(), nil
}

func formatGraph(raw json.RawMessage) (string, error) {
	var resp struct {
		Address string `json:"address"`
		Graph   *struct {
			Nodes []map[string]any `json:"nodes"`
			Edges []map[string]any `json:"edges"`
		} `json:"graph"`
		ClusterCount int `json:"clusterCount"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Transaction Graph: %s\n", resp.Address)
	if resp.Graph == nil || len(resp.Graph.Nodes) == 0 {
		sb.WriteString("No transaction history found.\n")
		return sb.String(), nil
	}

	fmt.Fprintf(&sb, "Nodes: %d | Edges: %d | Clusters: %d\n\n",
		len(resp.Graph.Nodes), len(resp.Graph.Edges), resp.ClusterCount)

	// Top counterparties by volume
	nodes := resp.Graph.Nodes
	sort.Slice(nodes, func(i, j int) bool {
		vi, _ := getFloat(nodes[i], "totalVolume")
		vj, _ := getFloat(nodes[j], "totalVolume")
		return vi > vj
	})
	limit := 10
	if len(nodes) < limit {
		limit = len(nodes)
	}
	sb.WriteString("Top counterparties by volume:\n")
	for _, n := range nodes[:limit] {
		vol, _ := getFloat(n, "totalVolume")
		txs, _ := getFloat(n, "txCount")
		cluster, _ := getFloat(n, "cluster")
		fmt.Fprintf(&sb, "  %s  volume=%.4f txs=%.0f cluster=%.0f\n", getString(n, "id"), vol, txs, cluster)
	}
	return sb.String(), nil
}

func formatHistory(raw json.RawMessage) (string, error) {
	var resp struct {
		Address string           `json:"address"`
		Reports []map[string]any `json:"reports"`
		HasMore bool             `json:"hasMore"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Reports) == 0 {
		return fmt.Sprintf("No stored reports for %s.", resp.Address), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Report history for %s (%d report(s)):\n\n", resp.Address, len(resp.Reports))
	for i, r := range resp.Reports {
		score, _ := getFloat(r, "combinedScore")
		fmt.Fprintf(&sb, "%d. %s | score %.0f | %s | %s\n",
			i+1, getString(r, "generatedAt"), score, getString(r, "level"), getString(r, "id"))
	}
	if resp.HasMore {
		sb.WriteString("\nOlder reports exist; request again with a higher limit.\n")
	}
	return sb.String(), nil
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// getStrings extracts a string slice from a map.
func getStrings(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
