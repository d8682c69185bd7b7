package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Walletscope MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAnalyzeWallet = mcp.NewTool("analyze_wallet",
	mcp.WithDescription(
		"Run a full risk analysis on an Ethereum wallet. "+
			"Returns the risk score with a per-factor breakdown, the threat-intel verdict, "+
			"flagged counterparties, and transaction cluster counts. "+
			"Use this when you need a complete picture of a wallet."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The wallet address to analyze (e.g. '0x1234...')")),
)

var ToolThreatLookup = mcp.NewTool("threat_lookup",
	mcp.WithDescription(
		"Look up the threat-intel verdict for a wallet address without running a full analysis. "+
			"Returns the threat tier (low/medium/high/critical), confidence, tags "+
			"(e.g. 'mixer', 'blacklist'), and which intel sources flagged it. "+
			"Fast and cheap; use this for quick screening."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The wallet address to check (e.g. '0x1234...')")),
)

var ToolThreatBatch = mcp.NewTool("threat_batch",
	mcp.WithDescription(
		"Screen up to 100 wallet addresses against threat intelligence in one call. "+
			"Returns a verdict per address. Use this to vet a list of counterparties at once."),
	mcp.WithString("addresses",
		mcp.Required(),
		mcp.Description("Comma-separated wallet addresses (e.g. '0xabc...,0xdef...')")),
)

var ToolWalletGraph = mcp.NewTool("wallet_graph",
	mcp.WithDescription(
		"Build the transaction graph for a wallet and cluster its counterparties. "+
			"Returns nodes, edges with aggregated transfer volume, and cluster assignments. "+
			"Use this to understand how funds flow around a wallet."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The wallet address to graph (e.g. '0x1234...')")),
)

var ToolWalletHistory = mcp.NewTool("wallet_history",
	mcp.WithDescription(
		"List previously generated analysis reports for a wallet, newest first. "+
			"Use this to see how a wallet's risk score has changed over time."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The wallet address (e.g. '0x1234...')")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of reports to return (default 20, max 100)")),
)
