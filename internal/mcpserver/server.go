package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Walletscope tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("walletscope", "1.0.0")
	client := NewWalletscopeClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolAnalyzeWallet, h.HandleAnalyzeWallet)
	s.AddTool(ToolThreatLookup, h.HandleThreatLookup)
	s.AddTool(ToolThreatBatch, h.HandleThreatBatch)
	s.AddTool(ToolWalletGraph, h.HandleWalletGraph)
	s.AddTool(ToolWalletHistory, h.HandleWalletHistory)

	return s
}
