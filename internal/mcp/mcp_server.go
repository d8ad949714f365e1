// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/protonlab/scantime/core"
	"github.com/protonlab/scantime/internal/contract"
)

// NewMCPServer initializes and configures the scantime MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, mgr contract.CacheManager) *server.MCPServer {
	s := server.NewMCPServer(
		"Scantime Timeline Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		mgr:     mgr,
		pool:    core.NewProviderPool(),
	}

	// --- 1. Tool: compute_plan_timeline ---
	s.AddTool(mcp.NewTool("compute_plan_timeline",
		mcp.WithDescription("Reconstruct the delivery timeline of an ion beam line-scanning plan file."),
		mcp.WithString("plan_path", mcp.Description("Path to the RT Ion Plan file."), mcp.Required()),
		mcp.WithString("spot_encoding", mcp.Description("Byte layout of the private spot maps. Defaults to the configured encoding."), mcp.Enum("shi-packed", "float32")),
		mcp.WithString("view", mcp.Description("Projection to return: per-port totals, per-layer rows, or the full timeline. Defaults to 'plan'."), mcp.Enum("plan", "layers", "segments")),
		mcp.WithString("beam", mcp.Description("Comma separated beam numbers or names to restrict the timeline to.")),
	), h.handleComputePlanTimeline)

	// --- 2. Tool: lookup_doserate ---
	s.AddTool(mcp.NewTool("lookup_doserate",
		mcp.WithDescription("Look up the maximum dose rate allowed at a beam energy."),
		mcp.WithNumber("energy", mcp.Description("Beam energy in MeV."), mcp.Required()),
		mcp.WithString("machine", mcp.Description("Treatment machine whose table is used. Defaults to the global table.")),
	), h.handleLookupDoserate)

	// --- 3. Tool: check_delivery_log ---
	s.AddTool(mcp.NewTool("check_delivery_log",
		mcp.WithDescription("Compare planned spot positions with .ptn delivery logs, one log per layer in delivery order."),
		mcp.WithString("plan_path", mcp.Description("Path to the RT Ion Plan file."), mcp.Required()),
		mcp.WithArray("log_paths", mcp.Description("Paths to the .ptn logs, in layer order."), mcp.WithStringItems(), mcp.Required()),
		mcp.WithString("beam", mcp.Description("Comma separated beam numbers or names to restrict the check to.")),
	), h.handleCheckDeliveryLog)

	return s
}

// StartMCPServer starts the scantime MCP server over stdio.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, mgr contract.CacheManager) error {
	s := NewMCPServer(baseCfg, mgr)
	return server.ServeStdio(s)
}
