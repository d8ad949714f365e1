package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/protonlab/scantime/core"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/schema"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	mgr     contract.CacheManager
	pool    *core.ProviderPool
}

// sessionContext shares doserate providers across the calls of one server
// and keeps the plan header off stdout, which carries the protocol.
func (h *toolHandler) sessionContext(ctx context.Context) context.Context {
	return core.WithProviderPool(core.WithSuppressHeader(ctx), h.pool)
}

// timelineResult is the payload of compute_plan_timeline.
type timelineResult struct {
	View          schema.View  `json:"view"`
	TotalScanTime float64      `json:"total_scan_time"`
	Ports         any          `json:"ports,omitempty"`
	Layers        any          `json:"layers,omitempty"`
	Plan          *schema.Plan `json:"plan,omitempty"`
}

func (h *toolHandler) handleComputePlanTimeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := h.baseCfg.Clone()

	planPath, failure := planPathArg(request)
	if failure != nil {
		return failure, nil
	}
	cfg.PlanPath = planPath

	if e := request.GetString("spot_encoding", ""); e != "" {
		if _, ok := schema.ValidSpotEncodings[schema.SpotEncoding(e)]; !ok {
			return mcp.NewToolResultError(fmt.Sprintf("invalid spot_encoding %q", e)), nil
		}
		cfg.SpotEncoding = schema.SpotEncoding(e)
	}
	view := schema.PlanView
	if v := request.GetString("view", ""); v != "" {
		if _, ok := schema.ValidViews[schema.View(v)]; !ok {
			return mcp.NewToolResultError(fmt.Sprintf("invalid view %q", v)), nil
		}
		view = schema.View(v)
	}
	if b := request.GetString("beam", ""); b != "" {
		cfg.BeamFilter = b
	}

	plan, _, err := core.GetPlanResults(h.sessionContext(ctx), cfg, h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("timeline failed: %v", err)), nil
	}

	result := timelineResult{View: view, TotalScanTime: plan.TotalScanTime}
	switch view {
	case schema.LayersView:
		result.Layers = schema.FlattenLayers(plan)
	case schema.SegmentsView:
		result.Plan = plan
	default:
		result.Ports = schema.SummarizePorts(plan)
	}

	return jsonResult(result)
}

// planPathArg returns the absolute plan_path argument, or the tool error to report.
func planPathArg(request mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	planPath := request.GetString("plan_path", "")
	if planPath == "" {
		return "", mcp.NewToolResultError("plan_path is required")
	}
	absPath, err := filepath.Abs(planPath)
	if err != nil {
		return "", mcp.NewToolResultError(fmt.Sprintf("invalid plan_path: %v", err))
	}
	if info, err := os.Stat(absPath); err != nil || info.IsDir() {
		return "", mcp.NewToolResultError(fmt.Sprintf("cannot access plan file %s", absPath))
	}
	return absPath, nil
}

func (h *toolHandler) handleCheckDeliveryLog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := h.baseCfg.Clone()

	planPath, failure := planPathArg(request)
	if failure != nil {
		return failure, nil
	}
	cfg.PlanPath = planPath

	logPaths, err := request.RequireStringSlice("log_paths")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(logPaths) == 0 {
		return mcp.NewToolResultError("log_paths needs at least one log"), nil
	}
	if b := request.GetString("beam", ""); b != "" {
		cfg.BeamFilter = b
	}

	report, err := core.GetCheckResults(h.sessionContext(ctx), cfg, logPaths)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("check failed: %v", err)), nil
	}
	return jsonResult(report)
}

// jsonResult renders v as indented JSON text, or as a tool error when it cannot be encoded.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

func (h *toolHandler) handleLookupDoserate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	energy, err := request.RequireFloat("energy")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if energy <= 0 {
		return mcp.NewToolResultError("energy must be positive"), nil
	}

	results := core.LookupDoseRates(h.sessionContext(ctx), h.baseCfg, request.GetString("machine", ""), []float64{energy})
	return jsonResult(results[0])
}
