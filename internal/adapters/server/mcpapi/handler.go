// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/ordna/internal/adapters/server/common"
	"github.com/hylla/ordna/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the engine's
// query and mutation tools.
func NewHandler(cfg Config, engine common.EngineService) (*Handler, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerQueryTools(mcpSrv, engine)
	registerMutationTools(mcpSrv, engine)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "ordna"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerQueryTools registers read-only derived-state tools.
func registerQueryTools(srv *mcpserver.MCPServer, engine common.EngineService) {
	srv.AddTool(
		mcp.NewTool(
			"ordna.get_order",
			mcp.WithDescription("Return the full topological execution order of the dependency graph."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			order, err := engine.Order(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("get_order", map[string]any{"order": order})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"ordna.get_batches",
			mcp.WithDescription("Return parallel execution waves: every node in one wave can run concurrently."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			batches, err := engine.ParallelBatches(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("get_batches", map[string]any{"batches": batches})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"ordna.get_critical_path",
			mcp.WithDescription("Return the zero-slack node set and the projected project finish."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			view, err := engine.CriticalPath(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("get_critical_path", view)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"ordna.get_priority_ranking",
			mcp.WithDescription("Return every unfinished node ranked by priority score, highest first."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ranking, err := engine.Ranking(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("get_priority_ranking", map[string]any{"ranking": ranking})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"ordna.get_node_schedule",
			mcp.WithDescription("Return earliest/latest start and finish plus slack for one node."),
			mcp.WithString("node_id", mcp.Required(), mcp.Description("Node identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			nodeID, err := req.RequireString("node_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			sched, err := engine.NodeSchedule(ctx, nodeID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("get_node_schedule", sched)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"ordna.get_events",
			mcp.WithDescription("Return recent derived-state change events, oldest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of events to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			limit := req.GetInt("limit", 100)
			if limit < 1 {
				return mcp.NewToolResultError("invalid_request: limit must be positive"), nil
			}
			events, err := engine.RecentEvents(ctx, limit)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("get_events", map[string]any{"events": events})
		},
	)
}

// registerMutationTools registers graph mutation tools.
func registerMutationTools(srv *mcpserver.MCPServer, engine common.EngineService) {
	srv.AddTool(
		mcp.NewTool(
			"ordna.submit_node",
			mcp.WithDescription("Register one work item in scheduling scope."),
			mcp.WithString("id", mcp.Description("Node identifier (generated when omitted)")),
			mcp.WithString("title", mcp.Description("Human-readable title")),
			mcp.WithString("duration", mcp.Required(), mcp.Description("Estimated duration, e.g. 4h or 90m")),
			mcp.WithString("status", mcp.Description("Initial status"), mcp.Enum("pending", "active", "blocked", "done")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			duration, err := req.RequireString("duration")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			node, err := engine.SubmitNode(ctx, common.SubmitNodeRequest{
				ID:       req.GetString("id", ""),
				Title:    req.GetString("title", ""),
				Duration: duration,
				Status:   req.GetString("status", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("submit_node", node)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"ordna.update_node",
			mcp.WithDescription("Update one node's duration estimate and/or status."),
			mcp.WithString("node_id", mcp.Required(), mcp.Description("Node identifier")),
			mcp.WithString("duration", mcp.Description("New duration estimate")),
			mcp.WithString("status", mcp.Description("New status"), mcp.Enum("pending", "active", "blocked", "done")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			nodeID, err := req.RequireString("node_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			node, err := engine.UpdateNode(ctx, nodeID, common.UpdateNodeRequest{
				Duration: req.GetString("duration", ""),
				Status:   req.GetString("status", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("update_node", node)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"ordna.submit_edge",
			mcp.WithDescription("Insert one dependency edge; the request is rejected if it would close a cycle."),
			mcp.WithString("from", mcp.Required(), mcp.Description("Prerequisite node id")),
			mcp.WithString("to", mcp.Required(), mcp.Description("Dependent node id")),
			mcp.WithString("kind", mcp.Description("Dependency kind"), mcp.Enum("finish-to-start", "start-to-start", "finish-to-finish", "start-to-finish")),
			mcp.WithString("hardness", mcp.Description("hard edges constrain, soft edges annotate"), mcp.Enum("hard", "soft")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			from, err := req.RequireString("from")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			to, err := req.RequireString("to")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			edge, err := engine.SubmitEdge(ctx, common.SubmitEdgeRequest{
				From:     from,
				To:       to,
				Kind:     req.GetString("kind", ""),
				Hardness: req.GetString("hardness", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("submit_edge", edge)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"ordna.submit_override",
			mcp.WithDescription("Suspend enforcement of one edge without deleting it; the edge still counts for acyclicity."),
			mcp.WithString("edge_id", mcp.Required(), mcp.Description("Edge identifier")),
			mcp.WithString("actor", mcp.Required(), mcp.Description("Who is overriding")),
			mcp.WithString("actor_type", mcp.Description("user, agent, or system"), mcp.Enum("user", "agent", "system")),
			mcp.WithString("reason", mcp.Required(), mcp.Description("Why the edge is suspended")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			edgeID, err := req.RequireString("edge_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			actor, err := req.RequireString("actor")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			reason, err := req.RequireString("reason")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := engine.SubmitOverride(ctx, common.OverrideRequest{
				EdgeID:    edgeID,
				Actor:     actor,
				ActorType: req.GetString("actor_type", ""),
				Reason:    reason,
			}); err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("submit_override", map[string]any{"edge_id": edgeID, "overridden": true})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"ordna.clear_override",
			mcp.WithDescription("Restore enforcement of one overridden edge."),
			mcp.WithString("edge_id", mcp.Required(), mcp.Description("Edge identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			edgeID, err := req.RequireString("edge_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := engine.ClearOverride(ctx, edgeID); err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("clear_override", map[string]any{"edge_id": edgeID, "overridden": false})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"ordna.submit_risk",
			mcp.WithDescription("Record an externally produced risk estimate in [0,1] for one node."),
			mcp.WithString("node_id", mcp.Required(), mcp.Description("Node identifier")),
			mcp.WithNumber("value", mcp.Required(), mcp.Description("Risk estimate in [0,1]")),
			mcp.WithString("observed_at", mcp.Description("RFC3339 observation timestamp (defaults to now)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			nodeID, err := req.RequireString("node_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			value, err := req.RequireFloat("value")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := engine.SubmitRisk(ctx, common.RiskRequest{
				NodeID:     nodeID,
				Value:      value,
				ObservedAt: req.GetString("observed_at", ""),
			}); err != nil {
				return toolResultFromError(err), nil
			}
			return encodeToolResult("submit_risk", map[string]any{"node_id": nodeID, "value": value})
		},
	)
}

// encodeToolResult wraps one JSON tool payload.
func encodeToolResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// toolResultFromError maps engine errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, domain.ErrCycleRejected):
		return mcp.NewToolResultError("cycle_rejected: " + err.Error())
	case errors.Is(err, domain.ErrUnknownNode), errors.Is(err, domain.ErrUnknownEdge):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, domain.ErrDuplicateNode),
		errors.Is(err, domain.ErrDuplicateEdge),
		errors.Is(err, domain.ErrNodeInUse),
		errors.Is(err, domain.ErrInvalidTransition):
		return mcp.NewToolResultError("conflict: " + err.Error())
	case errors.Is(err, domain.ErrEngineHalted):
		return mcp.NewToolResultError("engine_halted: " + err.Error())
	case isValidationError(err):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}

// isValidationError reports whether err is malformed-input rejection.
func isValidationError(err error) bool {
	for _, sentinel := range []error{
		common.ErrInvalidRequest,
		domain.ErrInvalidID,
		domain.ErrInvalidDuration,
		domain.ErrInvalidStatus,
		domain.ErrInvalidKind,
		domain.ErrInvalidHardness,
		domain.ErrInvalidActor,
		domain.ErrInvalidRisk,
		domain.ErrSelfLoop,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
