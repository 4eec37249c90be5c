// Package telemetry holds the server's logging hooks, Prometheus metrics and
// Rollbar error reporting.
package telemetry

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// BuildHooks logs session lifecycle, tool discovery and tool outcomes.
// Protocol errors are also sent to the reporter, which may be nil.
func BuildHooks(logger zerolog.Logger, reporter *Reporter) *server.Hooks {
	hooks := &server.Hooks{}

	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		logger.Info().Str("session_id", session.SessionID()).Msg("session registered")
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		logger.Info().Str("session_id", session.SessionID()).Msg("session unregistered")
	})

	hooks.AddAfterListTools(func(ctx context.Context, id any, req *mcp.ListToolsRequest, res *mcp.ListToolsResult) {
		logger.Debug().Int("tools", len(res.Tools)).Msg("list_tools served")
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, res *mcp.CallToolResult) {
		evt := logger.Info()
		if res != nil && res.IsError {
			evt = logger.Warn()
			if len(res.Content) > 0 {
				if tc, ok := mcp.AsTextContent(res.Content[0]); ok {
					evt = evt.Str("error", tc.Text)
				}
			}
		}
		evt.Str("tool", req.Params.Name).Msg("tool call served")
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		logger.Error().Str("method", string(method)).Err(err).Msg("request error")
		if !errors.Is(err, context.Canceled) {
			reporter.Error(err, map[string]any{"method": string(method)})
		}
	})

	return hooks
}
