package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const methodToolsCall = "tools/call"

// requestIDKey is the context key for the per-request identifier.
type requestIDKey struct{}

// WithRequestID returns a context carrying the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID returns the request ID stored in ctx, or "" when none is set.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// MCPLoggingMiddleware creates MCP protocol-level middleware that logs every
// tools/call request with a generated request ID, the tool name, the call
// duration, and the outcome. Other protocol methods pass through untouched.
//
// The request ID is placed on the context so tool handlers can include it in
// their own log lines.
func MCPLoggingMiddleware(logger *slog.Logger) mcp.Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if method != methodToolsCall {
				return next(ctx, method, req)
			}

			requestID := uuid.NewString()
			ctx = WithRequestID(ctx, requestID)

			toolName, err := extractToolName(req)
			if err != nil {
				logger.Warn("tool call rejected",
					"request_id", requestID,
					"error", err)
				return errorCallResult(fmt.Sprintf("invalid request: %v", err)), nil
			}

			logger.Debug("tool call started",
				"request_id", requestID,
				"tool", toolName)

			start := time.Now()
			result, callErr := next(ctx, method, req)
			elapsed := time.Since(start)

			switch {
			case callErr != nil:
				logger.Error("tool call failed",
					"request_id", requestID,
					"tool", toolName,
					"duration_ms", elapsed.Milliseconds(),
					"error", callErr)
			case isErrorResult(result):
				logger.Warn("tool call returned error result",
					"request_id", requestID,
					"tool", toolName,
					"duration_ms", elapsed.Milliseconds())
			default:
				logger.Info("tool call completed",
					"request_id", requestID,
					"tool", toolName,
					"duration_ms", elapsed.Milliseconds())
			}

			return result, callErr
		}
	}
}

// extractToolName extracts the tool name from a tools/call request.
func extractToolName(req mcp.Request) (string, error) {
	params := req.GetParams()
	if params == nil {
		return "", fmt.Errorf("missing params")
	}

	callParams, ok := params.(*mcp.CallToolParamsRaw)
	if !ok {
		return "", fmt.Errorf("unexpected params type: %T", params)
	}
	if callParams == nil {
		return "", fmt.Errorf("missing params")
	}
	if callParams.Name == "" {
		return "", fmt.Errorf("missing tool name")
	}

	return callParams.Name, nil
}

// isErrorResult reports whether result is a tool call result flagged IsError.
func isErrorResult(result mcp.Result) bool {
	ctr, ok := result.(*mcp.CallToolResult)
	return ok && ctr != nil && ctr.IsError
}

// errorCallResult creates a tool call result carrying an error message.
func errorCallResult(msg string) mcp.Result {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
