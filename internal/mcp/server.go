package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kuitang/linknotes/internal/logutil"
	"github.com/kuitang/linknotes/internal/notes"
	"github.com/kuitang/linknotes/internal/obs"
)

// Server wraps the MCP server with notes handling
type Server struct {
	mcpServer   *mcp.Server
	handler     *Handler
	httpHandler http.Handler
}

const (
	mcpDebugBodyLogLimitBytes = 8 * 1024

	// maxMCPBodyBytes bounds one JSON-RPC request: a full note plus envelope.
	maxMCPBodyBytes = notes.MaxContentBytes*2 + 64*1024

	serverName    = "linknotes"
	serverVersion = "1.0.0"
)

type mcpResponseLogger struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        []byte
	truncated   bool
}

func newMCPResponseLogger(w http.ResponseWriter) *mcpResponseLogger {
	return &mcpResponseLogger{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           make([]byte, 0, 512),
	}
}

func (w *mcpResponseLogger) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.statusCode = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *mcpResponseLogger) Write(p []byte) (int, error) {
	w.wroteHeader = true
	if len(w.body) < mcpDebugBodyLogLimitBytes {
		remaining := mcpDebugBodyLogLimitBytes - len(w.body)
		if len(p) <= remaining {
			w.body = append(w.body, p...)
		} else {
			w.body = append(w.body, p[:remaining]...)
			w.truncated = true
		}
	} else {
		w.truncated = true
	}
	return w.ResponseWriter.Write(p)
}

func (w *mcpResponseLogger) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func formatBodyForLog(b []byte, truncated bool) string {
	if len(b) == 0 {
		return ""
	}
	textBytes := b
	if len(textBytes) > mcpDebugBodyLogLimitBytes {
		textBytes = textBytes[:mcpDebugBodyLogLimitBytes]
		truncated = true
	}
	text := string(textBytes)
	if truncated {
		return text + " [truncated]"
	}
	return text
}

// formatMCPHeadersForLog renders headers as sorted key=value pairs with
// credentials and session identifiers redacted.
func formatMCPHeadersForLog(h http.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.Join(h.Values(k), ",")
		lower := strings.ToLower(k)
		if logutil.IsSensitiveLogField(k) || lower == "cookie" || strings.Contains(lower, "session") {
			v = "[REDACTED]"
		} else if !isASCII(v) {
			v = fmt.Sprintf("%q", v)
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}

// isASCII reports whether s is non-blank printable ASCII.
func isASCII(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// NewServer creates a new MCP server exposing the notes tools.
func NewServer(notesSvc *notes.Service) *Server {
	handler := NewHandler(notesSvc)

	// Create MCP server with metadata
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		},
		nil, // Use default options
	)

	for _, tool := range ToolDefinitions() {
		mcp.AddTool(mcpServer, tool, handler.createToolHandler(tool.Name))
	}
	registerPrompts(mcpServer)

	// Create Streamable HTTP handler (MCP Spec 2025-03-26)
	httpHandler := mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			// JSONResponse: true returns application/json responses
			// This is simpler for clients that don't support SSE streaming
			JSONResponse: true,

			// Stateless: every tool call is a complete request against the
			// store, so no session state needs to persist across requests.
			// With stateless mode, initialize/initialized handshake is skipped.
			Stateless: true,
		},
	)

	return &Server{
		mcpServer:   mcpServer,
		handler:     handler,
		httpHandler: httpHandler,
	}
}

// RunStdio serves the same tools over stdin/stdout until ctx ends or the
// client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	ctx = obs.WithTransport(ctx, "stdio")
	obs.From(ctx).With("pkg", "mcp").Info("mcp_stdio_started")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying SDK server, for in-process transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

func writeJSONRPCError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"jsonrpc":"2.0","error":{"code":-32603,"message":%q},"id":null}`, message)
}

// ServeHTTP implements http.Handler for Streamable HTTP transport
// Per MCP spec 2025-03-26: https://modelcontextprotocol.io/specification/2025-03-26/basic/transports
//
// The server runs stateless with JSON responses, so only POST (client
// messages) and DELETE (session teardown) reach the SDK handler; GET, which
// would open a server-to-client SSE stream, answers 405.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := obs.WithTransport(r.Context(), "mcp")
	if sid := r.Header.Get("Mcp-Session-Id"); sid != "" {
		ctx = obs.WithCorrelation(ctx, obs.Correlation{MCPSessionID: sid})
	}
	r = r.WithContext(ctx)
	logger := obs.From(ctx).With("pkg", "mcp")

	// Set CORS headers for all requests
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Mcp-Session-Id, Last-Event-ID")
	w.Header().Set("Access-Control-Allow-Methods", "POST, DELETE, OPTIONS")

	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost, http.MethodDelete:
	default:
		w.Header().Set("Allow", "POST, DELETE, OPTIONS")
		writeJSONRPCError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var reqBody []byte
	if r.Body != nil && r.Method == http.MethodPost {
		var err error
		reqBody, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxMCPBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				logger.Warn("mcp_request_too_large", "limit_bytes", maxMCPBodyBytes)
				writeJSONRPCError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			logger.Error("mcp_request_body_read_failed", "error", err)
			writeJSONRPCError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	logger.Debug("mcp_request",
		"method", r.Method,
		"remote", r.RemoteAddr,
		"headers", formatMCPHeadersForLog(r.Header),
		"body", formatBodyForLog(reqBody, false),
	)

	respLogger := newMCPResponseLogger(w)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("mcp_handler_panic", "panic", fmt.Sprint(rec))
				if !respLogger.wroteHeader {
					writeJSONRPCError(respLogger, http.StatusInternalServerError, "Internal server error")
				}
			}
		}()
		s.httpHandler.ServeHTTP(respLogger, r)
	}()

	if !respLogger.wroteHeader {
		logger.Error("mcp_handler_no_response", "method", r.Method)
		writeJSONRPCError(respLogger, http.StatusInternalServerError, "MCP handler returned without writing response")
		return
	}

	logger.Debug("mcp_response",
		"status", respLogger.statusCode,
		"content_type", respLogger.Header().Get("Content-Type"),
		"body", formatBodyForLog(respLogger.body, respLogger.truncated),
	)

	if respLogger.statusCode >= http.StatusBadRequest {
		logger.Error("mcp_request_failed",
			"method", r.Method,
			"status", respLogger.statusCode,
			"response", formatBodyForLog(respLogger.body, respLogger.truncated),
		)
	}
}
