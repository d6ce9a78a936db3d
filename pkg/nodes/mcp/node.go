// Package mcp provides the MCP tool call node implementation for workflow graph execution.
package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/template"
)

const (
	OutputPortSuccess = "success"
	OutputPortError   = "error"
	InputPortMain     = "main"

	defaultTimeoutSeconds = 30
)

// MCPNode calls a tool on an MCP server over HTTP using JSON-RPC 2.0
// tools/call requests. Transient transport failures are retried with
// exponential backoff according to the node's execution settings.
type MCPNode struct {
	id        string
	serverURL string
	tool      string
	arguments map[string]any
	settings  models.ExecutionSettings
	client    *http.Client
	requestID atomic.Int64
}

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

// rpcParams carries the tools/call parameters.
type rpcParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("JSON-RPC %d: %s", e.Code, e.Message)
}

// NewMCPNode creates a new MCP tool call node.
func NewMCPNode(id string, config map[string]any) (*MCPNode, error) {
	// Parse server URL (required)
	serverURL, ok := config["server_url"].(string)
	if !ok || serverURL == "" {
		return nil, errors.New("missing required field 'server_url'")
	}

	// Parse tool name (required)
	tool, ok := config["tool"].(string)
	if !ok || tool == "" {
		return nil, errors.New("missing required field 'tool'")
	}

	// Parse arguments (optional)
	arguments := map[string]any{}
	if args, ok := config["arguments"].(map[string]any); ok {
		arguments = args
	}

	timeout := defaultTimeoutSeconds
	if v, ok := models.ConfigInt(config, "timeout"); ok && v > 0 {
		timeout = v
	}

	return &MCPNode{
		id:        id,
		serverURL: serverURL,
		tool:      tool,
		arguments: arguments,
		settings:  models.ParseExecutionSettings(config),
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}, nil
}

// ID returns the node ID.
func (n *MCPNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *MCPNode) Type() string {
	return models.NodeTypeMCP
}

// Execute renders the arguments, performs the tools/call request, and emits
// the tool result on the success port.
func (n *MCPNode) Execute(ctx context.Context, state models.ExecutionState, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	args, err := renderArguments(n.arguments, &state)
	if err != nil {
		return n.createErrorResult(fmt.Sprintf("failed to render tool arguments: %v", err)), nil
	}

	result, err := n.callTool(ctx, args)
	if err != nil {
		return n.createErrorResult(fmt.Sprintf("MCP tool '%s' failed: %v", n.tool, err)), nil
	}

	// MCP marks tool-level failures inside the result envelope.
	if isError, ok := result["isError"].(bool); ok && isError {
		return n.createErrorResult(fmt.Sprintf("MCP tool '%s' returned an error: %s", n.tool, contentText(result))), nil
	}

	return map[string]models.NodeResult{
		OutputPortSuccess: {
			NodeID: n.id,
			Data:   result,
			Status: string(models.NodeStatusSuccess),
		},
	}, nil
}

// callTool performs the JSON-RPC request with retries. Protocol-level errors
// are permanent; transport errors retry with exponential backoff.
func (n *MCPNode) callTool(ctx context.Context, args map[string]any) (map[string]any, error) {
	request := rpcRequest{
		JSONRPC: "2.0",
		ID:      n.requestID.Add(1),
		Method:  "tools/call",
		Params: rpcParams{
			Name:      n.tool,
			Arguments: args,
		},
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var result map[string]any

	operation := func() error {
		var opErr error

		result, opErr = n.performRequest(ctx, payload)

		return opErr
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(n.settings.RetryDelayMs) * time.Millisecond

	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(n.settings.RetryCount)), ctx))
	if err != nil {
		return nil, err
	}

	return result, nil
}

// performRequest executes a single tools/call round trip.
func (n *MCPNode) performRequest(ctx context.Context, payload []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.serverURL, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, backoff.Permanent(fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)))
	}

	var response rpcResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}

	if response.Error != nil {
		return nil, backoff.Permanent(response.Error)
	}

	var result any
	if len(response.Result) > 0 {
		if err := json.Unmarshal(response.Result, &result); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to decode result: %w", err))
		}
	}

	if resultMap, ok := result.(map[string]any); ok {
		return resultMap, nil
	}

	return map[string]any{"result": result}, nil
}

// renderArguments renders string argument values against the execution state.
// Non-string values pass through untouched.
func renderArguments(arguments map[string]any, state *models.ExecutionState) (map[string]any, error) {
	rendered := make(map[string]any, len(arguments))

	for key, value := range arguments {
		strValue, ok := value.(string)
		if !ok {
			rendered[key] = value

			continue
		}

		result, err := template.RenderWithState(strValue, state)
		if err != nil {
			return nil, fmt.Errorf("argument '%s': %w", key, err)
		}

		rendered[key] = result
	}

	return rendered, nil
}

// contentText extracts the first text block from an MCP result envelope.
func contentText(result map[string]any) string {
	content, ok := result["content"].([]any)
	if !ok {
		return ""
	}

	for _, itemAny := range content {
		item, ok := itemAny.(map[string]any)
		if !ok {
			continue
		}

		if text, ok := item["text"].(string); ok {
			return text
		}
	}

	return ""
}

// createErrorResult creates a NodeResult for the error output port.
func (n *MCPNode) createErrorResult(errorMessage string) map[string]models.NodeResult {
	return map[string]models.NodeResult{
		OutputPortError: {
			NodeID: n.id,
			Data: map[string]any{
				"error":   errorMessage,
				"success": false,
			},
			Status: string(models.NodeStatusError),
		},
	}
}

// InputPorts returns the input ports for the node.
func (n *MCPNode) InputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Main input for triggering the MCP tool call",
			},
		},
	}
}

// OutputPorts returns the output ports for the node.
func (n *MCPNode) OutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortSuccess),
				NodeID:      n.id,
				Name:        OutputPortSuccess,
				Description: "Result envelope returned by the MCP tool",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"content": map[string]any{"type": "array"},
						"isError": map[string]any{"type": "boolean"},
					},
				},
			},
		},
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortError),
				NodeID:      n.id,
				Name:        OutputPortError,
				Description: "Error information when the MCP call fails",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error":   map[string]any{"type": "string"},
						"success": map[string]any{"type": "boolean"},
					},
				},
			},
		},
	}
}
