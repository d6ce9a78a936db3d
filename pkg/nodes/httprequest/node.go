// Package httprequest provides the HTTP request node implementation for workflow graph execution.
package httprequest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
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

var validMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodDelete: true, http.MethodPatch: true, http.MethodHead: true,
	http.MethodOptions: true,
}

// HTTPRequestNode performs an HTTP call with templated URL, headers, and
// body. Network failures, 429s, and 5xx responses retry with exponential
// backoff per the node's retry settings; other 4xx responses fail
// immediately.
type HTTPRequestNode struct {
	id       string
	url      string
	method   string
	headers  map[string]string
	body     string
	settings models.ExecutionSettings
	client   *http.Client
}

// NewHTTPRequestNode creates a new HTTP request node.
func NewHTTPRequestNode(id string, config map[string]any) (*HTTPRequestNode, error) {
	// Parse URL (required)
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, errors.New("missing required field 'url'")
	}

	node := &HTTPRequestNode{
		id:       id,
		url:      url,
		method:   http.MethodGet,
		headers:  make(map[string]string),
		settings: models.ParseExecutionSettings(config),
	}

	// Parse optional fields
	if method, ok := config["method"].(string); ok {
		node.method = strings.ToUpper(method)
	}

	if !validMethods[node.method] {
		return nil, fmt.Errorf("invalid HTTP method: %s", node.method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if strVal, ok := value.(string); ok {
				node.headers[key] = strVal
			}
		}
	}

	if body, ok := config["body"].(string); ok {
		node.body = body
	}

	timeout := defaultTimeoutSeconds
	if v, ok := models.ConfigInt(config, "timeout"); ok && v > 0 {
		timeout = v
	}

	node.client = &http.Client{
		Timeout: time.Duration(timeout) * time.Second,
	}

	return node, nil
}

// ID returns the node ID.
func (n *HTTPRequestNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *HTTPRequestNode) Type() string {
	return models.NodeTypeHTTPRequest
}

// Execute renders the request templates, performs the call, and emits the
// response on the success port.
func (n *HTTPRequestNode) Execute(ctx context.Context, state models.ExecutionState, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	renderedURL, err := template.RenderWithState(n.url, &state)
	if err != nil {
		return n.createErrorResult(fmt.Sprintf("failed to render URL template: %v", err)), nil
	}

	urlStr, ok := renderedURL.(string)
	if !ok {
		return n.createErrorResult("URL template must render to string"), nil
	}

	var renderedBody string

	if n.body != "" {
		renderedBodyAny, err := template.RenderWithState(n.body, &state)
		if err != nil {
			return n.createErrorResult(fmt.Sprintf("failed to render body template: %v", err)), nil
		}

		renderedBody = fmt.Sprintf("%v", renderedBodyAny)
	}

	renderedHeaders := make(map[string]string)

	for key, value := range n.headers {
		renderedValue, err := template.RenderWithState(value, &state)
		if err != nil {
			renderedHeaders[key] = value // Use original value if template fails
		} else if strVal, ok := renderedValue.(string); ok {
			renderedHeaders[key] = strVal
		} else {
			renderedHeaders[key] = value
		}
	}

	result, err := n.perform(ctx, urlStr, renderedBody, renderedHeaders)
	if err != nil {
		return n.createErrorResult(fmt.Sprintf("HTTP request failed: %v", err)), nil
	}

	return map[string]models.NodeResult{
		OutputPortSuccess: {
			NodeID: n.id,
			Data:   result,
			Status: string(models.NodeStatusSuccess),
		},
	}, nil
}

// perform runs the request with retries per the node's settings.
func (n *HTTPRequestNode) perform(ctx context.Context, url, body string, headers map[string]string) (map[string]any, error) {
	var result map[string]any

	operation := func() error {
		var opErr error

		result, opErr = n.performRequest(ctx, url, body, headers)

		return opErr
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(n.settings.RetryDelayMs) * time.Millisecond

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(n.settings.RetryCount)), ctx))
	if err != nil {
		return nil, err
	}

	return result, nil
}

// performRequest executes a single HTTP round trip.
func (n *HTTPRequestNode) performRequest(ctx context.Context, url, body string, headers map[string]string) (map[string]any, error) {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, n.method, url, reqBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	// Default Content-Type when a body is present and none is configured.
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		httpErr := fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))

		// 429 and 5xx are transient; everything else is a caller problem.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, httpErr
		}

		return nil, backoff.Permanent(httpErr)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     resp.Header,
		"body":        string(respBody),
	}

	// Try to parse JSON response
	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		result["json"] = jsonBody
	}

	return result, nil
}

// createErrorResult creates a NodeResult for the error output port.
func (n *HTTPRequestNode) createErrorResult(errorMessage string) map[string]models.NodeResult {
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
func (n *HTTPRequestNode) InputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Main input for triggering the HTTP request",
			},
		},
	}
}

// OutputPorts returns the output ports for the node.
func (n *HTTPRequestNode) OutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortSuccess),
				NodeID:      n.id,
				Name:        OutputPortSuccess,
				Description: "Successful HTTP response data",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"status_code": map[string]any{"type": "number"},
						"headers":     map[string]any{"type": "object"},
						"body":        map[string]any{"type": "string"},
						"json":        map[string]any{"type": "object"},
					},
				},
			},
		},
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortError),
				NodeID:      n.id,
				Name:        OutputPortError,
				Description: "Error information when the HTTP request fails",
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
