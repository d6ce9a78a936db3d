package httprequest

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/flowion-ai/flowion/pkg/models"
)

func TestHTTPRequestNode_Execute_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "success", "status": "ok"}`))
	}))
	defer server.Close()

	config := map[string]any{
		"url":    server.URL,
		"method": "GET",
	}

	node, err := NewHTTPRequestNode("test-node", config)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	state := models.ExecutionState{
		ExecutionID: "test-exec",
		WorkflowID:  "test-workflow",
	}

	results, err := node.Execute(t.Context(), state, make(map[string]models.NodeResult))
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	successResult, ok := results[OutputPortSuccess]
	if !ok {
		t.Fatal("Expected success output port")
	}

	if successResult.Status != string(models.NodeStatusSuccess) {
		t.Errorf("Expected success status, got: %s", successResult.Status)
	}

	data := successResult.Data

	if data["status_code"] != 200 {
		t.Errorf("Expected status code 200, got: %v", data["status_code"])
	}

	if jsonData, ok := data["json"].(map[string]any); ok {
		if jsonData["message"] != "success" {
			t.Errorf("Expected message 'success', got: %v", jsonData["message"])
		}
	} else {
		t.Error("Expected JSON data to be parsed")
	}
}

func TestHTTPRequestNode_Execute_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "internal server error"}`))
	}))
	defer server.Close()

	config := map[string]any{
		"url":    server.URL,
		"method": "GET",
	}

	node, err := NewHTTPRequestNode("test-node", config)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	state := models.ExecutionState{
		ExecutionID: "test-exec",
		WorkflowID:  "test-workflow",
	}

	results, err := node.Execute(t.Context(), state, make(map[string]models.NodeResult))
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	errorResult, ok := results[OutputPortError]
	if !ok {
		t.Fatal("Expected error output port")
	}

	if errorResult.Status != string(models.NodeStatusError) {
		t.Errorf("Expected error status, got: %s", errorResult.Status)
	}

	data := errorResult.Data

	if data["success"] != false {
		t.Errorf("Expected success=false, got: %v", data["success"])
	}

	if _, ok := data["error"].(string); !ok {
		t.Error("Expected error message to be string")
	}
}

func TestHTTPRequestNode_Execute_WithTemplating(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/123" {
			t.Errorf("Expected templated path /users/123, got: %s", r.URL.Path)
		}

		if r.Header.Get("Authorization") != "Bearer token-abc" {
			t.Errorf("Expected templated auth header, got: %s", r.Header.Get("Authorization"))
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"templated": true}`))
	}))
	defer server.Close()

	config := map[string]any{
		"url":    server.URL + "/users/{{.variables.user_id}}",
		"method": "GET",
		"headers": map[string]any{
			"Authorization": "Bearer {{.variables.api_token}}",
		},
	}

	node, err := NewHTTPRequestNode("test-node", config)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	state := models.ExecutionState{
		ExecutionID: "test-exec",
		WorkflowID:  "test-workflow",
		Variables: map[string]any{
			"user_id":   "123",
			"api_token": "token-abc",
		},
	}

	results, err := node.Execute(t.Context(), state, make(map[string]models.NodeResult))
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	if _, ok := results[OutputPortSuccess]; !ok {
		t.Fatal("Expected success output port")
	}
}

func TestHTTPRequestNode_Execute_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"recovered": true}`))
	}))
	defer server.Close()

	config := map[string]any{
		"url":            server.URL,
		"method":         "GET",
		"retry_count":    2,
		"retry_delay_ms": 10,
	}

	node, err := NewHTTPRequestNode("test-node", config)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	results, err := node.Execute(t.Context(), models.ExecutionState{ExecutionID: "test-exec"}, nil)
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	if _, ok := results[OutputPortSuccess]; !ok {
		t.Fatal("Expected success output port after retry")
	}

	if calls.Load() != 2 {
		t.Errorf("Expected 2 requests, got: %d", calls.Load())
	}
}

func TestHTTPRequestNode_Execute_ClientErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	config := map[string]any{
		"url":            server.URL,
		"method":         "GET",
		"retry_count":    3,
		"retry_delay_ms": 10,
	}

	node, err := NewHTTPRequestNode("test-node", config)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	results, err := node.Execute(t.Context(), models.ExecutionState{ExecutionID: "test-exec"}, nil)
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	if _, ok := results[OutputPortError]; !ok {
		t.Fatal("Expected error output port for 404 response")
	}

	if calls.Load() != 1 {
		t.Errorf("Expected a single request for a client error, got: %d", calls.Load())
	}
}

func TestNewHTTPRequestNode_ConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{
			name:    "missing URL",
			config:  map[string]any{},
			wantErr: true,
		},
		{
			name:    "valid minimal config",
			config:  map[string]any{"url": "https://example.com"},
			wantErr: false,
		},
		{
			name: "invalid HTTP method",
			config: map[string]any{
				"url":    "https://example.com",
				"method": "INVALID",
			},
			wantErr: true,
		},
		{
			name: "valid complete config",
			config: map[string]any{
				"url":            "https://example.com",
				"method":         "POST",
				"timeout":        30,
				"retry_count":    3,
				"retry_delay_ms": 1000,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPRequestNode("test-node", tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewHTTPRequestNode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPRequestNode_Ports(t *testing.T) {
	node, err := NewHTTPRequestNode("test-node", map[string]any{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	inputPorts := node.InputPorts()

	foundMainInput := false

	for _, port := range inputPorts {
		if port.Name == InputPortMain {
			foundMainInput = true

			break
		}
	}

	if !foundMainInput {
		t.Error("Expected main input port to be defined")
	}

	outputPorts := node.OutputPorts()
	if len(outputPorts) != 2 {
		t.Errorf("Expected 2 output ports, got: %d", len(outputPorts))
	}

	foundPorts := make(map[string]bool)
	for _, port := range outputPorts {
		foundPorts[port.Name] = true
	}

	if !foundPorts[OutputPortSuccess] {
		t.Error("Expected success output port to be defined")
	}

	if !foundPorts[OutputPortError] {
		t.Error("Expected error output port to be defined")
	}
}

func TestHTTPRequestNodeFactory_Schema(t *testing.T) {
	factory := NewHTTPRequestNodeFactory()

	if factory.ID() != models.NodeTypeHTTPRequest {
		t.Errorf("Expected ID '%s', got: %s", models.NodeTypeHTTPRequest, factory.ID())
	}

	schema := factory.Schema()
	if schema == nil {
		t.Fatal("Expected schema to be defined")
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("Expected properties in schema")
	}

	if _, ok := props["url"]; !ok {
		t.Error("Expected url property in schema")
	}

	required, ok := schema["required"].([]string)
	if !ok {
		t.Fatal("Expected required array in schema")
	}

	if len(required) != 1 || required[0] != "url" {
		t.Errorf("Expected required=['url'], got: %v", required)
	}
}
