package llmagent

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/flowion-ai/flowion/pkg/models"
)

func TestLLMAgentNode_Execute_Success(t *testing.T) {
	var captured chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}

		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Unexpected authorization header: %s", r.Header.Get("Authorization"))
		}

		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "billing"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 1, "total_tokens": 13}
		}`))
	}))
	defer server.Close()

	t.Setenv("TEST_LLM_KEY", "test-key")

	config := map[string]any{
		"model":         "gpt-4o-mini",
		"prompt":        "Classify '{{.input.message}}' as billing, support, or sales.",
		"system_prompt": "You answer with one word.",
		"temperature":   0.2,
		"base_url":      server.URL,
		"api_key_env":   "TEST_LLM_KEY",
	}

	node, err := NewLLMAgentNode("test-llm", config, nil)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	state := models.ExecutionState{
		ExecutionID: "test-exec",
		WorkflowID:  "test-workflow",
		Input:       map[string]any{"message": "my invoice is wrong"},
	}

	results, err := node.Execute(t.Context(), state, map[string]models.NodeResult{})
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	if captured.Model != "gpt-4o-mini" {
		t.Errorf("Expected model in request, got: %s", captured.Model)
	}

	if len(captured.Messages) != 2 {
		t.Fatalf("Expected system and user messages, got: %d", len(captured.Messages))
	}

	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != "You answer with one word." {
		t.Errorf("Unexpected system message: %+v", captured.Messages[0])
	}

	if captured.Messages[1].Content != "Classify 'my invoice is wrong' as billing, support, or sales." {
		t.Errorf("Expected rendered prompt, got: %s", captured.Messages[1].Content)
	}

	result, ok := results[OutputPortSuccess]
	if !ok {
		t.Fatal("Expected success output port to be activated")
	}

	if result.Data["response"] != "billing" {
		t.Errorf("Expected assistant response, got: %v", result.Data["response"])
	}

	usage, ok := result.Data["usage"].(map[string]any)
	if !ok || usage["total_tokens"] != 13 {
		t.Errorf("Expected token usage, got: %v", result.Data["usage"])
	}
}

func TestLLMAgentNode_Execute_MissingAPIKeyUsesErrorPort(t *testing.T) {
	config := map[string]any{
		"model":       "gpt-4o-mini",
		"prompt":      "hello",
		"api_key_env": "FLOWION_TEST_KEY_THAT_IS_NOT_SET",
	}

	node, err := NewLLMAgentNode("test-llm", config, nil)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	results, err := node.Execute(t.Context(), models.ExecutionState{}, map[string]models.NodeResult{})
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	if _, ok := results[OutputPortError]; !ok {
		t.Fatal("Expected error output port without an API key")
	}
}

func TestLLMAgentNode_Execute_ClientErrorsAreNotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "unknown model", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	t.Setenv("TEST_LLM_KEY", "test-key")

	config := map[string]any{
		"model":          "no-such-model",
		"prompt":         "hello",
		"base_url":       server.URL,
		"api_key_env":    "TEST_LLM_KEY",
		"retry_count":    3.0,
		"retry_delay_ms": 1.0,
	}

	node, err := NewLLMAgentNode("test-llm", config, nil)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	results, err := node.Execute(t.Context(), models.ExecutionState{}, map[string]models.NodeResult{})
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	errorResult, ok := results[OutputPortError]
	if !ok {
		t.Fatal("Expected error output port for a client error")
	}

	errorMessage, _ := errorResult.Data["error"].(string)
	if errorMessage == "" {
		t.Error("Expected the provider message in the error")
	}

	if attempts.Load() != 1 {
		t.Errorf("Expected a single attempt for a client error, got: %d", attempts.Load())
	}
}

func TestLLMAgentNode_Execute_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-2",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "ok"}}]
		}`))
	}))
	defer server.Close()

	t.Setenv("TEST_LLM_KEY", "test-key")

	config := map[string]any{
		"model":          "gpt-4o-mini",
		"prompt":         "hello",
		"base_url":       server.URL,
		"api_key_env":    "TEST_LLM_KEY",
		"retry_count":    1.0,
		"retry_delay_ms": 1.0,
	}

	node, err := NewLLMAgentNode("test-llm", config, nil)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	results, err := node.Execute(t.Context(), models.ExecutionState{}, map[string]models.NodeResult{})
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	if _, ok := results[OutputPortSuccess]; !ok {
		t.Fatal("Expected success after retry")
	}

	if attempts.Load() != 2 {
		t.Errorf("Expected 2 attempts, got: %d", attempts.Load())
	}
}

func TestNewLLMAgentNode_RequiredFields(t *testing.T) {
	if _, err := NewLLMAgentNode("test-llm", map[string]any{"prompt": "hello"}, nil); err == nil {
		t.Error("Expected error for missing model")
	}

	if _, err := NewLLMAgentNode("test-llm", map[string]any{"model": "gpt-4o-mini"}, nil); err == nil {
		t.Error("Expected error for missing prompt")
	}
}

func TestLLMAgentNode_Ports(t *testing.T) {
	config := map[string]any{
		"model":  "gpt-4o-mini",
		"prompt": "hello",
	}

	node, err := NewLLMAgentNode("test-llm", config, nil)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	inputPorts := node.InputPorts()
	if len(inputPorts) != 1 || inputPorts[0].Name != InputPortMain {
		t.Errorf("Expected a single main input port, got: %v", inputPorts)
	}

	outputPorts := node.OutputPorts()

	foundPorts := make(map[string]bool)
	for _, port := range outputPorts {
		foundPorts[port.Name] = true
	}

	if !foundPorts[OutputPortSuccess] || !foundPorts[OutputPortError] {
		t.Errorf("Expected success and error output ports, got: %v", foundPorts)
	}
}
