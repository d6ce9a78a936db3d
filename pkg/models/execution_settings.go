// Package models defines per-node execution settings parsed from node config.
package models

// DefaultMaxConcurrent bounds fan-out when a node does not configure its own limit.
const DefaultMaxConcurrent = 5

// ExecutionSettings carries the per-node knobs the engine and executors honor.
// Retries happen inside executors; the engine itself never retries a node.
type ExecutionSettings struct {
	MaxConcurrent   int    `json:"max_concurrent"`
	ContinueOnError bool   `json:"continue_on_error"`
	ErrorPort       string `json:"error_port"`
	RetryCount      int    `json:"retry_count"`
	RetryDelayMs    int    `json:"retry_delay_ms"`
	TimeoutMs       int    `json:"timeout_ms"`
}

// ParseExecutionSettings reads the well-known settings keys from a node's
// config map. Missing or malformed keys keep their defaults; the default
// failure policy is halt.
func ParseExecutionSettings(config map[string]any) ExecutionSettings {
	settings := ExecutionSettings{
		MaxConcurrent: DefaultMaxConcurrent,
		ErrorPort:     "error",
		RetryDelayMs:  1000,
	}

	if v, ok := ConfigInt(config, "max_concurrent"); ok && v > 0 {
		settings.MaxConcurrent = v
	}

	if v, ok := config["continue_on_error"].(bool); ok {
		settings.ContinueOnError = v
	}

	if v, ok := config["error_port"].(string); ok && v != "" {
		settings.ErrorPort = v
	}

	if v, ok := ConfigInt(config, "retry_count"); ok && v >= 0 {
		settings.RetryCount = v
	}

	if v, ok := ConfigInt(config, "retry_delay_ms"); ok && v >= 0 {
		settings.RetryDelayMs = v
	}

	if v, ok := ConfigInt(config, "timeout_ms"); ok && v > 0 {
		settings.TimeoutMs = v
	}

	return settings
}

// ConfigInt reads an integer config value, tolerating the float64 produced
// by JSON decoding.
func ConfigInt(config map[string]any, key string) (int, bool) {
	switch v := config[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
