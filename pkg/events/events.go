// Package events defines event types and structures for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every execution event published by the engine.
const Topic = "flowion.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStatusChangedEvent EventType = "execution.status.changed"
	StepCompletedEvent          EventType = "execution.step.completed"
	ExecutionErrorRaisedEvent   EventType = "execution.error.raised"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		Metadata:    make(map[string]any),
	}
}

// ExecutionStatusChanged signals a lifecycle transition of one execution.
type ExecutionStatusChanged struct {
	BaseEvent

	OldStatus models.ExecutionStatus `json:"old_status"`
	NewStatus models.ExecutionStatus `json:"new_status"`
	Reason    string                 `json:"reason,omitempty"`
}

func (e ExecutionStatusChanged) GetType() EventType {
	return ExecutionStatusChangedEvent
}

// StepCompleted signals that one node execution finished, successfully or not.
type StepCompleted struct {
	BaseEvent

	StepID     string            `json:"step_id"`
	NodeID     string            `json:"node_id"`
	NodeName   string            `json:"node_name"`
	Status     models.StepStatus `json:"status"`
	OutputData map[string]any    `json:"output_data,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

// ExecutionErrorRaised signals an appended execution error record.
type ExecutionErrorRaised struct {
	BaseEvent

	StepID    string           `json:"step_id,omitempty"`
	NodeID    string           `json:"node_id,omitempty"`
	Message   string           `json:"message"`
	ErrorType models.ErrorType `json:"error_type"`
}

func (e ExecutionErrorRaised) GetType() EventType {
	return ExecutionErrorRaisedEvent
}
