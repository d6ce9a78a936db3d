// Package queue consumes workflow run requests from a Redis list and admits
// them as executions. The builder UI pushes requests onto the list to run
// workflows in the background.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueue is the Redis list consumed when no queue name is configured.
const DefaultQueue = "flowion:runs"

// RunRequest is the message format pushed onto the run queue.
type RunRequest struct {
	WorkflowID string         `json:"workflow_id"`
	Input      map[string]any `json:"input,omitempty"`
}

// Starter admits workflow executions. Implemented by *workflow.Engine.
type Starter interface {
	StartExecution(ctx context.Context, workflowID string, input map[string]any) (string, error)
}

// Config holds the Redis connection settings for the run queue.
type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

// Consumer pops run requests off a Redis list and starts executions.
// Requests that fail admission are logged and dropped; malformed payloads
// never stall the queue.
type Consumer struct {
	logger  *slog.Logger
	client  *redis.Client
	queue   string
	starter Starter
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewConsumer(logger *slog.Logger, config Config, starter Starter) *Consumer {
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	if config.Queue == "" {
		config.Queue = DefaultQueue
	}

	return &Consumer{
		logger: logger.With("module", "queue_consumer", "queue", config.Queue),
		client: redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		}),
		queue:   config.Queue,
		starter: starter,
		stopCh:  make(chan struct{}),
	}
}

// Start verifies the Redis connection and begins consuming.
func (c *Consumer) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.InfoContext(ctx, "Starting run queue consumer")

	c.wg.Add(1)

	go c.consume(ctx)

	return nil
}

// Stop halts the consumer and closes the Redis connection.
func (c *Consumer) Stop(ctx context.Context) error {
	close(c.stopCh)
	c.wg.Wait()

	if err := c.client.Close(); err != nil {
		c.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
	}

	return nil
}

func (c *Consumer) consume(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			c.logger.Info("Run queue consumer stopped")

			return
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping run queue consumer")

			return
		default:
			if err := c.processMessage(ctx); err != nil {
				c.logger.ErrorContext(ctx, "Error processing run request", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context) error {
	result, err := c.client.BLPop(ctx, time.Second, c.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("failed to pop run request: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	request, err := decodeRunRequest([]byte(result[1]))
	if err != nil {
		c.logger.WarnContext(ctx, "Dropping malformed run request", "error", err)

		return nil
	}

	executionID, err := c.starter.StartExecution(ctx, request.WorkflowID, request.Input)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to start queued execution",
			"workflow_id", request.WorkflowID, "error", err)

		return nil
	}

	c.logger.InfoContext(ctx, "Started queued execution",
		"workflow_id", request.WorkflowID, "execution_id", executionID)

	return nil
}

func decodeRunRequest(payload []byte) (RunRequest, error) {
	var request RunRequest
	if err := json.Unmarshal(payload, &request); err != nil {
		return RunRequest{}, fmt.Errorf("invalid run request payload: %w", err)
	}

	if request.WorkflowID == "" {
		return RunRequest{}, errors.New("run request is missing workflow_id")
	}

	return request, nil
}
